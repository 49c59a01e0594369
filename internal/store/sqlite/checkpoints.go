package sqlite

import (
	"context"
	"database/sql"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
)

// CheckpointStateStore implements store.CheckpointStateStore.
type CheckpointStateStore struct{ db *sql.DB }

func NewCheckpointStateStore(db *sql.DB) *CheckpointStateStore { return &CheckpointStateStore{db: db} }

func (s *CheckpointStateStore) Upsert(ctx context.Context, cs *domain.CheckpointTreeState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoint_tree_state (session_id, checkpoint_id, parent_checkpoint_id, active_child_id)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, checkpoint_id) DO UPDATE SET
		   parent_checkpoint_id = excluded.parent_checkpoint_id,
		   active_child_id = excluded.active_child_id`,
		cs.SessionID, cs.CheckpointID, cs.ParentCheckpointID, cs.ActiveChildID)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *CheckpointStateStore) Get(ctx context.Context, sessionID, checkpointID string) (*domain.CheckpointTreeState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, checkpoint_id, parent_checkpoint_id, active_child_id FROM checkpoint_tree_state
		 WHERE session_id = ? AND checkpoint_id = ?`, sessionID, checkpointID)
	var cs domain.CheckpointTreeState
	if err := row.Scan(&cs.SessionID, &cs.CheckpointID, &cs.ParentCheckpointID, &cs.ActiveChildID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("checkpoint state")
		}
		return nil, apierr.IO(err)
	}
	return &cs, nil
}

func (s *CheckpointStateStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.CheckpointTreeState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, checkpoint_id, parent_checkpoint_id, active_child_id FROM checkpoint_tree_state WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, apierr.IO(err)
	}
	defer rows.Close()

	var out []*domain.CheckpointTreeState
	for rows.Next() {
		var cs domain.CheckpointTreeState
		if err := rows.Scan(&cs.SessionID, &cs.CheckpointID, &cs.ParentCheckpointID, &cs.ActiveChildID); err != nil {
			return nil, apierr.IO(err)
		}
		out = append(out, &cs)
	}
	return out, rows.Err()
}
