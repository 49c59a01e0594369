package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
)

// SnapshotStore implements store.SnapshotStore over Postgres.
type SnapshotStore struct{ db *sql.DB }

func NewSnapshotStore(db *sql.DB) *SnapshotStore { return &SnapshotStore{db: db} }

func (s *SnapshotStore) Create(ctx context.Context, sn *domain.Snapshot) error {
	var delta []byte
	if sn.DeltaChanges != nil {
		var err error
		delta, err = json.Marshal(sn.DeltaChanges)
		if err != nil {
			return apierr.IO(err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, message_id, session_id, project_id, snapshot_type, parent_snapshot_id,
		   tree_hash, delta_changes, files_changed, insertions, deletions, branch_id, is_deleted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sn.ID, sn.MessageID, sn.SessionID, sn.ProjectID, string(sn.Type), sn.ParentSnapshotID,
		sn.TreeHash, delta, sn.FilesChanged, sn.Insertions, sn.Deletions, sn.BranchID,
		sn.IsDeleted, sn.CreatedAt,
	)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *SnapshotStore) Get(ctx context.Context, id string) (*domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, snapshotSelectSQL+` WHERE id = $1`, id)
	return scanSnapshot(row)
}

func (s *SnapshotStore) LatestForSession(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		snapshotSelectSQL+` WHERE session_id = $1 AND is_deleted = FALSE ORDER BY created_at DESC LIMIT 1`, sessionID)
	sn, err := scanSnapshot(row)
	if err != nil {
		if ae, ok := apierr.As(err); ok && ae.Code == apierr.CodeNotFound {
			return nil, nil
		}
		return nil, err
	}
	return sn, nil
}

func (s *SnapshotStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		snapshotSelectSQL+` WHERE session_id = $1 AND is_deleted = FALSE ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, apierr.IO(err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func (s *SnapshotStore) ListByMessage(ctx context.Context, messageID string) ([]*domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		snapshotSelectSQL+` WHERE message_id = $1 AND is_deleted = FALSE ORDER BY created_at ASC`, messageID)
	if err != nil {
		return nil, apierr.IO(err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

const snapshotSelectSQL = `SELECT id, message_id, session_id, project_id, snapshot_type, parent_snapshot_id,
	tree_hash, delta_changes, files_changed, insertions, deletions, branch_id, is_deleted, created_at FROM snapshots`

func scanSnapshot(r rowScanner) (*domain.Snapshot, error) {
	var sn domain.Snapshot
	var typ string
	var created time.Time
	var delta []byte
	if err := r.Scan(&sn.ID, &sn.MessageID, &sn.SessionID, &sn.ProjectID, &typ, &sn.ParentSnapshotID,
		&sn.TreeHash, &delta, &sn.FilesChanged, &sn.Insertions, &sn.Deletions, &sn.BranchID,
		&sn.IsDeleted, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("snapshot")
		}
		return nil, apierr.IO(err)
	}
	sn.Type = domain.SnapshotType(typ)
	sn.CreatedAt = created
	if len(delta) > 0 {
		var d domain.TreeDelta
		if err := json.Unmarshal(delta, &d); err == nil {
			sn.DeltaChanges = &d
		}
	}
	return &sn, nil
}

func scanSnapshots(rows *sql.Rows) ([]*domain.Snapshot, error) {
	var out []*domain.Snapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}
