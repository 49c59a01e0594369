package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
)

// ChatSessionStore implements store.ChatSessionStore over Postgres.
type ChatSessionStore struct{ db *sql.DB }

func NewChatSessionStore(db *sql.DB) *ChatSessionStore { return &ChatSessionStore{db: db} }

func (s *ChatSessionStore) Create(ctx context.Context, cs *domain.ChatSession) error {
	var ended sql.NullTime
	if cs.EndedAt != nil {
		ended = sql.NullTime{Time: *cs.EndedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, project_id, title, engine, model, latest_sdk_session_id, current_head_message_id, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cs.ID, cs.ProjectID, cs.Title, cs.Engine, cs.Model, cs.LatestSDKSessionID, cs.HeadMessageID, cs.StartedAt, ended,
	)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *ChatSessionStore) Get(ctx context.Context, id string) (*domain.ChatSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, engine, model, latest_sdk_session_id, current_head_message_id, started_at, ended_at
		 FROM chat_sessions WHERE id = $1`, id)
	return scanChatSession(row)
}

func (s *ChatSessionStore) ListByProject(ctx context.Context, projectID string) ([]*domain.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, title, engine, model, latest_sdk_session_id, current_head_message_id, started_at, ended_at
		 FROM chat_sessions WHERE project_id = $1 ORDER BY started_at ASC`, projectID)
	if err != nil {
		return nil, apierr.IO(err)
	}
	defer rows.Close()

	var out []*domain.ChatSession
	for rows.Next() {
		cs, err := scanChatSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// SetHead updates current_head_message_id. Callers must ensure the invariant
// that messageID refers to an undeleted message in this session before
// calling — this store layer does not itself enforce cross-entity invariants.
func (s *ChatSessionStore) SetHead(ctx context.Context, sessionID, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET current_head_message_id = $1 WHERE id = $2`, messageID, sessionID)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *ChatSessionStore) SetLatestSDKSessionID(ctx context.Context, sessionID, sdkSessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET latest_sdk_session_id = $1 WHERE id = $2`, sdkSessionID, sessionID)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *ChatSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func scanChatSession(r rowScanner) (*domain.ChatSession, error) {
	var cs domain.ChatSession
	var started time.Time
	var ended sql.NullTime
	if err := r.Scan(&cs.ID, &cs.ProjectID, &cs.Title, &cs.Engine, &cs.Model,
		&cs.LatestSDKSessionID, &cs.HeadMessageID, &started, &ended); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("chat session")
		}
		return nil, apierr.IO(err)
	}
	cs.StartedAt = started
	if ended.Valid {
		t := ended.Time
		cs.EndedAt = &t
	}
	return &cs, nil
}
