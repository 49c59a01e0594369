package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
)

// ChatSessionStore implements store.ChatSessionStore.
type ChatSessionStore struct{ db *sql.DB }

func NewChatSessionStore(db *sql.DB) *ChatSessionStore { return &ChatSessionStore{db: db} }

func (s *ChatSessionStore) Create(ctx context.Context, cs *domain.ChatSession) error {
	var ended sql.NullString
	if cs.EndedAt != nil {
		ended = sql.NullString{String: cs.EndedAt.Format(timeFormat), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, project_id, title, engine, model, latest_sdk_session_id, current_head_message_id, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cs.ID, cs.ProjectID, cs.Title, cs.Engine, cs.Model, cs.LatestSDKSessionID, cs.HeadMessageID, cs.StartedAt.Format(timeFormat), ended,
	)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *ChatSessionStore) Get(ctx context.Context, id string) (*domain.ChatSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, engine, model, latest_sdk_session_id, current_head_message_id, started_at, ended_at
		 FROM chat_sessions WHERE id = ?`, id)
	return scanChatSession(row)
}

func (s *ChatSessionStore) ListByProject(ctx context.Context, projectID string) ([]*domain.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, title, engine, model, latest_sdk_session_id, current_head_message_id, started_at, ended_at
		 FROM chat_sessions WHERE project_id = ? ORDER BY started_at ASC`, projectID)
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
// that messageID refers to an undeleted message in this session (invariant 1)
// before calling — this store layer does not itself enforce cross-entity
// invariants.
func (s *ChatSessionStore) SetHead(ctx context.Context, sessionID, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET current_head_message_id = ? WHERE id = ?`, messageID, sessionID)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *ChatSessionStore) SetLatestSDKSessionID(ctx context.Context, sessionID, sdkSessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET latest_sdk_session_id = ? WHERE id = ?`, sdkSessionID, sessionID)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *ChatSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func scanChatSession(r rowScanner) (*domain.ChatSession, error) {
	var cs domain.ChatSession
	var started string
	var ended sql.NullString
	if err := r.Scan(&cs.ID, &cs.ProjectID, &cs.Title, &cs.Engine, &cs.Model,
		&cs.LatestSDKSessionID, &cs.HeadMessageID, &started, &ended); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("chat session")
		}
		return nil, apierr.IO(err)
	}
	cs.StartedAt, _ = time.Parse(timeFormat, started)
	if ended.Valid {
		t, _ := time.Parse(timeFormat, ended.String)
		cs.EndedAt = &t
	}
	return &cs, nil
}
