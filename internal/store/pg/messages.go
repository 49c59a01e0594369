package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
)

// MessageStore implements store.MessageStore over Postgres.
type MessageStore struct{ db *sql.DB }

func NewMessageStore(db *sql.DB) *MessageStore { return &MessageStore{db: db} }

func (s *MessageStore) Create(ctx context.Context, m *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, timestamp, role, sdk_payload, text, is_tool_result,
		   sender_id, sender_name, is_deleted, branch_id, parent_message_id, sdk_session_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.SessionID, m.Timestamp, string(m.Role), m.SDKPayload, m.Text,
		m.IsToolResult, m.SenderID, m.SenderName, m.IsDeleted, m.BranchID,
		m.ParentMessageID, m.SDKSessionID,
	)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *MessageStore) Get(ctx context.Context, id string) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, messageSelectSQL+` WHERE id = $1`, id)
	return scanMessage(row)
}

func (s *MessageStore) Children(ctx context.Context, id string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelectSQL+` WHERE parent_message_id = $1 ORDER BY timestamp ASC`, id)
	if err != nil {
		return nil, apierr.IO(err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *MessageStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelectSQL+` WHERE session_id = $1 ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, apierr.IO(err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *MessageStore) SoftDelete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET is_deleted = TRUE WHERE id = $1`, id)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

// SoftDeleteAfter marks deleted every message in sessionID with a timestamp
// strictly after after.Timestamp (the intentional `>` bound used by the
// soft-delete path — see spec.md §9 on the deprecated `>=` hard-delete path).
func (s *MessageStore) SoftDeleteAfter(ctx context.Context, sessionID string, after domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_deleted = TRUE WHERE session_id = $1 AND timestamp > $2`,
		sessionID, after.Timestamp)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

const messageSelectSQL = `SELECT id, session_id, timestamp, role, sdk_payload, text, is_tool_result,
	sender_id, sender_name, is_deleted, branch_id, parent_message_id, sdk_session_id FROM messages`

func scanMessage(r rowScanner) (*domain.Message, error) {
	var m domain.Message
	var ts time.Time
	var role string
	if err := r.Scan(&m.ID, &m.SessionID, &ts, &role, &m.SDKPayload, &m.Text, &m.IsToolResult,
		&m.SenderID, &m.SenderName, &m.IsDeleted, &m.BranchID, &m.ParentMessageID, &m.SDKSessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("message")
		}
		return nil, apierr.IO(err)
	}
	m.Timestamp = ts
	m.Role = domain.MessageRole(role)
	return &m, nil
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
