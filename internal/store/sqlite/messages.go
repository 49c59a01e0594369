package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
)

// MessageStore implements store.MessageStore.
type MessageStore struct{ db *sql.DB }

func NewMessageStore(db *sql.DB) *MessageStore { return &MessageStore{db: db} }

func (s *MessageStore) Create(ctx context.Context, m *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, timestamp, role, sdk_payload, text, is_tool_result,
		   sender_id, sender_name, is_deleted, branch_id, parent_message_id, sdk_session_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Timestamp.Format(timeFormat), string(m.Role), m.SDKPayload, m.Text,
		boolToInt(m.IsToolResult), m.SenderID, m.SenderName, boolToInt(m.IsDeleted), m.BranchID,
		m.ParentMessageID, m.SDKSessionID,
	)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *MessageStore) Get(ctx context.Context, id string) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, messageSelectSQL+` WHERE id = ?`, id)
	return scanMessage(row)
}

func (s *MessageStore) Children(ctx context.Context, id string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelectSQL+` WHERE parent_message_id = ? ORDER BY timestamp ASC`, id)
	if err != nil {
		return nil, apierr.IO(err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *MessageStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelectSQL+` WHERE session_id = ? ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, apierr.IO(err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *MessageStore) SoftDelete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET is_deleted = 1 WHERE id = ?`, id)
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
		`UPDATE messages SET is_deleted = 1 WHERE session_id = ? AND timestamp > ?`,
		sessionID, after.Timestamp.Format(timeFormat))
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

const messageSelectSQL = `SELECT id, session_id, timestamp, role, sdk_payload, text, is_tool_result,
	sender_id, sender_name, is_deleted, branch_id, parent_message_id, sdk_session_id FROM messages`

func scanMessage(r rowScanner) (*domain.Message, error) {
	var m domain.Message
	var ts, role string
	var isToolResult, isDeleted int
	if err := r.Scan(&m.ID, &m.SessionID, &ts, &role, &m.SDKPayload, &m.Text, &isToolResult,
		&m.SenderID, &m.SenderName, &isDeleted, &m.BranchID, &m.ParentMessageID, &m.SDKSessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("message")
		}
		return nil, apierr.IO(err)
	}
	m.Timestamp, _ = time.Parse(timeFormat, ts)
	m.Role = domain.MessageRole(role)
	m.IsToolResult = isToolResult != 0
	m.IsDeleted = isDeleted != 0
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
