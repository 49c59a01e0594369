package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
)

// BranchStore implements store.BranchStore.
type BranchStore struct{ db *sql.DB }

func NewBranchStore(db *sql.DB) *BranchStore { return &BranchStore{db: db} }

func (s *BranchStore) Create(ctx context.Context, b *domain.Branch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO branches (id, session_id, name, head_message_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.SessionID, b.Name, b.HeadMessageID, b.CreatedAt.Format(timeFormat))
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *BranchStore) Get(ctx context.Context, id string) (*domain.Branch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, name, head_message_id, created_at FROM branches WHERE id = ?`, id)
	return scanBranch(row)
}

func (s *BranchStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, name, head_message_id, created_at FROM branches WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, apierr.IO(err)
	}
	defer rows.Close()

	var out []*domain.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *BranchStore) SetHead(ctx context.Context, branchID, messageID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE branches SET head_message_id = ? WHERE id = ?`, messageID, branchID)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func scanBranch(r rowScanner) (*domain.Branch, error) {
	var b domain.Branch
	var created string
	if err := r.Scan(&b.ID, &b.SessionID, &b.Name, &b.HeadMessageID, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("branch")
		}
		return nil, apierr.IO(err)
	}
	b.CreatedAt, _ = time.Parse(timeFormat, created)
	return &b, nil
}
