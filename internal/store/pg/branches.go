package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
)

// BranchStore implements store.BranchStore over Postgres.
type BranchStore struct{ db *sql.DB }

func NewBranchStore(db *sql.DB) *BranchStore { return &BranchStore{db: db} }

func (s *BranchStore) Create(ctx context.Context, b *domain.Branch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO branches (id, session_id, name, head_message_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.SessionID, b.Name, b.HeadMessageID, b.CreatedAt)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *BranchStore) Get(ctx context.Context, id string) (*domain.Branch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, name, head_message_id, created_at FROM branches WHERE id = $1`, id)
	return scanBranch(row)
}

func (s *BranchStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, name, head_message_id, created_at FROM branches WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
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
	_, err := s.db.ExecContext(ctx, `UPDATE branches SET head_message_id = $1 WHERE id = $2`, messageID, branchID)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func scanBranch(r rowScanner) (*domain.Branch, error) {
	var b domain.Branch
	var created time.Time
	if err := r.Scan(&b.ID, &b.SessionID, &b.Name, &b.HeadMessageID, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("branch")
		}
		return nil, apierr.IO(err)
	}
	b.CreatedAt = created
	return &b, nil
}
