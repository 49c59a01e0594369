package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
)

const timeFormat = time.RFC3339Nano

// ProjectStore implements store.ProjectStore over a shared *sql.DB.
type ProjectStore struct{ db *sql.DB }

func NewProjectStore(db *sql.DB) *ProjectStore { return &ProjectStore{db: db} }

func (s *ProjectStore) Create(ctx context.Context, p *domain.Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, absolute_path, created_at, last_opened_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.AbsolutePath, p.CreatedAt.Format(timeFormat), p.LastOpenedAt.Format(timeFormat),
	)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *ProjectStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, absolute_path, created_at, last_opened_at FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func (s *ProjectStore) List(ctx context.Context) ([]*domain.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, absolute_path, created_at, last_opened_at FROM projects ORDER BY last_opened_at DESC`)
	if err != nil {
		return nil, apierr.IO(err)
	}
	defer rows.Close()

	var out []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *ProjectStore) TouchOpened(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE projects SET last_opened_at = ? WHERE id = ?`, time.Now().Format(timeFormat), id)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

// Delete cascades to chat sessions, messages, and snapshots.
func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.IO(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE session_id IN (SELECT id FROM chat_sessions WHERE project_id = ?)`, id); err != nil {
		return apierr.IO(err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id IN (SELECT id FROM chat_sessions WHERE project_id = ?)`, id); err != nil {
		return apierr.IO(err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM branches WHERE session_id IN (SELECT id FROM chat_sessions WHERE project_id = ?)`, id); err != nil {
		return apierr.IO(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE project_id = ?`, id); err != nil {
		return apierr.IO(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return apierr.IO(err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(r rowScanner) (*domain.Project, error) {
	var p domain.Project
	var created, opened string
	if err := r.Scan(&p.ID, &p.Name, &p.AbsolutePath, &created, &opened); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("project")
		}
		return nil, apierr.IO(err)
	}
	p.CreatedAt, _ = time.Parse(timeFormat, created)
	p.LastOpenedAt, _ = time.Parse(timeFormat, opened)
	return &p, nil
}
