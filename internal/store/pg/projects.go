package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
)

// ProjectStore implements store.ProjectStore over Postgres.
type ProjectStore struct{ db *sql.DB }

func NewProjectStore(db *sql.DB) *ProjectStore { return &ProjectStore{db: db} }

func (s *ProjectStore) Create(ctx context.Context, p *domain.Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, absolute_path, created_at, last_opened_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.AbsolutePath, p.CreatedAt, p.LastOpenedAt)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

func (s *ProjectStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, absolute_path, created_at, last_opened_at FROM projects WHERE id = $1`, id)
	var p domain.Project
	if err := row.Scan(&p.ID, &p.Name, &p.AbsolutePath, &p.CreatedAt, &p.LastOpenedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("project")
		}
		return nil, apierr.IO(err)
	}
	return &p, nil
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
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.AbsolutePath, &p.CreatedAt, &p.LastOpenedAt); err != nil {
			return nil, apierr.IO(err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *ProjectStore) TouchOpened(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET last_opened_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.IO(err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM snapshots WHERE session_id IN (SELECT id FROM chat_sessions WHERE project_id = $1)`,
		`DELETE FROM messages WHERE session_id IN (SELECT id FROM chat_sessions WHERE project_id = $1)`,
		`DELETE FROM branches WHERE session_id IN (SELECT id FROM chat_sessions WHERE project_id = $1)`,
		`DELETE FROM checkpoint_tree_state WHERE session_id IN (SELECT id FROM chat_sessions WHERE project_id = $1)`,
		`DELETE FROM chat_sessions WHERE project_id = $1`,
		`DELETE FROM projects WHERE id = $1`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return apierr.IO(err)
		}
	}
	return tx.Commit()
}
