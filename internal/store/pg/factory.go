// Package pg implements the store interfaces on top of Postgres, for an
// optional multi-host deployment of the gateway. The default deployment uses
// store/sqlite; this package mirrors it table-for-table for operators who
// outgrow a single-host SQLite file.
package pg

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/coderoom/server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	absolute_path TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	last_opened_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	title TEXT NOT NULL DEFAULT '',
	engine TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	latest_sdk_session_id TEXT NOT NULL DEFAULT '',
	current_head_message_id TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_project ON chat_sessions(project_id);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES chat_sessions(id),
	timestamp TIMESTAMPTZ NOT NULL,
	role TEXT NOT NULL,
	sdk_payload BYTEA,
	text TEXT NOT NULL DEFAULT '',
	is_tool_result BOOLEAN NOT NULL DEFAULT FALSE,
	sender_id TEXT NOT NULL DEFAULT '',
	sender_name TEXT NOT NULL DEFAULT '',
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	branch_id TEXT NOT NULL DEFAULT '',
	parent_message_id TEXT NOT NULL DEFAULT '',
	sdk_session_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(parent_message_id);

CREATE TABLE IF NOT EXISTS branches (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES chat_sessions(id),
	name TEXT NOT NULL,
	head_message_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_branches_session ON branches(session_id);

CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL,
	session_id TEXT NOT NULL REFERENCES chat_sessions(id),
	project_id TEXT NOT NULL,
	snapshot_type TEXT NOT NULL,
	parent_snapshot_id TEXT NOT NULL DEFAULT '',
	tree_hash TEXT NOT NULL DEFAULT '',
	delta_changes JSONB,
	files_changed INTEGER NOT NULL DEFAULT 0,
	insertions INTEGER NOT NULL DEFAULT 0,
	deletions INTEGER NOT NULL DEFAULT 0,
	branch_id TEXT NOT NULL DEFAULT '',
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_message ON snapshots(message_id);

CREATE TABLE IF NOT EXISTS checkpoint_tree_state (
	session_id TEXT NOT NULL REFERENCES chat_sessions(id),
	checkpoint_id TEXT NOT NULL,
	parent_checkpoint_id TEXT NOT NULL DEFAULT '',
	active_child_id TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, checkpoint_id)
);
`

// OpenDB opens a Postgres connection pool via the pgx stdlib driver and
// applies the schema.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// NewStores builds a store.Stores backed by Postgres.
func NewStores(dsn string) (*store.Stores, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	return &store.Stores{
		Projects:     NewProjectStore(db),
		ChatSessions: NewChatSessionStore(db),
		Messages:     NewMessageStore(db),
		Branches:     NewBranchStore(db),
		Snapshots:    NewSnapshotStore(db),
		Checkpoints:  NewCheckpointStateStore(db),
	}, nil
}
