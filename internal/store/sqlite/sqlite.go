// Package sqlite implements the store interfaces on top of a local
// SQLite-shaped database (§6), matching the teacher's single-shared-
// connection, serialized-write style.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/coderoom/server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	absolute_path TEXT NOT NULL,
	created_at TEXT NOT NULL,
	last_opened_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	title TEXT NOT NULL DEFAULT '',
	engine TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	latest_sdk_session_id TEXT NOT NULL DEFAULT '',
	current_head_message_id TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	ended_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_project ON chat_sessions(project_id);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES chat_sessions(id),
	timestamp TEXT NOT NULL,
	role TEXT NOT NULL,
	sdk_payload BLOB,
	text TEXT NOT NULL DEFAULT '',
	is_tool_result INTEGER NOT NULL DEFAULT 0,
	sender_id TEXT NOT NULL DEFAULT '',
	sender_name TEXT NOT NULL DEFAULT '',
	is_deleted INTEGER NOT NULL DEFAULT 0,
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
	created_at TEXT NOT NULL
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
	delta_changes TEXT,
	files_changed INTEGER NOT NULL DEFAULT 0,
	insertions INTEGER NOT NULL DEFAULT 0,
	deletions INTEGER NOT NULL DEFAULT 0,
	branch_id TEXT NOT NULL DEFAULT '',
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
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

// Open opens (creating if necessary) the SQLite database at path and applies
// the schema. A single shared *sql.DB is returned; callers should set
// MaxOpenConns(1) expectations are handled here to serialize writes, matching
// the teacher's single-connection store discipline (§5).
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // serialize writes; SQLite has one writer at a time

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// NewStores builds a store.Stores backed by db.
func NewStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Projects:     NewProjectStore(db),
		ChatSessions: NewChatSessionStore(db),
		Messages:     NewMessageStore(db),
		Branches:     NewBranchStore(db),
		Snapshots:    NewSnapshotStore(db),
		Checkpoints:  NewCheckpointStateStore(db),
	}
}
