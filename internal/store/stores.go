// Package store defines the narrow, per-entity query interfaces that gate
// all database access. No handler or engine component issues SQL directly —
// everything goes through these interfaces (§6).
package store

import (
	"context"

	"github.com/coderoom/server/internal/domain"
)

// Stores is the top-level container for all storage backends.
type Stores struct {
	Projects     ProjectStore
	ChatSessions ChatSessionStore
	Messages     MessageStore
	Branches     BranchStore
	Snapshots    SnapshotStore
	Checkpoints  CheckpointStateStore
}

// ProjectStore manages Project rows.
type ProjectStore interface {
	Create(ctx context.Context, p *domain.Project) error
	Get(ctx context.Context, id string) (*domain.Project, error)
	List(ctx context.Context) ([]*domain.Project, error)
	TouchOpened(ctx context.Context, id string) error
	// Delete cascades to chat sessions, messages, and snapshots per the
	// Project entity's cascade-delete invariant.
	Delete(ctx context.Context, id string) error
}

// ChatSessionStore manages ChatSession rows.
type ChatSessionStore interface {
	Create(ctx context.Context, s *domain.ChatSession) error
	Get(ctx context.Context, id string) (*domain.ChatSession, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.ChatSession, error)
	SetHead(ctx context.Context, sessionID, messageID string) error
	SetLatestSDKSessionID(ctx context.Context, sessionID, sdkSessionID string) error
	Delete(ctx context.Context, id string) error
}

// MessageStore manages Message rows and DAG traversal.
type MessageStore interface {
	Create(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, id string) (*domain.Message, error)
	// Children returns all messages whose ParentMessageID equals id, sorted
	// by timestamp ascending.
	Children(ctx context.Context, id string) ([]*domain.Message, error)
	// ListBySession returns every message in a session in timestamp order.
	ListBySession(ctx context.Context, sessionID string) ([]*domain.Message, error)
	SoftDelete(ctx context.Context, id string) error
	// SoftDeleteAfter marks deleted every message in the session with
	// timestamp strictly after `after.Timestamp` (exclusive bound — see
	// DESIGN.md on the `>=` vs `>` boundary noted in spec.md §9).
	SoftDeleteAfter(ctx context.Context, sessionID string, after domain.Message) error
}

// BranchStore manages named Branch pointers.
type BranchStore interface {
	Create(ctx context.Context, b *domain.Branch) error
	Get(ctx context.Context, id string) (*domain.Branch, error)
	ListBySession(ctx context.Context, sessionID string) ([]*domain.Branch, error)
	SetHead(ctx context.Context, branchID, messageID string) error
}

// SnapshotStore manages Snapshot rows.
type SnapshotStore interface {
	Create(ctx context.Context, s *domain.Snapshot) error
	Get(ctx context.Context, id string) (*domain.Snapshot, error)
	// LatestForSession returns the most recently created, non-deleted
	// snapshot for a session, or nil if none exists.
	LatestForSession(ctx context.Context, sessionID string) (*domain.Snapshot, error)
	// ListBySession returns all non-deleted snapshots for a session ordered
	// by creation time ascending.
	ListBySession(ctx context.Context, sessionID string) ([]*domain.Snapshot, error)
	// ListByMessage returns all non-deleted snapshots attached to a message.
	ListByMessage(ctx context.Context, messageID string) ([]*domain.Snapshot, error)
}

// CheckpointStateStore manages CheckpointTreeState rows.
type CheckpointStateStore interface {
	Upsert(ctx context.Context, s *domain.CheckpointTreeState) error
	Get(ctx context.Context, sessionID, checkpointID string) (*domain.CheckpointTreeState, error)
	ListBySession(ctx context.Context, sessionID string) ([]*domain.CheckpointTreeState, error)
}
