// Package domain defines the core entities shared across the router, the
// snapshot/checkpoint engine, the PTY manager, and the browser tab manager.
package domain

import "time"

// Project is the root of all per-project state. Deleting a project cascades
// to its chat sessions, messages, snapshots, and browser services.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	AbsolutePath string    `json:"absolute_path"`
	CreatedAt    time.Time `json:"created_at"`
	LastOpenedAt time.Time `json:"last_opened_at"`
}

// ChatSession tracks one conversation thread within a project. HeadMessageID
// is the HEAD pointer of the git-like message DAG.
type ChatSession struct {
	ID                 string     `json:"id"`
	ProjectID          string     `json:"project_id"`
	Title              string     `json:"title"`
	Engine             string     `json:"engine"`
	Model              string     `json:"model"`
	LatestSDKSessionID string     `json:"latest_sdk_session_id,omitempty"`
	HeadMessageID      string     `json:"current_head_message_id,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
}

// MessageRole classifies the author of a Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is one node in a session's message DAG. ParentMessageID forms the
// DAG edges; IsDeleted is the soft-delete flag used during branch switching.
type Message struct {
	ID              string      `json:"id"`
	SessionID       string      `json:"session_id"`
	Timestamp       time.Time   `json:"timestamp"`
	Role            MessageRole `json:"role"`
	SDKPayload      []byte      `json:"sdk_payload,omitempty"`
	Text            string      `json:"text,omitempty"`
	IsToolResult    bool        `json:"is_tool_result"`
	SenderID        string      `json:"sender_id,omitempty"`
	SenderName      string      `json:"sender_name,omitempty"`
	IsDeleted       bool        `json:"is_deleted"`
	BranchID        string      `json:"branch_id,omitempty"`
	ParentMessageID string      `json:"parent_message_id,omitempty"`
	SDKSessionID    string      `json:"sdk_session_id,omitempty"`
}

// IsCheckpoint reports whether this message qualifies as a checkpoint: a
// user message with non-empty text that is not itself a tool result.
func (m *Message) IsCheckpoint() bool {
	return m.Role == RoleUser && m.Text != "" && !m.IsToolResult
}

// Branch is a named pointer into a session's message DAG — semantically a
// git branch.
type Branch struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	Name          string    `json:"name"`
	HeadMessageID string    `json:"head_message_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// CheckpointTreeState records, for one checkpoint node, which child lies on
// the "straight" (active) line of the checkpoint tree.
type CheckpointTreeState struct {
	SessionID          string `json:"session_id"`
	CheckpointID       string `json:"checkpoint_id"`
	ParentCheckpointID string `json:"parent_checkpoint_id,omitempty"`
	ActiveChildID      string `json:"active_child_id,omitempty"`
}

// SnapshotType distinguishes a full tree capture from a delta against a
// parent snapshot.
type SnapshotType string

const (
	SnapshotFull  SnapshotType = "full"
	SnapshotDelta SnapshotType = "delta"
)

// TreeDelta is the set of path-level changes between two snapshot trees,
// computed by comparing blob hashes only.
type TreeDelta struct {
	Added    map[string]string `json:"added"`    // path -> new blob hash
	Modified map[string]string `json:"modified"` // path -> new blob hash
	Deleted  []string          `json:"deleted"`  // paths removed
}

func NewTreeDelta() *TreeDelta {
	return &TreeDelta{Added: map[string]string{}, Modified: map[string]string{}}
}

func (d *TreeDelta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// Snapshot captures project file state at one message in a session.
type Snapshot struct {
	ID              string       `json:"id"`
	MessageID       string       `json:"message_id"`
	SessionID       string       `json:"session_id"`
	ProjectID       string       `json:"project_id"`
	Type            SnapshotType `json:"snapshot_type"`
	ParentSnapshotID string      `json:"parent_snapshot_id,omitempty"`
	TreeHash        string       `json:"tree_hash,omitempty"`
	DeltaChanges    *TreeDelta   `json:"delta_changes,omitempty"`
	FilesChanged    int          `json:"files_changed"`
	Insertions      int          `json:"insertions"`
	Deletions       int          `json:"deletions"`
	BranchID        string       `json:"branch_id,omitempty"`
	IsDeleted       bool         `json:"is_deleted"`
	CreatedAt       time.Time    `json:"created_at"`
}

// TimelineNode is one checkpoint's projection in a session timeline query.
type TimelineNode struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"messageId"`
	ParentID       string    `json:"parentId,omitempty"`
	ActiveChildID  string    `json:"activeChildId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	MessageText    string    `json:"messageText"`
	IsOnActivePath bool      `json:"isOnActivePath"`
	IsOrphaned     bool      `json:"isOrphaned"`
	IsCurrent      bool      `json:"isCurrent"`
	HasSnapshot    bool      `json:"hasSnapshot"`
	FilesChanged   int       `json:"filesChanged"`
	Insertions     int       `json:"insertions"`
	Deletions      int       `json:"deletions"`
}

// Timeline is the full result of a timeline query for one session.
type Timeline struct {
	Nodes         []TimelineNode `json:"nodes"`
	CurrentHeadID string         `json:"current_head_id,omitempty"`
}

// MaxMessageTextLen bounds the messageText field of a TimelineNode.
const MaxMessageTextLen = 100

// TruncateText clips s to MaxMessageTextLen runes.
func TruncateText(s string) string {
	r := []rune(s)
	if len(r) <= MaxMessageTextLen {
		return s
	}
	return string(r[:MaxMessageTextLen])
}
