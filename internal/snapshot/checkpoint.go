package snapshot

import (
	"context"
	"sort"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
)

// checkpointGraph is the parent/children adjacency of a session's checkpoint
// tree, derived from the message DAG by collapsing runs of non-checkpoint
// messages (§4.3 "Checkpoint tree").
type checkpointGraph struct {
	parent   map[string]string   // checkpoint id -> checkpoint-parent id ("" = root)
	children map[string][]string // checkpoint id -> checkpoint-child ids, timestamp order
}

// buildCheckpointGraph walks every message in sessionID and, for each
// checkpoint message, follows parent_message_id through non-checkpoint
// messages until it reaches another checkpoint (or the root).
func (e *Engine) buildCheckpointGraph(ctx context.Context, sessionID string) (*checkpointGraph, map[string]*domain.Message, error) {
	msgs, err := e.stores.Messages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]*domain.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	g := &checkpointGraph{parent: map[string]string{}, children: map[string][]string{}}
	for _, m := range msgs {
		if !m.IsCheckpoint() {
			continue
		}
		ancestor := findCheckpointAncestor(byID, m)
		g.parent[m.ID] = ancestor
		g.children[ancestor] = append(g.children[ancestor], m.ID)
	}
	for parent := range g.children {
		ids := g.children[parent]
		sort.Slice(ids, func(i, j int) bool {
			return byID[ids[i]].Timestamp.Before(byID[ids[j]].Timestamp)
		})
		g.children[parent] = ids
	}
	return g, byID, nil
}

// findCheckpointAncestor walks up parent_message_id from m (exclusive)
// until it finds another checkpoint, returning "" if it reaches the root
// without finding one.
func findCheckpointAncestor(byID map[string]*domain.Message, m *domain.Message) string {
	visited := map[string]bool{m.ID: true}
	cur := m
	for cur.ParentMessageID != "" {
		if visited[cur.ParentMessageID] {
			return "" // defensive: cycle in parent pointers, treat as root
		}
		next, ok := byID[cur.ParentMessageID]
		if !ok {
			return ""
		}
		visited[next.ID] = true
		if next.IsCheckpoint() {
			return next.ID
		}
		cur = next
	}
	return ""
}

// pathToRoot returns the checkpoint ids from the root down to and including
// checkpointID.
func pathToRoot(g *checkpointGraph, checkpointID string) []string {
	var rev []string
	cur := checkpointID
	visited := map[string]bool{}
	for cur != "" && !visited[cur] {
		rev = append(rev, cur)
		visited[cur] = true
		cur = g.parent[cur]
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// RestoreResult summarizes the effects of RestoreToCheckpoint for the
// caller to broadcast over the router.
type RestoreResult struct {
	SessionEnd *domain.Message
	Snapshot   *domain.Snapshot
	Written    []string
}

// RestoreToCheckpoint is the central operation of §4.3: move HEAD to the
// checkpoint's session end, refresh the AI-resume session id, recompute the
// active checkpoint path, and restore disk state to the nearest ancestor
// snapshot.
func (e *Engine) RestoreToCheckpoint(ctx context.Context, projectPath, sessionID, messageID string) (*RestoreResult, error) {
	target, err := e.stores.Messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !target.IsCheckpoint() {
		return nil, apierr.Validation("message %s is not a checkpoint", messageID)
	}

	sessionEnd, err := e.findSessionEnd(ctx, sessionID, target)
	if err != nil {
		return nil, err
	}

	if err := e.stores.ChatSessions.SetHead(ctx, sessionID, sessionEnd.ID); err != nil {
		return nil, err
	}

	if sdkSessionID, err := e.nearestSDKSessionID(ctx, sessionEnd); err != nil {
		return nil, err
	} else if sdkSessionID != "" {
		if err := e.stores.ChatSessions.SetLatestSDKSessionID(ctx, sessionID, sdkSessionID); err != nil {
			return nil, err
		}
	}

	graph, _, err := e.buildCheckpointGraph(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	path := pathToRoot(graph, target.ID)
	for i := 0; i+1 < len(path); i++ {
		parent, child := path[i], path[i+1]
		var grandparent string
		if i > 0 {
			grandparent = path[i-1]
		}
		if err := e.stores.Checkpoints.Upsert(ctx, &domain.CheckpointTreeState{
			SessionID:          sessionID,
			CheckpointID:       parent,
			ParentCheckpointID: grandparent,
			ActiveChildID:      child,
		}); err != nil {
			return nil, err
		}
	}

	snapshot, err := e.nearestSnapshot(ctx, sessionID, target.ID, sessionEnd.ID)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{SessionEnd: sessionEnd}
	if snapshot != nil {
		written, err := e.Restore(ctx, projectPath, snapshot)
		if err != nil {
			return nil, err
		}
		result.Snapshot = snapshot
		result.Written = written
	}
	return result, nil
}

// findSessionEnd implements the two-algorithm fallback from §4.3 step 2 and
// §9: a parent-based walk down through non-checkpoint children, falling
// back to a timestamp-based forward scan when the parent-based walk makes
// no progress (partially populated parent links).
func (e *Engine) findSessionEnd(ctx context.Context, sessionID string, checkpoint *domain.Message) (*domain.Message, error) {
	viaParent, err := e.sessionEndViaParentWalk(ctx, checkpoint)
	if err != nil {
		return nil, err
	}
	if viaParent.ID != checkpoint.ID {
		return viaParent, nil
	}
	return e.sessionEndViaTimestampWalk(ctx, sessionID, checkpoint)
}

func (e *Engine) sessionEndViaParentWalk(ctx context.Context, checkpoint *domain.Message) (*domain.Message, error) {
	cur := checkpoint
	visited := map[string]bool{cur.ID: true}
	for {
		children, err := e.stores.Messages.Children(ctx, cur.ID)
		if err != nil {
			return nil, err
		}
		var candidates []*domain.Message
		for _, c := range children {
			if c.IsDeleted || c.IsCheckpoint() || visited[c.ID] {
				continue
			}
			candidates = append(candidates, c)
		}
		if len(candidates) == 0 {
			return cur, nil
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Timestamp.Before(candidates[j].Timestamp)
		})
		next := candidates[len(candidates)-1]
		visited[next.ID] = true
		cur = next
	}
}

func (e *Engine) sessionEndViaTimestampWalk(ctx context.Context, sessionID string, checkpoint *domain.Message) (*domain.Message, error) {
	all, err := e.stores.Messages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })

	end := checkpoint
	for _, m := range all {
		if !m.Timestamp.After(checkpoint.Timestamp) || m.ID == checkpoint.ID {
			continue
		}
		if m.IsCheckpoint() {
			break
		}
		if m.IsDeleted {
			continue
		}
		end = m
	}
	return end, nil
}

// nearestSDKSessionID walks parent pointers back from sessionEnd (inclusive)
// to find the nearest message carrying an SDKSessionID.
func (e *Engine) nearestSDKSessionID(ctx context.Context, sessionEnd *domain.Message) (string, error) {
	cur := sessionEnd
	visited := map[string]bool{}
	for cur != nil && !visited[cur.ID] {
		if cur.SDKSessionID != "" {
			return cur.SDKSessionID, nil
		}
		visited[cur.ID] = true
		if cur.ParentMessageID == "" {
			break
		}
		parent, err := e.stores.Messages.Get(ctx, cur.ParentMessageID)
		if err != nil {
			if ae, ok := apierr.As(err); ok && ae.Code == apierr.CodeNotFound {
				break
			}
			return "", err
		}
		cur = parent
	}
	return "", nil
}

// nearestSnapshot walks from sessionEnd back to target (inclusive),
// choosing the deepest message that has an attached snapshot.
func (e *Engine) nearestSnapshot(ctx context.Context, sessionID, targetID, sessionEndID string) (*domain.Snapshot, error) {
	all, err := e.stores.Messages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Message, len(all))
	for _, m := range all {
		byID[m.ID] = m
	}

	target, ok := byID[targetID]
	if !ok {
		return nil, apierr.NotFound("message %s", targetID)
	}
	end, ok := byID[sessionEndID]
	if !ok {
		return nil, apierr.NotFound("message %s", sessionEndID)
	}

	// Walk from end back up to target via parent pointers, recording the
	// path, then scan from the deepest (end) side for the first message
	// with a snapshot.
	var path []*domain.Message
	cur := end
	visited := map[string]bool{}
	for {
		path = append(path, cur)
		if cur.ID == target.ID || cur.ParentMessageID == "" || visited[cur.ID] {
			break
		}
		visited[cur.ID] = true
		parent, ok := byID[cur.ParentMessageID]
		if !ok {
			break
		}
		cur = parent
	}

	for _, m := range path {
		snaps, err := e.stores.Snapshots.ListByMessage(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if len(snaps) > 0 {
			return snaps[len(snaps)-1], nil
		}
	}
	return nil, nil
}
