package snapshot

import (
	"context"
	"sort"

	"github.com/coderoom/server/internal/domain"
)

// Timeline builds the full checkpoint-tree projection for a session (§4.3
// "Timeline query").
func (e *Engine) Timeline(ctx context.Context, sessionID string) (*domain.Timeline, error) {
	session, err := e.stores.ChatSessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	graph, byID, err := e.buildCheckpointGraph(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var checkpoints []*domain.Message
	for id := range graph.parent {
		checkpoints = append(checkpoints, byID[id])
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].Timestamp.Before(checkpoints[j].Timestamp)
	})

	headCheckpointID := checkpointAncestorOf(byID, session.HeadMessageID)
	activePath := pathToRoot(graph, headCheckpointID)
	activeSet := make(map[string]bool, len(activePath))
	for _, id := range activePath {
		activeSet[id] = true
	}
	orphanSet := map[string]bool{}
	for _, id := range activePath {
		for other := range descendantsExcluding(graph, id, activeSet) {
			orphanSet[other] = true
		}
	}

	snapshotsBySession, err := e.stores.Snapshots.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	states, err := e.stores.Checkpoints.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	activeChildOf := make(map[string]string, len(states))
	for _, st := range states {
		activeChildOf[st.CheckpointID] = st.ActiveChildID
	}

	nodes := make([]domain.TimelineNode, 0, len(checkpoints))
	for i, m := range checkpoints {
		activeChild, ok := activeChildOf[m.ID]
		if !ok {
			activeChild = lastActiveChild(graph, m.ID)
		}
		node := domain.TimelineNode{
			ID:             m.ID,
			MessageID:      m.ID,
			ParentID:       graph.parent[m.ID],
			ActiveChildID:  activeChild,
			Timestamp:      m.Timestamp,
			MessageText:    domain.TruncateText(m.Text),
			IsOnActivePath: activeSet[m.ID],
			IsOrphaned:     orphanSet[m.ID],
			IsCurrent:      m.ID == headCheckpointID,
		}

		var windowEnd *domain.Message
		if i+1 < len(checkpoints) {
			windowEnd = checkpoints[i+1]
		}
		filesChanged, insertions, deletions, hasSnapshot := aggregateSnapshots(snapshotsBySession, m, windowEnd)
		node.FilesChanged = filesChanged
		node.Insertions = insertions
		node.Deletions = deletions
		node.HasSnapshot = hasSnapshot

		nodes = append(nodes, node)
	}

	return &domain.Timeline{Nodes: nodes, CurrentHeadID: session.HeadMessageID}, nil
}

func checkpointAncestorOf(byID map[string]*domain.Message, messageID string) string {
	if messageID == "" {
		return ""
	}
	cur, ok := byID[messageID]
	if !ok {
		return ""
	}
	if cur.IsCheckpoint() {
		return cur.ID
	}
	return findCheckpointAncestor(byID, cur)
}

func lastActiveChild(g *checkpointGraph, checkpointID string) string {
	children := g.children[checkpointID]
	if len(children) == 0 {
		return ""
	}
	return children[len(children)-1]
}

// descendantsExcluding returns every checkpoint reachable from root's
// children (root excluded) that is not in exclude.
func descendantsExcluding(g *checkpointGraph, root string, exclude map[string]bool) map[string]bool {
	out := map[string]bool{}
	queue := append([]string(nil), g.children[root]...)
	visited := map[string]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		if !exclude[id] {
			out[id] = true
		}
		queue = append(queue, g.children[id]...)
	}
	return out
}

// aggregateSnapshots sums files_changed/insertions/deletions over snapshots
// created strictly between checkpoint.Timestamp and next's timestamp (or
// unbounded if next is nil).
func aggregateSnapshots(snapshots []*domain.Snapshot, checkpoint, next *domain.Message) (filesChanged, insertions, deletions int, hasSnapshot bool) {
	for _, sn := range snapshots {
		if !sn.CreatedAt.After(checkpoint.Timestamp) {
			continue
		}
		if next != nil && !sn.CreatedAt.Before(next.Timestamp) {
			continue
		}
		filesChanged += sn.FilesChanged
		insertions += sn.Insertions
		deletions += sn.Deletions
		hasSnapshot = true
	}
	return
}
