// Package snapshot implements project-state capture and restore, and the
// checkpoint tree derived from a chat session's message DAG (§4.3).
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/blobstore"
	"github.com/coderoom/server/internal/domain"
	"github.com/coderoom/server/internal/store"
)

// Engine captures and restores project file trees and derives the
// checkpoint tree over a session's messages. It holds no per-project state
// of its own — everything is looked up through the blob store and the
// message/snapshot stores on each call.
type Engine struct {
	blobs  *blobstore.Store
	stores *store.Stores
}

func New(blobs *blobstore.Store, stores *store.Stores) *Engine {
	return &Engine{blobs: blobs, stores: stores}
}

// Capture enumerates projectPath, diffs it against the session's previous
// snapshot, and persists a new Snapshot row (§4.3 Capture).
func (e *Engine) Capture(ctx context.Context, projectPath, projectID, sessionID, messageID string) (*domain.Snapshot, error) {
	relPaths, err := enumerateFiles(ctx, projectPath)
	if err != nil {
		return nil, apierr.IO(err)
	}

	newTree := blobstore.Tree{}
	newContent := map[string][]byte{} // only populated for cache misses
	for _, rel := range relPaths {
		full := filepath.Join(projectPath, rel)
		info, err := os.Stat(full)
		if err != nil {
			continue // file vanished between enumeration and hashing; skip
		}
		if info.Size() > maxFileSize {
			continue
		}
		res, err := e.blobs.HashFile(rel, full)
		if err != nil {
			return nil, err
		}
		newTree[rel] = res.Hash
		if !res.Cached && res.Content != nil {
			newContent[rel] = res.Content
		}
	}

	prev, err := e.stores.Snapshots.LatestForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var prevTree blobstore.Tree
	if prev != nil {
		prevTree, err = e.resolveTree(ctx, prev)
		if err != nil {
			return nil, fmt.Errorf("resolve previous tree: %w", err)
		}
	} else {
		prevTree = blobstore.Tree{}
	}

	delta := diffTrees(prevTree, newTree)

	filesChanged, insertions, deletions := e.computeDiffStats(delta, prevTree, newTree, newContent)

	sn := &domain.Snapshot{
		ID:           uuid.New().String(),
		MessageID:    messageID,
		SessionID:    sessionID,
		ProjectID:    projectID,
		DeltaChanges: delta,
		FilesChanged: filesChanged,
		Insertions:   insertions,
		Deletions:    deletions,
	}
	if prev != nil {
		sn.ParentSnapshotID = prev.ID
		sn.BranchID = prev.BranchID
	}

	if prev == nil {
		// First snapshot of the session: persist the full tree so every
		// later delta snapshot has an O(1) ancestor to resolve against.
		sn.Type = domain.SnapshotFull
		if err := e.blobs.StoreTree(sn.ID, newTree); err != nil {
			return nil, err
		}
		sn.TreeHash = blobstore.HashContent(mustMarshalTree(newTree))
	} else {
		sn.Type = domain.SnapshotDelta
	}

	if err := e.stores.Snapshots.Create(ctx, sn); err != nil {
		return nil, err
	}
	return sn, nil
}

// Restore materializes snapshot's tree into projectPath, deleting files
// absent from the target and overwriting any whose content differs. It is
// best-effort: a per-file write failure is recorded but does not stop the
// remaining files from being restored; the caller gets back the set of
// paths actually written alongside any error.
func (e *Engine) Restore(ctx context.Context, projectPath string, snapshot *domain.Snapshot) ([]string, error) {
	target, err := e.resolveTree(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	current, err := enumerateFiles(ctx, projectPath)
	if err != nil {
		return nil, apierr.IO(err)
	}
	currentSet := make(map[string]bool, len(current))
	for _, p := range current {
		currentSet[p] = true
	}

	var written []string
	var firstErr error
	note := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, rel := range current {
		if _, ok := target[rel]; !ok {
			full := filepath.Join(projectPath, rel)
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				note(apierr.IO(err))
				continue
			}
			e.blobs.InvalidateCache(full)
		}
	}

	for rel, hash := range target {
		full := filepath.Join(projectPath, rel)
		want, err := e.blobs.ReadBlob(hash)
		if err != nil {
			note(err)
			continue
		}

		if currentSet[rel] {
			have, err := os.ReadFile(full)
			if err == nil && bytesEqual(have, want) {
				continue
			}
		}

		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			note(apierr.IO(err))
			continue
		}
		if err := os.WriteFile(full, want, 0o644); err != nil {
			note(apierr.IO(err))
			continue
		}
		e.blobs.InvalidateCache(full)
		written = append(written, rel)
	}

	return written, firstErr
}

// resolveTree materializes a snapshot's full tree. Full-type snapshots
// resolve in O(1) via their stored tree file; delta-type snapshots replay
// the delta chain from the nearest full ancestor, per §9's note that the
// legacy replay path must be preserved alongside the O(1) path.
func (e *Engine) resolveTree(ctx context.Context, sn *domain.Snapshot) (blobstore.Tree, error) {
	if sn.Type == domain.SnapshotFull {
		return e.blobs.ReadTree(sn.ID)
	}

	var chain []*domain.Snapshot
	cur := sn
	visited := map[string]bool{}
	for cur != nil && cur.Type == domain.SnapshotDelta {
		if visited[cur.ID] {
			return nil, apierr.Internal(fmt.Errorf("cycle detected in snapshot chain at %s", cur.ID))
		}
		visited[cur.ID] = true
		chain = append(chain, cur)
		if cur.ParentSnapshotID == "" {
			return nil, apierr.NotFound("snapshot chain for %s has no full ancestor", sn.ID)
		}
		parent, err := e.stores.Snapshots.Get(ctx, cur.ParentSnapshotID)
		if err != nil {
			return nil, err
		}
		cur = parent
	}
	if cur == nil {
		return nil, apierr.NotFound("snapshot chain for %s has no full ancestor", sn.ID)
	}

	base, err := e.blobs.ReadTree(cur.ID)
	if err != nil {
		return nil, err
	}

	// Copy so the cached base tree is never mutated in place, then replay
	// the chain oldest-first.
	tree := make(blobstore.Tree, len(base))
	for k, v := range base {
		tree[k] = v
	}
	for i := len(chain) - 1; i >= 0; i-- {
		d := chain[i].DeltaChanges
		if d == nil {
			continue
		}
		for path, hash := range d.Added {
			tree[path] = hash
		}
		for path, hash := range d.Modified {
			tree[path] = hash
		}
		for _, path := range d.Deleted {
			delete(tree, path)
		}
	}
	return tree, nil
}

func diffTrees(prev, next blobstore.Tree) *domain.TreeDelta {
	d := domain.NewTreeDelta()
	for path, hash := range next {
		if oldHash, ok := prev[path]; !ok {
			d.Added[path] = hash
		} else if oldHash != hash {
			d.Modified[path] = hash
		}
	}
	for path := range prev {
		if _, ok := next[path]; !ok {
			d.Deleted = append(d.Deleted, path)
		}
	}
	return d
}

func (e *Engine) computeDiffStats(d *domain.TreeDelta, prevTree, newTree blobstore.Tree, newContent map[string][]byte) (filesChanged, insertions, deletions int) {
	readOld := func(path string) []byte {
		hash, ok := prevTree[path]
		if !ok {
			return nil
		}
		b, err := e.blobs.ReadBlob(hash)
		if err != nil {
			return nil
		}
		return b
	}
	readNew := func(path string) []byte {
		if b, ok := newContent[path]; ok {
			return b
		}
		hash, ok := newTree[path]
		if !ok {
			return nil
		}
		b, err := e.blobs.ReadBlob(hash)
		if err != nil {
			return nil
		}
		return b
	}

	for path := range d.Added {
		ins, del := lineStats(nil, readNew(path))
		insertions += ins
		deletions += del
		filesChanged++
	}
	for path := range d.Modified {
		ins, del := lineStats(readOld(path), readNew(path))
		insertions += ins
		deletions += del
		filesChanged++
	}
	for _, path := range d.Deleted {
		ins, del := lineStats(readOld(path), nil)
		insertions += ins
		deletions += del
		filesChanged++
	}
	return filesChanged, insertions, deletions
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mustMarshalTree(t blobstore.Tree) []byte {
	// Deterministic marshal for hashing purposes only; errors are
	// impossible for a map[string]string.
	b, _ := json.Marshal(t)
	return b
}
