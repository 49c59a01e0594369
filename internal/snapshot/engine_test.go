package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coderoom/server/internal/blobstore"
	"github.com/coderoom/server/internal/domain"
	"github.com/coderoom/server/internal/store/sqlite"
)

func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestCaptureThenRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	defer db.Close()
	stores := sqlite.NewStores(db)
	blobs := blobstore.New(t.TempDir())
	eng := New(blobs, stores)

	project := t.TempDir()
	writeProjectFile(t, project, "a.txt", "hello")
	writeProjectFile(t, project, "sub/b.txt", "world")

	if err := stores.Projects.Create(ctx, &domain.Project{ID: "p1", Name: "p", AbsolutePath: project, CreatedAt: time.Now(), LastOpenedAt: time.Now()}); err != nil {
		t.Fatalf("Projects.Create: %v", err)
	}
	if err := stores.ChatSessions.Create(ctx, &domain.ChatSession{ID: "s1", ProjectID: "p1", StartedAt: time.Now()}); err != nil {
		t.Fatalf("ChatSessions.Create: %v", err)
	}

	sn1, err := eng.Capture(ctx, project, "p1", "s1", "m1")
	if err != nil {
		t.Fatalf("Capture (full): %v", err)
	}
	if sn1.Type != domain.SnapshotFull {
		t.Fatalf("first capture should be full, got %s", sn1.Type)
	}
	if sn1.FilesChanged != 2 {
		t.Fatalf("expected 2 files changed, got %d", sn1.FilesChanged)
	}

	// Mutate the tree: modify one file, delete another, add a new one.
	writeProjectFile(t, project, "a.txt", "hello, again")
	if err := os.Remove(filepath.Join(project, "sub/b.txt")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	writeProjectFile(t, project, "c.txt", "new file")

	sn2, err := eng.Capture(ctx, project, "p1", "s1", "m2")
	if err != nil {
		t.Fatalf("Capture (delta): %v", err)
	}
	if sn2.Type != domain.SnapshotDelta {
		t.Fatalf("second capture should be delta, got %s", sn2.Type)
	}
	if sn2.ParentSnapshotID != sn1.ID {
		t.Fatalf("expected parent %s, got %s", sn1.ID, sn2.ParentSnapshotID)
	}
	if len(sn2.DeltaChanges.Added) != 1 || len(sn2.DeltaChanges.Modified) != 1 || len(sn2.DeltaChanges.Deleted) != 1 {
		t.Fatalf("unexpected delta shape: %+v", sn2.DeltaChanges)
	}

	// Restore back to the first snapshot: a.txt reverts, sub/b.txt
	// reappears, c.txt is removed.
	if _, err := eng.Restore(ctx, project, sn1); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(project, "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile a.txt: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("a.txt = %q, want %q", got, "hello")
	}
	if _, err := os.Stat(filepath.Join(project, "sub/b.txt")); err != nil {
		t.Fatalf("sub/b.txt should have been restored: %v", err)
	}
	if _, err := os.Stat(filepath.Join(project, "c.txt")); !os.IsNotExist(err) {
		t.Fatalf("c.txt should have been removed by restore")
	}
}
