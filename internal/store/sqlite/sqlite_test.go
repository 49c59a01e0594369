package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
)

func TestProjectLifecycle(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	projects := NewProjectStore(db)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	p := &domain.Project{ID: "p1", Name: "demo", AbsolutePath: "/tmp/demo", CreatedAt: now, LastOpenedAt: now}
	if err := projects.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := projects.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "demo" || got.AbsolutePath != "/tmp/demo" {
		t.Fatalf("Get = %+v, want matching project", got)
	}

	if err := projects.TouchOpened(ctx, "p1"); err != nil {
		t.Fatalf("TouchOpened: %v", err)
	}
	touched, err := projects.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get after touch: %v", err)
	}
	if !touched.LastOpenedAt.After(now.Add(-time.Millisecond)) {
		t.Fatalf("expected LastOpenedAt to be refreshed, got %v", touched.LastOpenedAt)
	}

	list, err := projects.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List = %d entries, want 1", len(list))
	}

	if err := projects.Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := projects.Get(ctx, "p1"); err == nil {
		t.Fatal("expected an error getting a deleted project")
	}
}

func TestProjectGetUnknownReturnsNotFound(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	projects := NewProjectStore(db)
	_, err = projects.Get(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected an error for an unknown project")
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.CodeNotFound {
		t.Fatalf("err = %v, want apierr.CodeNotFound", err)
	}
}

func TestProjectDeleteCascadesToChatSessionsAndMessages(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	projects := NewProjectStore(db)
	sessions := NewChatSessionStore(db)
	messages := NewMessageStore(db)

	now := time.Now().Truncate(time.Second)
	if err := projects.Create(ctx, &domain.Project{ID: "p1", Name: "demo", AbsolutePath: "/tmp", CreatedAt: now, LastOpenedAt: now}); err != nil {
		t.Fatalf("Create project: %v", err)
	}
	if err := sessions.Create(ctx, &domain.ChatSession{ID: "s1", ProjectID: "p1", StartedAt: now}); err != nil {
		t.Fatalf("Create session: %v", err)
	}
	if err := messages.Create(ctx, &domain.Message{ID: "m1", SessionID: "s1", Timestamp: now, Role: domain.RoleUser, Text: "hi"}); err != nil {
		t.Fatalf("Create message: %v", err)
	}

	if err := projects.Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := sessions.Get(ctx, "s1"); err == nil {
		t.Fatal("expected the chat session to be cascade-deleted")
	}
	if _, err := messages.Get(ctx, "m1"); err == nil {
		t.Fatal("expected the message to be cascade-deleted")
	}
}

func TestMessageChildrenAndSoftDeleteAfter(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	projects := NewProjectStore(db)
	sessions := NewChatSessionStore(db)
	messages := NewMessageStore(db)

	now := time.Now().Truncate(time.Second)
	if err := projects.Create(ctx, &domain.Project{ID: "p1", Name: "demo", AbsolutePath: "/tmp", CreatedAt: now, LastOpenedAt: now}); err != nil {
		t.Fatalf("Create project: %v", err)
	}
	if err := sessions.Create(ctx, &domain.ChatSession{ID: "s1", ProjectID: "p1", StartedAt: now}); err != nil {
		t.Fatalf("Create session: %v", err)
	}

	root := &domain.Message{ID: "m1", SessionID: "s1", Timestamp: now, Role: domain.RoleUser, Text: "root"}
	child1 := &domain.Message{ID: "m2", SessionID: "s1", Timestamp: now.Add(time.Second), Role: domain.RoleAssistant, Text: "child1", ParentMessageID: "m1"}
	child2 := &domain.Message{ID: "m3", SessionID: "s1", Timestamp: now.Add(2 * time.Second), Role: domain.RoleAssistant, Text: "child2", ParentMessageID: "m1"}
	for _, m := range []*domain.Message{root, child1, child2} {
		if err := messages.Create(ctx, m); err != nil {
			t.Fatalf("Create message %s: %v", m.ID, err)
		}
	}

	children, err := messages.Children(ctx, "m1")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("Children = %d, want 2", len(children))
	}

	if err := messages.SoftDeleteAfter(ctx, "s1", *root); err != nil {
		t.Fatalf("SoftDeleteAfter: %v", err)
	}

	all, err := messages.ListBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	for _, m := range all {
		wantDeleted := m.ID != "m1"
		if m.IsDeleted != wantDeleted {
			t.Fatalf("message %s IsDeleted = %v, want %v", m.ID, m.IsDeleted, wantDeleted)
		}
	}
}

func TestChatSessionSetHeadAndSetLatestSDKSessionID(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	projects := NewProjectStore(db)
	sessions := NewChatSessionStore(db)

	now := time.Now().Truncate(time.Second)
	if err := projects.Create(ctx, &domain.Project{ID: "p1", Name: "demo", AbsolutePath: "/tmp", CreatedAt: now, LastOpenedAt: now}); err != nil {
		t.Fatalf("Create project: %v", err)
	}
	if err := sessions.Create(ctx, &domain.ChatSession{ID: "s1", ProjectID: "p1", StartedAt: now}); err != nil {
		t.Fatalf("Create session: %v", err)
	}

	if err := sessions.SetHead(ctx, "s1", "m1"); err != nil {
		t.Fatalf("SetHead: %v", err)
	}
	if err := sessions.SetLatestSDKSessionID(ctx, "s1", "sdk-1"); err != nil {
		t.Fatalf("SetLatestSDKSessionID: %v", err)
	}

	got, err := sessions.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.HeadMessageID != "m1" {
		t.Fatalf("HeadMessageID = %q, want m1", got.HeadMessageID)
	}
	if got.LatestSDKSessionID != "sdk-1" {
		t.Fatalf("LatestSDKSessionID = %q, want sdk-1", got.LatestSDKSessionID)
	}
}
