package mcp

import (
	"context"
	"testing"

	"github.com/coderoom/server/internal/browser"
	"github.com/coderoom/server/internal/domain"
)

// fakeProjectStore is a minimal in-memory store.ProjectStore for exercising
// resolveProjectID's fallback path without a real database.
type fakeProjectStore struct {
	projects []*domain.Project
}

func (f *fakeProjectStore) Create(ctx context.Context, p *domain.Project) error { return nil }
func (f *fakeProjectStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	for _, p := range f.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}
func (f *fakeProjectStore) List(ctx context.Context) ([]*domain.Project, error) {
	return f.projects, nil
}
func (f *fakeProjectStore) TouchOpened(ctx context.Context, id string) error { return nil }
func (f *fakeProjectStore) Delete(ctx context.Context, id string) error     { return nil }

func newTestDispatcher(projects *fakeProjectStore) *Dispatcher {
	return NewDispatcher(browser.NewManager(true, nil), projects)
}

func TestRegisterAndList(t *testing.T) {
	d := newTestDispatcher(&fakeProjectStore{})
	d.Register(&Tool{Name: "custom", Description: "a custom tool"})

	found := false
	for _, tool := range d.List() {
		if tool.Name == "custom" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected custom tool to be registered")
	}
}

func TestBrowserToolsPreregistered(t *testing.T) {
	d := newTestDispatcher(&fakeProjectStore{})
	want := []string{"tabs", "navigate", "actions", "analyze_dom", "screenshot", "console"}
	names := map[string]bool{}
	for _, tool := range d.List() {
		names[tool.Name] = true
	}
	for _, w := range want {
		if !names[w] {
			t.Fatalf("expected preregistered tool %q, got %v", w, names)
		}
	}
}

func TestCallUnknownToolReturnsNotFound(t *testing.T) {
	d := newTestDispatcher(&fakeProjectStore{})
	if _, err := d.Call(context.Background(), "nonexistent", map[string]interface{}{"project_id": "p1"}); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestCallResolvesExplicitProjectID(t *testing.T) {
	d := newTestDispatcher(&fakeProjectStore{})
	res, err := d.Call(context.Background(), "tabs", map[string]interface{}{"project_id": "p1"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.Content != "0 tab(s) open" {
		t.Fatalf("Content = %q, want %q", res.Content, "0 tab(s) open")
	}
}

func TestCallResolvesProjectIDFromContext(t *testing.T) {
	d := newTestDispatcher(&fakeProjectStore{})
	ctx := WithProjectID(context.Background(), "p-ctx")
	res, err := d.Call(ctx, "tabs", map[string]interface{}{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.Content != "0 tab(s) open" {
		t.Fatalf("Content = %q", res.Content)
	}
}

func TestCallFallsBackToFirstProjectWithWarning(t *testing.T) {
	d := newTestDispatcher(&fakeProjectStore{projects: []*domain.Project{{ID: "only-project"}}})
	res, err := d.Call(context.Background(), "tabs", map[string]interface{}{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.Content != "0 tab(s) open" {
		t.Fatalf("Content = %q", res.Content)
	}
}

func TestCallNoProjectIDAndNoProjectsIsValidationError(t *testing.T) {
	d := newTestDispatcher(&fakeProjectStore{})
	if _, err := d.Call(context.Background(), "tabs", map[string]interface{}{}); err == nil {
		t.Fatal("expected validation error when no project_id and no projects exist")
	}
}

func TestProjectLockNonBlockingAcquire(t *testing.T) {
	l := &projectLock{}
	if !l.tryAcquire() {
		t.Fatal("expected first acquire to succeed")
	}
	if l.tryAcquire() {
		t.Fatal("expected second immediate acquire to fail while still held")
	}
	l.release()
	if !l.tryAcquire() {
		t.Fatal("expected acquire to succeed again after release")
	}
}

func TestReleaseProjectUnknownIsSafe(t *testing.T) {
	d := newTestDispatcher(&fakeProjectStore{})
	d.ReleaseProject("never-locked")
}

func TestReleaseProjectAllowsReacquire(t *testing.T) {
	d := newTestDispatcher(&fakeProjectStore{})
	lock := d.lockFor("p1")
	if !lock.tryAcquire() {
		t.Fatal("expected initial acquire to succeed")
	}
	d.ReleaseProject("p1")
	if !lock.tryAcquire() {
		t.Fatal("expected acquire to succeed after ReleaseProject")
	}
}
