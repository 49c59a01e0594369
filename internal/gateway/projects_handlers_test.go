package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/coderoom/server/internal/domain"
	"github.com/coderoom/server/internal/store"
)

func newTestProjectsServer(projects *fakeProjectStore) *Server {
	return &Server{
		rooms:  newRooms(),
		stores: &store.Stores{Projects: projects},
	}
}

func TestHandleProjectsListReturnsAll(t *testing.T) {
	s := newTestProjectsServer(&fakeProjectStore{projects: []*domain.Project{
		{ID: "p1", Name: "one"},
		{ID: "p2", Name: "two"},
	}})
	result, err := s.handleProjectsList(context.Background(), newTestClient(), nil)
	if err != nil {
		t.Fatalf("handleProjectsList: %v", err)
	}
	projects, ok := result.([]*domain.Project)
	if !ok || len(projects) != 2 {
		t.Fatalf("result = %#v, want two projects", result)
	}
}

func TestHandleProjectsCreateMissingFields(t *testing.T) {
	s := newTestProjectsServer(&fakeProjectStore{})
	_, err := s.handleProjectsCreate(context.Background(), newTestClient(), json.RawMessage(`{"name":"demo"}`))
	if err == nil {
		t.Fatal("expected validation error for missing absolute_path")
	}
}

func TestHandleProjectsCreatePersists(t *testing.T) {
	store := &fakeProjectStore{}
	s := newTestProjectsServer(store)
	payload, _ := json.Marshal(projectsCreateParams{Name: "demo", AbsolutePath: "/tmp/demo"})

	result, err := s.handleProjectsCreate(context.Background(), newTestClient(), payload)
	if err != nil {
		t.Fatalf("handleProjectsCreate: %v", err)
	}
	project, ok := result.(*domain.Project)
	if !ok {
		t.Fatalf("result type = %T, want *domain.Project", result)
	}
	if project.ID == "" {
		t.Fatal("expected a generated project ID")
	}
	if len(store.created) != 1 || store.created[0].AbsolutePath != "/tmp/demo" {
		t.Fatalf("expected project to be persisted, got %#v", store.created)
	}
}

func TestHandleProjectsOpenMissingProjectID(t *testing.T) {
	s := newTestProjectsServer(&fakeProjectStore{})
	_, err := s.handleProjectsOpen(context.Background(), newTestClient(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing project_id")
	}
}

func TestHandleProjectsOpenJoinsRoom(t *testing.T) {
	store := &fakeProjectStore{byID: map[string]*domain.Project{
		"p1": {ID: "p1", Name: "demo"},
	}}
	s := newTestProjectsServer(store)
	c := newTestClient()

	result, err := s.handleProjectsOpen(context.Background(), c, json.RawMessage(`{"project_id":"p1"}`))
	if err != nil {
		t.Fatalf("handleProjectsOpen: %v", err)
	}
	project, ok := result.(*domain.Project)
	if !ok || project.ID != "p1" {
		t.Fatalf("result = %#v, want project p1", result)
	}
	if c.projectID != "p1" {
		t.Fatalf("expected client to join project room, got %q", c.projectID)
	}
	if store.touched != "p1" {
		t.Fatalf("expected TouchOpened to be called for p1, got %q", store.touched)
	}
}

func TestHandleProjectsDeleteMissingProjectID(t *testing.T) {
	s := newTestProjectsServer(&fakeProjectStore{})
	_, err := s.handleProjectsDelete(context.Background(), newTestClient(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing project_id")
	}
}

func TestHandleProjectsDeleteRemovesProject(t *testing.T) {
	store := &fakeProjectStore{byID: map[string]*domain.Project{
		"p1": {ID: "p1"},
	}}
	s := newTestProjectsServer(store)
	if _, err := s.handleProjectsDelete(context.Background(), newTestClient(), json.RawMessage(`{"project_id":"p1"}`)); err != nil {
		t.Fatalf("handleProjectsDelete: %v", err)
	}
	if store.deleted != "p1" {
		t.Fatalf("expected Delete to be called for p1, got %q", store.deleted)
	}
}
