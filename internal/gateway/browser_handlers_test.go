package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/coderoom/server/internal/browser"
)

func newTestBrowserServer() *Server {
	return &Server{
		browserTabs: browser.NewManager(true, nil),
		rooms:       newRooms(),
		mcp:         newTestMCPServer().mcp,
	}
}

func TestHandleBrowserListTabsMissingProjectID(t *testing.T) {
	s := newTestBrowserServer()
	_, err := s.handleBrowserListTabs(context.Background(), newTestClient(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing project_id")
	}
}

func TestHandleBrowserListTabsEmptyProject(t *testing.T) {
	s := newTestBrowserServer()
	c := newTestClient()
	result, err := s.handleBrowserListTabs(context.Background(), c, json.RawMessage(`{"project_id":"p1"}`))
	if err != nil {
		t.Fatalf("handleBrowserListTabs: %v", err)
	}
	tabs, ok := result.([]*browser.Tab)
	if !ok {
		t.Fatalf("result type = %T, want []*browser.Tab", result)
	}
	if len(tabs) != 0 {
		t.Fatalf("expected no tabs for a fresh project, got %d", len(tabs))
	}
	if c.projectID != "p1" {
		t.Fatalf("expected client to join project room, got %q", c.projectID)
	}
}

func TestHandleBrowserNavigateMissingFields(t *testing.T) {
	s := newTestBrowserServer()
	_, err := s.handleBrowserNavigate(context.Background(), newTestClient(), json.RawMessage(`{"project_id":"p1"}`))
	if err == nil {
		t.Fatal("expected validation error for missing url")
	}
}

func TestHandleBrowserNavigateUnknownTab(t *testing.T) {
	s := newTestBrowserServer()
	_, err := s.handleBrowserNavigate(context.Background(), newTestClient(), json.RawMessage(`{"project_id":"p1","url":"https://example.com"}`))
	if err == nil {
		t.Fatal("expected error navigating a project with no open tab")
	}
}

func TestHandleBrowserSwitchTabMissingFields(t *testing.T) {
	s := newTestBrowserServer()
	_, err := s.handleBrowserSwitchTab(context.Background(), newTestClient(), json.RawMessage(`{"project_id":"p1"}`))
	if err == nil {
		t.Fatal("expected validation error for missing tab_id")
	}
}

func TestHandleBrowserActionsRequiresActions(t *testing.T) {
	s := newTestBrowserServer()
	_, err := s.handleBrowserActions(context.Background(), newTestClient(), json.RawMessage(`{"project_id":"p1","actions":[]}`))
	if err == nil {
		t.Fatal("expected validation error for empty actions")
	}
}
