package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/browser"
	"github.com/coderoom/server/internal/domain"
	"github.com/coderoom/server/internal/mcp"
)

type fakeProjectStore struct {
	projects []*domain.Project
	byID     map[string]*domain.Project
	created  []*domain.Project
	touched  string
	deleted  string
}

func (f *fakeProjectStore) Create(ctx context.Context, p *domain.Project) error {
	f.created = append(f.created, p)
	return nil
}
func (f *fakeProjectStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, apierr.NotFound("project %q not found", id)
}
func (f *fakeProjectStore) List(ctx context.Context) ([]*domain.Project, error) {
	return f.projects, nil
}
func (f *fakeProjectStore) TouchOpened(ctx context.Context, id string) error {
	f.touched = id
	return nil
}
func (f *fakeProjectStore) Delete(ctx context.Context, id string) error {
	f.deleted = id
	return nil
}

func newTestMCPServer() *Server {
	return &Server{mcp: mcp.NewDispatcher(browser.NewManager(true, nil), &fakeProjectStore{})}
}

func TestHandleMCPToolsListReturnsPreregisteredTools(t *testing.T) {
	s := newTestMCPServer()
	result, err := s.handleMCPToolsList(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("handleMCPToolsList: %v", err)
	}
	tools, ok := result.([]map[string]interface{})
	if !ok {
		t.Fatalf("result type = %T, want []map[string]interface{}", result)
	}
	if len(tools) == 0 {
		t.Fatal("expected at least one preregistered tool")
	}
}

func TestHandleMCPToolsCallMissingName(t *testing.T) {
	s := newTestMCPServer()
	_, err := s.handleMCPToolsCall(context.Background(), nil, json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing name")
	}
}

func TestHandleMCPToolsCallInvalidPayload(t *testing.T) {
	s := newTestMCPServer()
	_, err := s.handleMCPToolsCall(context.Background(), nil, json.RawMessage(`not json`))
	if err == nil {
		t.Fatal("expected validation error for malformed payload")
	}
}

func TestHandleMCPToolsCallUnknownTool(t *testing.T) {
	s := newTestMCPServer()
	payload, _ := json.Marshal(mcpToolsCallParams{Name: "does-not-exist", Arguments: map[string]interface{}{"project_id": "p1"}})
	_, err := s.handleMCPToolsCall(context.Background(), nil, payload)
	if err == nil {
		t.Fatal("expected error calling an unregistered tool")
	}
}

func TestHandleMCPToolsCallTabs(t *testing.T) {
	s := newTestMCPServer()
	payload, _ := json.Marshal(mcpToolsCallParams{Name: "tabs", Arguments: map[string]interface{}{"project_id": "p1"}})
	result, err := s.handleMCPToolsCall(context.Background(), nil, payload)
	if err != nil {
		t.Fatalf("handleMCPToolsCall: %v", err)
	}
	res, ok := result.(*mcp.ToolResult)
	if !ok {
		t.Fatalf("result type = %T, want *mcp.ToolResult", result)
	}
	if res.Content != "0 tab(s) open" {
		t.Fatalf("Content = %q", res.Content)
	}
}
