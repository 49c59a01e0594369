// Package mcp is the server-side MCP tool dispatcher (§4.10 / C10): a
// declarative tool set (tabs, navigate, actions, analyze_dom, screenshot,
// console) backed by the browser tab manager, callable in-process or over
// a child-process stdio transport, serialized per project by a
// non-blocking "MCP control" lock against the active tab.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/browser"
	"github.com/coderoom/server/internal/store"
)

type ctxKey int

const ctxKeyProjectID ctxKey = iota

// WithProjectID attaches the execution-context project id used when a tool
// call omits an explicit project_id argument.
func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, ctxKeyProjectID, projectID)
}

// ToolResult is a tool invocation's outcome.
type ToolResult struct {
	Content string
	IsError bool
}

// Handler executes one tool call against the resolved project.
type Handler func(ctx context.Context, projectID string, args map[string]interface{}) (*ToolResult, error)

// Tool is one declaratively registered MCP tool.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]interface{}
	Handler     Handler
}

// projectLock is the per-project "MCP control" lock (§4.10, §5): acquiring
// is non-blocking, and touching an idle tab re-acquires automatically.
type projectLock struct {
	mu           sync.Mutex
	held         bool
	lastActionAt time.Time
}

const idleReacquireAfter = 2 * time.Minute

func (l *projectLock) tryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held && time.Since(l.lastActionAt) < idleReacquireAfter {
		return false
	}
	l.held = true
	l.lastActionAt = time.Now()
	return true
}

func (l *projectLock) touch() {
	l.mu.Lock()
	l.lastActionAt = time.Now()
	l.mu.Unlock()
}

func (l *projectLock) release() {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
}

// Dispatcher owns the declarative tool set and the per-project control
// locks serializing automated actions against a project's active tab.
type Dispatcher struct {
	browserTabs *browser.Manager
	projects    store.ProjectStore

	mu    sync.RWMutex
	tools map[string]*Tool
	locks map[string]*projectLock
}

// NewDispatcher constructs a dispatcher with the browser automation tool
// set already registered.
func NewDispatcher(browserTabs *browser.Manager, projects store.ProjectStore) *Dispatcher {
	d := &Dispatcher{
		browserTabs: browserTabs,
		projects:    projects,
		tools:       make(map[string]*Tool),
		locks:       make(map[string]*projectLock),
	}
	d.registerBrowserTools()
	return d
}

// Register adds or replaces a tool definition.
func (d *Dispatcher) Register(t *Tool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tools[t.Name] = t
}

// List returns every registered tool's name, description, and schema.
func (d *Dispatcher) List() []*Tool {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Tool, 0, len(d.tools))
	for _, t := range d.tools {
		out = append(out, t)
	}
	return out
}

func (d *Dispatcher) lockFor(projectID string) *projectLock {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[projectID]
	if !ok {
		l = &projectLock{}
		d.locks[projectID] = l
	}
	return l
}

// ReleaseProject drops the control lock for projectID, called on tab
// switch/close (§4.10).
func (d *Dispatcher) ReleaseProject(projectID string) {
	d.mu.RLock()
	l, ok := d.locks[projectID]
	d.mu.RUnlock()
	if ok {
		l.release()
	}
}

// Call resolves the target project, acquires (or touches) its control
// lock, and invokes the named tool. project_id resolution order: explicit
// argument, execution context, then the first available project (warned).
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error) {
	d.mu.RLock()
	t, ok := d.tools[name]
	d.mu.RUnlock()
	if !ok {
		return nil, apierr.NotFound("unknown mcp tool: %s", name)
	}

	projectID, err := d.resolveProjectID(ctx, args)
	if err != nil {
		return nil, err
	}

	lock := d.lockFor(projectID)
	if !lock.tryAcquire() {
		lock.touch()
	}

	result, err := t.Handler(ctx, projectID, args)
	lock.touch()
	return result, err
}

func (d *Dispatcher) resolveProjectID(ctx context.Context, args map[string]interface{}) (string, error) {
	if v, ok := args["project_id"].(string); ok && v != "" {
		return v, nil
	}
	if v, ok := ctx.Value(ctxKeyProjectID).(string); ok && v != "" {
		return v, nil
	}
	if d.projects == nil {
		return "", apierr.Validation("project_id is required")
	}
	projects, err := d.projects.List(ctx)
	if err != nil || len(projects) == 0 {
		return "", apierr.Validation("project_id is required and no projects exist")
	}
	slog.Warn("mcp: project_id not supplied, defaulting to first available project", "project_id", projects[0].ID)
	return projects[0].ID, nil
}

// ServeStdio runs the dispatcher as a child-process stdio MCP server,
// mirroring the same declaratively registered tool set the in-process
// Call path exposes.
func (d *Dispatcher) ServeStdio(ctx context.Context) error {
	srv := server.NewMCPServer("coderoom-preview", "1.0.0")
	for _, t := range d.List() {
		tool := mcpgo.NewTool(t.Name, mcpgo.WithDescription(t.Description))
		handler := t.Handler
		srv.AddTool(tool, func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			args, _ := req.Params.Arguments.(map[string]interface{})
			projectID, err := d.resolveProjectID(ctx, args)
			if err != nil {
				return mcpgo.NewToolResultError(err.Error()), nil
			}
			lock := d.lockFor(projectID)
			if !lock.tryAcquire() {
				lock.touch()
			}
			res, err := handler(ctx, projectID, args)
			lock.touch()
			if err != nil {
				return mcpgo.NewToolResultError(err.Error()), nil
			}
			if res.IsError {
				return mcpgo.NewToolResultError(res.Content), nil
			}
			return mcpgo.NewToolResultText(res.Content), nil
		})
	}
	return server.ServeStdio(srv)
}

func argString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argFloat(args map[string]interface{}, key string) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return 0
}

func textResult(format string, a ...interface{}) *ToolResult {
	return &ToolResult{Content: fmt.Sprintf(format, a...)}
}
