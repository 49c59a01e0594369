package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/config"
)

const (
	healthCheckInterval  = 30 * time.Second
	initialBackoff       = 2 * time.Second
	maxBackoff           = 60 * time.Second
	maxReconnectAttempts = 10
)

// externalServer tracks one outward connection to a user-configured MCP
// server (config.ToolsConfig.MCPServers), mirrored in here as ordinary
// Dispatcher tools so callers don't need to know a tool is local or
// remote. The client itself is mutex-guarded because a reconnect swaps it
// out from under any tool call that's already in flight against the old
// one.
type externalServer struct {
	name      string
	cfg       *config.MCPServerConfig
	toolNames []string
	connected atomic.Bool
	cancel    context.CancelFunc

	mu             sync.Mutex
	client         *mcpclient.Client
	timeoutSec     int
	reconnAttempts int
	lastErr        string
	lastCallAt     time.Time
}

func (es *externalServer) currentClient() *mcpclient.Client {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.client
}

// noteCall records a successful tool call, which the health loop treats as
// proof of liveness in its own right — no need to double it up with a ping
// for a server this domain is already talking to every few seconds.
func (es *externalServer) noteCall() {
	es.mu.Lock()
	es.lastCallAt = time.Now()
	es.mu.Unlock()
}

func (es *externalServer) calledWithin(d time.Duration) bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	return !es.lastCallAt.IsZero() && time.Since(es.lastCallAt) < d
}

// ExternalManager connects out to the MCP servers named in config, mirrors
// their tool sets into a Dispatcher with a name prefix, and keeps each
// connection alive with exponential-backoff reconnection.
type ExternalManager struct {
	dispatcher *Dispatcher

	mu      sync.RWMutex
	servers map[string]*externalServer
}

// NewExternalManager wires external MCP server connections into dispatcher.
func NewExternalManager(dispatcher *Dispatcher) *ExternalManager {
	return &ExternalManager{dispatcher: dispatcher, servers: make(map[string]*externalServer)}
}

// Start connects to every enabled server in cfgs, logging (not failing) on
// any individual connection error.
func (m *ExternalManager) Start(ctx context.Context, cfgs map[string]*config.MCPServerConfig) {
	for name, cfg := range cfgs {
		if cfg.Enabled != nil && !*cfg.Enabled {
			slog.Info("mcp.external.disabled", "server", name)
			continue
		}
		if err := m.connect(ctx, name, cfg); err != nil {
			slog.Warn("mcp.external.connect_failed", "server", name, "error", err)
		}
	}
}

// Stop closes every external connection and unregisters its mirrored tools.
func (m *ExternalManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, es := range m.servers {
		if es.cancel != nil {
			es.cancel()
		}
		if client := es.currentClient(); client != nil {
			_ = client.Close()
		}
		m.dispatcher.mu.Lock()
		for _, toolName := range es.toolNames {
			delete(m.dispatcher.tools, toolName)
		}
		m.dispatcher.mu.Unlock()
		slog.Debug("mcp.external.unregistered", "server", name)
	}
	m.servers = make(map[string]*externalServer)
}

// dialExternalClient builds, starts, and handshakes a client for cfg without
// touching the Dispatcher — both the first connect and every later
// reconnect attempt share this so a reconnect is a real new transport, not
// just a retried ping against a transport that may already be dead (a
// stdio child process doesn't come back from a failed ping).
func dialExternalClient(ctx context.Context, cfg *config.MCPServerConfig) (*mcpclient.Client, *mcpgo.ListToolsResult, error) {
	client, err := createExternalClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create client: %w", err)
	}

	if cfg.Transport != "stdio" {
		if err := client.Start(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("start transport: %w", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "coderoom", Version: "1.0.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}

	listed, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("list tools: %w", err)
	}
	return client, &listed, nil
}

func (m *ExternalManager) connect(ctx context.Context, name string, cfg *config.MCPServerConfig) error {
	client, listed, err := dialExternalClient(ctx, cfg)
	if err != nil {
		return err
	}

	timeoutSec := cfg.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = 60
	}

	es := &externalServer{name: name, cfg: cfg, client: client, timeoutSec: timeoutSec}
	es.connected.Store(true)

	prefix := cfg.ToolPrefix
	if prefix == "" {
		prefix = name + ":"
	}

	var registered []string
	for _, remote := range listed.Tools {
		toolName := prefix + remote.Name
		m.dispatcher.Register(&Tool{
			Name:        toolName,
			Description: remote.Description,
			Handler:     externalHandler(es, remote.Name),
		})
		registered = append(registered, toolName)
	}
	es.toolNames = registered

	hctx, cancel := context.WithCancel(context.Background())
	es.cancel = cancel
	go m.healthLoop(hctx, es)

	m.mu.Lock()
	m.servers[name] = es
	m.mu.Unlock()

	slog.Info("mcp.external.connected", "server", name, "transport", cfg.Transport, "tools", len(registered))
	return nil
}

func externalHandler(es *externalServer, remoteName string) Handler {
	return func(ctx context.Context, projectID string, args map[string]interface{}) (*ToolResult, error) {
		if !es.connected.Load() {
			return nil, apierr.Conflict("mcp server for tool %s is disconnected", remoteName)
		}
		es.mu.Lock()
		client, timeoutSec := es.client, es.timeoutSec
		es.mu.Unlock()

		callCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
		defer cancel()

		req := mcpgo.CallToolRequest{}
		req.Params.Name = remoteName
		req.Params.Arguments = args
		res, err := client.CallTool(callCtx, req)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeIO, "mcp call "+remoteName, err)
		}
		es.noteCall()

		var text string
		for _, c := range res.Content {
			if tc, ok := c.(mcpgo.TextContent); ok {
				text += tc.Text
			}
		}
		return &ToolResult{Content: text, IsError: res.IsError}, nil
	}
}

func createExternalClient(cfg *config.MCPServerConfig) (*mcpclient.Client, error) {
	switch cfg.Transport {
	case "stdio":
		return mcpclient.NewStdioMCPClient(cfg.Command, mapToEnvSlice(cfg.Env), cfg.Args...)
	case "sse":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(cfg.Headers))
		}
		return mcpclient.NewSSEMCPClient(cfg.URL, opts...)
	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		return mcpclient.NewStreamableHttpClient(cfg.URL, opts...)
	default:
		return nil, fmt.Errorf("unsupported mcp transport: %q", cfg.Transport)
	}
}

// healthLoop pings an external server periodically and attempts
// reconnection with exponential backoff on failure. A tick is skipped
// whenever a real tool call has already gone through more recently than the
// check interval — that call is stronger evidence of liveness than a ping,
// so there's no reason to put extra traffic on a server this domain is
// already exercising.
func (m *ExternalManager) healthLoop(ctx context.Context, es *externalServer) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if es.calledWithin(healthCheckInterval) {
				continue
			}
			if err := es.currentClient().Ping(ctx); err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "method not found") {
					es.connected.Store(true)
					continue
				}
				es.connected.Store(false)
				es.mu.Lock()
				es.lastErr = err.Error()
				es.mu.Unlock()
				slog.Warn("mcp.external.health_failed", "server", es.name, "error", err)
				m.tryReconnect(ctx, es)
			} else {
				es.connected.Store(true)
				es.mu.Lock()
				es.reconnAttempts = 0
				es.lastErr = ""
				es.mu.Unlock()
			}
		}
	}
}

// tryReconnect rebuilds the transport from scratch rather than re-pinging
// the existing client: a dead stdio child process never answers a ping
// again no matter how long the wait, so recovery has to go through
// createExternalClient/Initialize like the first connect did.
func (m *ExternalManager) tryReconnect(ctx context.Context, es *externalServer) {
	es.mu.Lock()
	if es.reconnAttempts >= maxReconnectAttempts {
		es.mu.Unlock()
		slog.Error("mcp.external.reconnect_exhausted", "server", es.name)
		return
	}
	es.reconnAttempts++
	attempt := es.reconnAttempts
	cfg := es.cfg
	staleClient := es.client
	es.mu.Unlock()

	wait := jitteredBackoff(attempt)
	slog.Info("mcp.external.reconnecting", "server", es.name, "attempt", attempt, "backoff", wait)

	select {
	case <-ctx.Done():
		return
	case <-time.After(wait):
	}

	newClient, _, err := dialExternalClient(ctx, cfg)
	if err != nil {
		slog.Warn("mcp.external.reconnect_failed", "server", es.name, "attempt", attempt, "error", err)
		return
	}

	es.mu.Lock()
	es.client = newClient
	es.reconnAttempts = 0
	es.lastErr = ""
	es.mu.Unlock()
	es.connected.Store(true)
	_ = staleClient.Close()
	slog.Info("mcp.external.reconnected", "server", es.name)
}

// jitteredBackoff spreads reconnect attempts across [0, cap) instead of
// firing every flapping server's retry at exactly the same instant after an
// outage that took several of them down together.
func jitteredBackoff(attempt int) time.Duration {
	cap := initialBackoff * time.Duration(1<<(attempt-1))
	if cap > maxBackoff {
		cap = maxBackoff
	}
	return time.Duration(rand.Int63n(int64(cap)))
}

func mapToEnvSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	s := make([]string, 0, len(env))
	for k, v := range env {
		s = append(s, k+"="+v)
	}
	return s
}
