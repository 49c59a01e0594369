// Package gateway is the single WebSocket endpoint every subsystem mounts
// its handlers onto (§4.6 Router / C6).
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/coderoom/server/internal/browser"
	"github.com/coderoom/server/internal/config"
	"github.com/coderoom/server/internal/mcp"
	"github.com/coderoom/server/internal/pty"
	"github.com/coderoom/server/internal/snapshot"
	"github.com/coderoom/server/internal/store"
	"github.com/coderoom/server/internal/termstream"
	"github.com/coderoom/server/internal/tunnel"
	"github.com/coderoom/server/internal/webrtcbridge"
	"github.com/coderoom/server/pkg/protocol"
)

// Config is the subset of startup configuration the gateway needs. C12
// (Config & Bootstrap) populates this from the on-disk config file / env.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	RateLimitRPM   int
	BrowserEnabled bool
	BrowserHeadless bool
}

// Server is the process's single WebSocket + HTTP endpoint, mounting the
// merged method router and the project/chat-session broadcast rooms.
type Server struct {
	cfg Config

	stores    *store.Stores
	snapshots *snapshot.Engine
	ptys      *pty.Manager
	terminals *termstream.Store
	tunnels   *tunnel.Manager
	browserTabs *browser.Manager
	webrtc      *webrtcbridge.Bridge
	mcp         *mcp.Dispatcher
	mcpExternal *mcp.ExternalManager

	router      *MethodRouter
	rateLimiter *RateLimiter
	rooms       *rooms

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	termListenersMu sync.Mutex
	termListeners   map[string]bool
}

// NewServer wires the gateway to its backing subsystems and registers
// every subsystem's channel handlers.
func NewServer(cfg Config, stores *store.Stores, snapshots *snapshot.Engine, ptys *pty.Manager, terminals *termstream.Store) *Server {
	s := &Server{
		cfg:         cfg,
		stores:      stores,
		snapshots:   snapshots,
		ptys:        ptys,
		terminals:   terminals,
		rateLimiter:   NewRateLimiter(cfg.RateLimitRPM, 5),
		rooms:         newRooms(),
		termListeners: make(map[string]bool),
	}
	s.tunnels = tunnel.NewManager(func(tunnelID, projectID string, stage tunnel.Stage, detail string) {
		s.EmitProject(projectID, protocol.ChanTunnelProgress, map[string]string{
			"tunnel_id": tunnelID,
			"stage":     string(stage),
			"detail":    detail,
		})
	})
	s.browserTabs = browser.NewManager(cfg.BrowserHeadless, func(tab *browser.Tab, dialog browser.PendingDialog) {
		s.EmitProject(tab.ProjectID, protocol.ChanPreviewDialog, map[string]interface{}{
			"tab_id": tab.ID,
			"dialog": dialog,
		})
	})
	s.mcp = mcp.NewDispatcher(s.browserTabs, stores.Projects)
	s.mcpExternal = mcp.NewExternalManager(s.mcp)
	s.webrtc = webrtcbridge.NewBridge(
		func(tabID string, state webrtc.PeerConnectionState) {
			if projectID, ok := s.browserTabs.FindProjectForTab(tabID); ok {
				s.EmitProject(projectID, protocol.ChanPreviewStreamState, map[string]string{
					"tab_id": tabID,
					"state":  state.String(),
				})
			}
		},
		func(tabID string, candidate webrtc.ICECandidateInit) {
			if projectID, ok := s.browserTabs.FindProjectForTab(tabID); ok {
				s.EmitProject(projectID, protocol.ChanPreviewStreamIce, map[string]interface{}{
					"tab_id":    tabID,
					"candidate": candidate,
				})
			}
		},
	)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = NewMethodRouter(s)
	registerChatHandlers(s.router, s)
	registerTerminalHandlers(s.router, s)
	registerProjectsHandlers(s.router, s)
	registerGitHandlers(s.router, s)
	registerTunnelHandlers(s.router, s)
	registerBrowserHandlers(s.router, s)
	registerWebRTCHandlers(s.router, s)
	registerMCPHandlers(s.router, s)
	return s
}

// StartExternalMCP connects the configured external MCP servers; call once
// after NewServer during bootstrap.
func (s *Server) StartExternalMCP(ctx context.Context, cfgs map[string]*config.MCPServerConfig) {
	s.mcpExternal.Start(ctx, cfgs)
}

// Router returns the method router, for registering handlers beyond the
// subsystem handlers NewServer already mounts.
func (s *Server) Router() *MethodRouter { return s.router }

// checkOrigin validates the WebSocket handshake's Origin header against the
// allowed-origins list. An empty list or an empty header (non-browser
// clients) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range s.cfg.AllowedOrigins {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("gateway: origin rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	s.mux = mux
	return mux
}

// Start begins listening and blocks until ctx is cancelled or the server
// fails to start.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gateway: websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s)
	defer func() {
		s.rooms.leave(client)
		s.rateLimiter.Forget(client.id)
		client.Close()
	}()

	slog.Info("gateway: client connected", "id", client.id)
	client.Run(r.Context())
	slog.Info("gateway: client disconnected", "id", client.id)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","protocol":%d}`, protocol.ProtocolVersion)
}

// EmitProject broadcasts channel/payload to every connection scoped to
// projectID (§4.6 emit.project).
func (s *Server) EmitProject(projectID, channel string, payload interface{}) {
	s.rooms.emitProject(projectID, channel, payload)
}

// EmitChatSession broadcasts channel/payload to every connection whose
// active chat session is sessionID (§4.6 emit.chat_session).
func (s *Server) EmitChatSession(sessionID, channel string, payload interface{}) {
	s.rooms.emitChatSession(sessionID, channel, payload)
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.tunnels.StopAll()
	s.mcpExternal.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
