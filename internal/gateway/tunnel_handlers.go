package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/pkg/protocol"
)

// registerTunnelHandlers mounts the tunnel sub-router (§4.7) onto the merged
// MethodRouter.
func registerTunnelHandlers(r *MethodRouter, s *Server) {
	r.Handle(protocol.ChanTunnelStart, s.handleTunnelStart)
	r.Handle(protocol.ChanTunnelStop, s.handleTunnelStop)
}

type tunnelStartParams struct {
	ProjectID       string `json:"project_id"`
	Port            int    `json:"port"`
	AutoStopMinutes int    `json:"auto_stop_minutes,omitempty"`
}

func (s *Server) handleTunnelStart(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p tunnelStartParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.ProjectID == "" || p.Port <= 0 {
		return nil, apierr.Validation("project_id and a positive port are required")
	}
	s.rooms.joinProject(c, p.ProjectID)

	id := fmt.Sprintf("%s:%d", p.ProjectID, p.Port)
	autoStop := time.Duration(p.AutoStopMinutes) * time.Minute
	url, err := s.tunnels.Start(ctx, id, p.ProjectID, p.Port, autoStop)
	if err != nil {
		return nil, err
	}
	return map[string]string{"tunnel_id": id, "url": url}, nil
}

type tunnelStopParams struct {
	TunnelID string `json:"tunnel_id"`
}

func (s *Server) handleTunnelStop(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p tunnelStopParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.TunnelID == "" {
		return nil, apierr.Validation("tunnel_id is required")
	}
	return nil, s.tunnels.Stop(p.TunnelID)
}
