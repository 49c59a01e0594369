package gateway

import (
	"context"
	"encoding/json"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/pkg/protocol"
)

// registerMCPHandlers mounts the MCP tool dispatcher sub-router (§4.10 /
// C10) onto the merged MethodRouter.
func registerMCPHandlers(r *MethodRouter, s *Server) {
	r.Handle(protocol.ChanMCPToolsList, s.handleMCPToolsList)
	r.Handle(protocol.ChanMCPToolsCall, s.handleMCPToolsCall)
}

func (s *Server) handleMCPToolsList(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	tools := s.mcp.List()
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"schema":      t.Schema,
		})
	}
	return out, nil
}

type mcpToolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func (s *Server) handleMCPToolsCall(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p mcpToolsCallParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.Name == "" {
		return nil, apierr.Validation("name is required")
	}
	result, err := s.mcp.Call(ctx, p.Name, p.Arguments)
	if err != nil {
		return nil, err
	}
	return result, nil
}
