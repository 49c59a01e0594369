package gateway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/termstream"
	"github.com/coderoom/server/pkg/protocol"
)

// registerTerminalHandlers mounts the terminal sub-router (§4.4 PTY sessions
// + §4.5 output replay) onto the merged MethodRouter.
func registerTerminalHandlers(r *MethodRouter, s *Server) {
	r.Handle(protocol.ChanTerminalCreate, s.handleTerminalCreate)
	r.Handle(protocol.ChanTerminalInput, s.handleTerminalInput)
	r.Handle(protocol.ChanTerminalResize, s.handleTerminalResize)
	r.Handle(protocol.ChanTerminalKill, s.handleTerminalKill)
	r.Handle(protocol.ChanTerminalMissedOutput, s.handleTerminalMissedOutput)
}

type terminalCreateParams struct {
	SessionID   string `json:"session_id"`
	ProjectID   string `json:"project_id"`
	ProjectPath string `json:"project_path,omitempty"`
	Cwd         string `json:"cwd"`
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
	Command     string `json:"command,omitempty"`
}

type terminalOutputEvent struct {
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
	Data      []byte `json:"data"`
}

func (s *Server) handleTerminalCreate(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p terminalCreateParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.SessionID == "" || p.Cwd == "" {
		return nil, apierr.Validation("session_id and cwd are required")
	}
	s.rooms.joinProject(c, p.ProjectID)

	session, err := s.ptys.Create(p.SessionID, p.ProjectID, p.Cwd, p.Rows, p.Cols)
	if err != nil {
		return nil, err
	}

	s.termListenersMu.Lock()
	alreadyWired := s.termListeners[p.SessionID]
	if !alreadyWired {
		s.termListeners[p.SessionID] = true
	}
	s.termListenersMu.Unlock()

	if !alreadyWired {
		s.terminals.Open(p.SessionID, uuid.New().String(), p.Command, p.ProjectID, p.ProjectPath, p.Cwd)
		projectID := p.ProjectID
		session.AddListener(func(seq uint64, data []byte) {
			s.EmitProject(projectID, protocol.ChanTerminalOutput, terminalOutputEvent{
				SessionID: p.SessionID,
				Seq:       seq,
				Data:      data,
			})
		})
	}

	return session, nil
}

type terminalInputParams struct {
	SessionID string `json:"session_id"`
	Data      string `json:"data"`
}

func (s *Server) handleTerminalInput(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p terminalInputParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.SessionID == "" {
		return nil, apierr.Validation("session_id is required")
	}
	return nil, s.ptys.Write(p.SessionID, []byte(p.Data))
}

type terminalResizeParams struct {
	SessionID string `json:"session_id"`
	Rows      int    `json:"rows"`
	Cols      int    `json:"cols"`
}

func (s *Server) handleTerminalResize(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p terminalResizeParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.SessionID == "" {
		return nil, apierr.Validation("session_id is required")
	}
	return nil, s.ptys.Resize(p.SessionID, p.Rows, p.Cols)
}

type terminalKillParams struct {
	SessionID string `json:"session_id"`
	Signal    string `json:"signal,omitempty"`
}

func (s *Server) handleTerminalKill(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p terminalKillParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.SessionID == "" {
		return nil, apierr.Validation("session_id is required")
	}

	killErr := s.ptys.Kill(p.SessionID, p.Signal)

	s.terminals.SetStatus(p.SessionID, termstream.StatusCancelled)
	s.termListenersMu.Lock()
	delete(s.termListeners, p.SessionID)
	s.termListenersMu.Unlock()

	if c.projectID != "" {
		s.EmitProject(c.projectID, protocol.ChanTerminalExit, map[string]string{"session_id": p.SessionID})
	}

	return nil, killErr
}

type terminalMissedOutputParams struct {
	SessionID string `json:"session_id"`
	FromIndex int    `json:"from_index"`
}

func (s *Server) handleTerminalMissedOutput(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p terminalMissedOutputParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.SessionID == "" {
		return nil, apierr.Validation("session_id is required")
	}
	return s.terminals.MissedOutput(p.SessionID, p.FromIndex)
}
