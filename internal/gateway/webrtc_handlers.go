package gateway

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/pkg/protocol"
)

// registerWebRTCHandlers mounts the preview stream signalling sub-router
// (§4.9 / C9) onto the merged MethodRouter.
func registerWebRTCHandlers(r *MethodRouter, s *Server) {
	r.Handle(protocol.ChanPreviewStreamStart, s.handleStreamStart)
	r.Handle(protocol.ChanPreviewStreamOffer, s.handleStreamStart)
	r.Handle(protocol.ChanPreviewStreamAnswer, s.handleStreamAnswer)
	r.Handle(protocol.ChanPreviewStreamIce, s.handleStreamICE)
}

type streamStartParams struct {
	ProjectID string `json:"project_id"`
	TabID     string `json:"tab_id"`
}

func (s *Server) handleStreamStart(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p streamStartParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.ProjectID == "" || p.TabID == "" {
		return nil, apierr.Validation("project_id and tab_id are required")
	}
	s.rooms.joinProject(c, p.ProjectID)

	offer, err := s.webrtc.Start(p.TabID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"tab_id": p.TabID, "sdp": offer}, nil
}

type streamAnswerParams struct {
	ProjectID string                    `json:"project_id"`
	TabID     string                    `json:"tab_id"`
	SDP       webrtc.SessionDescription `json:"sdp"`
}

func (s *Server) handleStreamAnswer(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p streamAnswerParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.TabID == "" {
		return nil, apierr.Validation("tab_id is required")
	}
	return nil, s.webrtc.Answer(p.TabID, p.SDP)
}

type streamICEParams struct {
	ProjectID string                  `json:"project_id"`
	TabID     string                  `json:"tab_id"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

func (s *Server) handleStreamICE(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p streamICEParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.TabID == "" {
		return nil, apierr.Validation("tab_id is required")
	}
	return nil, s.webrtc.AddICECandidate(p.TabID, p.Candidate)
}
