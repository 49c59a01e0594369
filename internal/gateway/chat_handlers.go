package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
	"github.com/coderoom/server/pkg/protocol"
)

// registerChatHandlers mounts the chat/checkpoint sub-router (§4.3) onto the
// merged MethodRouter: history replay, sending a new message, the timeline
// projection, and restoring the session HEAD to a prior checkpoint.
func registerChatHandlers(r *MethodRouter, s *Server) {
	r.Handle(protocol.ChanChatHistory, s.handleChatHistory)
	r.Handle(protocol.ChanChatSend, s.handleChatSend)
	r.Handle(protocol.ChanChatTimeline, s.handleChatTimeline)
	r.Handle(protocol.ChanChatRestoreCheckpoint, s.handleChatRestoreCheckpoint)
}

type chatHistoryParams struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleChatHistory(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p chatHistoryParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.SessionID == "" {
		return nil, apierr.Validation("session_id is required")
	}
	s.rooms.joinSession(c, p.SessionID)

	msgs, err := s.stores.Messages.ListBySession(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

type chatSendParams struct {
	SessionID       string `json:"session_id"`
	Text            string `json:"text"`
	ParentMessageID string `json:"parent_message_id,omitempty"`
	SenderID        string `json:"sender_id,omitempty"`
	SenderName      string `json:"sender_name,omitempty"`
}

func (s *Server) handleChatSend(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p chatSendParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.SessionID == "" || p.Text == "" {
		return nil, apierr.Validation("session_id and text are required")
	}

	session, err := s.stores.ChatSessions.Get(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}

	parentID := p.ParentMessageID
	if parentID == "" {
		parentID = session.HeadMessageID
	}

	msg := &domain.Message{
		ID:              uuid.New().String(),
		SessionID:       p.SessionID,
		Timestamp:       time.Now(),
		Role:            domain.RoleUser,
		Text:            p.Text,
		SenderID:        p.SenderID,
		SenderName:      p.SenderName,
		ParentMessageID: parentID,
	}
	if err := s.stores.Messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.stores.ChatSessions.SetHead(ctx, p.SessionID, msg.ID); err != nil {
		return nil, err
	}

	s.EmitChatSession(p.SessionID, protocol.ChanChatMessagesChanged, msg)
	return msg, nil
}

type chatTimelineParams struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleChatTimeline(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p chatTimelineParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.SessionID == "" {
		return nil, apierr.Validation("session_id is required")
	}
	return s.snapshots.Timeline(ctx, p.SessionID)
}

type chatRestoreCheckpointParams struct {
	SessionID   string `json:"session_id"`
	MessageID   string `json:"message_id"`
	ProjectPath string `json:"project_path"`
}

func (s *Server) handleChatRestoreCheckpoint(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p chatRestoreCheckpointParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.SessionID == "" || p.MessageID == "" {
		return nil, apierr.Validation("session_id and message_id are required")
	}

	projectPath := p.ProjectPath
	if projectPath == "" {
		session, err := s.stores.ChatSessions.Get(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		project, err := s.stores.Projects.Get(ctx, session.ProjectID)
		if err != nil {
			return nil, err
		}
		projectPath = project.AbsolutePath
	}

	result, err := s.snapshots.RestoreToCheckpoint(ctx, projectPath, p.SessionID, p.MessageID)
	if err != nil {
		return nil, err
	}

	s.EmitChatSession(p.SessionID, protocol.ChanChatMessagesChanged, result)
	return result, nil
}
