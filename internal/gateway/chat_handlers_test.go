package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
	"github.com/coderoom/server/internal/store"
)

type fakeMessageStore struct {
	bySession map[string][]*domain.Message
	created   []*domain.Message
}

func (f *fakeMessageStore) Create(ctx context.Context, m *domain.Message) error {
	f.created = append(f.created, m)
	if f.bySession == nil {
		f.bySession = map[string][]*domain.Message{}
	}
	f.bySession[m.SessionID] = append(f.bySession[m.SessionID], m)
	return nil
}
func (f *fakeMessageStore) Get(ctx context.Context, id string) (*domain.Message, error) { return nil, nil }
func (f *fakeMessageStore) Children(ctx context.Context, id string) ([]*domain.Message, error) {
	return nil, nil
}
func (f *fakeMessageStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	return f.bySession[sessionID], nil
}
func (f *fakeMessageStore) SoftDelete(ctx context.Context, id string) error { return nil }
func (f *fakeMessageStore) SoftDeleteAfter(ctx context.Context, sessionID string, after domain.Message) error {
	return nil
}

type fakeChatSessionStore struct {
	sessions map[string]*domain.ChatSession
	heads    map[string]string
}

func (f *fakeChatSessionStore) Create(ctx context.Context, s *domain.ChatSession) error { return nil }
func (f *fakeChatSessionStore) Get(ctx context.Context, id string) (*domain.ChatSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, apierr.NotFound("chat session not found")
	}
	return s, nil
}
func (f *fakeChatSessionStore) ListByProject(ctx context.Context, projectID string) ([]*domain.ChatSession, error) {
	return nil, nil
}
func (f *fakeChatSessionStore) SetHead(ctx context.Context, sessionID, messageID string) error {
	if f.heads == nil {
		f.heads = map[string]string{}
	}
	f.heads[sessionID] = messageID
	return nil
}
func (f *fakeChatSessionStore) SetLatestSDKSessionID(ctx context.Context, sessionID, sdkSessionID string) error {
	return nil
}
func (f *fakeChatSessionStore) Delete(ctx context.Context, id string) error { return nil }

func newTestChatServer(messages *fakeMessageStore, sessions *fakeChatSessionStore) *Server {
	return &Server{
		rooms: newRooms(),
		stores: &store.Stores{
			Messages:     messages,
			ChatSessions: sessions,
		},
	}
}

func TestHandleChatHistoryMissingSessionID(t *testing.T) {
	s := newTestChatServer(&fakeMessageStore{}, &fakeChatSessionStore{})
	_, err := s.handleChatHistory(context.Background(), newTestClient(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing session_id")
	}
}

func TestHandleChatHistoryReturnsMessages(t *testing.T) {
	messages := &fakeMessageStore{bySession: map[string][]*domain.Message{
		"s1": {{ID: "m1", SessionID: "s1", Text: "hi"}},
	}}
	s := newTestChatServer(messages, &fakeChatSessionStore{})
	c := newTestClient()

	result, err := s.handleChatHistory(context.Background(), c, json.RawMessage(`{"session_id":"s1"}`))
	if err != nil {
		t.Fatalf("handleChatHistory: %v", err)
	}
	msgs, ok := result.([]*domain.Message)
	if !ok || len(msgs) != 1 {
		t.Fatalf("result = %#v, want one message", result)
	}
}

func TestHandleChatSendMissingFields(t *testing.T) {
	s := newTestChatServer(&fakeMessageStore{}, &fakeChatSessionStore{})
	_, err := s.handleChatSend(context.Background(), newTestClient(), json.RawMessage(`{"session_id":"s1"}`))
	if err == nil {
		t.Fatal("expected validation error for missing text")
	}
}

func TestHandleChatSendDefaultsParentToSessionHead(t *testing.T) {
	sessions := &fakeChatSessionStore{sessions: map[string]*domain.ChatSession{
		"s1": {ID: "s1", HeadMessageID: "head-1"},
	}}
	messages := &fakeMessageStore{}
	s := newTestChatServer(messages, sessions)

	payload, _ := json.Marshal(chatSendParams{SessionID: "s1", Text: "hello"})
	result, err := s.handleChatSend(context.Background(), newTestClient(), payload)
	if err != nil {
		t.Fatalf("handleChatSend: %v", err)
	}
	msg, ok := result.(*domain.Message)
	if !ok {
		t.Fatalf("result type = %T, want *domain.Message", result)
	}
	if msg.ParentMessageID != "head-1" {
		t.Fatalf("ParentMessageID = %q, want head-1", msg.ParentMessageID)
	}
	if sessions.heads["s1"] != msg.ID {
		t.Fatalf("session head not advanced to new message")
	}
}

func TestHandleChatTimelineMissingSessionID(t *testing.T) {
	s := &Server{}
	_, err := s.handleChatTimeline(context.Background(), newTestClient(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing session_id")
	}
}

func TestHandleChatRestoreCheckpointMissingFields(t *testing.T) {
	s := &Server{}
	_, err := s.handleChatRestoreCheckpoint(context.Background(), newTestClient(), json.RawMessage(`{"session_id":"s1"}`))
	if err == nil {
		t.Fatal("expected validation error for missing message_id")
	}
}
