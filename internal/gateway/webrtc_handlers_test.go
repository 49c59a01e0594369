package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/coderoom/server/internal/webrtcbridge"
)

func newTestWebRTCServer() *Server {
	return &Server{
		rooms:  newRooms(),
		webrtc: webrtcbridge.NewBridge(nil, nil),
	}
}

func TestHandleStreamStartMissingFields(t *testing.T) {
	s := newTestWebRTCServer()
	_, err := s.handleStreamStart(context.Background(), newTestClient(), json.RawMessage(`{"project_id":"p1"}`))
	if err == nil {
		t.Fatal("expected validation error for missing tab_id")
	}
}

func TestHandleStreamStartReturnsOffer(t *testing.T) {
	s := newTestWebRTCServer()
	result, err := s.handleStreamStart(context.Background(), newTestClient(), json.RawMessage(`{"project_id":"p1","tab_id":"tab-1"}`))
	if err != nil {
		t.Fatalf("handleStreamStart: %v", err)
	}
	resp, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("result type = %T, want map[string]interface{}", result)
	}
	if resp["tab_id"] != "tab-1" {
		t.Fatalf("tab_id = %v, want tab-1", resp["tab_id"])
	}
	offer, ok := resp["sdp"].(*webrtc.SessionDescription)
	if !ok || offer.SDP == "" {
		t.Fatalf("expected a non-empty SDP offer, got %#v", resp["sdp"])
	}
}

func TestHandleStreamAnswerMissingTabID(t *testing.T) {
	s := newTestWebRTCServer()
	_, err := s.handleStreamAnswer(context.Background(), newTestClient(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing tab_id")
	}
}

func TestHandleStreamAnswerUnknownTab(t *testing.T) {
	s := newTestWebRTCServer()
	_, err := s.handleStreamAnswer(context.Background(), newTestClient(), json.RawMessage(`{"tab_id":"missing"}`))
	if err == nil {
		t.Fatal("expected error answering a session that was never started")
	}
}

func TestHandleStreamICEMissingTabID(t *testing.T) {
	s := newTestWebRTCServer()
	_, err := s.handleStreamICE(context.Background(), newTestClient(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing tab_id")
	}
}
