package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/coderoom/server/internal/tunnel"
)

func TestHandleTunnelStartMissingFields(t *testing.T) {
	s := &Server{}
	_, err := s.handleTunnelStart(context.Background(), nil, json.RawMessage(`{"project_id":""}`))
	if err == nil {
		t.Fatal("expected validation error for missing project_id")
	}

	_, err = s.handleTunnelStart(context.Background(), nil, json.RawMessage(`{"project_id":"p1","port":0}`))
	if err == nil {
		t.Fatal("expected validation error for non-positive port")
	}
}

func TestHandleTunnelStartInvalidPayload(t *testing.T) {
	s := &Server{}
	if _, err := s.handleTunnelStart(context.Background(), nil, json.RawMessage(`not json`)); err == nil {
		t.Fatal("expected validation error for malformed payload")
	}
}

func TestHandleTunnelStopMissingID(t *testing.T) {
	s := &Server{tunnels: tunnel.NewManager(nil)}
	_, err := s.handleTunnelStop(context.Background(), nil, json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing tunnel_id")
	}
}

func TestHandleTunnelStopUnknownIDIsNoop(t *testing.T) {
	s := &Server{tunnels: tunnel.NewManager(nil)}
	_, err := s.handleTunnelStop(context.Background(), nil, json.RawMessage(`{"tunnel_id":"missing"}`))
	if err != nil {
		t.Fatalf("expected Stop on unknown id to be a no-op, got: %v", err)
	}
}
