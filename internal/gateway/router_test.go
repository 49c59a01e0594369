package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/coderoom/server/internal/apierr"
)

func TestDispatchUnknownChannel(t *testing.T) {
	r := NewMethodRouter(nil)
	_, err := r.dispatch(context.Background(), nil, "does:not-exist", nil)
	if err == nil {
		t.Fatal("expected error for unknown channel")
	}
	apiErr, ok := apierr.As(err)
	if !ok {
		t.Fatalf("expected *apierr.Error, got %T", err)
	}
	if apiErr.Code != apierr.CodeUnknown {
		t.Fatalf("Code = %v, want %v", apiErr.Code, apierr.CodeUnknown)
	}
}

func TestDispatchRegisteredChannel(t *testing.T) {
	r := NewMethodRouter(nil)
	r.Handle("test:echo", func(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
		return string(payload), nil
	})

	got, err := r.dispatch(context.Background(), nil, "test:echo", json.RawMessage(`"hi"`))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got != `"hi"` {
		t.Fatalf("dispatch result = %v, want %q", got, `"hi"`)
	}
}

func TestHandleOverwritesPreviousRegistration(t *testing.T) {
	r := NewMethodRouter(nil)
	r.Handle("test:chan", func(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
		return "first", nil
	})
	r.Handle("test:chan", func(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
		return "second", nil
	})

	got, err := r.dispatch(context.Background(), nil, "test:chan", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got != "second" {
		t.Fatalf("dispatch result = %v, want %q (last registration wins)", got, "second")
	}
}
