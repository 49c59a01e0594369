package gateway

import (
	"context"
	"encoding/json"

	"github.com/coderoom/server/internal/apierr"
)

// Handler processes one request/event frame's payload and returns a result
// to marshal onto a "res" frame (ignored for "event" frames).
type Handler func(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error)

// MethodRouter is the merge of every subsystem's sub-router: a flat
// dispatch table from dotted channel name to handler, per §4.6 "Plugin
// shape" (the root router is the merge of all sub-routers).
type MethodRouter struct {
	server   *Server
	handlers map[string]Handler
}

// NewMethodRouter constructs an empty router bound to its owning server.
func NewMethodRouter(s *Server) *MethodRouter {
	return &MethodRouter{server: s, handlers: make(map[string]Handler)}
}

// Handle registers a handler for a dotted channel name. Re-registering a
// channel overwrites the previous handler — sub-routers are expected to
// register disjoint channel namespaces.
func (r *MethodRouter) Handle(channel string, h Handler) {
	r.handlers[channel] = h
}

// dispatch looks up and invokes the handler for channel, translating an
// unknown channel into the UNKNOWN_CHANNEL typed error (§4.6).
func (r *MethodRouter) dispatch(ctx context.Context, c *Client, channel string, payload json.RawMessage) (interface{}, error) {
	h, ok := r.handlers[channel]
	if !ok {
		return nil, apierr.New(apierr.CodeUnknown, "unknown channel: "+channel)
	}
	return h(ctx, c, payload)
}
