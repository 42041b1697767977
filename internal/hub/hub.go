// Package hub fans change events out to WebSocket clients.
package hub

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/drblury/todobridge/internal/events"
	"github.com/drblury/todobridge/internal/runtime/jsoncodec"
	"github.com/drblury/todobridge/internal/runtime/logging"
	"github.com/drblury/todobridge/internal/runtime/telemetry"
)

// DefaultWriteTimeout bounds a single push send.
const DefaultWriteTimeout = 5 * time.Second

// Hub broadcasts change events to every connection in its Registry and owns
// the WebSocket accept path.
type Hub struct {
	registry     *Registry
	logger       logging.ServiceLogger
	metrics      *telemetry.Metrics
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger logging.ServiceLogger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithWriteTimeout overrides DefaultWriteTimeout. Non-positive values are ignored.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithAllowedOrigins restricts WebSocket upgrades to the listed origins.
// An empty list or "*" accepts any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = originChecker(origins)
	}
}

// New returns a hub bound to registry. A nil registry gets a fresh one.
func New(registry *Registry, opts ...Option) *Hub {
	if registry == nil {
		registry = NewRegistry()
	}
	h := &Hub{
		registry:     registry,
		logger:       logging.NewNopLogger(),
		writeTimeout: DefaultWriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(nil),
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry exposes the connection registry shared with the accept path.
func (h *Hub) Registry() *Registry { return h.registry }

// Emit implements events.Sink.
func (h *Hub) Emit(ctx context.Context, ev events.ChangeEvent) {
	h.Broadcast(ctx, ev)
}

// Broadcast sends ev to every open connection. Connections that are closed or
// fail to receive are removed after the pass. Failures are logged, never
// returned, and never retried.
//
// Cancellation of ctx does not abort the pass. Each send is bounded by the
// connection's write timeout only.
func (h *Hub) Broadcast(ctx context.Context, ev events.ChangeEvent) {
	ctx = context.WithoutCancel(ctx)
	entries := h.registry.Snapshot()
	if len(entries) == 0 {
		return
	}

	frame, err := jsoncodec.Marshal(ev.PushFrame())
	if err != nil {
		h.logger.Error("failed to encode push frame", err, logging.LogFields{"action": ev.Action, "id": ev.ID})
		return
	}

	var (
		sent, failed int
		dead         []Entry
	)
	for _, entry := range entries {
		if !entry.Conn.IsOpen() {
			dead = append(dead, entry)
			continue
		}
		if err := entry.Conn.Send(ctx, frame); err != nil {
			failed++
			h.logger.Warn("push send failed", logging.LogFields{"connection_id": entry.ID, "error": err.Error()})
			dead = append(dead, entry)
			continue
		}
		sent++
	}

	for _, entry := range dead {
		h.registry.Remove(entry.ID)
		_ = entry.Conn.Close()
	}

	h.metrics.RecordBroadcast(sent, failed, len(dead))
	h.metrics.SetConnections(h.registry.Count())
	h.logger.Trace("broadcast change event", logging.LogFields{
		"action":  ev.Action,
		"id":      ev.ID,
		"sent":    sent,
		"evicted": len(dead),
	})
}

// CloseAll removes and closes every registered connection. Accept loops see
// the closed socket and return.
func (h *Hub) CloseAll() {
	for _, entry := range h.registry.Snapshot() {
		h.registry.Remove(entry.ID)
		_ = entry.Conn.Close()
	}
	h.metrics.SetConnections(h.registry.Count())
}
