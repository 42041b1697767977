package hub

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	errspkg "github.com/drblury/todobridge/internal/runtime/errors"
	"github.com/drblury/todobridge/internal/runtime/ids"
	"github.com/drblury/todobridge/internal/runtime/logging"
)

// wsConn adapts a gorilla connection to Conn. Writes are serialized so frames
// from one flow arrive in call order.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	open    atomic.Bool
	once    sync.Once
}

func newWSConn(ws *websocket.Conn, writeTimeout time.Duration) *wsConn {
	c := &wsConn{ws: ws, writeTimeout: writeTimeout}
	c.open.Store(true)
	return c
}

func (c *wsConn) IsOpen() bool { return c.open.Load() }

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	if !c.open.Load() {
		return errspkg.ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.open.Store(false)
		return err
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		c.open.Store(false)
		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// ServeHTTP upgrades the request, registers the connection and blocks until the
// peer closes or a read fails. Inbound frames are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "expected a WebSocket upgrade request", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Warn("websocket upgrade failed", logging.LogFields{"error": err.Error()})
		return
	}

	id := ids.NewConnectionID()
	conn := newWSConn(ws, h.writeTimeout)
	h.registry.Add(id, conn)
	h.metrics.SetConnections(h.registry.Count())
	h.logger.Info("websocket client connected", logging.LogFields{"connection_id": id, "remote": r.RemoteAddr})

	defer func() {
		h.registry.Remove(id)
		_ = conn.Close()
		h.metrics.SetConnections(h.registry.Count())
		h.logger.Info("websocket client disconnected", logging.LogFields{"connection_id": id})
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read ended", logging.LogFields{"connection_id": id, "error": err.Error()})
			}
			return
		}
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowAll := len(origins) == 0
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
