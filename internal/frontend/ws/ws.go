// Package ws is the WebSocket gateway. Each upgraded connection feeds its
// frames to the dispatcher and receives room output through a session.Conn.
package ws

import (
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/daguai/internal/gameserver"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultReadLimit    = 64 << 10
)

// Config controls the WebSocket gateway.
type Config struct {
	// AllowedOrigins lists the Origin values accepted on upgrade; "*" allows any.
	AllowedOrigins []string
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration
	// ReadLimit caps the size of an inbound frame in bytes.
	ReadLimit int64
	// IdleTimeout closes a socket that sends no frame or pong for this long.
	// Zero disables the deadline.
	IdleTimeout time.Duration
}

// Handler upgrades HTTP requests to WebSocket sessions.
type Handler struct {
	cfg        Config
	dispatcher *gameserver.Dispatcher
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewHandler creates a Handler.
//
// Precondition: dispatcher and logger must be non-nil.
func NewHandler(cfg Config, dispatcher *gameserver.Dispatcher, logger *zap.Logger) *Handler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	h := &Handler{cfg: cfg, dispatcher: dispatcher, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.cfg.AllowedOrigins, "*") {
		return true
	}
	if slices.Contains(h.cfg.AllowedOrigins, origin) {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}
	return false
}

// ServeHTTP runs one WebSocket session until the peer or the server closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	h.wg.Add(1)
	defer h.wg.Done()

	start := time.Now()
	peer := h.dispatcher.Connect(&transport{sock: sock, writeTimeout: h.cfg.WriteTimeout})
	defer h.dispatcher.Disconnect(peer)

	sock.SetReadLimit(h.cfg.ReadLimit)
	extend := func() error {
		if h.cfg.IdleTimeout <= 0 {
			return nil
		}
		return sock.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
	}
	// Sockets not yet bound to a room get no heartbeat pings, so the
	// deadline is armed before the first frame.
	if err := extend(); err != nil {
		return
	}
	sock.SetPongHandler(func(string) error {
		peer.Conn().MarkAlive()
		return extend()
	})

	ctx := r.Context()
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read failed",
					zap.String("conn", peer.Conn().ID().String()),
					zap.Error(err),
				)
			}
			h.logger.Debug("websocket session ended",
				zap.String("conn", peer.Conn().ID().String()),
				zap.Duration("duration", time.Since(start)),
			)
			return
		}
		if err := extend(); err != nil {
			return
		}
		h.dispatcher.Dispatch(ctx, peer, data)
	}
}

// Wait blocks until every active session has ended.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// transport writes text frames to a socket. Pings and close frames go through
// WriteControl, which may run concurrently with WriteMessage.
type transport struct {
	sock         *websocket.Conn
	writeTimeout time.Duration
}

func (t *transport) WriteMessage(data []byte) error {
	if err := t.sock.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.sock.WriteMessage(websocket.TextMessage, data)
}

func (t *transport) Ping() error {
	return t.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}

func (t *transport) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.writeTimeout))
	return t.sock.Close()
}
