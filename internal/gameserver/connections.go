package gameserver

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/daguai/internal/game/identity"
	"github.com/cory-johannsen/daguai/internal/game/room"
	"github.com/cory-johannsen/daguai/internal/game/session"
	"github.com/cory-johannsen/daguai/internal/protocol"
)

// ConnectionManager delivers room output to connections and runs the
// heartbeat. It never holds a room lock while writing.
type ConnectionManager struct {
	registry *room.Registry
	conns    *session.Manager
	buffer   int
	logger   *zap.Logger
}

// NewConnectionManager creates a ConnectionManager.
//
// Precondition: registry, conns, and logger must be non-nil.
func NewConnectionManager(registry *room.Registry, conns *session.Manager, buffer int, logger *zap.Logger) *ConnectionManager {
	return &ConnectionManager{registry: registry, conns: conns, buffer: buffer, logger: logger}
}

// Open wraps a transport in a tracked connection.
func (m *ConnectionManager) Open(t session.Transport) *session.Conn {
	c := session.NewConn(t, m.buffer, m.logger)
	m.conns.Add(c)
	return c
}

// Release stops tracking c and closes it.
func (m *ConnectionManager) Release(c *session.Conn) {
	m.conns.Remove(c.ID())
	_ = c.Close()
}

// Count returns the number of open connections.
func (m *ConnectionManager) Count() int {
	return m.conns.Count()
}

// CloseAll closes every open connection.
func (m *ConnectionManager) CloseAll() {
	m.conns.CloseAll()
}

// Bind attaches c to t in r, closing any connection it replaces.
func (m *ConnectionManager) Bind(r *room.Room, t identity.Token, c *session.Conn) {
	if old := r.Bind(t, c); old != nil {
		m.logger.Info("connection replaced",
			zap.String("room_id", r.ID()),
			zap.Int64("uid", int64(t)),
			zap.String("old_conn", old.ID().String()),
		)
		m.Release(old)
	}
}

// SendTo pushes msg to c, outside any room. Used for replies to connections
// that could not be routed to a room.
func (m *ConnectionManager) SendTo(c *session.Conn, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		m.logger.Error("encoding message", zap.Error(err))
		return
	}
	if err := c.Push(data); err != nil {
		m.logger.Warn("send failed, dropping connection", zap.String("conn", c.ID().String()), zap.Error(err))
		m.Release(c)
	}
}

// Deliver sends every message in out and publishes its events. A failed push
// drops that connection only; the rest still receive their messages.
func (m *ConnectionManager) Deliver(ctx context.Context, r *room.Room, out room.Outbox) {
	for _, d := range out.Deliveries {
		data, err := protocol.Encode(d.Message)
		if err != nil {
			m.logger.Error("encoding message",
				zap.String("room_id", r.ID()),
				zap.String("type", d.Message.MessageType()),
				zap.Error(err),
			)
			continue
		}
		if err := d.Conn.Push(data); err != nil {
			m.logger.Warn("send failed, dropping connection",
				zap.String("room_id", r.ID()),
				zap.Int64("uid", int64(d.Token)),
				zap.Error(err),
			)
			r.Unbind(d.Token, d.Conn)
			m.Release(d.Conn)
		}
	}
	if len(out.Events) > 0 {
		m.registry.Publish(ctx, out.Events)
	}
}

// Heartbeat runs one mark-and-ping pass over every room. A connection that
// did not answer the previous ping is closed; membership is kept so the
// identity can reconnect. Sockets not bound to a room are bounded by their
// gateway's idle deadline instead.
func (m *ConnectionManager) Heartbeat(context.Context) {
	for _, r := range m.registry.Rooms() {
		dead, alive := r.Heartbeat()
		for _, c := range dead {
			m.logger.Info("heartbeat timeout, closing connection",
				zap.String("room_id", r.ID()),
				zap.String("conn", c.ID().String()),
			)
			m.Release(c)
		}
		for _, c := range alive {
			if err := c.Ping(); err != nil {
				m.logger.Debug("ping failed", zap.String("conn", c.ID().String()), zap.Error(err))
			}
		}
	}
}
