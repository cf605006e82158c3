package gameserver

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/daguai/internal/game/gameerr"
	"github.com/cory-johannsen/daguai/internal/game/identity"
	"github.com/cory-johannsen/daguai/internal/game/room"
	"github.com/cory-johannsen/daguai/internal/game/session"
	"github.com/cory-johannsen/daguai/internal/protocol"
)

// Peer is one persistent connection and the room identity it last declared.
// A Peer is driven by a single read loop and is not safe for concurrent use.
type Peer struct {
	conn   *session.Conn
	roomID string
	token  identity.Token
}

// Conn returns the peer's connection handle.
func (p *Peer) Conn() *session.Conn { return p.conn }

// Dispatcher routes inbound frames from persistent connections to rooms.
type Dispatcher struct {
	service *Service
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher.
//
// Precondition: service and logger must be non-nil.
func NewDispatcher(service *Service, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{service: service, logger: logger}
}

// Connect registers a new connection over t.
//
// Postcondition: the returned Peer is unbound until its first routed frame.
func (d *Dispatcher) Connect(t session.Transport) *Peer {
	c := d.service.conns.Open(t)
	d.logger.Debug("connection opened", zap.String("conn", c.ID().String()))
	return &Peer{conn: c}
}

// Dispatch handles one inbound frame. Envelope-level failures are answered to
// the sender only; room operations deliver their own replies.
func (d *Dispatcher) Dispatch(ctx context.Context, p *Peer, data []byte) {
	p.conn.MarkAlive()

	env, cmd, err := protocol.Decode(data)
	if err != nil {
		d.reject(p, err)
		return
	}
	if _, ok := cmd.(protocol.Pong); ok {
		return
	}

	r, err := d.service.registry.Resolve(string(env.RoomID))
	if err != nil {
		d.reject(p, err)
		return
	}
	if env.UID.Valid() {
		d.bind(r, p, env.UID)
	}

	if err := d.service.Handle(ctx, r, env.UID, cmd); err != nil {
		d.logger.Debug("command failed",
			zap.String("room_id", r.ID()),
			zap.String("type", env.Type),
			zap.Int64("uid", int64(env.UID)),
			zap.String("kind", gameerr.KindOf(err).String()),
			zap.Error(err),
		)
	}
}

// bind attaches p to t in r. The room's binding is authoritative: a peer whose
// binding was dropped by the room is bound again.
func (d *Dispatcher) bind(r *room.Room, p *Peer, t identity.Token) {
	if p.roomID == r.ID() && p.token == t {
		if cur, ok := r.Connection(t); ok && cur == p.conn {
			return
		}
	}
	d.unbind(p)
	d.service.conns.Bind(r, t, p.conn)
	p.roomID, p.token = r.ID(), t
}

func (d *Dispatcher) unbind(p *Peer) {
	if p.roomID == "" {
		return
	}
	if r, err := d.service.registry.Get(p.roomID); err == nil {
		r.Unbind(p.token, p.conn)
	}
	p.roomID, p.token = "", identity.None
}

func (d *Dispatcher) reject(p *Peer, err error) {
	d.logger.Debug("rejecting frame",
		zap.String("conn", p.conn.ID().String()),
		zap.String("kind", gameerr.KindOf(err).String()),
		zap.Error(err),
	)
	d.service.conns.SendTo(p.conn, protocol.NewError(gameerr.Message(err)))
}

// Disconnect detaches p from its room and closes the connection. Membership
// is kept so the identity can reconnect.
func (d *Dispatcher) Disconnect(p *Peer) {
	d.unbind(p)
	d.service.conns.Release(p.conn)
	d.logger.Debug("connection closed", zap.String("conn", p.conn.ID().String()))
}
