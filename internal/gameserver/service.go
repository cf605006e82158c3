// Package gameserver is the gateway layer shared by every transport. It
// resolves rooms through the registry, runs room operations, and delivers the
// resulting messages after the room lock is released, in commit order.
package gameserver

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/daguai/internal/game/gameerr"
	"github.com/cory-johannsen/daguai/internal/game/identity"
	"github.com/cory-johannsen/daguai/internal/game/room"
	"github.com/cory-johannsen/daguai/internal/protocol"
)

// ServiceConfig controls gateway behavior.
type ServiceConfig struct {
	// ImplicitRooms creates a room on the first join or spectate that names it.
	ImplicitRooms bool
}

// PlayersView is the roster listing returned to request/response callers.
type PlayersView struct {
	Players        []string `json:"players"`
	GameInProgress bool     `json:"gameInProgress"`
}

// Service implements every room operation for the gateways.
type Service struct {
	cfg      ServiceConfig
	registry *room.Registry
	conns    *ConnectionManager
	logger   *zap.Logger
}

// NewService creates a Service.
//
// Precondition: registry, conns, and logger must be non-nil.
func NewService(cfg ServiceConfig, registry *room.Registry, conns *ConnectionManager, logger *zap.Logger) *Service {
	return &Service{cfg: cfg, registry: registry, conns: conns, logger: logger}
}

// Registry returns the room registry.
func (s *Service) Registry() *room.Registry { return s.registry }

// Connections returns the connection manager.
func (s *Service) Connections() *ConnectionManager { return s.conns }

// CreateRoom registers a room and returns its id.
func (s *Service) CreateRoom(ctx context.Context, id string, numDecks int) (string, error) {
	r, err := s.registry.Create(ctx, id, numDecks)
	if err != nil {
		return "", err
	}
	return r.ID(), nil
}

func (s *Service) resolve(ctx context.Context, id string, create bool) (*room.Room, error) {
	if create && s.cfg.ImplicitRooms {
		return s.registry.GetOrCreate(ctx, id)
	}
	return s.registry.Resolve(id)
}

// apply runs op against r and delivers its Outbox before any later operation
// on r can deliver.
func (s *Service) apply(ctx context.Context, r *room.Room, op func() (room.Outbox, error)) error {
	var err error
	r.Sequenced(func() {
		var out room.Outbox
		out, err = op()
		s.conns.Deliver(ctx, r, out)
	})
	return err
}

// Join adds a player to the room's lobby.
func (s *Service) Join(ctx context.Context, roomID string, presented identity.Token, username string) (room.JoinResult, error) {
	r, err := s.resolve(ctx, roomID, true)
	if err != nil {
		return room.JoinResult{}, err
	}
	var res room.JoinResult
	err = s.apply(ctx, r, func() (out room.Outbox, err error) {
		res, out, err = r.Join(presented, username)
		return out, err
	})
	if err != nil {
		return room.JoinResult{}, err
	}
	s.logger.Info("player joined",
		zap.String("room_id", roomID),
		zap.String("username", res.Username),
	)
	return res, nil
}

// Spectate registers a spectator in the room.
func (s *Service) Spectate(ctx context.Context, roomID string, presented identity.Token) (identity.Token, error) {
	r, err := s.resolve(ctx, roomID, true)
	if err != nil {
		return identity.None, err
	}
	var tok identity.Token
	err = s.apply(ctx, r, func() (out room.Outbox, err error) {
		tok, out, err = r.Spectate(presented)
		return out, err
	})
	return tok, err
}

// Players lists the roster.
func (s *Service) Players(ctx context.Context, roomID string) (PlayersView, error) {
	r, err := s.resolve(ctx, roomID, false)
	if err != nil {
		return PlayersView{}, err
	}
	players, inProgress := r.Players()
	if players == nil {
		players = []string{}
	}
	return PlayersView{Players: players, GameInProgress: inProgress}, nil
}

// Snapshot returns the personalized projection for t.
func (s *Service) Snapshot(ctx context.Context, roomID string, t identity.Token) (protocol.Update, error) {
	r, err := s.resolve(ctx, roomID, false)
	if err != nil {
		return protocol.Update{}, err
	}
	return r.Snapshot(t)
}

// Start deals the first match.
func (s *Service) Start(ctx context.Context, roomID string, t identity.Token) error {
	r, err := s.resolve(ctx, roomID, false)
	if err != nil {
		return err
	}
	if err := s.apply(ctx, r, func() (room.Outbox, error) { return r.Start(t) }); err != nil {
		return err
	}
	s.logger.Info("match started", zap.String("room_id", roomID))
	return nil
}

// Leave removes t from the room.
func (s *Service) Leave(ctx context.Context, roomID string, t identity.Token) error {
	if !t.Valid() {
		return gameerr.Invalid("missing uid")
	}
	r, err := s.resolve(ctx, roomID, false)
	if err != nil {
		return err
	}
	return s.apply(ctx, r, func() (room.Outbox, error) { return r.Leave(t), nil })
}

// Handle runs a decoded connection command against r on behalf of t.
//
// Precondition: cmd is not protocol.Pong; liveness is handled by the dispatcher.
func (s *Service) Handle(ctx context.Context, r *room.Room, t identity.Token, cmd protocol.Command) error {
	var op func() (room.Outbox, error)
	switch c := cmd.(type) {
	case protocol.Check:
		op = func() (room.Outbox, error) { return r.Check(t, c.PlayedHand), nil }
	case protocol.Play:
		op = func() (room.Outbox, error) { return r.Play(t, c.PlayedHand) }
	case protocol.SendCard:
		op = func() (room.Outbox, error) { return r.SendCard(t, c.SelectedCards) }
	case protocol.GetUpdate:
		op = func() (room.Outbox, error) { return r.GetUpdate(t), nil }
	case protocol.PlayAgain:
		op = func() (room.Outbox, error) { return r.PlayAgain(t) }
	case protocol.Exit:
		op = func() (room.Outbox, error) { return r.Exit(), nil }
	case protocol.Pong:
		return nil
	default:
		return gameerr.Internal(fmt.Errorf("unhandled command %T", cmd), "unsupported command")
	}
	return s.apply(ctx, r, op)
}

// RoomStats is a room summary plus its last recorded activity.
type RoomStats struct {
	room.Stats
	LastActive time.Time `json:"lastActive"`
}

// ServerStats summarizes the process for operators.
type ServerStats struct {
	Rooms       []RoomStats `json:"rooms"`
	Connections int         `json:"connections"`
}

// Stats returns a summary of every room, ordered by id. A room evicted while
// the summary is built is left out.
func (s *Service) Stats() ServerStats {
	rooms := s.registry.Rooms()
	stats := ServerStats{
		Rooms:       make([]RoomStats, 0, len(rooms)),
		Connections: s.conns.Count(),
	}
	for _, r := range rooms {
		last, ok := s.registry.LastActive(r.ID())
		if !ok {
			continue
		}
		stats.Rooms = append(stats.Rooms, RoomStats{Stats: r.Stats(), LastActive: last})
	}
	slices.SortFunc(stats.Rooms, func(a, b RoomStats) int { return strings.Compare(a.ID, b.ID) })
	return stats
}
