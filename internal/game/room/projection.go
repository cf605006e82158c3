package room

import (
	"slices"

	"github.com/cory-johannsen/daguai/internal/game/cards"
	"github.com/cory-johannsen/daguai/internal/game/identity"
	"github.com/cory-johannsen/daguai/internal/protocol"
)

// project builds the view of the room for recipient t: public fields for
// everyone, plus t's own hand when t is a seated player. Caller holds r.mu.
func (r *Room) project(t identity.Token) protocol.Update {
	u := protocol.Update{
		Type:            protocol.TypeUpdate,
		Phase:           r.phase().String(),
		Players:         slices.Clone(r.players),
		Spectators:      len(r.spectators),
		PendingTributes: r.pendingTributes.Clone(),
		LastPlayCards:   []cards.Card{},
	}
	if u.Players == nil {
		u.Players = []string{}
	}
	if r.session == nil {
		return u
	}
	u.GamePlayers = r.session.Seats()
	u.CurrentPlayer = r.session.CurrentPlayer()
	u.LastPlayCards = cards.Clone(r.session.LastPlay())
	if name, ok := r.identityToPlayer[t]; ok {
		u.MyHand = cards.Clone(r.session.Hand(name))
	}
	return u
}
