package room_test

import (
	"slices"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/daguai/internal/game/cards"
	"github.com/cory-johannsen/daguai/internal/game/gameerr"
	"github.com/cory-johannsen/daguai/internal/game/identity"
	"github.com/cory-johannsen/daguai/internal/game/rng"
	"github.com/cory-johannsen/daguai/internal/game/room"
	"github.com/cory-johannsen/daguai/internal/game/rules"
	"github.com/cory-johannsen/daguai/internal/game/session"
)

// fakeSession is a minimal rules engine: turns rotate, any subset of the
// current player's hand is legal, an empty play is a pass, and the match ends
// as soon as any hand is empty.
type fakeSession struct {
	players  []string
	hands    map[string][]cards.Card
	current  int
	last     []cards.Card
	state    rules.State
	tributes rules.TributeSet
	next     rules.TributeSet
	closed   bool
}

func (s *fakeSession) index(player string) int { return slices.Index(s.players, player) }

func (s *fakeSession) Validate(player string, play []cards.Card) (rules.PlayDescriptor, error) {
	if s.index(player) != s.current {
		return rules.PlayDescriptor{}, gameerr.IllegalPlay("not your turn")
	}
	for _, c := range play {
		if !slices.Contains(s.hands[player], c) {
			return rules.PlayDescriptor{}, gameerr.IllegalPlay("card not in hand")
		}
	}
	if len(play) == 0 {
		return rules.PlayDescriptor{Play: rules.PlayPass}, nil
	}
	return rules.PlayDescriptor{Play: 1, Cards: play}, nil
}

func (s *fakeSession) Advance(player string, play []cards.Card) (rules.AdvanceResult, error) {
	if _, err := s.Validate(player, play); err != nil {
		return rules.AdvanceResult{}, err
	}
	if len(play) > 0 {
		s.hands[player] = slices.DeleteFunc(s.hands[player], func(c cards.Card) bool { return slices.Contains(play, c) })
		s.last = cards.Clone(play)
		if len(s.hands[player]) == 0 {
			s.state = rules.TeamOneWon
		}
	}
	s.current = (s.current + 1) % len(s.players)
	return rules.AdvanceResult{State: s.state}, nil
}

func (s *fakeSession) SendTribute(player string, selected []cards.Card) (rules.TributeResult, error) {
	if len(selected) != 1 || !slices.Contains(s.hands[player], selected[0]) {
		return rules.TributeResult{}, gameerr.IllegalPlay("select one card from your hand")
	}
	for i := range s.tributes {
		t := &s.tributes[i]
		var to string
		switch {
		case t.Giver == player && !t.GiverSent:
			t.GiverSent, to = true, t.Receiver
		case t.Receiver == player && t.GiverSent && !t.ReceiverSent:
			t.ReceiverSent, to = true, t.Giver
		default:
			continue
		}
		s.hands[player] = slices.DeleteFunc(s.hands[player], func(c cards.Card) bool { return c == selected[0] })
		s.hands[to] = append(s.hands[to], selected[0])
		return rules.TributeResult{Receiver: to, NewHand: cards.Clone(s.hands[to]), Tributes: s.tributes.Clone()}, nil
	}
	return rules.TributeResult{}, gameerr.IllegalPlay("nothing to send")
}

func (s *fakeSession) ValidateTribute(player string, selected []cards.Card) error {
	if len(selected) != 1 {
		return gameerr.IllegalPlay("select one card")
	}
	return nil
}

func (s *fakeSession) IsPassOK() bool             { return len(s.last) > 0 }
func (s *fakeSession) Tributes() rules.TributeSet { return s.next.Clone() }
func (s *fakeSession) CurrentPlayer() int         { return s.current }
func (s *fakeSession) LastPlay() []cards.Card     { return s.last }
func (s *fakeSession) State() rules.State         { return s.state }
func (s *fakeSession) Close()                     { s.closed = true }

func (s *fakeSession) Seats() []rules.Seat {
	out := make([]rules.Seat, len(s.players))
	for i, p := range s.players {
		out[i] = rules.Seat{Username: p, HandSize: len(s.hands[p])}
	}
	return out
}

func (s *fakeSession) Hand(player string) []cards.Card {
	h, ok := s.hands[player]
	if !ok {
		return nil
	}
	return cards.Clone(h)
}

type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession
	deals    []rules.Deal
	// next is the tribute set every created session reports when finished.
	next rules.TributeSet
	// err, when set, fails every NewSession call.
	err error
}

func (f *fakeFactory) NewSession(d rules.Deal) (rules.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSession{
		players:  slices.Clone(d.Players),
		hands:    make(map[string][]cards.Card, len(d.Players)),
		tributes: d.Tributes.Clone(),
		next:     f.next.Clone(),
	}
	for i, p := range d.Players {
		s.hands[p] = cards.Clone(d.Hands[i])
	}
	f.sessions = append(f.sessions, s)
	f.deals = append(f.deals, d)
	return s, nil
}

func (f *fakeFactory) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFactory) last() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[len(f.sessions)-1]
}

type nopTransport struct{}

func (nopTransport) WriteMessage([]byte) error { return nil }
func (nopTransport) Ping() error               { return nil }
func (nopTransport) Close() error              { return nil }

func newRoom(t *testing.T, f *fakeFactory) *room.Room {
	t.Helper()
	return room.New(room.Options{ID: "1", NumDecks: 1, Factory: f, Source: rng.NewSeededSource(7)})
}

func newConn(t *testing.T) *session.Conn {
	t.Helper()
	c := session.NewConn(nopTransport{}, 16, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func join(t *testing.T, r *room.Room, name string) identity.Token {
	t.Helper()
	res, _, err := r.Join(identity.None, name)
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return res.UID
}

// messagesFor returns the message types delivered to tok, in order.
func messagesFor(out room.Outbox, tok identity.Token) []string {
	var types []string
	for _, d := range out.Deliveries {
		if d.Token == tok {
			types = append(types, d.Message.MessageType())
		}
	}
	return types
}
