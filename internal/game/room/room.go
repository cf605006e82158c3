// Package room holds the per-room state machine and the registry that owns
// every room. A Room serializes all of its mutations behind one mutex and
// never performs I/O while holding it: operations return an Outbox that the
// caller delivers after the lock is released.
package room

import (
	"html"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cory-johannsen/daguai/internal/events"
	"github.com/cory-johannsen/daguai/internal/game/cards"
	"github.com/cory-johannsen/daguai/internal/game/gameerr"
	"github.com/cory-johannsen/daguai/internal/game/identity"
	"github.com/cory-johannsen/daguai/internal/game/rng"
	"github.com/cory-johannsen/daguai/internal/game/rules"
	"github.com/cory-johannsen/daguai/internal/game/session"
	"github.com/cory-johannsen/daguai/internal/protocol"
)

// DefaultUsername is used when a join carries no username.
const DefaultUsername = "user"

// Phase is the session sub-lifecycle of a room.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseActive
	PhaseFinished
)

// String returns the wire name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return protocol.PhaseActive
	case PhaseFinished:
		return protocol.PhaseFinished
	default:
		return protocol.PhaseLobby
	}
}

// Delivery is one message addressed to one connection.
type Delivery struct {
	Token   identity.Token
	Conn    *session.Conn
	Message protocol.Message
}

// Outbox collects the side effects of an operation for delivery after the
// room lock is released.
type Outbox struct {
	Deliveries []Delivery
	Events     []events.Event
}

func (o *Outbox) add(tok identity.Token, c *session.Conn, msg protocol.Message) {
	o.Deliveries = append(o.Deliveries, Delivery{Token: tok, Conn: c, Message: msg})
}

func (o *Outbox) event(ev events.Event) {
	o.Events = append(o.Events, ev)
}

// Options configures a new Room.
type Options struct {
	ID       string
	NumDecks int
	Factory  rules.Factory
	Source   rng.Source
}

// Room is one shared game room.
type Room struct {
	id       string
	numDecks int
	factory  rules.Factory
	src      rng.Source
	alloc    *identity.Allocator

	// deliverMu orders deliveries; it is never taken while mu is held.
	deliverMu sync.Mutex

	mu               sync.Mutex
	players          []string
	identityToPlayer map[identity.Token]string
	spectators       map[identity.Token]struct{}
	connections      map[identity.Token]*session.Conn
	session          rules.Session
	finished         bool
	pendingTributes  rules.TributeSet
}

// New creates an empty room in the lobby phase.
//
// Precondition: opts.Factory and opts.Source must be non-nil; opts.ID non-empty.
// Postcondition: NumDecks is at least 1.
func New(opts Options) *Room {
	if opts.NumDecks < 1 {
		opts.NumDecks = 1
	}
	return &Room{
		id:               opts.ID,
		numDecks:         opts.NumDecks,
		factory:          opts.Factory,
		src:              opts.Source,
		alloc:            identity.NewAllocator(opts.Source),
		identityToPlayer: make(map[identity.Token]string),
		spectators:       make(map[identity.Token]struct{}),
		connections:      make(map[identity.Token]*session.Conn),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// NumDecks returns the deck configuration.
func (r *Room) NumDecks() int { return r.numDecks }

// known reports whether t is a player or spectator. Caller holds r.mu.
func (r *Room) known(t identity.Token) bool {
	if _, ok := r.identityToPlayer[t]; ok {
		return true
	}
	_, ok := r.spectators[t]
	return ok
}

func (r *Room) phase() Phase {
	switch {
	case r.session == nil:
		return PhaseLobby
	case r.finished:
		return PhaseFinished
	default:
		return PhaseActive
	}
}

func (r *Room) tokenOf(username string) (identity.Token, bool) {
	for t, name := range r.identityToPlayer {
		if name == username {
			return t, true
		}
	}
	return identity.None, false
}

func (r *Room) tributesPending() bool {
	return r.pendingTributes != nil && !r.pendingTributes.Complete()
}

func (r *Room) broadcast(out *Outbox, msg protocol.Message) {
	for t, c := range r.connections {
		out.add(t, c, msg)
	}
}

func (r *Room) sendTo(out *Outbox, t identity.Token, msg protocol.Message) {
	if c, ok := r.connections[t]; ok {
		out.add(t, c, msg)
	}
}

func (r *Room) broadcastProjections(out *Outbox) {
	if r.session == nil {
		return
	}
	for t, c := range r.connections {
		out.add(t, c, r.project(t))
	}
}

func (r *Room) broadcastError(out *Outbox, err error) {
	r.broadcast(out, protocol.NewError(gameerr.Message(err)))
}

func (r *Room) event(kind events.Kind) events.Event {
	return events.Event{Kind: kind, RoomID: r.id, Players: slices.Clone(r.players)}
}

func (r *Room) closeSession() {
	if r.session != nil {
		r.session.Close()
	}
	r.session = nil
	r.finished = false
}

// deal shuffles numDecks decks, deals them round-robin in roster order and
// opens a new session carrying tributes. pendingTributes is replaced only once
// the session exists. Caller holds r.mu.
func (r *Room) deal(tributes rules.TributeSet) error {
	deck := cards.NewDeck(r.numDecks)
	cards.Shuffle(deck, r.src)
	hands := cards.Deal(deck, len(r.players))
	s, err := r.factory.NewSession(rules.Deal{
		Players:  slices.Clone(r.players),
		Hands:    hands,
		Tributes: tributes.Clone(),
	})
	if err != nil {
		return gameerr.Internal(err, "could not create game")
	}
	r.closeSession()
	r.session = s
	r.pendingTributes = tributes.Clone()
	return nil
}

// uniqueUsername applies the collision rule: the smallest positive suffix not
// already in the roster.
func (r *Room) uniqueUsername(requested string) string {
	name := html.EscapeString(strings.TrimSpace(requested))
	if name == "" {
		name = DefaultUsername
	}
	if !slices.Contains(r.players, name) {
		return name
	}
	for n := 1; ; n++ {
		candidate := name + strconv.Itoa(n)
		if !slices.Contains(r.players, candidate) {
			return candidate
		}
	}
}

func (r *Room) removePlayer(out *Outbox, t identity.Token) {
	name, ok := r.identityToPlayer[t]
	if !ok {
		return
	}
	delete(r.identityToPlayer, t)
	r.players = slices.DeleteFunc(r.players, func(p string) bool { return p == name })
	r.broadcast(out, protocol.PlayerLeft(name))
}

// JoinResult is the identity issued by Join.
type JoinResult struct {
	UID      identity.Token `json:"uid"`
	Username string         `json:"username"`
}

// Join adds a player to the lobby. A token that already names a player is
// returned unchanged; a spectator token is promoted to player.
//
// Postcondition: on success result.UID maps to result.Username and is not a spectator.
func (r *Room) Join(presented identity.Token, username string) (JoinResult, Outbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out Outbox
	if r.session != nil {
		return JoinResult{}, out, gameerr.Conflict("game already in progress")
	}
	if name, ok := r.identityToPlayer[presented]; ok {
		return JoinResult{UID: presented, Username: name}, out, nil
	}

	tok, _ := r.alloc.Rejoin(identity.MembershipFunc(r.known), presented)
	if _, ok := r.spectators[tok]; ok {
		delete(r.spectators, tok)
		r.broadcast(&out, protocol.NewNumSpectators(len(r.spectators)))
	}

	name := r.uniqueUsername(username)
	r.players = append(r.players, name)
	r.identityToPlayer[tok] = name
	r.broadcast(&out, protocol.NewPlayer(name))
	return JoinResult{UID: tok, Username: name}, out, nil
}

// Spectate registers a read-only identity. A player token may only become a
// spectator in the lobby, leaving the roster.
func (r *Room) Spectate(presented identity.Token) (identity.Token, Outbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out Outbox
	if _, ok := r.spectators[presented]; ok {
		return presented, out, nil
	}

	tok := presented
	if _, isPlayer := r.identityToPlayer[presented]; isPlayer {
		if r.session != nil {
			return identity.None, out, gameerr.Conflict("cannot spectate while playing")
		}
		r.removePlayer(&out, presented)
	} else {
		tok = r.alloc.Allocate(identity.MembershipFunc(r.known))
	}

	r.spectators[tok] = struct{}{}
	r.broadcast(&out, protocol.NewNumSpectators(len(r.spectators)))
	return tok, out, nil
}

// Leave removes t as player and as spectator. Unknown tokens are a no-op.
func (r *Room) Leave(t identity.Token) Outbox {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out Outbox
	r.removePlayer(&out, t)
	if _, ok := r.spectators[t]; ok {
		delete(r.spectators, t)
		r.broadcast(&out, protocol.NewNumSpectators(len(r.spectators)))
	}
	return out
}

// Players returns the roster and whether a session exists.
func (r *Room) Players() ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.players), r.session != nil
}

// Start deals the first match. Only players[0] may start, and only with an
// even, non-zero number of players.
func (r *Room) Start(t identity.Token) (Outbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out Outbox
	if r.session != nil {
		return out, gameerr.Conflict("game already started")
	}
	if len(r.players) == 0 {
		return out, gameerr.Conflict("room has no players")
	}
	if name, ok := r.identityToPlayer[t]; !ok || name != r.players[0] {
		return out, gameerr.Unauthorized("only player one can start the game")
	}
	if len(r.players)%2 != 0 {
		return out, gameerr.Conflict("room must have an even number of players")
	}
	if err := r.deal(r.pendingTributes); err != nil {
		return out, err
	}
	out.event(r.event(events.MatchStarted))
	r.broadcastProjections(&out)
	return out, nil
}

// Check reports to the sender whether a play, or during the tribute phase a
// tribute selection, would be accepted. Failures are replies, not errors.
func (r *Room) Check(t identity.Token, hand []cards.Card) Outbox {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out Outbox
	name, ok := r.identityToPlayer[t]
	if !ok {
		r.sendTo(&out, t, protocol.NewCheckError(false, "not a player in this room"))
		return out
	}
	if r.phase() != PhaseActive {
		r.sendTo(&out, t, protocol.NewCheckError(false, "no game in progress"))
		return out
	}
	if r.tributesPending() {
		if err := r.session.ValidateTribute(name, hand); err != nil {
			r.sendTo(&out, t, protocol.NewCheckError(false, gameerr.Message(err)))
			return out
		}
		r.sendTo(&out, t, protocol.NewCheckOK(false, false))
		return out
	}

	passOK := r.session.IsPassOK()
	desc, err := r.session.Validate(name, hand)
	if err != nil {
		r.sendTo(&out, t, protocol.NewCheckError(passOK, gameerr.Message(err)))
		return out
	}
	r.sendTo(&out, t, protocol.NewCheckOK(passOK, desc.Play == rules.PlayPass))
	return out
}

// Play commits a play. Failures are both returned and broadcast to the room
// as an error event.
func (r *Room) Play(t identity.Token, hand []cards.Card) (Outbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out Outbox
	err := r.play(&out, t, hand)
	if err != nil {
		r.broadcastError(&out, err)
	}
	return out, err
}

func (r *Room) play(out *Outbox, t identity.Token, hand []cards.Card) error {
	name, ok := r.identityToPlayer[t]
	if !ok {
		return gameerr.Unauthorized("not a player in this room")
	}
	if r.phase() != PhaseActive {
		return gameerr.Conflict("no game in progress")
	}
	if r.tributesPending() {
		return gameerr.Conflict("tributes must be settled before playing")
	}
	res, err := r.session.Advance(name, hand)
	if err != nil {
		return err
	}
	if res.State.Terminal() {
		r.finished = true
		ev := r.event(events.MatchFinished)
		ev.Outcome = int(res.State)
		out.event(ev)
		r.broadcast(out, protocol.GameOver())
		return nil
	}
	r.broadcastProjections(out)
	return nil
}

// SendCard settles part of a tribute exchange. When the last obligation is
// settled every connection receives a tribute summary.
func (r *Room) SendCard(t identity.Token, selected []cards.Card) (Outbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out Outbox
	err := r.sendCard(&out, t, selected)
	if err != nil {
		r.broadcastError(&out, err)
	}
	return out, err
}

func (r *Room) sendCard(out *Outbox, t identity.Token, selected []cards.Card) error {
	name, ok := r.identityToPlayer[t]
	if !ok {
		return gameerr.Unauthorized("not a player in this room")
	}
	if r.phase() != PhaseActive {
		return gameerr.Conflict("no game in progress")
	}
	if !r.tributesPending() {
		return gameerr.Conflict("no tributes pending")
	}
	res, err := r.session.SendTribute(name, selected)
	if err != nil {
		return err
	}
	r.pendingTributes = res.Tributes.Clone()
	if res.Receiver != "" {
		if rt, ok := r.tokenOf(res.Receiver); ok {
			r.sendTo(out, rt, protocol.NewHandUpdate(res.NewHand))
		}
	}
	if r.pendingTributes.Complete() {
		summary := r.pendingTributes.Summary()
		r.pendingTributes = nil
		r.broadcastProjections(out)
		r.broadcast(out, protocol.NewTributeSummary(summary))
		return nil
	}
	r.broadcastProjections(out)
	return nil
}

// GetUpdate sends the caller a fresh projection. Without a session it does nothing.
func (r *Room) GetUpdate(t identity.Token) Outbox {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out Outbox
	if r.session != nil {
		r.sendTo(&out, t, r.project(t))
	}
	return out
}

// PlayAgain deals a new match with the same roster after a finished one,
// carrying the finished match's tribute obligations forward.
func (r *Room) PlayAgain(t identity.Token) (Outbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out Outbox
	err := r.playAgain(&out, t)
	if err != nil {
		r.broadcastError(&out, err)
	}
	return out, err
}

func (r *Room) playAgain(out *Outbox, t identity.Token) error {
	if _, ok := r.identityToPlayer[t]; !ok {
		return gameerr.Unauthorized("not a player in this room")
	}
	if r.phase() != PhaseFinished {
		return gameerr.Conflict("game is not finished")
	}
	tributes := r.session.Tributes()
	if len(tributes) == 0 || tributes.Complete() {
		tributes = nil
	}
	if err := r.deal(tributes); err != nil {
		return err
	}
	out.event(r.event(events.MatchStarted))
	r.broadcast(out, protocol.Reload())
	return nil
}

// Exit soft-resets the room: session, tributes, players, spectators and
// identities are cleared. Connections stay bound so they receive the reload.
// Any identity may trigger it.
func (r *Room) Exit() Outbox {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out Outbox
	r.closeSession()
	r.pendingTributes = nil
	r.players = nil
	r.identityToPlayer = make(map[identity.Token]string)
	r.spectators = make(map[identity.Token]struct{})
	out.event(r.event(events.RoomReset))
	r.broadcast(&out, protocol.Reload())
	return out
}

// Snapshot returns the personalized projection for t.
func (r *Room) Snapshot(t identity.Token) (protocol.Update, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.known(t) {
		return protocol.Update{}, gameerr.Unauthorized("not a member of this room")
	}
	if r.session == nil {
		return protocol.Update{}, gameerr.Conflict("no game in progress")
	}
	return r.project(t), nil
}

// Stats is a point-in-time summary for operators.
type Stats struct {
	ID          string `json:"roomId"`
	Phase       string `json:"phase"`
	Players     int    `json:"players"`
	Spectators  int    `json:"spectators"`
	Connections int    `json:"connections"`
	NumDecks    int    `json:"numDecks"`
}

// Stats returns a summary of the room.
func (r *Room) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		ID:          r.id,
		Phase:       r.phase().String(),
		Players:     len(r.players),
		Spectators:  len(r.spectators),
		Connections: len(r.connections),
		NumDecks:    r.numDecks,
	}
}

// Close releases the session. Connections are left to the caller.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeSession()
}
