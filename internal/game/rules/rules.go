// Package rules is the contract between a room and the rules engine that
// judges plays. The room never inspects card combinations itself; every rule
// failure comes back as an opaque message wrapped as gameerr.KindIllegalPlay.
package rules

import (
	"github.com/cory-johannsen/daguai/internal/game/cards"
)

// PlayType classifies a validated play. PlayPass is the only value the room
// interprets.
type PlayType int

// PlayPass is a pass.
const PlayPass PlayType = 0

// PlayDescriptor is the result of a successful validation.
type PlayDescriptor struct {
	Play  PlayType
	Cards []cards.Card
}

// State is the session outcome. Any value other than InProgress is terminal.
type State int

const (
	InProgress State = 0
	TeamOneWon State = 1
	TeamTwoWon State = 2
)

// Terminal reports whether the match is over.
func (s State) Terminal() bool {
	return s != InProgress
}

// AdvanceResult is returned by a committed play.
type AdvanceResult struct {
	State State
}

// Tribute is one pre-deal card exchange obligation. Giver sends a card to
// Receiver, who then returns one.
type Tribute struct {
	Giver        string `json:"giver"`
	Receiver     string `json:"receiver"`
	GiverSent    bool   `json:"giverSent"`
	ReceiverSent bool   `json:"receiverSent"`
}

// Settled reports whether both halves of the exchange happened.
func (t Tribute) Settled() bool {
	return t.GiverSent && t.ReceiverSent
}

// TributeSet is the set of obligations carried from one match into the next.
type TributeSet []Tribute

// Complete reports whether every obligation is settled. An empty set is complete.
func (ts TributeSet) Complete() bool {
	for _, t := range ts {
		if !t.Settled() {
			return false
		}
	}
	return true
}

// Summary renders one line per half-exchange, in obligation order.
func (ts TributeSet) Summary() []string {
	out := make([]string, 0, len(ts)*2)
	for _, t := range ts {
		out = append(out,
			t.Giver+" sent "+t.Receiver+" a card",
			t.Receiver+" returned "+t.Giver+" a card",
		)
	}
	return out
}

// Clone returns an independent copy.
func (ts TributeSet) Clone() TributeSet {
	if ts == nil {
		return nil
	}
	out := make(TributeSet, len(ts))
	copy(out, ts)
	return out
}

// TributeResult is returned by SendTribute. Receiver is empty when no hand
// other than the sender's changed.
type TributeResult struct {
	Receiver string
	NewHand  []cards.Card
	Tributes TributeSet
}

// Seat is a player's public state as exposed to every recipient.
type Seat struct {
	Username   string       `json:"username"`
	HandSize   int          `json:"handSize"`
	LastPlayed []cards.Card `json:"lastPlayed"`
}

// Deal is the input for a new match: usernames in turn order and their hands.
type Deal struct {
	Players  []string
	Hands    [][]cards.Card
	Tributes TributeSet
}

// Session is one match. Implementations need not be safe for concurrent use;
// the owning room serializes every call.
type Session interface {
	// Validate checks a play without committing it.
	Validate(player string, play []cards.Card) (PlayDescriptor, error)
	// Advance commits a play or pass and moves the turn.
	Advance(player string, play []cards.Card) (AdvanceResult, error)
	// SendTribute exchanges tribute cards during the pre-deal tribute phase.
	SendTribute(player string, selected []cards.Card) (TributeResult, error)
	// ValidateTribute checks a tribute selection without committing it.
	ValidateTribute(player string, selected []cards.Card) error
	// IsPassOK reports whether the current player may pass.
	IsPassOK() bool
	// Tributes returns the obligations produced by the finished match.
	Tributes() TributeSet

	// CurrentPlayer is the index into the seat order whose turn it is.
	CurrentPlayer() int
	// LastPlay is the last accepted non-pass play.
	LastPlay() []cards.Card
	// Seats returns public per-player state in turn order.
	Seats() []Seat
	// Hand returns player's private hand, or nil for an unknown player.
	Hand(player string) []cards.Card
	// State returns the match outcome so far.
	State() State
	// Close releases engine resources. The session is unusable afterwards.
	Close()
}

// Factory creates sessions for a room.
type Factory interface {
	NewSession(deal Deal) (Session, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(Deal) (Session, error)

// NewSession calls f.
func (f FactoryFunc) NewSession(deal Deal) (Session, error) { return f(deal) }
