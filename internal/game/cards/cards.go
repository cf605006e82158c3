// Package cards models the physical cards dealt by a room: a standard 52-card
// deck plus two jokers, repeated once per configured deck.
package cards

import (
	"fmt"

	"github.com/cory-johannsen/daguai/internal/game/rng"
)

// Suit values. Jokers carry SuitNone.
const (
	SuitNone     = 0
	SuitClubs    = 1
	SuitDiamonds = 2
	SuitHearts   = 3
	SuitSpades   = 4
)

// Rank bounds. Values 1..13 run from three up to two; 14 and 15 are the
// black and red jokers.
const (
	MinValue   = 1
	MaxValue   = 13
	BlackJoker = 14
	RedJoker   = 15
)

// PerDeck is the number of cards in one deck including both jokers.
const PerDeck = 54

// Card is one physical card. DeckIndex tells identical cards from different
// decks apart.
type Card struct {
	Value     int `json:"value"`
	Suit      int `json:"suit"`
	DeckIndex int `json:"deckIndex"`
}

// IsJoker reports whether c is either joker.
func (c Card) IsJoker() bool {
	return c.Value == BlackJoker || c.Value == RedJoker
}

// String returns a compact debugging form such as "13/4#0".
func (c Card) String() string {
	return fmt.Sprintf("%d/%d#%d", c.Value, c.Suit, c.DeckIndex)
}

// NewDeck returns numDecks ordered copies of the 54-card deck.
//
// Precondition: numDecks >= 1.
// Postcondition: len(result) == numDecks * PerDeck.
func NewDeck(numDecks int) []Card {
	if numDecks < 1 {
		numDecks = 1
	}
	deck := make([]Card, 0, numDecks*PerDeck)
	for d := 0; d < numDecks; d++ {
		for v := MinValue; v <= MaxValue; v++ {
			for s := SuitClubs; s <= SuitSpades; s++ {
				deck = append(deck, Card{Value: v, Suit: s, DeckIndex: d})
			}
		}
		deck = append(deck,
			Card{Value: BlackJoker, Suit: SuitNone, DeckIndex: d},
			Card{Value: RedJoker, Suit: SuitNone, DeckIndex: d},
		)
	}
	return deck
}

// Shuffle permutes deck in place using src.
func Shuffle(deck []Card, src rng.Source) {
	rng.Shuffle(src, len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
}

// Deal distributes deck round-robin across numHands hands in deck order, so
// hand i receives cards i, i+numHands, i+2*numHands, ...
//
// Precondition: numHands >= 1.
// Postcondition: every card appears in exactly one hand; hand sizes differ by at most one.
func Deal(deck []Card, numHands int) [][]Card {
	hands := make([][]Card, numHands)
	for i := range hands {
		hands[i] = make([]Card, 0, len(deck)/numHands+1)
	}
	for i, c := range deck {
		hands[i%numHands] = append(hands[i%numHands], c)
	}
	return hands
}

// Clone returns a copy of cs that shares no backing array with it. A nil
// input yields an empty, non-nil slice so JSON renders [] rather than null.
func Clone(cs []Card) []Card {
	out := make([]Card, len(cs))
	copy(out, cs)
	return out
}
