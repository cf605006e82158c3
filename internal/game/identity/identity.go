// Package identity issues the bearer tokens that identify players and
// spectators within a room.
package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cory-johannsen/daguai/internal/game/rng"
)

// MaxToken is the largest token ever issued. It keeps tokens exactly
// representable as JavaScript numbers on the client side.
const MaxToken = 1<<53 - 1

// Token is an opaque identity. The zero value means "no identity presented".
type Token int64

// None is the absent token.
const None Token = 0

// Valid reports whether t could have been issued by an Allocator.
func (t Token) Valid() bool {
	return t > 0 && t <= MaxToken
}

// String returns the decimal form.
func (t Token) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// UnmarshalJSON accepts a JSON number or a numeric string. Empty strings and
// null decode to None.
func (t *Token) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = None
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := Parse(s)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identity: token must be a number: %w", err)
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("identity: token must be an integer: %w", err)
	}
	*t = Token(v)
	return nil
}

// Parse converts a decimal string into a Token. The empty string yields None.
func Parse(s string) (Token, error) {
	if s == "" {
		return None, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return None, fmt.Errorf("identity: parsing token %q: %w", s, err)
	}
	return Token(v), nil
}

// Membership reports whether a token is already in use in a room, as either a
// player or a spectator.
type Membership interface {
	Known(t Token) bool
}

// MembershipFunc adapts a function to Membership.
type MembershipFunc func(Token) bool

// Known calls f.
func (f MembershipFunc) Known(t Token) bool { return f(t) }

// Allocator draws collision-free tokens.
type Allocator struct {
	src rng.Source
}

// NewAllocator returns an Allocator drawing from src.
//
// Precondition: src must be non-nil.
func NewAllocator(src rng.Source) *Allocator {
	return &Allocator{src: src}
}

// Allocate returns a random token in [1, MaxToken] that m does not know.
// Collisions are resampled.
//
// Precondition: the caller holds whatever lock guards m.
// Postcondition: !m.Known(result) && result.Valid().
func (a *Allocator) Allocate(m Membership) Token {
	for {
		t := Token(a.src.Int63n(MaxToken) + 1)
		if !m.Known(t) {
			return t
		}
	}
}

// Rejoin accepts a presented token that m already knows and reports true.
// Any other token, including None, is treated as a fresh join: a new token
// is allocated and false is returned. Ownership of a presented token is never
// proven.
func (a *Allocator) Rejoin(m Membership, presented Token) (Token, bool) {
	if presented.Valid() && m.Known(presented) {
		return presented, true
	}
	return a.Allocate(m), false
}
