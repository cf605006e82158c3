package identity_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/daguai/internal/game/identity"
	"github.com/cory-johannsen/daguai/internal/game/rng"
)

// scriptedSource replays fixed values so collisions can be forced.
type scriptedSource struct {
	values []int64
	next   int
}

func (s *scriptedSource) Intn(n int) int { return int(s.Int63n(int64(n))) }

func (s *scriptedSource) Int63n(n int64) int64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v % n
}

func TestAllocate_ResamplesOnCollision(t *testing.T) {
	src := &scriptedSource{values: []int64{4, 4, 9, 41}}
	a := identity.NewAllocator(src)
	taken := map[identity.Token]bool{5: true, 10: true}

	got := a.Allocate(identity.MembershipFunc(func(t identity.Token) bool { return taken[t] }))
	assert.Equal(t, identity.Token(42), got)
	assert.Equal(t, 4, src.next)
}

func TestRejoin_KnownTokenAcceptedAsIs(t *testing.T) {
	a := identity.NewAllocator(rng.NewSeededSource(1))
	known := identity.MembershipFunc(func(t identity.Token) bool { return t == 77 })

	got, ok := a.Rejoin(known, 77)
	assert.True(t, ok)
	assert.Equal(t, identity.Token(77), got)
}

func TestRejoin_UnknownTokenGetsFreshAllocation(t *testing.T) {
	a := identity.NewAllocator(rng.NewSeededSource(1))
	known := identity.MembershipFunc(func(t identity.Token) bool { return t == 77 })

	got, ok := a.Rejoin(known, 12345)
	assert.False(t, ok)
	assert.True(t, got.Valid())
	assert.NotEqual(t, identity.Token(77), got)
}

func TestToken_UnmarshalJSON(t *testing.T) {
	var body struct {
		UID identity.Token `json:"uid"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"uid": 9007199254740991}`), &body))
	assert.Equal(t, identity.Token(identity.MaxToken), body.UID)

	require.NoError(t, json.Unmarshal([]byte(`{"uid": "123"}`), &body))
	assert.Equal(t, identity.Token(123), body.UID)

	require.NoError(t, json.Unmarshal([]byte(`{"uid": ""}`), &body))
	assert.Equal(t, identity.None, body.UID)

	assert.Error(t, json.Unmarshal([]byte(`{"uid": "abc"}`), &body))
	assert.Error(t, json.Unmarshal([]byte(`{"uid": 1.5}`), &body))
}

// Allocated tokens are always disjoint from both the player and spectator sets.
func TestProperty_AllocateDisjointFromMembers(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		// A tiny token space forces frequent collisions.
		players := rapid.SliceOf(rapid.Int64Range(1, 16)).Draw(rt, "players")
		spectators := rapid.SliceOf(rapid.Int64Range(1, 16)).Draw(rt, "spectators")
		taken := make(map[identity.Token]bool)
		for _, p := range players {
			taken[identity.Token(p)] = true
		}
		for _, s := range spectators {
			taken[identity.Token(s)] = true
		}
		if len(taken) >= 16 {
			rt.Skip("token space exhausted")
		}

		src := &boundedSource{inner: rng.NewSeededSource(rapid.Uint64().Draw(rt, "seed")), bound: 16}
		a := identity.NewAllocator(src)
		got := a.Allocate(identity.MembershipFunc(func(t identity.Token) bool { return taken[t] }))
		if taken[got] {
			rt.Fatalf("allocated token %d collides with a member", got)
		}
		if !got.Valid() {
			rt.Fatalf("allocated invalid token %d", got)
		}
	})
}

// boundedSource squeezes draws into [0, bound) to force collisions.
type boundedSource struct {
	inner rng.Source
	bound int64
}

func (b *boundedSource) Intn(n int) int { return b.inner.Intn(n) }

func (b *boundedSource) Int63n(int64) int64 { return b.inner.Int63n(b.bound) }
