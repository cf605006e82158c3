package rng_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/daguai/internal/game/rng"
)

func TestCryptoSource_PanicsOnNonPositive(t *testing.T) {
	src := rng.NewCryptoSource()
	assert.PanicsWithValue(t, "rng: Intn called with n <= 0", func() { src.Intn(0) })
	assert.Panics(t, func() { src.Int63n(-1) })
}

func TestSeededSource_Deterministic(t *testing.T) {
	a := rng.NewSeededSource(42)
	b := rng.NewSeededSource(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Int63n(1<<53), b.Int63n(1<<53))
	}
}

func TestProperty_SourcesStayInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 1_000_000).Draw(rt, "n")
		for _, src := range []rng.Source{rng.NewCryptoSource(), rng.NewSeededSource(uint64(n))} {
			v := src.Intn(n)
			if v < 0 || v >= n {
				rt.Fatalf("Intn(%d) = %d out of range", n, v)
			}
		}
	})
}

func TestProperty_ShuffleIsPermutation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		xs := rapid.SliceOfDistinct(rapid.IntRange(0, 500), rapid.ID[int]).Draw(rt, "xs")
		seen := make(map[int]bool, len(xs))
		for _, x := range xs {
			seen[x] = true
		}
		rng.Shuffle(rng.NewSeededSource(7), len(xs), func(i, j int) { xs[i], xs[j] = xs[j], xs[i] })
		assert.Len(rt, xs, len(seen))
		for _, x := range xs {
			assert.True(rt, seen[x])
		}
	})
}
