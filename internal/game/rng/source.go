// Package rng provides the randomness sources used for identity tokens, room
// ids, and deck shuffles.
package rng

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand/v2"
	"sync"
)

// Source is a randomness provider.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
	// Int63n returns a random int64 in [0, n).
	//
	// Precondition: n > 0.
	Int63n(n int64) int64
}

// cryptoSource implements Source using crypto/rand.
//
// Invariant: all values are uniformly distributed in [0, n).
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
func NewCryptoSource() Source {
	return cryptoSource{}
}

// Intn returns a cryptographically secure random int in [0, n).
//
// Panics with "rng: Intn called with n <= 0" if n <= 0, and with
// "rng: crypto/rand failure: <err>" if crypto/rand fails.
func (c cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("rng: Intn called with n <= 0")
	}
	return int(c.Int63n(int64(n)))
}

// Int63n returns a cryptographically secure random int64 in [0, n).
func (cryptoSource) Int63n(n int64) int64 {
	if n <= 0 {
		panic("rng: Int63n called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		panic("rng: crypto/rand failure: " + err.Error())
	}
	return val.Int64()
}

// seededSource is a deterministic Source for tests and replays.
type seededSource struct {
	mu sync.Mutex
	r  *mrand.Rand
}

// NewSeededSource returns a deterministic Source. Two sources built from the
// same seed produce the same sequence.
func NewSeededSource(seed uint64) Source {
	return &seededSource{r: mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

func (s *seededSource) Int63n(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Int64N(n)
}

// Shuffle permutes n elements in place with Fisher-Yates, drawing from src.
//
// Postcondition: swap is called at most n-1 times.
func Shuffle(src Source, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		swap(i, j)
	}
}
