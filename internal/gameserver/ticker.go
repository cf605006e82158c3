package gameserver

import (
	"context"
	"sync"
	"time"
)

// Ticker runs registered callbacks on a fixed interval. Callbacks run
// sequentially within the ticker's goroutine.
//
// Invariant: all callbacks are invoked at most once per tick interval.
type Ticker struct {
	interval time.Duration
	mu       sync.Mutex
	tasks    map[string]func(context.Context)
}

// NewTicker returns a ticker that fires every interval.
//
// Precondition: interval must be > 0.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		panic("gameserver.NewTicker: interval must be > 0")
	}
	return &Ticker{
		interval: interval,
		tasks:    make(map[string]func(context.Context)),
	}
}

// Register adds a named callback. Replaces any existing callback with that name.
func (t *Ticker) Register(name string, fn func(context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks[name] = fn
}

// Tick runs every registered callback once.
func (t *Ticker) Tick(ctx context.Context) {
	t.mu.Lock()
	callbacks := make([]func(context.Context), 0, len(t.tasks))
	for _, fn := range t.tasks {
		callbacks = append(callbacks, fn)
	}
	t.mu.Unlock()
	for _, fn := range callbacks {
		fn(ctx)
	}
}

// Run blocks, ticking until ctx is cancelled.
//
// Postcondition: all registered callbacks are invoked once per interval.
func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}
