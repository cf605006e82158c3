package gameserver_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/daguai/internal/events"
	"github.com/cory-johannsen/daguai/internal/game/rng"
	"github.com/cory-johannsen/daguai/internal/game/room"
	"github.com/cory-johannsen/daguai/internal/game/session"
	"github.com/cory-johannsen/daguai/internal/gameserver"
	"github.com/cory-johannsen/daguai/internal/scripting"
)

const inactivity = 10 * time.Minute

type harness struct {
	svc        *gameserver.Service
	dispatcher *gameserver.Dispatcher
	registry   *room.Registry
	conns      *gameserver.ConnectionManager
	now        time.Time
	clockMu    sync.Mutex
}

func newHarness(t *testing.T, implicit bool) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	m, err := scripting.BuiltinManifest("freeplay")
	require.NoError(t, err)
	ruleset, err := scripting.NewRules(m, logger)
	require.NoError(t, err)

	h := &harness{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	h.registry = room.NewRegistry(room.RegistryConfig{
		InactivityTimeout: inactivity,
		DefaultDecks:      1,
		MaxDecks:          4,
	}, ruleset, rng.NewSeededSource(3), events.Nop{}, logger)
	h.registry.SetClock(h.clock)
	h.conns = gameserver.NewConnectionManager(h.registry, session.NewManager(), 32, logger)
	h.svc = gameserver.NewService(gameserver.ServiceConfig{ImplicitRooms: implicit}, h.registry, h.conns, logger)
	h.dispatcher = gameserver.NewDispatcher(h.svc, logger)
	t.Cleanup(h.conns.CloseAll)
	return h
}

func (h *harness) clock() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	h.now = h.now.Add(d)
}

// recorder is a session.Transport that keeps every frame written to it.
type recorder struct {
	mu      sync.Mutex
	frames  [][]byte
	pings   int
	failing bool
}

func (r *recorder) WriteMessage(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("broken pipe")
	}
	r.frames = append(r.frames, data)
	return nil
}

func (r *recorder) Ping() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pings++
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) pingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pings
}

func (r *recorder) messages() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]any, 0, len(r.frames))
	for _, f := range r.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// waitFor blocks until the recorder has a message of the given type and returns it.
func (r *recorder) waitFor(t *testing.T, typ string) map[string]any {
	t.Helper()
	var found map[string]any
	require.Eventually(t, func() bool {
		for _, m := range r.messages() {
			if m["type"] == typ {
				found = m
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no %q message", typ)
	return found
}

func frame(t *testing.T, v map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
