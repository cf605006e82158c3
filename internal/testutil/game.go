// Package testutil provides test helpers: an in-memory game backend wired
// with the embedded ruleset and a WebSocket test client.
package testutil

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/daguai/internal/events"
	"github.com/cory-johannsen/daguai/internal/game/rng"
	"github.com/cory-johannsen/daguai/internal/game/room"
	"github.com/cory-johannsen/daguai/internal/game/session"
	"github.com/cory-johannsen/daguai/internal/gameserver"
	"github.com/cory-johannsen/daguai/internal/scripting"
)

// GameServer bundles a fully wired backend for gateway tests.
type GameServer struct {
	Service     *gameserver.Service
	Dispatcher  *gameserver.Dispatcher
	Registry    *room.Registry
	Connections *gameserver.ConnectionManager
}

// NewGameServer builds a backend running the built-in freeplay ruleset with
// a seeded shuffle.
//
// Postcondition: Returns a ready backend; all connections are closed on test cleanup.
func NewGameServer(t *testing.T, cfg gameserver.ServiceConfig) *GameServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	m, err := scripting.BuiltinManifest("freeplay")
	if err != nil {
		t.Fatalf("loading builtin ruleset: %v", err)
	}
	ruleset, err := scripting.NewRules(m, logger)
	if err != nil {
		t.Fatalf("compiling builtin ruleset: %v", err)
	}

	registry := room.NewRegistry(room.RegistryConfig{
		InactivityTimeout: 30 * time.Minute,
		DefaultDecks:      1,
		MaxDecks:          4,
	}, ruleset, rng.NewSeededSource(1), events.Nop{}, logger)
	conns := gameserver.NewConnectionManager(registry, session.NewManager(), 32, logger)
	svc := gameserver.NewService(cfg, registry, conns, logger)
	t.Cleanup(conns.CloseAll)

	return &GameServer{
		Service:     svc,
		Dispatcher:  gameserver.NewDispatcher(svc, logger),
		Registry:    registry,
		Connections: conns,
	}
}
