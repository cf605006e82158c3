package main

import (
	"fmt"
	"time"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/daguai/internal/config"
	"github.com/cory-johannsen/daguai/internal/events"
	"github.com/cory-johannsen/daguai/internal/frontend/httpapi"
	"github.com/cory-johannsen/daguai/internal/frontend/ws"
	"github.com/cory-johannsen/daguai/internal/game/rng"
	"github.com/cory-johannsen/daguai/internal/game/room"
	"github.com/cory-johannsen/daguai/internal/game/rules"
	"github.com/cory-johannsen/daguai/internal/game/session"
	"github.com/cory-johannsen/daguai/internal/gameserver"
	"github.com/cory-johannsen/daguai/internal/scripting"
)

// App holds the wired components main drives.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Registry    *room.Registry
	Connections *gameserver.ConnectionManager
	HTTP        *httpapi.Server
	WS          *ws.Handler
	Stream      *gameserver.StreamService
}

// ProviderSet builds an App from a Config and a logger.
var ProviderSet = wire.NewSet(
	provideRules,
	rng.NewCryptoSource,
	provideRegistryConfig,
	providePublisher,
	room.NewRegistry,
	session.NewManager,
	provideConnectionManager,
	provideServiceConfig,
	gameserver.NewService,
	gameserver.NewDispatcher,
	gameserver.NewStreamService,
	provideWSHandler,
	provideHTTPServer,
	wire.Struct(new(App), "*"),
)

func provideRules(cfg config.Config, logger *zap.Logger) (rules.Factory, error) {
	var (
		m   *scripting.Manifest
		err error
	)
	if cfg.Rules.Manifest != "" {
		m, err = scripting.LoadManifest(cfg.Rules.Manifest)
	} else {
		m, err = scripting.BuiltinManifest(cfg.Rules.Builtin)
	}
	if err != nil {
		return nil, fmt.Errorf("loading ruleset: %w", err)
	}
	if cfg.Rules.InstructionLimit > 0 {
		m.InstructionLimit = cfg.Rules.InstructionLimit
	}
	r, err := scripting.NewRules(m, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("ruleset loaded",
		zap.String("id", m.ID),
		zap.String("name", m.Name),
		zap.Int("instruction_limit", m.InstructionLimit),
	)
	return r, nil
}

func provideRegistryConfig(cfg config.Config) room.RegistryConfig {
	return room.RegistryConfig{
		InactivityTimeout: cfg.Rooms.InactivityTimeout,
		DefaultDecks:      cfg.Rooms.DefaultDecks,
		MaxDecks:          cfg.Rooms.MaxDecks,
	}
}

func providePublisher(cfg config.Config, logger *zap.Logger) (events.Publisher, func(), error) {
	p, err := events.New(events.Config{
		URL:           cfg.Events.NATSURL,
		SubjectPrefix: cfg.Events.SubjectPrefix,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := p.Close(); err != nil {
			logger.Warn("closing event publisher", zap.Error(err))
		}
	}
	return p, cleanup, nil
}

func provideConnectionManager(registry *room.Registry, conns *session.Manager, cfg config.Config, logger *zap.Logger) *gameserver.ConnectionManager {
	return gameserver.NewConnectionManager(registry, conns, cfg.Rooms.SendBuffer, logger)
}

func provideServiceConfig(cfg config.Config) gameserver.ServiceConfig {
	return gameserver.ServiceConfig{ImplicitRooms: cfg.Server.RoomCreation == config.RoomCreationImplicit}
}

func provideWSHandler(cfg config.Config, d *gameserver.Dispatcher, logger *zap.Logger) *ws.Handler {
	return ws.NewHandler(ws.Config{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    idleTimeout(cfg.Rooms.HeartbeatInterval),
	}, d, logger)
}

// idleTimeout allows two heartbeat periods of silence, so a bound socket that
// answers every ping never trips the read deadline.
func idleTimeout(heartbeat time.Duration) time.Duration {
	return 2 * heartbeat
}

func provideHTTPServer(cfg config.Config, svc *gameserver.Service, h *ws.Handler, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(cfg.HTTP, svc, h, logger)
}
