// Package main runs the room coordination server: the HTTP API and WebSocket
// gateway on one listener, the optional gRPC stream gateway, and the
// background heartbeat and eviction sweeps.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/daguai/internal/config"
	"github.com/cory-johannsen/daguai/internal/gameserver"
	"github.com/cory-johannsen/daguai/internal/observability"
	"github.com/cory-johannsen/daguai/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file; empty uses defaults and environment")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "daguai")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Logging.Format == "json" {
		gin.SetMode(gin.ReleaseMode)
	}

	app, cleanup, err := InitializeApp(cfg, logger)
	if err != nil {
		logger.Fatal("initializing server", zap.Error(err))
	}
	defer cleanup()

	lc := server.NewLifecycle(logger)
	lc.Add("maintenance", maintenance(app))
	lc.Add("http", &server.FuncService{
		StartFn: app.HTTP.ListenAndServe,
		StopFn: func(ctx context.Context) {
			app.HTTP.Shutdown(ctx)
			app.Connections.CloseAll()
			app.WS.Wait()
		},
	})
	if cfg.GRPC.Enabled {
		svc, err := streamService(app)
		if err != nil {
			logger.Fatal("starting grpc gateway", zap.Error(err))
		}
		lc.Add("grpc", svc)
	}

	logger.Info("server initialized",
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.Bool("grpc_enabled", cfg.GRPC.Enabled),
		zap.String("room_creation", cfg.Server.RoomCreation),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lc.Run(context.Background()); err != nil {
		logger.Error("server exited with error", zap.Error(err))
	}
}

// maintenance runs the heartbeat and idle-room sweeps until stopped.
func maintenance(app *App) server.Service {
	ctx, cancel := context.WithCancel(context.Background())
	heartbeat := gameserver.NewTicker(app.Config.Rooms.HeartbeatInterval)
	heartbeat.Register("heartbeat", app.Connections.Heartbeat)

	sweep := gameserver.NewTicker(app.Config.Rooms.SweepInterval)
	sweep.Register("evict", func(ctx context.Context) {
		if ids := app.Registry.Sweep(ctx); len(ids) > 0 {
			app.Logger.Info("evicted idle rooms", zap.Strings("room_ids", ids))
		}
	})

	done := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			defer close(done)
			go heartbeat.Run(ctx)
			sweep.Run(ctx)
			return nil
		},
		StopFn: func(stopCtx context.Context) {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
		},
	}
}

func streamService(app *App) (server.Service, error) {
	lis, err := net.Listen("tcp", app.Config.GRPC.Addr())
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", app.Config.GRPC.Addr(), err)
	}
	srv := grpc.NewServer()
	app.Stream.Register(srv)

	return &server.FuncService{
		StartFn: func() error {
			app.Logger.Info("grpc gateway listening", zap.String("addr", lis.Addr().String()))
			return srv.Serve(lis)
		},
		StopFn: func(ctx context.Context) {
			app.Connections.CloseAll()
			stopped := make(chan struct{})
			go func() {
				srv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				srv.Stop()
			}
		},
	}, nil
}
