// Package httpapi is the request/response gateway, built on gin. It also
// mounts the WebSocket endpoint so both share one listener.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cory-johannsen/daguai/internal/config"
	"github.com/cory-johannsen/daguai/internal/gameserver"
)

// Server serves the HTTP API.
type Server struct {
	cfg     config.HTTPConfig
	service *gameserver.Service
	engine  *gin.Engine
	logger  *zap.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewServer builds the router. ws, when non-nil, is mounted at /ws.
//
// Precondition: service and logger must be non-nil.
// Postcondition: Returns a Server ready for ListenAndServe.
func NewServer(cfg config.HTTPConfig, service *gameserver.Service, ws http.Handler, logger *zap.Logger) *Server {
	s := &Server{cfg: cfg, service: service, logger: logger}
	s.engine = s.routes(ws)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

func (s *Server) routes(ws http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog)
	r.Use(cors.New(corsConfig(s.cfg.AllowedOrigins)))

	r.GET("/healthz", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/stats", s.stats)

	r.POST("/create-room", s.createRoom)
	r.POST("/join", s.join)
	r.POST("/spectate", s.spectate)
	r.GET("/players", s.players)
	r.GET("/game-state", s.gameState)
	r.POST("/start", s.start)
	r.POST("/leave", s.leave)

	if ws != nil {
		r.GET("/ws", gin.WrapH(ws))
	}
	return r
}

func (s *Server) accessLog(ctx *gin.Context) {
	start := time.Now()
	ctx.Next()
	s.logger.Debug("http request",
		zap.String("method", ctx.Request.Method),
		zap.String("path", ctx.FullPath()),
		zap.Int("status", ctx.Writer.Status()),
		zap.Duration("duration", time.Since(start)),
	)
}

// ListenAndServe serves until Shutdown is called.
//
// Postcondition: returns nil after a graceful Shutdown.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}

	s.mu.Lock()
	s.srv, s.listener = srv, lis
	s.mu.Unlock()

	s.logger.Info("http server listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	s.logger.Info("http server stopped")
}

// Addr returns the bound address, or "" before ListenAndServe.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
