// Package api serves stored runs and live simulations over HTTP. Runs are
// created and listed with JSON endpoints under /v1; /v1/stream upgrades to
// a websocket that emits one message per simulated step.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nvandessel/tradernet/internal/config"
	"github.com/nvandessel/tradernet/internal/logging"
	"github.com/nvandessel/tradernet/internal/ratelimit"
	"github.com/nvandessel/tradernet/internal/store"
)

// Config configures a Server.
type Config struct {
	// Base is the configuration that run requests override.
	Base *config.Config

	Store  store.RunStore
	Logger *slog.Logger

	// Limiter throttles run creation per client IP. Nil uses 30 per minute
	// with a burst of 5.
	Limiter *ratelimit.Limiter

	// Debug puts gin in debug mode.
	Debug bool
}

// Server is the HTTP API.
type Server struct {
	engine  *gin.Engine
	store   store.RunStore
	base    *config.Config
	logger  *slog.Logger
	limiter *ratelimit.Limiter

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// NewServer builds the router. The store stays owned by the caller.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("run store is required")
	}
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:  gin.New(),
		store:   cfg.Store,
		base:    cfg.Base,
		logger:  cfg.Logger,
		limiter: cfg.Limiter,
	}
	if s.base == nil {
		s.base = config.Default()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.limiter == nil {
		s.limiter = ratelimit.PerMinute(30, 5)
	}

	s.engine.Use(gin.Recovery(), s.requestLogger(), corsLocalhost())
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	v1 := s.engine.Group("/v1")
	v1.GET("/health", s.getHealth)

	v1.GET("/runs", s.listRuns)
	v1.POST("/runs", s.rateLimit(), s.createRun)
	v1.GET("/runs/:id", s.getRun)
	v1.DELETE("/runs/:id", s.deleteRun)
	v1.GET("/runs/:id/steps", s.getSteps)
	v1.GET("/runs/:id/graph", s.getGraph)
	v1.GET("/runs/:id/influence", s.getInfluence)

	v1.GET("/stream", s.rateLimit(), s.stream)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Addr returns the address the server is listening on, or "" before
// ListenAndServe has bound its listener.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. A clean shutdown returns nil.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("api listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestLogger logs every request at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// rateLimit refuses requests from a client IP that has run out of tokens.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !s.limiter.Allow(key) {
			wait := s.limiter.RetryAfter(key)
			c.Header("Retry-After", fmt.Sprintf("%d", int(wait.Seconds())+1))
			abortError(c, http.StatusTooManyRequests, ratelimit.ErrLimited)
			return
		}
		c.Next()
	}
}

// corsLocalhost allows browser clients served from a local origin.
func corsLocalhost() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if isLocalOrigin(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func isLocalOrigin(origin string) bool {
	for _, prefix := range []string{"http://127.0.0.1:", "http://localhost:"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}
