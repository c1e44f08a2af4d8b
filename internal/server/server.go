// Package server exposes a participant's health, status snapshot and
// Prometheus metrics over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/danmuck/tdmalink/internal/auth"
	"github.com/danmuck/tdmalink/internal/node"
	"github.com/danmuck/tdmalink/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 2 * time.Second

// StatusSource is anything that publishes a node snapshot.
type StatusSource interface {
	Status() node.Status
}

type Option func(*Server)

// WithAuth requires a bearer token accepted by v on every route but /health.
func WithAuth(v auth.Validator) Option {
	return func(s *Server) { s.auth = v }
}

type Server struct {
	name     string
	addr     string
	router   *gin.Engine
	logger   zerolog.Logger
	sources  map[string]StatusSource
	auth     auth.Validator
	appeared time.Time
}

// New builds the router. sources maps a role name to its node; more than one
// entry is used when both ends of a loopback link run in one process.
func New(name, addr string, sources map[string]StatusSource, logger zerolog.Logger, opts ...Option) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.Instrument(name, logger))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		name:     name,
		addr:     addr,
		router:   r,
		logger:   logger,
		sources:  sources,
		appeared: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth != nil {
		r.Use(auth.Require(s.auth, logger, "/health"))
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine { return s.router }

func (s *Server) names() []string {
	out := make([]string, 0, len(s.sources))
	for name := range s.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Serve listens on the configured address until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx ends, then shuts down gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("server.Serve listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("server.Serve stopped")
	return nil
}
