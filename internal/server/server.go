// Package server exposes a connected radio over a small HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/hxctl/internal/device"
	"github.com/danmuck/hxctl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const Version = "0.1.0"

type Options struct {
	Name        string
	Addr        string
	CorsOrigins []string
	// CycleTimeout bounds one read or write cycle started over HTTP.
	CycleTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Name:         "hxctl",
		Addr:         "127.0.0.1:9870",
		CorsOrigins:  []string{"http://localhost:3000"},
		CycleTimeout: 2 * time.Minute,
	}
}

type Server struct {
	opts     Options
	manager  *device.Manager
	router   *gin.Engine
	appeared time.Time
	logger   zerolog.Logger
}

func New(opts Options, manager *device.Manager) *Server {
	def := DefaultOptions()
	if opts.Name == "" {
		opts.Name = def.Name
	}
	if opts.Addr == "" {
		opts.Addr = def.Addr
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = def.CycleTimeout
	}
	observability.RegisterMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	s := &Server{
		opts:     opts,
		manager:  manager,
		router:   r,
		appeared: time.Now(),
		logger:   log.With().Str("component", "server").Logger(),
	}
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.logger, s.binding))
	r.Use(observability.RequestMetricsMiddleware())
	if len(opts.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: opts.CorsOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) binding() (string, string) {
	sess := s.manager.Session()
	model := ""
	if l := sess.Layout(); l != nil {
		model = l.Model
	}
	return sess.ID(), model
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("server.ListenAndServe listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
