package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/compozy/techrag/engine/agent"
	"github.com/compozy/techrag/engine/infra/monitoring"
	"github.com/compozy/techrag/pkg/config"
	"github.com/compozy/techrag/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	httpReadTimeout       = 15 * time.Second
	httpIdleTimeout       = 60 * time.Second
	serverShutdownTimeout = 5 * time.Second
	maxQuestionBytes      = 1 << 16
)

// Answerer answers one question per call.
type Answerer interface {
	Ask(ctx context.Context, question string) (*agent.Answer, error)
}

// SummaryReader reports aggregate metrics across sessions.
type SummaryReader interface {
	AggregateSummary(ctx context.Context) (agent.Summary, error)
}

// Dependencies are the services the HTTP surface exposes. Answerer is required.
type Dependencies struct {
	Answerer   Answerer
	Summary    SummaryReader
	Monitoring *monitoring.Service
}

type Server struct {
	config     *config.ServerConfig
	deps       Dependencies
	router     *gin.Engine
	httpServer *http.Server
}

func NewServer(ctx context.Context, cfg *config.ServerConfig, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: configuration is required")
	}
	if deps.Answerer == nil {
		return nil, errors.New("server: answerer is required")
	}
	s := &Server{config: cfg, deps: deps}
	s.router = s.buildRouter(logger.FromContext(ctx))
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Run serves until ctx is cancelled or the listener fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	writeTimeout := s.config.Timeout
	if writeTimeout > 0 {
		writeTimeout += 5 * time.Second
	}
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: httpReadTimeout,
		ReadTimeout:       httpReadTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       httpIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", s.Addr())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	return s.shutdown(context.WithoutCancel(ctx))
}

func (s *Server) shutdown(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, serverShutdownTimeout)
	defer cancel()
	var errs []error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if s.deps.Monitoring != nil {
		if err := s.deps.Monitoring.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("monitoring shutdown: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info("HTTP server stopped")
	return nil
}
