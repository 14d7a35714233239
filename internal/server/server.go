package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"awscqrs/pkg/logger"

	"github.com/gin-gonic/gin"
)

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	name       string
	logger     *logger.Logger
}

// New builds a gin engine with recovery installed. The app mode picks the
// gin mode; production runs in release mode.
func New(name, port, mode string, l *logger.Logger) *Server {
	switch mode {
	case ReleaseMode, logger.ProductionMode:
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	if l == nil {
		l = logger.GetGlobalLogger()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		name:   name,
		logger: l,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting the %s server on %s...", s.name, s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s server: %w", s.name, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Infof("Shutting down the %s server", s.name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s server shutdown: %w", s.name, err)
	}
	s.logger.Infof("%s server stopped gracefully", s.name)
	return nil
}
