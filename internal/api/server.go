// Package api exposes the orchestrator's imperative operations over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfabric/omsflow/internal/oms"
)

// Config holds the HTTP server settings.
type Config struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Server serves the order control API.
type Server struct {
	cfg    Config
	orch   *oms.Orchestrator
	engine *gin.Engine
	http   *http.Server
	log    zerolog.Logger
}

// NewServer builds the router around the orchestrator.
func NewServer(cfg Config, orch *oms.Orchestrator) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:  cfg,
		orch: orch,
		log:  log.With().Str("component", "api").Logger(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	engine.Use(cors.New(corsCfg))

	s.engine = engine
	s.registerRoutes()
	return s
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}

// Start listens in the background. Errors other than a clean shutdown are
// reported through errCh.
func (s *Server) Start(errCh chan<- error) {
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.engine,
	}
	s.log.Info().Int("port", s.cfg.Port).Msg("API server listening")
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server failed: %w", err)
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
