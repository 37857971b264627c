package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/api/handlers"
	"visionpro-worker-go/internal/config"
	"visionpro-worker-go/internal/hub"
	"visionpro-worker-go/internal/metrics"
	"visionpro-worker-go/internal/stream"
)

type Server struct {
	cfg    *config.Config
	router *gin.Engine
	server *http.Server

	healthHandler *handlers.HealthHandler
	streamHandler *handlers.StreamHandler
	eventHandler  *handlers.EventHandler

	bus *hub.Hub
	met *metrics.Metrics
}

// Options carries the server's collaborators.
type Options struct {
	Registry  *stream.Registry
	Directory handlers.CameraDirectory
	Events    handlers.EventSource
	Hub       *hub.Hub
	Metrics   *metrics.Metrics
}

func NewServer(cfg *config.Config, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	return &Server{
		cfg:           cfg,
		router:        gin.New(),
		healthHandler: handlers.NewHealthHandler(cfg.WorkerID, cfg.Version),
		streamHandler: handlers.NewStreamHandler(opts.Registry, opts.Directory),
		eventHandler:  handlers.NewEventHandler(opts.Events),
		bus:           opts.Hub,
		met:           opts.Metrics,
	}
}

func (s *Server) Setup() {
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.router,
	}
}

func (s *Server) Start() error {
	log.Info().Int("port", s.cfg.Port).Msg("Starting API server")
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	log.Info().Msg("Stopping API server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Router exposes the configured engine, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
