package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/api"
	"visionpro-worker-go/internal/bridge"
	"visionpro-worker-go/internal/config"
	"visionpro-worker-go/internal/detect"
	"visionpro-worker-go/internal/hub"
	"visionpro-worker-go/internal/metrics"
	"visionpro-worker-go/internal/services/faces"
	"visionpro-worker-go/internal/services/inference"
	"visionpro-worker-go/internal/services/messaging"
	"visionpro-worker-go/internal/services/notifier"
	"visionpro-worker-go/internal/services/summarizer"
	"visionpro-worker-go/internal/store"
	"visionpro-worker-go/internal/stream"
	"visionpro-worker-go/internal/vision"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.Load()

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Bool("bridge_enabled", cfg.BridgeEnabled).
		Msg("Starting VisionPro worker")

	// Persistence and camera directory
	db, err := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer db.Close()

	// Shared transport
	nats, err := messaging.NewService(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer nats.Close()

	met := metrics.New()
	bus := hub.New()
	encoder := vision.NewEncoder()

	// Stream supervision
	registry := stream.NewRegistry(stream.SupervisorOptions{
		Source:         vision.NewSource(),
		Encoder:        encoder,
		Hub:            bus,
		Metrics:        met,
		JPEGQuality:    cfg.StreamJPEGQuality,
		MaxFPS:         cfg.StreamMaxFPS,
		InitialBackoff: cfg.ReconnectBackoff,
		MaxBackoff:     cfg.ReconnectBackoffMax,
	})

	snapshots, err := vision.NewSnapshotWriter(cfg.SnapshotPath, cfg.SnapshotJPEGQuality)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare snapshot directory")
	}

	faceSvc := faces.NewService(cfg, nats, encoder)

	// Detection pipeline
	orch := detect.NewOrchestrator(cfg, detect.OrchestratorOptions{
		Directory:  db,
		Frames:     registry,
		Detector:   inference.NewService(cfg, nats, encoder),
		Embedder:   faceSvc,
		Index:      faceSvc,
		Summarizer: summarizer.NewService(cfg),
		Snapshots:  snapshots,
		Events:     db,
		Identities: db,
		Notifier:   notifier.NewService(cfg, nats),
		Hub:        bus,
		Metrics:    met,
	})

	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.NatsConnectTimeout)
	if err := orch.Start(startCtx); err != nil {
		cancelStart()
		log.Fatal().Err(err).Msg("Failed to start detection orchestrator")
	}
	cancelStart()

	// Supervise every enabled camera from the directory
	cameras, err := db.ListCameras(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load camera directory, starting with no streams")
	} else {
		registry.StartAll(cameras)
	}

	// Frame bridge ingress for deployments running capture elsewhere
	var receiver *bridge.Receiver
	if cfg.BridgeEnabled {
		receiver = bridge.NewReceiver(bridge.ReceiverOptions{
			QueueSize:    cfg.BridgeQueueSize,
			DrainTimeout: cfg.BridgePollTimeout,
			Hub:          bus,
			Sink:         orch,
			Metrics:      met,
		})
		receiver.Start()

		for _, subject := range []string{cfg.BridgeFrameSubject, cfg.BridgeDetectionSubject} {
			if _, err := nats.Subscribe(subject, func(data []byte) {
				receiver.Ingest(data)
			}); err != nil {
				log.Fatal().Err(err).Str("subject", subject).Msg("Failed to subscribe bridge subject")
			}
		}
	}

	// HTTP and WebSocket surface
	server := api.NewServer(cfg, api.Options{
		Registry:  registry,
		Directory: db,
		Events:    db,
		Hub:       bus,
		Metrics:   met,
	})
	server.Setup()

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		if err := server.Stop(); err != nil {
			log.Error().Err(err).Msg("API server forced to shutdown")
		}
		if receiver != nil {
			receiver.Stop()
		}
		orch.Stop()
		registry.StopAll()
	}()

	select {
	case <-shutdownDone:
		log.Info().Msg("Shutdown complete")
	case <-time.After(cfg.ShutdownTimeout):
		log.Error().Msg("Shutdown timed out, exiting")
	}
}
