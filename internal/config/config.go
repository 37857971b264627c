package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// NATS (bridge transport, capability request-reply, notification dispatch)
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int

	// Redis (event/identity persistence and camera directory)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Streaming
	StreamMaxFPS        int
	StreamJPEGQuality   int
	ReconnectBackoff    time.Duration // initial backoff after a failed connect
	ReconnectBackoffMax time.Duration

	// Detection
	InferenceInterval    time.Duration
	EventCooldown        time.Duration
	InferenceConcurrency int
	FaceMatchThreshold   float64
	SnapshotPath         string
	SnapshotJPEGQuality  int

	// Inference / face capability subjects (request-reply)
	InferenceSubject  string
	InferenceTimeout  time.Duration
	FaceEmbedSubject  string
	FaceMatchSubject  string
	FaceEnrollSubject string
	FaceTimeout       time.Duration

	// Summarizer (Ollama-compatible chat endpoint)
	SummarizerURL     string
	SummarizerModel   string
	SummarizerTimeout time.Duration

	// Notifications
	NotifySubject string

	// Bridge (external GPU pipeline ingress)
	BridgeEnabled          bool
	BridgeFrameSubject     string
	BridgeDetectionSubject string
	BridgeQueueSize        int
	BridgePollTimeout      time.Duration

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "worker-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// NATS
		NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// Streaming
		StreamMaxFPS:        getEnvInt("STREAM_MAX_FPS", 30),
		StreamJPEGQuality:   getEnvInt("STREAM_JPEG_QUALITY", 80),
		ReconnectBackoff:    getEnvDuration("RECONNECT_BACKOFF", 2*time.Second),
		ReconnectBackoffMax: getEnvDuration("RECONNECT_BACKOFF_MAX", 30*time.Second),

		// Detection
		InferenceInterval:    getEnvDuration("INFERENCE_INTERVAL", 1*time.Second),
		EventCooldown:        getEnvDuration("EVENT_COOLDOWN", 15*time.Second),
		InferenceConcurrency: getEnvInt("INFERENCE_CONCURRENCY", 4),
		FaceMatchThreshold:   getEnvFloat("FACE_MATCH_THRESHOLD", 0.5),
		SnapshotPath:         getEnv("SNAPSHOT_PATH", "./snapshots"),
		SnapshotJPEGQuality:  getEnvInt("SNAPSHOT_JPEG_QUALITY", 85),

		// Capability subjects
		InferenceSubject:  getEnv("INFERENCE_SUBJECT", "inference.detect"),
		InferenceTimeout:  getEnvDuration("INFERENCE_TIMEOUT", 5*time.Second),
		FaceEmbedSubject:  getEnv("FACE_EMBED_SUBJECT", "faces.embed"),
		FaceMatchSubject:  getEnv("FACE_MATCH_SUBJECT", "faces.match"),
		FaceEnrollSubject: getEnv("FACE_ENROLL_SUBJECT", "faces.enroll"),
		FaceTimeout:       getEnvDuration("FACE_TIMEOUT", 3*time.Second),

		// Summarizer
		SummarizerURL:     getEnv("SUMMARIZER_URL", ""),
		SummarizerModel:   getEnv("SUMMARIZER_MODEL", "llama3.2"),
		SummarizerTimeout: getEnvDuration("SUMMARIZER_TIMEOUT", 15*time.Second),

		// Notifications
		NotifySubject: getEnv("NOTIFY_SUBJECT", "notifications.dispatch"),

		// Bridge
		BridgeEnabled:          getEnvBool("BRIDGE_ENABLED", false),
		BridgeFrameSubject:     getEnv("BRIDGE_FRAME_SUBJECT", "bridge.frames"),
		BridgeDetectionSubject: getEnv("BRIDGE_DETECTION_SUBJECT", "bridge.detections"),
		BridgeQueueSize:        getEnvInt("BRIDGE_QUEUE_SIZE", 120),
		BridgePollTimeout:      getEnvDuration("BRIDGE_POLL_TIMEOUT", 2*time.Second),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
