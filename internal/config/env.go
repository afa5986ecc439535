package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom log forwarding configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ModelsConfig names the backend models per operation. Image generation is
// tiered: the quality model is attempted first and silently falls back to the
// standard model.
type ModelsConfig struct {
	ImageQuality  string
	ImageStandard string
	Chat          string
	ChatGrounded  string
	Video         string
	Analysis      string
}

// VideoConfig controls the long-running video job flow. PollTimeout of zero
// disables the overall deadline and polls until the job reports done.
type VideoConfig struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// StudioConfig defines per-request behavior for generation calls.
type StudioConfig struct {
	RequestTimeout     time.Duration
	BreakerBaseBackoff time.Duration
	BreakerMaxBackoff  time.Duration
}

// QueueConfig defines the video job queue connectivity and names.
type QueueConfig struct {
	RedisURL string
	Stream   string
	Group    string
	Workers  int
}

// StorageConfig defines the gallery S3 bucket and the encryption secret for
// artifacts at rest.
type StorageConfig struct {
	Bucket string
	Secret string
}

// SessionConfig defines user session behavior.
type SessionConfig struct {
	TTL time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Port    string
	Logging LoggingConfig
	Axiom   AxiomConfig
	Models  ModelsConfig
	Video   VideoConfig
	Studio  StudioConfig
	Queue   QueueConfig
	Storage StorageConfig
	Session SessionConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Port = getEnv("PORT", "8080")

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/genstudio.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_genstudio",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Models = ModelsConfig{
		ImageQuality:  getEnv("IMAGE_QUALITY_MODEL", "gemini-2.5-flash-image"),
		ImageStandard: getEnv("IMAGE_STANDARD_MODEL", "gemini-2.0-flash-preview-image-generation"),
		Chat:          getEnv("CHAT_MODEL", "gemini-2.5-flash"),
		ChatGrounded:  getEnv("CHAT_GROUNDED_MODEL", "gemini-2.5-flash"),
		Video:         getEnv("VIDEO_MODEL", "veo-2.0-generate-001"),
		Analysis:      getEnv("ANALYSIS_MODEL", "gemini-2.5-flash"),
	}

	cfg.Video = VideoConfig{
		PollInterval: parseDuration(getEnv("VIDEO_POLL_INTERVAL", "5s"), 5*time.Second),
		PollTimeout:  parseDuration(getEnv("VIDEO_POLL_TIMEOUT", "30m"), 30*time.Minute),
	}

	cfg.Studio = StudioConfig{
		RequestTimeout:     parseDuration(getEnv("REQUEST_TIMEOUT", "60s"), 60*time.Second),
		BreakerBaseBackoff: parseDuration(getEnv("BREAKER_BASE_BACKOFF", "30s"), 30*time.Second),
		BreakerMaxBackoff:  parseDuration(getEnv("BREAKER_MAX_BACKOFF", "5m"), 5*time.Minute),
	}

	cfg.Queue = QueueConfig{
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:   getEnv("QUEUE_STREAM", "jobs:video"),
		Group:    getEnv("QUEUE_GROUP", "workers:video"),
		Workers:  parseInt(getEnv("VIDEO_WORKERS", "2"), 2),
	}

	cfg.Storage = StorageConfig{
		Bucket: getEnv("GALLERY_S3_BUCKET", "genstudio-gallery-dev"),
		Secret: getEnv("GALLERY_SECRET", ""),
	}

	cfg.Session = SessionConfig{
		TTL: parseDuration(getEnv("SESSION_TTL", "24h"), 24*time.Hour),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
