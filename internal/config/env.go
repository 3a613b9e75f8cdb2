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

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port          string
	PublicBaseURL string
	MaxUploadMB   int
	RunDispatcher bool
	// WebUsername and WebPassword protect the HTML preview when both are set.
	WebUsername string
	WebPassword string
}

// StorageConfig selects and configures the artifact store.
type StorageConfig struct {
	Backend        string // "local"|"s3"
	LocalDir       string
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
	AccessKeyID    string
	SecretKey      string
	EncryptionKey  string
}

// QueueConfig defines queue connectivity and names. An empty RedisURL selects
// the in-memory queue and job store.
type QueueConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	PollInterval time.Duration
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
	Concurrency        int
	MaxInflightPerTool int
	RenderTimeout      time.Duration
	ConvertTimeout     time.Duration
	SofficePath        string
}

// RenderConfig controls PDF page rasterisation.
type RenderConfig struct {
	DPI         int
	Format      string // "png"|"jpeg"
	Color       string // "rgb"|"gray"
	JPEGQuality int
}

// FetchConfig controls artifact retrieval over HTTP.
type FetchConfig struct {
	Timeout       time.Duration
	Retries       int
	RetryWait     time.Duration
	RetryMaxWait  time.Duration
	UserAgent     string
	MaxArtifactMB int
}

// RetentionConfig controls how long uploads and artifacts are kept.
type RetentionConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	Server    ServerConfig
	Storage   StorageConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Render    RenderConfig
	Fetch     FetchConfig
	Retention RetentionConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdftools.log"),
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
		Dataset:       baseDataset + "_pdftools",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:          getEnv("PORT", "8080"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		MaxUploadMB:   parseInt(getEnv("MAX_UPLOAD_MB", "64"), 64),
		RunDispatcher: parseBool(getEnv("RUN_DISPATCHER", "1")),
		WebUsername:   getEnv("WEB_USERNAME", ""),
		WebPassword:   getEnv("WEB_PASSWORD", ""),
	}

	cfg.Storage = StorageConfig{
		Backend:        strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		LocalDir:       getEnv("ARTIFACT_DIR", "uploads/artifacts"),
		Bucket:         getEnv("AWS_S3_BUCKET", ""),
		Prefix:         getEnv("S3_PREFIX", "pdftools"),
		Region:         getEnv("AWS_REGION", ""),
		Endpoint:       getEnv("S3_ENDPOINT", ""),
		ForcePathStyle: parseBool(getEnv("S3_FORCE_PATH_STYLE", "0")),
		AccessKeyID:    getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
		EncryptionKey:  getEnv("ARTIFACT_ENCRYPTION_KEY", ""),
	}

	cfg.Queue = QueueConfig{
		RedisURL:     getEnv("REDIS_URL", ""),
		Stream:       getEnv("QUEUE_STREAM", "jobs:render:pages"),
		Group:        getEnv("QUEUE_GROUP", "workers:render"),
		PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "2s"), 2*time.Second),
	}

	cfg.Worker = WorkerConfig{
		Concurrency:        parseInt(getEnv("WORKER_CONCURRENCY", "4"), 4),
		MaxInflightPerTool: parseInt(getEnv("MAX_INFLIGHT_PER_TOOL", "4"), 4),
		RenderTimeout:      parseDuration(getEnv("RENDER_TIMEOUT", "5m"), 5*time.Minute),
		ConvertTimeout:     parseDuration(getEnv("CONVERT_TIMEOUT", "180s"), 180*time.Second),
		SofficePath:        getEnv("SOFFICE_PATH", "soffice"),
	}

	cfg.Render = RenderConfig{
		DPI:         parseInt(getEnv("RENDER_DPI", "150"), 150),
		Format:      strings.ToLower(getEnv("RENDER_FORMAT", "png")),
		Color:       strings.ToLower(getEnv("RENDER_COLOR", "rgb")),
		JPEGQuality: parseInt(getEnv("JPEG_QUALITY", "85"), 85),
	}
	if cfg.Render.DPI <= 0 {
		cfg.Render.DPI = 150
	}
	if cfg.Render.Format != "jpeg" {
		cfg.Render.Format = "png"
	}

	cfg.Fetch = FetchConfig{
		Timeout:       parseDuration(getEnv("FETCH_TIMEOUT", "30s"), 30*time.Second),
		Retries:       parseInt(getEnv("FETCH_RETRIES", "2"), 2),
		RetryWait:     parseDuration(getEnv("FETCH_RETRY_WAIT", "500ms"), 500*time.Millisecond),
		RetryMaxWait:  parseDuration(getEnv("FETCH_RETRY_MAX_WAIT", "5s"), 5*time.Second),
		UserAgent:     getEnv("FETCH_USER_AGENT", "pdftools/1.0"),
		MaxArtifactMB: parseInt(getEnv("FETCH_MAX_ARTIFACT_MB", "64"), 64),
	}

	cfg.Retention = RetentionConfig{
		TTL:             parseDuration(getEnv("RETENTION", "1h"), time.Hour),
		CleanupInterval: parseDuration(getEnv("CLEANUP_INTERVAL", "10m"), 10*time.Minute),
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
