package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration derived from environment variables.
// A missing required value is fatal at load time; nothing re-reads the
// environment mid-batch.
type Config struct {
	Database  DatabaseConfig
	Inference InferenceConfig
	Pipeline  PipelineConfig
	Server    ServerConfig
	Logging   LoggingConfig
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
}

// InferenceConfig holds settings for the OpenAI-compatible inference backends.
type InferenceConfig struct {
	APIKeys             []string
	BaseURL             string
	Model               string
	EmbeddingModel      string
	EmbeddingDimensions int
	ImageModel          string
	Temperature         float32
	MaxTokens           int
	Timeout             time.Duration
}

// PipelineConfig tunes the ingestion pipeline.
type PipelineConfig struct {
	SimilarityThreshold float64
	MaxEventsPerPost    int
	Concurrency         int
	BatchLimit          int
	Interval            time.Duration // 0 means one-shot
}

// ServerConfig holds the metrics/health listener parameters.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

const (
	defaultMaxConnections      = 20
	defaultMaxIdleConnections  = 5
	defaultConnMaxLifetime     = 5 * time.Minute
	defaultConnectTimeout      = 10 * time.Second
	defaultModel               = "gpt-4o"
	defaultEmbeddingModel      = "text-embedding-ada-002"
	defaultEmbeddingDimensions = 1536
	defaultImageModel          = "dall-e-3"
	defaultTemperature         = float32(0.3)
	defaultMaxTokens           = 2000
	defaultInferenceTimeout    = 60 * time.Second
	defaultSimilarityThreshold = 0.92
	defaultMaxEventsPerPost    = 10
	defaultConcurrency         = 4
	defaultBatchLimit          = 50
	defaultPort                = "8080"
	defaultShutdownTimeout     = 5 * time.Second
	defaultLogFormat           = "json"
)

// Load reads configuration from environment variables, applying defaults when
// optional values are not provided.
func Load() (Config, error) {
	cfg := Config{
		Database: DatabaseConfig{
			URL:                os.Getenv("DATABASE_URL"),
			MaxConnections:     defaultMaxConnections,
			MaxIdleConnections: defaultMaxIdleConnections,
			ConnMaxLifetime:    defaultConnMaxLifetime,
			ConnectTimeout:     defaultConnectTimeout,
		},
		Inference: InferenceConfig{
			BaseURL:             os.Getenv("OPENAI_BASE_URL"),
			Model:               getEnv("OPENAI_MODEL", defaultModel),
			EmbeddingModel:      getEnv("OPENAI_EMBEDDING_MODEL", defaultEmbeddingModel),
			EmbeddingDimensions: defaultEmbeddingDimensions,
			ImageModel:          getEnv("OPENAI_IMAGE_MODEL", defaultImageModel),
			Temperature:         defaultTemperature,
			MaxTokens:           defaultMaxTokens,
			Timeout:             defaultInferenceTimeout,
		},
		Pipeline: PipelineConfig{
			SimilarityThreshold: defaultSimilarityThreshold,
			MaxEventsPerPost:    defaultMaxEventsPerPost,
			Concurrency:         defaultConcurrency,
			BatchLimit:          defaultBatchLimit,
		},
		Server: ServerConfig{
			Port:            defaultPort,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.Inference.APIKeys = splitKeys(os.Getenv("OPENAI_API_KEYS"))
	if len(cfg.Inference.APIKeys) == 0 {
		// Single-key deployments set OPENAI_API_KEY instead.
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Inference.APIKeys = []string{key}
		}
	}
	if len(cfg.Inference.APIKeys) == 0 {
		return Config{}, fmt.Errorf("OPENAI_API_KEYS (or OPENAI_API_KEY) is required")
	}

	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		temp, err := strconv.ParseFloat(v, 32)
		if err != nil || temp < 0 || temp > 2 {
			return Config{}, fmt.Errorf("invalid OPENAI_TEMPERATURE: must be a number in [0, 2]")
		}
		cfg.Inference.Temperature = float32(temp)
	}

	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid OPENAI_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Inference.Timeout = d
	}

	if v := os.Getenv("EMBEDDING_DIMENSIONS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid EMBEDDING_DIMENSIONS: %w", err)
		}
		cfg.Inference.EmbeddingDimensions = n
	}

	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil || threshold <= 0 || threshold > 1 {
			return Config{}, fmt.Errorf("invalid SIMILARITY_THRESHOLD: must be a number in (0, 1]")
		}
		cfg.Pipeline.SimilarityThreshold = threshold
	}

	if v := os.Getenv("MAX_EVENTS_PER_POST"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MAX_EVENTS_PER_POST: %w", err)
		}
		cfg.Pipeline.MaxEventsPerPost = n
	}

	if v := os.Getenv("PIPELINE_CONCURRENCY"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PIPELINE_CONCURRENCY: %w", err)
		}
		cfg.Pipeline.Concurrency = n
	}

	if v := os.Getenv("BATCH_LIMIT"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BATCH_LIMIT: %w", err)
		}
		cfg.Pipeline.BatchLimit = n
	}

	if v := os.Getenv("INGEST_INTERVAL_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INGEST_INTERVAL_SECONDS: %w", err)
		}
		cfg.Pipeline.Interval = d
	}

	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	} else if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	return cfg, nil
}

func splitKeys(raw string) []string {
	var keys []string
	for _, part := range strings.Split(raw, ",") {
		if key := strings.TrimSpace(part); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
