package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	KlartextAPIKey string

	// Suggestion generator
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	PolicyFile    string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Prompt batching
	MaxTokensPerCall int

	// Application defaults
	DocxMode           string
	Author             string
	IncludeMotivations bool

	// PDF line grouping
	LineTolerance float64

	// Job and artifact retention
	JobTTL      time.Duration
	ArtifactDir string
	ArtifactTTL time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		KlartextAPIKey: os.Getenv("KLARTEXT_API_KEY"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   envOr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		PolicyFile:    os.Getenv("POLICY_FILE"),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		MaxTokensPerCall: envInt("MAX_TOKENS_PER_CALL", 3000),

		DocxMode:           envOr("DOCX_MODE", "tracked"),
		Author:             envOr("REVISION_AUTHOR", "Klartext"),
		IncludeMotivations: envBool("INCLUDE_MOTIVATIONS", true),

		LineTolerance: envFloat("PDF_LINE_TOLERANCE", 2.0),

		JobTTL:      envDuration("JOB_TTL", 1*time.Hour),
		ArtifactDir: envOr("ARTIFACT_DIR", "/tmp/klartext-artifacts"),
		ArtifactTTL: envDuration("ARTIFACT_TTL", 24*time.Hour),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.MaxTokensPerCall <= 0 {
		cfg.MaxTokensPerCall = 3000
	}
	if cfg.DocxMode != "tracked" && cfg.DocxMode != "markup" {
		cfg.DocxMode = "tracked"
	}
	if cfg.LineTolerance <= 0 {
		cfg.LineTolerance = 2.0
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.ArtifactTTL <= 0 {
		cfg.ArtifactTTL = 24 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.KlartextAPIKey == "" {
		return fmt.Errorf("KLARTEXT_API_KEY is required")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
