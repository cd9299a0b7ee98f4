// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"crypto/subtle"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	IsDatabaseEnabled() bool
}

// APIKeyConfig provides the shared API key checked on scoring routes.
type APIKeyConfig interface {
	GetAPIKey() string
	MatchAPIKey(candidate string) bool
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RateLimitConfig provides per-IP request limits.
type RateLimitConfig interface {
	GetRateLimitRPS() float64
	GetRateLimitBurst() int
}

// SchedulerConfig provides settings for the asynq retrain queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetRetrainSchedule() string
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketModelArtifacts() string
	IsMinIOEnabled() bool
}

// ScoringConfig provides settings for the lead scoring pipeline.
type ScoringConfig interface {
	GetDefaultModelKind() string
	GetTrainingTimeout() time.Duration
	GetArtifactTTL() time.Duration
	GetScoringProfilePath() string
	GetMaxBatchSize() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                       string
	HTTPAddr                  string
	APIKey                    string
	CORSAllowAll              bool
	CORSOrigins               []string
	CORSAllowCreds            bool
	DatabaseURL               string
	RedisURL                  string
	RedisTLSInsecure          bool
	AsynqQueueName            string
	AsynqConcurrency          int
	RetrainSchedule           string
	MinIOEndpoint             string
	MinIOAccessKey            string
	MinIOSecretKey            string
	MinIOUseSSL               bool
	MinioBucketModelArtifacts string
	DefaultModelKind          string
	TrainingTimeout           time.Duration
	ArtifactTTL               time.Duration
	ScoringProfilePath        string
	MaxBatchSize              int
	RateLimitRPS              float64
	RateLimitBurst            int
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string  { return c.DatabaseURL }
func (c *Config) IsDatabaseEnabled() bool { return c.DatabaseURL != "" }

// APIKeyConfig implementation
func (c *Config) GetAPIKey() string { return c.APIKey }

// MatchAPIKey compares candidate against the configured key in constant time.
// An empty configured key matches nothing.
func (c *Config) MatchAPIKey(candidate string) bool {
	if c.APIKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.APIKey), []byte(candidate)) == 1
}

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// RateLimitConfig implementation
func (c *Config) GetRateLimitRPS() float64 { return c.RateLimitRPS }
func (c *Config) GetRateLimitBurst() int   { return c.RateLimitBurst }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }
func (c *Config) GetRetrainSchedule() string { return c.RetrainSchedule }
func (c *Config) IsSchedulerEnabled() bool   { return c.RedisURL != "" }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketModelArtifacts() string {
	return c.MinioBucketModelArtifacts
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// ScoringConfig implementation
func (c *Config) GetDefaultModelKind() string       { return c.DefaultModelKind }
func (c *Config) GetTrainingTimeout() time.Duration { return c.TrainingTimeout }
func (c *Config) GetArtifactTTL() time.Duration     { return c.ArtifactTTL }
func (c *Config) GetScoringProfilePath() string     { return c.ScoringProfilePath }
func (c *Config) GetMaxBatchSize() int              { return c.MaxBatchSize }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                       getEnv("APP_ENV", "development"),
		HTTPAddr:                  getEnv("HTTP_ADDR", ":8000"),
		APIKey:                    getEnv("API_KEY", ""),
		CORSAllowAll:              corsAllowAll,
		CORSOrigins:               corsOrigins,
		CORSAllowCreds:            strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		DatabaseURL:               getEnv("DATABASE_URL", ""),
		RedisURL:                  getEnv("REDIS_URL", ""),
		RedisTLSInsecure:          strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:            getEnv("ASYNQ_QUEUE_NAME", "scoring"),
		AsynqConcurrency:          mustInt(getEnv("ASYNQ_CONCURRENCY", "2")),
		RetrainSchedule:           getEnv("SCORING_RETRAIN_SCHEDULE", "@every 6h"),
		MinIOEndpoint:             getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:            getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:            getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:               strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketModelArtifacts: getEnv("MINIO_BUCKET_MODEL_ARTIFACTS", "model-artifacts"),
		DefaultModelKind:          getEnv("SCORING_DEFAULT_MODEL", "random-forest"),
		TrainingTimeout:           mustDuration(getEnv("SCORING_TRAINING_TIMEOUT", "30s")),
		ArtifactTTL:               mustDuration(getEnv("SCORING_ARTIFACT_TTL", "24h")),
		ScoringProfilePath:        getEnv("SCORING_PROFILE_PATH", ""),
		MaxBatchSize:              mustInt(getEnv("SCORING_MAX_BATCH", "5000")),
		RateLimitRPS:              mustFloat(getEnv("RATE_LIMIT_RPS", "10")),
		RateLimitBurst:            mustInt(getEnv("RATE_LIMIT_BURST", "20")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if strings.EqualFold(c.Env, "production") && c.APIKey == "" {
		return fmt.Errorf("API_KEY is required in production")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.TrainingTimeout <= 0 {
		return fmt.Errorf("SCORING_TRAINING_TIMEOUT must be a positive duration")
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("SCORING_MAX_BATCH must be at least 1")
	}
	if c.IsMinIOEnabled() && (c.MinIOAccessKey == "" || c.MinIOSecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
