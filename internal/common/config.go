package common

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Worker   WorkerConfig
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	DSN              string        `envconfig:"DB_URL"`
	MaxConns         int32         `envconfig:"DB_MAX_CONNS" default:"20"`
	MinConns         int32         `envconfig:"DB_MIN_CONNS" default:"5"`
	MaxConnLifetime  time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	MaxConnIdleTime  time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
	DialTimeout      time.Duration `envconfig:"DB_DIAL_TIMEOUT" default:"3s"`
	StatementTimeout time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"0"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"104857600"`
}

// StorageConfig holds blob storage configuration.
type StorageConfig struct {
	Path      string `envconfig:"STORAGE_PATH" default:"./storage"`
	Pdftotext string `envconfig:"PDFTOTEXT_BIN" default:"pdftotext"`
}

// LLMConfig selects and configures the extraction capability.
type LLMConfig struct {
	Provider string `envconfig:"LLM_PROVIDER" default:"ollama"` // openai | ollama | disabled
	Disabled bool   `envconfig:"LLM_DISABLED" default:"false"`  // overrides Provider

	OpenAIKey     string  `envconfig:"OPENAI_API_KEY"`
	OpenAIModel   string  `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL string  `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Temperature   float32 `envconfig:"LLM_TEMPERATURE" default:"0.0"`

	OllamaBaseURL string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	OllamaModel   string `envconfig:"OLLAMA_MODEL" default:"qwen2.5:3b-instruct"`

	Timeout time.Duration `envconfig:"LLM_TIMEOUT" default:"45s"`
}

// WorkerConfig tunes the background job pool.
type WorkerConfig struct {
	Workers            int           `envconfig:"WORKERS" default:"2"`
	QueueSize          int           `envconfig:"QUEUE_SIZE" default:"64"`
	JobTimeout         time.Duration `envconfig:"JOB_TIMEOUT" default:"30m"`
	SectionConcurrency int           `envconfig:"SECTION_CONCURRENCY" default:"1"`
	MaxAttempts        int           `envconfig:"SECTION_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay     time.Duration `envconfig:"SECTION_RETRY_BASE_DELAY" default:"1s"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Storage.Path == "" {
		return NewAppError("CONFIG_ERROR", "STORAGE_PATH is required", ErrInvalidInput)
	}
	if c.LLM.Provider == "openai" && !c.LLM.Disabled && c.LLM.OpenAIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required for the openai provider", ErrInvalidInput)
	}
	if c.Worker.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "WORKERS must be at least 1", ErrInvalidInput)
	}
	return nil
}
