package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds application configuration, read from environment variables
// (optionally seeded from a .env file by the caller).
type Config struct {
	ServerPort string `env:"PORT" envDefault:"8080"`

	// Database (supports sqlite, postgres, mysql)
	DatabaseType   string `env:"DB_TYPE" envDefault:"sqlite"`
	DatabasePath   string `env:"DB_PATH" envDefault:"./speakwise.db"`
	DatabaseURL    string `env:"DATABASE_URL"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"./migrations"`

	// Content and static files
	ScriptsPath     string `env:"SCRIPTS_PATH" envDefault:"./scripts"`
	StaticFilesPath string `env:"STATIC_PATH" envDefault:"./static"`
	AudioDir        string `env:"AUDIO_DIR" envDefault:"./static/audio"`

	// Speech-to-text endpoint (Whisper-compatible). Empty disables speech
	// capture; sessions then run in text-only mode.
	TranscribeEndpoint string `env:"TRANSCRIBE_ENDPOINT"`
	TranscribeAPIKey   string `env:"TRANSCRIBE_API_KEY"`
	TranscribeModel    string `env:"TRANSCRIBE_MODEL" envDefault:"whisper-1"`

	// Session engine policy
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	CaptureTimeout     time.Duration `env:"CAPTURE_TIMEOUT" envDefault:"15s"`
	SilenceTimeout     time.Duration `env:"SILENCE_TIMEOUT" envDefault:"2s"`
	PassThreshold      int           `env:"PASS_THRESHOLD" envDefault:"50"`
	EnrollThreshold    int           `env:"ENROLL_THRESHOLD" envDefault:"10"`

	// Progress report email (Amazon SES). Empty from-address disables it.
	SESRegion    string `env:"SES_REGION" envDefault:"eu-west-2"`
	SESFromEmail string `env:"SES_FROM_EMAIL"`
	SESFromName  string `env:"SES_FROM_NAME" envDefault:"Speakwise"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}
