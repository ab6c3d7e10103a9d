// Package config loads lenschat configuration from defaults, an optional TOML
// file, a .env file and the environment, in increasing order of precedence.
// Command-line flags are applied on top by the cmd packages.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/papercomputeco/lenschat/pkg/completion"
	"github.com/papercomputeco/lenschat/pkg/imaging"
	"github.com/papercomputeco/lenschat/pkg/session"
)

// ErrMissingAPIKey is returned by Validate when no API key is configured.
var ErrMissingAPIKey = errors.New("missing API key: set OPENROUTER_API_KEY or api_key in the config file")

// Config is the full application configuration.
type Config struct {
	// Completion endpoint
	APIKey         string        `toml:"api_key" env:"OPENROUTER_API_KEY"`
	BaseURL        string        `toml:"base_url" env:"LENSCHAT_BASE_URL"`
	Model          string        `toml:"model" env:"LENSCHAT_MODEL"`
	Referer        string        `toml:"referer" env:"LENSCHAT_REFERER"`
	Title          string        `toml:"title" env:"LENSCHAT_TITLE"`
	Transport      string        `toml:"transport" env:"LENSCHAT_TRANSPORT"` // rest|sdk
	RequestTimeout time.Duration `toml:"request_timeout" env:"LENSCHAT_REQUEST_TIMEOUT"`

	// Server
	ListenAddr         string        `toml:"listen_addr" env:"LENSCHAT_LISTEN_ADDR"`
	SessionIdleTimeout time.Duration `toml:"session_idle_timeout" env:"LENSCHAT_SESSION_IDLE_TIMEOUT"`

	// Images
	MaxImageBytes     int `toml:"max_image_bytes" env:"LENSCHAT_MAX_IMAGE_BYTES"`
	MaxImageDimension int `toml:"max_image_dimension" env:"LENSCHAT_MAX_IMAGE_DIMENSION"`
	MaxImagePixels    int `toml:"max_image_pixels" env:"LENSCHAT_MAX_IMAGE_PIXELS"`

	// Logging
	Debug   bool   `toml:"debug" env:"LENSCHAT_DEBUG"`
	LogJSON bool   `toml:"log_json" env:"LENSCHAT_LOG_JSON"`
	LogFile string `toml:"log_file" env:"LENSCHAT_LOG_FILE"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		BaseURL:            completion.DefaultBaseURL,
		Model:              completion.DefaultModel,
		Referer:            completion.DefaultReferer,
		Title:              completion.DefaultTitle,
		Transport:          completion.TransportREST,
		RequestTimeout:     2 * time.Minute,
		ListenAddr:         ":8501",
		SessionIdleTimeout: 30 * time.Minute,
		MaxImageBytes:      10 << 20,
		MaxImageDimension:  2048,
		MaxImagePixels:     imaging.DefaultMaxPixels,
	}
}

// Load builds a Config from defaults, then the TOML file at path (skipped
// when path is empty), then ./.env, then the process environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	// godotenv never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	return cfg, nil
}

// Validate checks the fields every command needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}

	switch c.Transport {
	case completion.TransportREST, completion.TransportSDK:
	default:
		return fmt.Errorf("unknown transport %q: want %s or %s", c.Transport, completion.TransportREST, completion.TransportSDK)
	}

	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("max_image_bytes must be positive, got %d", c.MaxImageBytes)
	}
	if c.MaxImageDimension < 0 {
		return fmt.Errorf("max_image_dimension must not be negative, got %d", c.MaxImageDimension)
	}
	if c.MaxImagePixels < 0 {
		return fmt.Errorf("max_image_pixels must not be negative, got %d", c.MaxImagePixels)
	}
	return nil
}

// Completion returns the completion client configuration.
func (c *Config) Completion() completion.Config {
	return completion.Config{
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Model:             c.Model,
		Referer:           c.Referer,
		Title:             c.Title,
		Timeout:           c.RequestTimeout,
		MaxImageDimension: c.MaxImageDimension,
		MaxImagePixels:    c.MaxImagePixels,
	}
}

// Session returns the session options, reporting lifecycle events to observer.
func (c *Config) Session(observer session.Observer) session.Options {
	return session.Options{
		IdleTimeout:       c.SessionIdleTimeout,
		MaxImageDimension: c.MaxImageDimension,
		MaxImagePixels:    c.MaxImagePixels,
		Observer:          observer,
	}
}
