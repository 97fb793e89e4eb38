// Package config loads and validates the explain service settings from a
// YAML file and EXPLAIN_* environment variables.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/compiler-explorer/explain/pkg/cache"
	errs "github.com/compiler-explorer/explain/pkg/errors"
)

// Settings is the complete service configuration.
type Settings struct {
	// AnthropicAPIKey authenticates calls to the Claude API. Usually
	// supplied via the ANTHROPIC_API_KEY environment variable.
	AnthropicAPIKey string `yaml:"anthropic_api_key,omitempty"`

	// ListenAddress is the host:port the HTTP server binds to.
	ListenAddress string `yaml:"listen_address" validate:"required"`

	// RootPath is prepended when the service runs behind a path-based
	// proxy (e.g. API Gateway stages).
	RootPath string `yaml:"root_path,omitempty"`

	// MetricsEnabled turns on CloudWatch EMF metric emission.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// PromptPath overrides the embedded prompt configuration file.
	PromptPath string `yaml:"prompt_path,omitempty"`

	// LogLevel is one of debug, info, warn, error, fatal.
	LogLevel string `yaml:"log_level" validate:"required,oneof=debug info warn error fatal"`

	// Cache configures the explanation response cache.
	Cache cache.Config `yaml:"cache"`
}

// Default returns the settings used when no file or environment overrides
// are present.
func Default() Settings {
	return Settings{
		ListenAddress:  ":8080",
		MetricsEnabled: false,
		LogLevel:       "info",
		Cache: cache.Config{
			Type:       "memory",
			MaxSize:    64 << 20,
			DefaultTTL: 2 * 24 * time.Hour,
		},
	}
}

// Load builds settings by layering, in order: defaults, the YAML file at
// path (skipped when path is empty), then environment variables.
func Load(path string) (Settings, error) {
	settings := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return settings, errs.Wrap(err, errs.ConfigurationInvalid, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return settings, errs.Wrap(err, errs.ConfigurationInvalid, "failed to parse config file")
		}
	}

	settings.applyEnv()

	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// applyEnv overlays environment variables onto the settings.
func (s *Settings) applyEnv() {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		s.AnthropicAPIKey = v
	}
	if v := os.Getenv("EXPLAIN_LISTEN_ADDRESS"); v != "" {
		s.ListenAddress = v
	}
	if v := os.Getenv("EXPLAIN_ROOT_PATH"); v != "" {
		s.RootPath = v
	}
	if v := os.Getenv("EXPLAIN_METRICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			s.MetricsEnabled = enabled
		}
	}
	if v := os.Getenv("EXPLAIN_PROMPT_PATH"); v != "" {
		s.PromptPath = v
	}
	if v := os.Getenv("EXPLAIN_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("EXPLAIN_CACHE_TYPE"); v != "" {
		s.Cache.Type = v
	}
	if v := os.Getenv("EXPLAIN_CACHE_PATH"); v != "" {
		s.Cache.Path = v
	}
	if v := os.Getenv("EXPLAIN_CACHE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			s.Cache.DefaultTTL = ttl
		}
	}
	if v := os.Getenv("EXPLAIN_CACHE_MAX_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.Cache.MaxSize = size
		}
	}
}

// Validate checks structural constraints. The API key is checked at client
// construction, not here, so read-only commands work without one.
func (s *Settings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return errs.Wrap(err, errs.ConfigurationInvalid, "invalid configuration")
	}
	return nil
}
