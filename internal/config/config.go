// Package config loads runtime configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Defaults for the knobs that shape core behavior.
const (
	DefaultPort             = "8000"
	DefaultMaxHistoryTokens = 16000
	DefaultSessionTTL       = 300 * time.Second
)

// LLMConfig describes how to reach the completion engine. APIKey may name an
// environment variable holding the secret rather than the secret itself.
type LLMConfig struct {
	Provider    string  `yaml:"provider" json:"provider,omitempty"`
	Model       string  `yaml:"model" json:"model,omitempty"`
	BaseURL     string  `yaml:"base_url" json:"base_url,omitempty"`
	APIKey      string  `yaml:"api_key" json:"api_key,omitempty"`
	Temperature float32 `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens,omitempty"`
}

// Config holds the full server configuration.
type Config struct {
	Port              string        `yaml:"port"`
	MaxHistoryTokens  int           `yaml:"max_history_tokens"`
	SessionTTLSeconds int           `yaml:"session_ttl_seconds"`
	LLM               LLMConfig     `yaml:"llm"`
	SessionTTL        time.Duration `yaml:"-"`
}

// GetEnvDefault is a convenience function for handling env vars
func GetEnvDefault(key, defVal string) string {
	val, ex := os.LookupEnv(key)
	if !ex {
		return defVal
	}
	return val
}

// Load builds the configuration. A YAML file named by GITRECAP_CONFIG is read
// first when present; environment variables override its values.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort,
		MaxHistoryTokens:  DefaultMaxHistoryTokens,
		SessionTTLSeconds: int(DefaultSessionTTL / time.Second),
	}

	if path := os.Getenv("GITRECAP_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Port = GetEnvDefault("MS_PORT", cfg.Port)
	if v := os.Getenv("MAX_HISTORY_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxHistoryTokens = n
		}
	}
	if v := os.Getenv("SESSION_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTLSeconds = n
		}
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}

	cfg.SessionTTL = time.Duration(cfg.SessionTTLSeconds) * time.Second
	return cfg, nil
}
