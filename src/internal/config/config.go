// Package config loads runtime configuration from an optional YAML file plus
// environment variables, with flag values applied on top by the commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported model providers.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

const (
	defaultTimeout = 60 * time.Second

	openAIBaseURL     = "https://api.openai.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

// Config contains runtime configuration values.
type Config struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Referer     string        `yaml:"referer"`
	SiteTitle   string        `yaml:"site_title"`
	PromptFile  string        `yaml:"prompt_file"`
	Preferences string        `yaml:"preferences"`
	Structured  bool          `yaml:"structured"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheDir    string        `yaml:"cache_dir"`
}

// Default returns the configuration used when no file or flags are present.
func Default() Config {
	return Config{
		Provider: ProviderOpenAI,
		Timeout:  defaultTimeout,
	}
}

// Load reads the YAML config at path, falling back to $BIBFIX_CONFIG and then
// ~/.config/bibfix/config.yaml. A missing default file is not an error; a
// missing explicit path is.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = os.Getenv("BIBFIX_CONFIG")
	}
	if strings.TrimSpace(path) == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".config", "bibfix", "config.yaml")
		}
	}
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case explicit:
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.Referer == "" {
		c.Referer = os.Getenv("HTTP_REFERER")
	}
	if c.SiteTitle == "" {
		c.SiteTitle = os.Getenv("X_TITLE")
	}
	// BIBFIX_* variables take precedence over the config file.
	if v := os.Getenv("BIBFIX_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("BIBFIX_MODEL"); v != "" {
		c.Model = v
	}
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultModel(c.Provider)
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		c.CacheDir = DefaultCacheDir()
	}
}

// DefaultModel returns the model used for a provider when none is configured.
func DefaultModel(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenRouter:
		return "openai/gpt-5-mini"
	case ProviderGemini:
		return "gemini-2.5-flash"
	default:
		return "gpt-5-mini-2025-08-07"
	}
}

// ResolveAPIKey returns the configured key or the provider's environment
// variable.
func (c Config) ResolveAPIKey() (string, error) {
	if strings.TrimSpace(c.APIKey) != "" {
		return strings.TrimSpace(c.APIKey), nil
	}
	var envVar string
	switch c.Provider {
	case ProviderOpenRouter:
		envVar = "OPENROUTER_API_KEY"
	case ProviderGemini:
		envVar = "GEMINI_API_KEY"
	default:
		envVar = "OPENAI_API_KEY"
	}
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s API key is required: set %s or api_key in the config file", c.Provider, envVar)
}

// ResolveBaseURL returns the chat-completions base URL for OpenAI-compatible
// providers, honoring an explicit override.
func (c Config) ResolveBaseURL() string {
	if strings.TrimSpace(c.BaseURL) != "" {
		return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	}
	if c.Provider == ProviderOpenRouter {
		return openRouterBaseURL
	}
	return openAIBaseURL
}

// DefaultCacheDir returns the per-user revision cache directory.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "bibfix")
	}
	return filepath.Join(base, "bibfix")
}
