// Package config loads application settings: defaults, an optional YAML
// file, then environment overrides, in that order.
package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tumainilabs/session_copilot/internal/sampler"
)

const (
	configPathEnv   = "SESSION_COPILOT_CONFIG"
	openaiAPIKeyEnv = "OPENAI_API_KEY"
	openaiModelEnv  = "OPENAI_MODEL"
	dbPathEnv       = "SESSION_COPILOT_DB"
	listenAddrEnv   = "SESSION_COPILOT_ADDR"
	logModeEnv      = "SESSION_COPILOT_LOG_MODE"
)

// Config holds settings required across the application.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig describes the SQLite database location.
type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

// OpenAIConfig defines how to contact the OpenAI API.
type OpenAIConfig struct {
	APIKey           string `yaml:"apiKey"`
	Model            string `yaml:"model"`
	BaseURL          string `yaml:"baseUrl"`
	TranscriptBudget int    `yaml:"transcriptBudget"`
}

// LoggingConfig selects the zap preset.
type LoggingConfig struct {
	Mode string `yaml:"mode"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(openaiAPIKeyEnv); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv(openaiModelEnv); v != "" {
		c.OpenAI.Model = v
	}
	if v := os.Getenv(dbPathEnv); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv(listenAddrEnv); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(logModeEnv); v != "" {
		c.Logging.Mode = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Storage.DBPath != "" {
		base.Storage.DBPath = override.Storage.DBPath
	}
	if override.OpenAI.APIKey != "" {
		base.OpenAI.APIKey = override.OpenAI.APIKey
	}
	if override.OpenAI.Model != "" {
		base.OpenAI.Model = override.OpenAI.Model
	}
	if override.OpenAI.BaseURL != "" {
		base.OpenAI.BaseURL = override.OpenAI.BaseURL
	}
	if override.OpenAI.TranscriptBudget > 0 {
		base.OpenAI.TranscriptBudget = override.OpenAI.TranscriptBudget
	}
	if override.Logging.Mode != "" {
		base.Logging.Mode = override.Logging.Mode
	}
	return base
}

func defaultConfig() Config {
	return Config{
		Server:  ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{DBPath: "data/session_copilot.db"},
		OpenAI: OpenAIConfig{
			Model:            "gpt-4o-mini",
			TranscriptBudget: sampler.DefaultBudget,
		},
		Logging: LoggingConfig{Mode: "dev"},
	}
}
