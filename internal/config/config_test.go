package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, env := range []string{configPathEnv, openaiAPIKeyEnv, openaiModelEnv, dbPathEnv, listenAddrEnv, logModeEnv} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	cfg := Load()
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("default addr got %q", cfg.Server.Addr)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Fatalf("default model got %q", cfg.OpenAI.Model)
	}
	if cfg.OpenAI.TranscriptBudget <= 0 {
		t.Fatalf("default transcript budget got %d", cfg.OpenAI.TranscriptBudget)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte("server:\n  addr: \":9090\"\nopenai:\n  model: gpt-4o\n  apiKey: file-key\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(openaiAPIKeyEnv, "env-key")
	t.Setenv(dbPathEnv, "/tmp/override.db")

	cfg := Load()
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("file override lost, addr %q", cfg.Server.Addr)
	}
	if cfg.OpenAI.Model != "gpt-4o" {
		t.Fatalf("file override lost, model %q", cfg.OpenAI.Model)
	}
	if cfg.OpenAI.APIKey != "env-key" {
		t.Fatalf("env must beat file, apiKey %q", cfg.OpenAI.APIKey)
	}
	if cfg.Storage.DBPath != "/tmp/override.db" {
		t.Fatalf("env override lost, db %q", cfg.Storage.DBPath)
	}
}
