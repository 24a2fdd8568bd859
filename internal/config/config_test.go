package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "paseo.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: 127.0.0.1:7890
  extra: true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: 127.0.0.1:7890
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Registry.Backend != "sqlite" {
		t.Fatalf("expected default registry backend sqlite, got %q", cfg.Registry.Backend)
	}
	if cfg.Session.AutoWakeWindow.String() != "10m0s" {
		t.Fatalf("expected default auto wake window 10m, got %v", cfg.Session.AutoWakeWindow)
	}
	if cfg.Session.SubscriberQueueSize != 1024 {
		t.Fatalf("expected default subscriber queue size 1024, got %d", cfg.Session.SubscriberQueueSize)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("expected default info/json logging, got %+v", cfg.Logging)
	}
}

func TestLoadValidatesRegistryBackend(t *testing.T) {
	path := writeConfig(t, `
registry:
  backend: mongodb
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "registry.backend") {
		t.Fatalf("expected registry.backend error, got %v", err)
	}
}

func TestLoadValidatesRegistryDSNRequired(t *testing.T) {
	path := writeConfig(t, `
registry:
  backend: postgres
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "registry.dsn") {
		t.Fatalf("expected registry.dsn error, got %v", err)
	}
}

func TestLoadValidatesClaudeTransport(t *testing.T) {
	path := writeConfig(t, `
providers:
  claude:
    transport: websocket
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "providers.claude.transport") {
		t.Fatalf("expected providers.claude.transport error, got %v", err)
	}
}

func TestLoadValidatesLoggingLevel(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: verbose
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "logging.level") {
		t.Fatalf("expected logging.level error, got %v", err)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("PASEO_LISTEN", "0.0.0.0:9999")
	t.Setenv("PASEO_ALLOWED_HOSTS", "example.com,.example.org")

	path := writeConfig(t, `
server:
  listen: 127.0.0.1:7890
  allowed_hosts: ["localhost"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:9999" {
		t.Fatalf("expected listen override, got %q", cfg.Server.Listen)
	}
	if len(cfg.Server.AllowedHosts) != 2 || cfg.Server.AllowedHosts[0] != "example.com" {
		t.Fatalf("expected allowed hosts override, got %v", cfg.Server.AllowedHosts)
	}
}

func TestLoadValidConfigWithPostgresDSN(t *testing.T) {
	path := writeConfig(t, `
registry:
  backend: postgres
  dsn: postgres://paseo@localhost:5432/paseo?sslmode=disable
providers:
  claude:
    transport: bedrock
    bedrock_region: us-east-1
  opencode:
    backend: genai
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
}
