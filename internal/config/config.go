// Package config loads the daemon's on-disk configuration file: listen
// address and host allowlist, registry backend selection, provider adapter
// settings, and session tuning knobs (spec §4 ambient stack). It deliberately
// does not carry the teacher's channel/plugin/marketplace/auth
// configuration surface — none of that is in scope for the orchestration
// core this daemon implements.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Config is the daemon's top-level configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Registry     RegistryConfig     `yaml:"registry"`
	Session      SessionConfig      `yaml:"session"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Logging      LoggingConfig      `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

const includeKey = "$include"

// ResolvePath returns the config file path paseod should load: an explicit
// path wins, otherwise PASEO_CONFIG, otherwise "" (no file; env vars and
// defaults alone populate the Config).
func ResolvePath(explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	return strings.TrimSpace(os.Getenv("PASEO_CONFIG"))
}

// Load reads and validates a daemon config file, applying PASEO_* env
// overrides and defaults. Unknown fields are rejected so a typo in an
// operator's config surfaces immediately rather than silently no-op'ing.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadRaw reads a config file into a merged raw map, resolving $include
// directives (registry/session/provider fragments split across files is a
// pattern operators use to keep a shared base config with a per-profile
// overlay).
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	seen := map[string]bool{}
	return loadRawRecursive(path, seen)
}

func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))
	raw, err := parseRawBytes([]byte(expanded), absPath)
	if err != nil {
		return nil, err
	}

	includes, err := extractIncludes(raw)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	if len(includes) > 0 {
		baseDir := filepath.Dir(absPath)
		for _, inc := range includes {
			if strings.TrimSpace(inc) == "" {
				continue
			}
			incPath := inc
			if !filepath.IsAbs(incPath) {
				incPath = filepath.Join(baseDir, incPath)
			}
			incRaw, err := loadRawRecursive(incPath, seen)
			if err != nil {
				return nil, err
			}
			merged = mergeMaps(merged, incRaw)
		}
	}

	merged = mergeMaps(merged, raw)
	return merged, nil
}

func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	format := strings.ToLower(filepath.Ext(pathHint))
	if format == ".json" || format == ".json5" {
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			raw = map[string]any{}
		}
		return raw, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func extractIncludes(raw map[string]any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	var includeVal any
	if val, ok := raw[includeKey]; ok {
		includeVal = val
		delete(raw, includeKey)
	} else if val, ok := raw["include"]; ok {
		includeVal = val
		delete(raw, "include")
	}
	if includeVal == nil {
		return nil, nil
	}

	switch typed := includeVal.(type) {
	case string:
		return []string{typed}, nil
	case []string:
		return typed, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			value, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings")
			}
			paths = append(paths, value)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("include must be a string or list of strings")
	}
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// decodeRawConfig re-marshals the merged raw map to YAML and decodes it
// straight into Config with KnownFields enabled, so $include merging and
// strict field validation both run through the same yaml.v3 path.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	return &cfg, nil
}

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema returns the JSON Schema for Config, for `paseo config schema`
// and editor autocomplete on the on-disk YAML/JSON5 file.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag: "yaml",
		}
		schema := r.Reflect(&Config{})
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyRegistryDefaults(&cfg.Registry)
	applySessionDefaults(&cfg.Session)
	applyProvidersDefaults(&cfg.Providers)
	applyLoggingDefaults(&cfg.Logging)
	applyObservabilityDefaults(&cfg.Observability)
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv("PASEO_LISTEN")); v != "" {
		cfg.Server.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("PASEO_ALLOWED_HOSTS")); v != "" {
		cfg.Server.AllowedHosts = splitAndTrim(v, ",")
	}
	if v := strings.TrimSpace(os.Getenv("PASEO_HOME")); v != "" {
		cfg.Server.Home = v
	}
	if v := strings.TrimSpace(os.Getenv("PASEO_REGISTRY_BACKEND")); v != "" {
		cfg.Registry.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("PASEO_REGISTRY_DSN")); v != "" {
		cfg.Registry.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("PASEO_AUTO_WAKE_WINDOW")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.AutoWakeWindow = d
		}
	}
}

func splitAndTrim(raw, sep string) []string {
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConfigValidationError aggregates every issue found, so an operator fixes
// a config file in one pass rather than one error at a time.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	var issues []string

	switch cfg.Registry.Backend {
	case "memory", "sqlite", "postgres":
	default:
		issues = append(issues, fmt.Sprintf("registry.backend: unsupported backend %q", cfg.Registry.Backend))
	}
	if cfg.Registry.Backend == "postgres" && strings.TrimSpace(cfg.Registry.DSN) == "" {
		issues = append(issues, "registry.dsn: required when registry.backend is \"postgres\"")
	}

	if cfg.Session.AutoWakeWindow < 0 {
		issues = append(issues, "session.auto_wake_window: must not be negative")
	}
	if cfg.Session.SubscriberQueueSize <= 0 {
		issues = append(issues, "session.subscriber_queue_size: must be positive")
	}

	if cfg.Providers.Claude.Transport != "" && cfg.Providers.Claude.Transport != "direct" && cfg.Providers.Claude.Transport != "bedrock" {
		issues = append(issues, fmt.Sprintf("providers.claude.transport: unsupported transport %q", cfg.Providers.Claude.Transport))
	}
	if cfg.Providers.OpenCode.Backend != "" && cfg.Providers.OpenCode.Backend != "default" && cfg.Providers.OpenCode.Backend != "genai" {
		issues = append(issues, fmt.Sprintf("providers.opencode.backend: unsupported backend %q", cfg.Providers.OpenCode.Backend))
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level: unsupported level %q", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format: unsupported format %q", cfg.Logging.Format))
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
