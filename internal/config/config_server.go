package config

import (
	"os"
	"path/filepath"
)

// ServerConfig configures the daemon's listen address, Host-header
// allowlist, and state directory (spec §4.4 Session Hub, §4.5 PID Lock).
type ServerConfig struct {
	// Listen is the address the Session Hub's WebSocket server binds.
	Listen string `yaml:"listen"`

	// Home is PASEO_HOME: where the PID lock directory and the default
	// sqlite registry file live.
	Home string `yaml:"home"`

	// AllowedHosts is the Host-header allowlist (dot-prefix entries match
	// any subdomain); hot-reloadable via watch.go.
	AllowedHosts []string `yaml:"allowed_hosts"`
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:7890"
	}
	if cfg.Home == "" {
		cfg.Home = defaultHomeDir()
	}
}

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".paseo"
	}
	return filepath.Join(home, ".paseo")
}
