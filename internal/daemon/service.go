// Package daemon resolves where paseod's service unit/plist would live on
// disk, so `paseo daemon audit` can lint whatever an operator hand-wrote or
// generated for it without this repo generating or installing one itself
// (spec §1 scopes out anything beyond daemon start/stop/status; the
// install/uninstall/service-generator surface this package's teacher
// shipped has no corresponding SPEC_FULL.md operation and was dropped).
package daemon

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Constants for service names and labels, kept for path resolution and for
// any hand-installed unit/plist an operator names after them.
const (
	// DefaultLaunchdLabel is the conventional label for a macOS LaunchAgent.
	DefaultLaunchdLabel = "com.getpaseo.paseod"

	// DefaultSystemdServiceName is the conventional name for a Linux
	// systemd user service.
	DefaultSystemdServiceName = "paseod"
)

// Environment variable names for overriding the defaults above.
const (
	EnvPaseoProfile      = "PASEO_PROFILE"
	EnvPaseoLaunchdLabel = "PASEO_LAUNCHD_LABEL"
	EnvPaseoSystemdUnit  = "PASEO_SYSTEMD_UNIT"
)

// ResolveServicePath returns the path of the unit/plist `paseo daemon
// audit` would read by default for this platform. Windows scheduled tasks
// have no single file to point at, so it returns "".
func ResolveServicePath(env map[string]string) string {
	switch runtime.GOOS {
	case "darwin":
		return resolveLaunchdPlistPath(env)
	case "linux":
		return resolveSystemdUnitPath(env)
	default:
		return ""
	}
}

func resolveHomeDir(env map[string]string) string {
	if home := env["HOME"]; home != "" {
		return home
	}
	if home := env["USERPROFILE"]; home != "" {
		return home
	}
	return ""
}

func resolveProfile(env map[string]string) string {
	profile := env[EnvPaseoProfile]
	if profile == "" || strings.EqualFold(profile, "default") {
		return ""
	}
	return profile
}

func resolveSystemdServiceName(env map[string]string) string {
	if override := strings.TrimSpace(env[EnvPaseoSystemdUnit]); override != "" {
		return strings.TrimSuffix(override, ".service")
	}
	if profile := resolveProfile(env); profile != "" {
		return DefaultSystemdServiceName + "-" + profile
	}
	return DefaultSystemdServiceName
}

func resolveSystemdUnitPath(env map[string]string) string {
	home := resolveHomeDir(env)
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".config", "systemd", "user", resolveSystemdServiceName(env)+".service")
}

func resolveLaunchdLabel(env map[string]string) string {
	if label := strings.TrimSpace(env[EnvPaseoLaunchdLabel]); label != "" {
		return label
	}
	if profile := resolveProfile(env); profile != "" {
		return DefaultLaunchdLabel + "." + profile
	}
	return DefaultLaunchdLabel
}

func resolveLaunchdPlistPath(env map[string]string) string {
	home := resolveHomeDir(env)
	if home == "" {
		home = "."
	}
	return filepath.Join(home, "Library", "LaunchAgents", resolveLaunchdLabel(env)+".plist")
}
