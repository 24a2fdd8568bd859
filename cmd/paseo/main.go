// Command paseo is the thin operational CLI around paseod: it starts the
// daemon detached, waits for readiness, and drives its lifecycle (start,
// stop, status) without itself implementing any orchestration logic.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes (spec §6).
const (
	exitOK             = 0
	exitGeneric        = 1
	exitInvalidArgs    = 2
	exitPidLockCollide = 3
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "paseo",
		Short:        "Paseo daemon operational CLI",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	cmd.AddCommand(buildOnboardCmd(), buildDaemonCmd(), buildConfigCmd())
	return cmd
}

// exitCodeFor maps a returned error to one of spec §6's exit codes;
// RunE implementations wrap with the *cliError helpers below to opt in to
// a non-generic code.
func exitCodeFor(err error) int {
	var cliErr *cliError
	if asCliError(err, &cliErr) {
		fmt.Fprintln(os.Stderr, "paseo:", cliErr.message)
		return cliErr.code
	}
	fmt.Fprintln(os.Stderr, "paseo:", err)
	return exitGeneric
}

type cliError struct {
	code    int
	message string
}

func (e *cliError) Error() string { return e.message }

func asCliError(err error, target **cliError) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*cliError); ok {
		*target = ce
		return true
	}
	return false
}

func invalidArgsError(format string, args ...any) error {
	return &cliError{code: exitInvalidArgs, message: fmt.Sprintf(format, args...)}
}

func pidLockCollisionError(format string, args ...any) error {
	return &cliError{code: exitPidLockCollide, message: fmt.Sprintf(format, args...)}
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".paseo"
	}
	return filepath.Join(home, ".paseo")
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
