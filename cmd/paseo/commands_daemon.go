package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/getpaseo/paseo/internal/config"
	"github.com/getpaseo/paseo/internal/daemon"
	"github.com/getpaseo/paseo/internal/pidlock"
)

func buildDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start, stop, or inspect the running paseod instance(s)",
	}
	cmd.AddCommand(buildDaemonStartCmd(), buildDaemonStopCmd(), buildDaemonStatusCmd(), buildDaemonAuditCmd())
	return cmd
}

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect paseod's configuration file",
	}
	cmd.AddCommand(buildConfigSchemaCmd())
	return cmd
}

// buildConfigSchemaCmd prints the JSON Schema for paseod's config file, for
// editor autocomplete on the YAML/JSON5 file pointed to by PASEO_CONFIG.
func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the PASEO_CONFIG file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return fmt.Errorf("build config schema: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(append(schema, '\n'))
			return err
		},
	}
}

// buildDaemonAuditCmd lints the installed unit/plist for misconfiguration
// that would keep paseod from surviving a reboot or crash unattended.
func buildDaemonAuditCmd() *cobra.Command {
	var unitPath string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check the installed service file for common misconfiguration",
		RunE: func(cmd *cobra.Command, args []string) error {
			platform := runtime.GOOS
			if unitPath == "" {
				unitPath = daemon.ResolveServicePath(nil)
			}
			audit, err := daemon.AuditInstalledService(daemon.AuditParams{Platform: platform, SourcePath: unitPath})
			if err != nil {
				return fmt.Errorf("audit service file: %w", err)
			}
			if audit.OK {
				fmt.Println("paseo: service configuration looks good")
				return nil
			}
			for _, issue := range audit.Issues {
				fmt.Printf("[%s] %s: %s\n", issue.Level, issue.Message, issue.Detail)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&unitPath, "unit-path", "", "path to the installed unit/plist file (defaults to the platform's standard location)")
	return cmd
}

func buildDaemonStartCmd() *cobra.Command {
	var listen, home string
	var port, timeoutSec int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start paseod (equivalent to onboard, without the relay/mcp flags)",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := resolveListenAddr(listen, port)
			if err != nil {
				return invalidArgsError("%v", err)
			}
			homeDir := envOrDefault("PASEO_HOME", defaultHome())
			if home != "" {
				homeDir = home
			}
			if running, pid := daemonRunning(homeDir, addr); running {
				return pidLockCollisionError("paseod already running on %s (pid %d)", addr, pid)
			}
			return runOnboard(addr, homeDir, nil, time.Duration(timeoutSec)*time.Second)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (host:port)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port on 127.0.0.1 (alternative to --listen)")
	cmd.Flags().StringVar(&home, "home", "", "PASEO_HOME override")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 15, "seconds to wait for daemon readiness")
	return cmd
}

func buildDaemonStopCmd() *cobra.Command {
	var home string
	var all, force bool
	var timeoutSec int

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running paseod instance(s)",
		RunE: func(cmd *cobra.Command, args []string) error {
			homeDir := envOrDefault("PASEO_HOME", defaultHome())
			if home != "" {
				homeDir = home
			}
			locks, err := pidlock.ListPidLocks(homeDir)
			if err != nil {
				return fmt.Errorf("list pid locks: %w", err)
			}
			targets := selectLiveLocks(locks, all)
			if len(targets) == 0 {
				fmt.Println("paseo: no running daemon found")
				return nil
			}
			timeout := time.Duration(timeoutSec) * time.Second
			for _, lock := range targets {
				if err := stopOne(lock, timeout, force); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&home, "home", "", "PASEO_HOME override")
	cmd.Flags().BoolVar(&all, "all", false, "stop every discovered daemon instance, not just the first live one")
	cmd.Flags().BoolVar(&force, "force", false, "escalate to SIGTERM then SIGKILL if graceful shutdown stalls")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 5, "seconds to wait for each stage before escalating")
	return cmd
}

// daemonStatus is the machine-readable shape of one discovered instance,
// for `paseo daemon status --json` (SPEC_FULL §C.4: a structured health
// report consumable by scripts, grounded on the gateway doctor command's
// audit-report pattern).
type daemonStatus struct {
	State     string    `json:"state"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
	Path      string    `json:"path"`
}

func buildDaemonStatusCmd() *cobra.Command {
	var home string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report every paseod instance discovered under PASEO_HOME",
		RunE: func(cmd *cobra.Command, args []string) error {
			homeDir := envOrDefault("PASEO_HOME", defaultHome())
			if home != "" {
				homeDir = home
			}
			locks, err := pidlock.ListPidLocks(homeDir)
			if err != nil {
				return fmt.Errorf("list pid locks: %w", err)
			}

			statuses := make([]daemonStatus, 0, len(locks))
			for _, lock := range locks {
				state := "running"
				if lock.Stale {
					state = "stale"
				}
				statuses = append(statuses, daemonStatus{
					State:     state,
					PID:       lock.Payload.PID,
					StartedAt: lock.Payload.StartedAt,
					Path:      lock.Path,
				})
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}

			if len(statuses) == 0 {
				fmt.Println("paseo: no daemon instances found")
				return nil
			}
			for _, s := range statuses {
				fmt.Printf("%s\tpid=%d\tstarted=%s\t%s\n", s.State, s.PID, s.StartedAt.Format(time.RFC3339), s.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&home, "home", "", "PASEO_HOME override")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a machine-readable JSON report")
	return cmd
}

func daemonRunning(home, listenAddr string) (bool, int) {
	locks, err := pidlock.ListPidLocks(home)
	if err != nil {
		return false, 0
	}
	key := pidlock.ListenKey(listenAddr)
	for _, lock := range locks {
		if !lock.Stale && hasSuffix(lock.Path, key) {
			return true, lock.Payload.PID
		}
	}
	return false, 0
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func selectLiveLocks(locks []pidlock.PidLockInfo, all bool) []pidlock.PidLockInfo {
	var live []pidlock.PidLockInfo
	for _, lock := range locks {
		if !lock.Stale {
			live = append(live, lock)
		}
	}
	if all || len(live) <= 1 {
		return live
	}
	return live[:1]
}

func stopOne(lock pidlock.PidLockInfo, timeout time.Duration, force bool) error {
	pid := lock.Payload.PID
	if trySocketShutdown(lock, timeout) {
		fmt.Printf("paseo: pid %d shut down gracefully\n", pid)
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil && force {
		return finishWithKill(proc, pid)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !isProcessAlive(pid) {
			fmt.Printf("paseo: pid %d stopped\n", pid)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	if !force {
		return fmt.Errorf("pid %d did not stop within %s (retry with --force)", pid, timeout)
	}
	return finishWithKill(proc, pid)
}

func finishWithKill(proc *os.Process, pid int) error {
	if err := proc.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	fmt.Printf("paseo: pid %d killed\n", pid)
	return nil
}

func isProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// trySocketShutdown attempts a cooperative shutdown_server_request over the
// Hub's own WebSocket listener before falling back to signals; returns true
// only once the daemon itself confirmed the request.
func trySocketShutdown(lock pidlock.PidLockInfo, timeout time.Duration) bool {
	if lock.Payload.SockPath == "" {
		return false
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.Dial(wsURLFor(lock.Payload.SockPath), nil)
	if err != nil {
		return false
	}
	defer conn.Close()

	req := map[string]any{"type": "shutdown_server_request"}
	if err := conn.WriteJSON(req); err != nil {
		return false
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		var env struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			return false
		}
		if env.Type == "status" {
			var status struct {
				Status string `json:"status"`
			}
			_ = json.Unmarshal(env.Payload, &status)
			return status.Status == "ok"
		}
	}
}

func wsURLFor(addr string) string {
	if addr == "" {
		return ""
	}
	return "ws://" + addr + "/"
}
