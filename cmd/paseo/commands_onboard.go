package main

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func buildOnboardCmd() *cobra.Command {
	var (
		listen       string
		port         int
		home         string
		allowedHosts []string
		timeoutSec   int
	)

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Start paseod detached and wait for it to become ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := resolveListenAddr(listen, port)
			if err != nil {
				return invalidArgsError("%v", err)
			}
			homeDir := envOrDefault("PASEO_HOME", defaultHome())
			if home != "" {
				homeDir = home
			}
			return runOnboard(addr, homeDir, allowedHosts, time.Duration(timeoutSec)*time.Second)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (host:port)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port on 127.0.0.1 (alternative to --listen)")
	cmd.Flags().StringVar(&home, "home", "", "PASEO_HOME override")
	cmd.Flags().StringSliceVar(&allowedHosts, "allowed-hosts", nil, "Host header allowlist entries")
	cmd.Flags().Bool("no-relay", false, "(accepted, no effect: relay server is out of scope)")
	cmd.Flags().Bool("no-mcp", false, "(accepted, no effect: MCP wiring is out of scope)")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 15, "seconds to wait for daemon readiness")

	return cmd
}

func resolveListenAddr(listen string, port int) (string, error) {
	switch {
	case listen != "" && port != 0:
		return "", fmt.Errorf("specify --listen or --port, not both")
	case listen != "":
		return listen, nil
	case port != 0:
		return fmt.Sprintf("127.0.0.1:%d", port), nil
	default:
		return envOrDefault("PASEO_LISTEN", "127.0.0.1:7890"), nil
	}
}

func runOnboard(addr, home string, allowedHosts []string, timeout time.Duration) error {
	bin, err := paseodBinaryPath()
	if err != nil {
		return err
	}

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"PASEO_LISTEN="+addr,
		"PASEO_HOME="+home,
	)
	if len(allowedHosts) > 0 {
		cmd.Env = append(cmd.Env, "PASEO_ALLOWED_HOSTS="+joinCSV(allowedHosts))
	}
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start paseod: %w", err)
	}

	if err := waitForReady(addr, timeout); err != nil {
		return fmt.Errorf("paseod did not become ready: %w", err)
	}

	fmt.Printf("paseod ready, pid=%d, listen=%s, home=%s\n", cmd.Process.Pid, addr, home)
	return nil
}

func paseodBinaryPath() (string, error) {
	if p, err := exec.LookPath("paseod"); err == nil {
		return p, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate paseod: %w", err)
	}
	sibling := filepath.Join(filepath.Dir(self), "paseod")
	if _, err := os.Stat(sibling); err == nil {
		return sibling, nil
	}
	return "", fmt.Errorf("paseod binary not found in PATH or next to paseo")
}

func waitForReady(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("timed out after %s", timeout)
}

func joinCSV(entries []string) string {
	out := ""
	for i, e := range entries {
		if i > 0 {
			out += ","
		}
		out += e
	}
	return out
}
