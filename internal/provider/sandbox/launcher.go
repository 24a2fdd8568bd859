//go:build linux

// Package sandbox provides an optional microVM-backed Launcher for the
// provider package. It boots a Firecracker microVM per agent process
// instead of forking the provider CLI directly on the host, and speaks the
// CLI's own stdin/stdout protocol over a vsock connection to a guest agent
// running inside the VM. Nothing in this repository selects it: the
// provider adapters are constructed with the os/exec launcher, and an
// agent's Extra["isolation"] is not read.
package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"
)

// Config controls how microVMs are booted for isolated agent processes.
type Config struct {
	KernelImagePath string
	RootFSPath      string
	WorkDir         string
	VCPUCount       int64
	MemSizeMiB      int64
	VsockCID        uint32
	GuestAgentPort  uint32
	BootTimeout     time.Duration
}

// DefaultConfig returns a Config with conservative defaults suitable for a
// single agent's subprocess.
func DefaultConfig() Config {
	return Config{
		KernelImagePath: "/var/lib/paseo/vmlinux",
		RootFSPath:      "/var/lib/paseo/rootfs.ext4",
		WorkDir:         "/var/lib/paseo/sandboxes",
		VCPUCount:       1,
		MemSizeMiB:      512,
		VsockCID:        3,
		GuestAgentPort:  52000,
		BootTimeout:     10 * time.Second,
	}
}

// Launcher boots a dedicated Firecracker microVM for every Launch call. Its
// Launch takes the same arguments as provider.Launcher's but returns
// *Process rather than provider.Process, so it does not satisfy that
// interface directly.
type Launcher struct {
	Config Config

	seq atomic.Int64
}

// NewLauncher returns a microVM-backed Launcher using cfg, taking
// VCPUCount, MemSizeMiB, GuestAgentPort and BootTimeout from DefaultConfig
// when they are zero; the other fields are used as given.
func NewLauncher(cfg Config) *Launcher {
	if cfg.VCPUCount == 0 {
		cfg.VCPUCount = DefaultConfig().VCPUCount
	}
	if cfg.MemSizeMiB == 0 {
		cfg.MemSizeMiB = DefaultConfig().MemSizeMiB
	}
	if cfg.GuestAgentPort == 0 {
		cfg.GuestAgentPort = DefaultConfig().GuestAgentPort
	}
	if cfg.BootTimeout == 0 {
		cfg.BootTimeout = DefaultConfig().BootTimeout
	}
	return &Launcher{Config: cfg}
}

// Launch boots a microVM, waits for its guest agent to accept a vsock
// connection, and returns a Process that forwards argv as the guest agent's
// command line and exposes the vsock connection as stdin/stdout.
func (l *Launcher) Launch(ctx context.Context, argv []string, cwd string, env []string) (*Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("sandbox: empty argv")
	}

	id := l.seq.Add(1)
	workDir := filepath.Join(l.Config.WorkDir, fmt.Sprintf("vm-%d-%d", time.Now().UnixNano(), id))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create work dir: %w", err)
	}
	socketPath := filepath.Join(workDir, "firecracker.sock")

	fcConfig := firecracker.Config{
		SocketPath:      socketPath,
		KernelImagePath: l.Config.KernelImagePath,
		Drives: []models.Drive{{
			DriveID:      firecracker.String("rootfs"),
			PathOnHost:   firecracker.String(l.Config.RootFSPath),
			IsRootDevice: firecracker.Bool(true),
			IsReadOnly:   firecracker.Bool(false),
		}},
		MachineCfg: models.MachineConfiguration{
			VcpuCount:  firecracker.Int64(l.Config.VCPUCount),
			MemSizeMib: firecracker.Int64(l.Config.MemSizeMiB),
		},
		VsockDevices: []firecracker.VsockDevice{{
			Path: filepath.Join(workDir, "vsock.sock"),
			CID:  l.Config.VsockCID,
		}},
	}

	cmd := firecracker.VMCommandBuilder{}.
		WithSocketPath(socketPath).
		Build(ctx)

	machine, err := firecracker.NewMachine(ctx, fcConfig, firecracker.WithProcessRunner(cmd))
	if err != nil {
		return nil, fmt.Errorf("sandbox: new machine: %w", err)
	}
	if err := machine.Start(ctx); err != nil {
		return nil, fmt.Errorf("sandbox: start machine: %w", err)
	}

	bootCtx, cancel := context.WithTimeout(ctx, l.Config.BootTimeout)
	conn, err := dialVsockWithRetry(bootCtx, filepath.Join(workDir, "vsock.sock"), l.Config.GuestAgentPort)
	cancel()
	if err != nil {
		_ = machine.StopVMM()
		return nil, fmt.Errorf("sandbox: connect guest agent: %w", err)
	}

	if err := sendLaunchFrame(conn, argv, cwd, env); err != nil {
		_ = conn.Close()
		_ = machine.StopVMM()
		return nil, fmt.Errorf("sandbox: send launch frame: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	return &Process{
		machine: machine,
		conn:    conn,
		scanner: scanner,
		workDir: workDir,
		doneCh:  make(chan struct{}),
	}, nil
}

// Process adapts a booted microVM and its vsock connection to the same
// method set as the default os/exec launcher's process type (Stdout,
// Stdin, Signal, Wait): Stdout/Stdin read and write the same
// newline-delimited JSON the guest agent relays to and from the CLI running
// inside the VM. *Process has the provider.Process method set.
type Process struct {
	machine *firecracker.Machine
	conn    net.Conn
	scanner *bufio.Scanner
	workDir string

	mu      sync.Mutex
	stopped bool
	doneCh  chan struct{}
}

// Stdout returns a scanner over the vsock connection, matching the shape of
// the default os/exec launcher's Process.
func (p *Process) Stdout() *bufio.Scanner { return p.scanner }

// Stdin returns the vsock connection for writing.
func (p *Process) Stdin() io.Writer { return p.conn }

// Signal requests the guest agent end the CLI process; cancel tears the VM
// down entirely rather than asking for a graceful stop.
func (p *Process) Signal(cancel bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	if !cancel {
		_, err := p.conn.Write([]byte(`{"op":"interrupt"}` + "\n"))
		return err
	}
	p.stopped = true
	_ = p.conn.Close()
	close(p.doneCh)
	if err := p.machine.StopVMM(); err != nil {
		return fmt.Errorf("sandbox: stop vmm: %w", err)
	}
	return os.RemoveAll(p.workDir)
}

// Wait blocks until Signal(true) has torn the microVM down.
func (p *Process) Wait() error {
	<-p.doneCh
	return nil
}

func dialVsockWithRetry(ctx context.Context, socketPath string, port uint32) (net.Conn, error) {
	addr := fmt.Sprintf("%s_%d", socketPath, port)
	for {
		conn, err := net.Dial("unix", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func sendLaunchFrame(conn net.Conn, argv []string, cwd string, env []string) error {
	frame := map[string]any{
		"op":  "launch",
		"cmd": argv,
		"cwd": cwd,
		"env": env,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(data, '\n'))
	return err
}
