// Package pidlock implements the daemon's single-writer guarantee: one
// process per listen address may hold the agent registry and socket at a
// time (spec §4.5, Agent Registry & PID Lock).
package pidlock

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// pidsDir is the subdirectory of PASEO_HOME holding one lock file per
	// listen address.
	pidsDir = "pids"
	// legacyFileName is the single-lock-file name an older daemon version
	// used directly under PASEO_HOME; migrated in as the default listen
	// key's lock on first start under the new layout.
	legacyFileName = "junction.pid"
	// staleTimeout bounds how old a lock may be, absent a live owning
	// process, before it's considered abandoned.
	staleTimeout = 30 * time.Second
)

var hostPortPattern = regexp.MustCompile(`^[a-zA-Z0-9.\-]+:[0-9]+$`)

// ListenKey derives the lock file's base name from a listen address, per
// spec §4.5: "unix sockets and bare ports are hashed or prefixed; host:port
// uses host_port.pid".
func ListenKey(listenAddr string) string {
	switch {
	case hostPortPattern.MatchString(listenAddr):
		return strings.ReplaceAll(listenAddr, ":", "_") + ".pid"
	case strings.HasPrefix(listenAddr, "/") || strings.HasPrefix(listenAddr, "unix:"):
		h := sha1.Sum([]byte(listenAddr))
		return "unix_" + hex.EncodeToString(h[:])[:12] + ".pid"
	default:
		h := sha1.Sum([]byte(listenAddr))
		return "addr_" + hex.EncodeToString(h[:])[:12] + ".pid"
	}
}

// Error is returned when the lock cannot be acquired.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Payload is the JSON document written into the lock file.
type Payload struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
	Hostname  string    `json:"hostname"`
	UID       int       `json:"uid"`
	SockPath  string    `json:"sockPath"`
}

// Handle represents a held lock. Release is typically called from a
// deferred daemon-shutdown path; calls after the first are no-ops.
type Handle struct {
	Path     string
	Payload  Payload
	file     *os.File
	released bool
}

// Release removes the lock file and closes the backing file handle. It is
// safe to call multiple times.
func (h *Handle) Release() error {
	if h == nil || h.released {
		return nil
	}
	h.released = true
	if h.file != nil {
		_ = h.file.Close()
	}
	return os.Remove(h.Path)
}

// Options configures Acquire.
type Options struct {
	// Home is $PASEO_HOME; the lock file lives at Home/pids/<ListenKey>.
	Home string
	// ListenAddr is the address this daemon instance is about to bind;
	// ListenKey(ListenAddr) names the lock file (spec §4.5).
	ListenAddr string
	// SockPath is recorded in the payload so other tooling (doctor, status)
	// can find the control socket without re-deriving it.
	SockPath string
}

// Acquire attempts to take the single-writer lock for opts.ListenAddr under
// Home/pids, migrating a legacy Home/junction.pid file in as that lock on
// first start, and reclaiming the lock if its recorded owner is no longer
// alive. If the lock is already held by this same process (re-acquire),
// Acquire succeeds and returns a handle wrapping the existing file.
func Acquire(opts Options) (*Handle, error) {
	if opts.Home == "" {
		return nil, &Error{Message: "pidlock: Home is required"}
	}
	dir := filepath.Join(opts.Home, pidsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Message: "failed to create pids directory", Cause: err}
	}

	path := filepath.Join(dir, ListenKey(opts.ListenAddr))
	migrateLegacy(opts.Home, path)

	handle, err := tryAcquire(path, opts.SockPath)
	if err == nil {
		return handle, nil
	}

	existing, readErr := readPayload(path)
	if readErr == nil && existing.PID == os.Getpid() {
		return &Handle{Path: path, Payload: existing}, nil
	}

	// A live recorded owner always keeps the lock. An unreadable lock file
	// (no known owner) is treated as abandoned once it is older than
	// staleTimeout.
	stale := !isProcessAlive(existing.PID)
	if readErr != nil {
		stale = isFileStale(path)
	}
	if !stale {
		return nil, &Error{Message: fmt.Sprintf("paseo daemon already running (pid %d)", existing.PID)}
	}

	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, &Error{Message: "failed to remove stale lock", Cause: rmErr}
	}

	handle, err = tryAcquire(path, opts.SockPath)
	if err != nil {
		return nil, &Error{Message: "failed to acquire lock after removing stale owner", Cause: err}
	}
	return handle, nil
}

func tryAcquire(path, sockPath string) (*Handle, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	payload := Payload{
		PID:       os.Getpid(),
		StartedAt: time.Now().UTC(),
		Hostname:  hostname,
		UID:       currentUID(),
		SockPath:  sockPath,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, err
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, err
	}

	return &Handle{Path: path, Payload: payload, file: file}, nil
}

func migrateLegacy(home, target string) {
	legacy := filepath.Join(home, legacyFileName)
	if _, err := os.Stat(legacy); err != nil {
		return
	}
	if _, err := os.Stat(target); err == nil {
		// A current-format lock already exists; leave the legacy file for
		// the operator to clean up rather than clobbering a live lock.
		return
	}
	_ = os.Rename(legacy, target)
}

func readPayload(path string) (Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, err
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, err
	}
	if payload.PID <= 0 {
		return Payload{}, fmt.Errorf("pidlock: invalid pid in payload")
	}
	return payload, nil
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func isFileStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > staleTimeout
}

func currentUID() int {
	u, err := user.Current()
	if err != nil {
		return -1
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return -1
	}
	return uid
}

// scanGroup collapses concurrent ListPidLocks calls against the same home
// directory into a single filesystem scan (spec §4.5 listPidLocks).
var scanGroup singleflight.Group

// PidLockInfo describes one discovered lock file under Home/pids.
type PidLockInfo struct {
	Path    string
	Payload Payload
	Stale   bool
}

// ListPidLocks enumerates every lock file under Home/pids, flagging which
// ones are stale (owning process no longer alive, or unreadable). It does
// not remove anything; callers that want garbage collection should remove
// entries with Stale == true themselves. Concurrent callers against the
// same Home share one filesystem scan via singleflight.
func ListPidLocks(home string) ([]PidLockInfo, error) {
	v, err, _ := scanGroup.Do(home, func() (any, error) {
		return listPidLocks(home)
	})
	if err != nil {
		return nil, err
	}
	return v.([]PidLockInfo), nil
}

func listPidLocks(home string) ([]PidLockInfo, error) {
	dir := filepath.Join(home, pidsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var locks []PidLockInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".pid" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		payload, err := readPayload(path)
		if err != nil {
			locks = append(locks, PidLockInfo{Path: path, Stale: true})
			continue
		}
		locks = append(locks, PidLockInfo{
			Path:    path,
			Payload: payload,
			Stale:   !isProcessAlive(payload.PID),
		})
	}
	return locks, nil
}

// GC removes every stale lock discovered by ListPidLocks and returns the
// paths it removed.
func GC(home string) ([]string, error) {
	locks, err := ListPidLocks(home)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, lock := range locks {
		if !lock.Stale {
			continue
		}
		if err := os.Remove(lock.Path); err == nil {
			removed = append(removed, lock.Path)
		}
	}
	return removed, nil
}
