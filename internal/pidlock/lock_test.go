package pidlock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func lockPath(home, listenAddr string) string {
	return filepath.Join(home, pidsDir, ListenKey(listenAddr))
}

func TestAcquireAndRelease(t *testing.T) {
	home := t.TempDir()

	handle, err := Acquire(Options{Home: home, ListenAddr: "127.0.0.1:8787", SockPath: "/tmp/paseo.sock"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if handle.Payload.PID != os.Getpid() {
		t.Fatalf("payload pid = %d, want %d", handle.Payload.PID, os.Getpid())
	}

	if _, err := Acquire(Options{Home: home, ListenAddr: "127.0.0.1:8787"}); err != nil {
		t.Fatalf("re-acquire by same process should succeed, got %v", err)
	}

	if err := handle.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if _, err := os.Stat(lockPath(home, "127.0.0.1:8787")); !os.IsNotExist(err) {
		t.Fatalf("expected lock file removed, stat err = %v", err)
	}
}

func TestAcquireFailsWhileHeldByLiveOtherProcess(t *testing.T) {
	home := t.TempDir()
	path := lockPath(home, "127.0.0.1:9000")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	writeLockFile(t, path, Payload{PID: os.Getppid(), StartedAt: time.Now()})

	if _, err := Acquire(Options{Home: home, ListenAddr: "127.0.0.1:9000"}); err == nil {
		t.Fatal("expected Acquire to fail against a lock owned by a different live pid")
	}
}

func TestAcquireReclaimsDeadOwner(t *testing.T) {
	home := t.TempDir()
	path := lockPath(home, "127.0.0.1:9001")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	writeLockFile(t, path, Payload{PID: deadPID(t), StartedAt: time.Now().Add(-time.Hour), Hostname: "h", UID: 0})

	handle, err := Acquire(Options{Home: home, ListenAddr: "127.0.0.1:9001"})
	if err != nil {
		t.Fatalf("Acquire over stale lock: %v", err)
	}
	defer handle.Release()
}

func TestMigratesLegacyLockFile(t *testing.T) {
	home := t.TempDir()
	legacy := filepath.Join(home, legacyFileName)
	writeLockFile(t, legacy, Payload{PID: deadPID(t), StartedAt: time.Now()})

	handle, err := Acquire(Options{Home: home, ListenAddr: "127.0.0.1:8787"})
	if err != nil {
		t.Fatalf("Acquire after legacy migration: %v", err)
	}
	defer handle.Release()

	if _, err := os.Stat(lockPath(home, "127.0.0.1:8787")); err != nil {
		t.Fatalf("expected migrated lock at new path: %v", err)
	}
}

func TestListPidLocksFindsStaleOwner(t *testing.T) {
	home := t.TempDir()
	path := lockPath(home, "127.0.0.1:8787")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	writeLockFile(t, path, Payload{PID: deadPID(t), StartedAt: time.Now()})

	locks, err := ListPidLocks(home)
	if err != nil {
		t.Fatalf("ListPidLocks: %v", err)
	}
	if len(locks) != 1 || !locks[0].Stale {
		t.Fatalf("locks = %+v, want one stale entry", locks)
	}
}

func TestGCRemovesStaleLocksOnly(t *testing.T) {
	home := t.TempDir()
	stalePath := lockPath(home, "127.0.0.1:8787")
	livePath := lockPath(home, "127.0.0.1:8788")
	if err := os.MkdirAll(filepath.Dir(stalePath), 0o755); err != nil {
		t.Fatal(err)
	}
	writeLockFile(t, stalePath, Payload{PID: deadPID(t), StartedAt: time.Now()})
	writeLockFile(t, livePath, Payload{PID: os.Getpid(), StartedAt: time.Now()})

	removed, err := GC(home)
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if len(removed) != 1 || removed[0] != stalePath {
		t.Fatalf("removed = %v, want only %s", removed, stalePath)
	}
	if _, err := os.Stat(livePath); err != nil {
		t.Fatalf("expected live lock left in place: %v", err)
	}
}

func TestListenKeyFormsForDifferentAddressKinds(t *testing.T) {
	if got := ListenKey("127.0.0.1:8787"); got != "127.0.0.1_8787.pid" {
		t.Fatalf("host:port key = %q", got)
	}
	if got := ListenKey("/tmp/paseo.sock"); got == "" || got == "127.0.0.1_8787.pid" {
		t.Fatalf("unix socket key unexpectedly empty or collided: %q", got)
	}
}

func writeLockFile(t *testing.T, path string, payload Payload) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// deadPID returns a PID very unlikely to belong to a live process.
func deadPID(t *testing.T) int {
	t.Helper()
	return 1 << 30
}
