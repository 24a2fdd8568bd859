package pidlock

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAuditLogAppendsJSONLRecords(t *testing.T) {
	home := t.TempDir()

	log, err := OpenAuditLog(home)
	if err != nil {
		t.Fatalf("OpenAuditLog: %v", err)
	}

	if err := log.Record(AuditEventAcquired, "127.0.0.1_8787.pid", 42, nil); err != nil {
		t.Fatalf("Record acquired: %v", err)
	}
	if err := log.Record(AuditEventShutdownRequest, "127.0.0.1_8787.pid", 42, map[string]any{"reason": "client"}); err != nil {
		t.Fatalf("Record shutdown: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(home, pidsDir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var records []AuditRecord
	for scanner.Scan() {
		var rec AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal record: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Event != AuditEventAcquired || records[0].PID != 42 {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Event != AuditEventShutdownRequest || records[1].Detail["reason"] != "client" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}

func TestNilAuditLogIsNoOp(t *testing.T) {
	var log *AuditLog
	if err := log.Record(AuditEventAcquired, "k", 1, nil); err != nil {
		t.Fatalf("nil Record should be a no-op, got %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("nil Close should be a no-op, got %v", err)
	}
}
