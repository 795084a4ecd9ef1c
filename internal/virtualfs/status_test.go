package virtualfs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dibs-fs/dibs/internal/cas"
	"github.com/dibs-fs/dibs/lib/clock"
)

func TestStatusJSONFields(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	table := cas.NewTable(fake)
	table.TryAcquireWriter("f", 1)

	start := time.Unix(0, 0)
	now := start.Add(90 * time.Second)

	data, err := StatusJSON(table, now, start, "sess-1")
	if err != nil {
		t.Fatalf("StatusJSON: %v", err)
	}

	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if status.TrackedFiles != 1 {
		t.Errorf("TrackedFiles = %d, want 1", status.TrackedFiles)
	}
	if status.ActiveLocks != 1 {
		t.Errorf("ActiveLocks = %d, want 1", status.ActiveLocks)
	}
	if status.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds = %d, want 90", status.UptimeSeconds)
	}
	if status.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", status.SessionID)
	}
}

func TestLocksJSONShape(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	table := cas.NewTable(fake)
	table.TryAcquireWriter("locked.txt", 7)

	data, err := LocksJSON(table)
	if err != nil {
		t.Fatalf("LocksJSON: %v", err)
	}

	var entries []LockEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Path != "locked.txt" {
		t.Errorf("Path = %q, want locked.txt", entries[0].Path)
	}
	if entries[0].WriteOwner == nil || *entries[0].WriteOwner != 7 {
		t.Errorf("WriteOwner = %v, want 7", entries[0].WriteOwner)
	}
}
