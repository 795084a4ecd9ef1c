package virtualfs

import (
	"encoding/json"
	"time"

	"github.com/dibs-fs/dibs/internal/cas"
)

// Status mirrors the wire format of .dibs/status.
type Status struct {
	TrackedFiles  int    `json:"tracked_files"`
	ActiveLocks   int    `json:"active_locks"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	SessionID     string `json:"session_id"`
}

// StatusJSON renders .dibs/status: tracked-file and active-lock counts
// from table, process uptime computed from (now - start), and the
// mount's session-id label.
func StatusJSON(table *cas.Table, now, start time.Time, sessionID string) ([]byte, error) {
	status := Status{
		TrackedFiles:  table.TrackedFiles(),
		ActiveLocks:   table.ActiveLocks(),
		UptimeSeconds: int64(now.Sub(start).Seconds()),
		SessionID:     sessionID,
	}
	return json.Marshal(status)
}

// LockEntry mirrors one element of the .dibs/locks JSON array.
type LockEntry struct {
	Path       string  `json:"path"`
	WriteOwner *uint64 `json:"write_owner"`
	LastAccess string  `json:"last_access"`
}

// LocksJSON renders .dibs/locks: one entry per tracked path.
func LocksJSON(table *cas.Table) ([]byte, error) {
	snapshot := table.Locks()
	entries := make([]LockEntry, 0, len(snapshot))
	for _, info := range snapshot {
		entries = append(entries, LockEntry{
			Path:       info.Path,
			WriteOwner: info.WriteOwner,
			LastAccess: info.LastAccess.UTC().Format(time.RFC3339),
		})
	}
	return json.Marshal(entries)
}
