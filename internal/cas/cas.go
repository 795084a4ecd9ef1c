package cas

import (
	"sync"
	"time"

	"github.com/dibs-fs/dibs/lib/clock"
)

// fileStateEntry is the per-path write-ownership record.
type fileStateEntry struct {
	writeOwner *uint64
	lastAccess time.Time
}

// receiptKey identifies a reader receipt.
type receiptKey struct {
	sid  uint32
	path string
}

// receiptEntry is a session's recorded observation of a path's
// content.
type receiptEntry struct {
	hash       []byte
	lastAccess time.Time
}

// LockInfo describes one tracked path's write-ownership state, for the
// virtual control surface.
type LockInfo struct {
	Path       string
	WriteOwner *uint64
	LastAccess time.Time
}

// Table is the CAS state table: one write-owner record per tracked
// path, and one reader receipt per (session, path) pair. A single
// mutex guards both maps; nearly every operation needs to read or
// update last_access alongside the decision it's making, so a plain
// mutex is used rather than a RWMutex that readers rarely benefit
// from.
type Table struct {
	mu        sync.Mutex
	clock     clock.Clock
	fileState map[string]*fileStateEntry
	receipts  map[receiptKey]*receiptEntry
}

// NewTable returns an empty CAS table driven by clk for timestamps.
func NewTable(clk clock.Clock) *Table {
	return &Table{
		clock:     clk,
		fileState: make(map[string]*fileStateEntry),
		receipts:  make(map[receiptKey]*receiptEntry),
	}
}

// TouchReader upserts the receipt for (sid, path) with hash and a
// fresh timestamp. Called on every successful read or write-flush
// observation.
func (t *Table) TouchReader(sid uint32, path string, hashBytes []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := receiptKey{sid: sid, path: path}
	hashCopy := append([]byte(nil), hashBytes...)
	t.receipts[key] = &receiptEntry{hash: hashCopy, lastAccess: t.clock.Now()}
}

// GetReader returns the hash last observed by sid for path, if any.
func (t *Table) GetReader(sid uint32, path string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.receipts[receiptKey{sid: sid, path: path}]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), entry.hash...), true
}

// RecordWriteOpen ensures a file-state entry exists for path, without
// altering any hash or write-owner field already present.
func (t *Table) RecordWriteOpen(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordWriteOpenLocked(path)
}

func (t *Table) recordWriteOpenLocked(path string) {
	if _, ok := t.fileState[path]; ok {
		t.fileState[path].lastAccess = t.clock.Now()
		return
	}
	t.fileState[path] = &fileStateEntry{lastAccess: t.clock.Now()}
}

// TryAcquireWriter atomically sets the write owner for path to
// handleID if no other handle currently owns it. Returns false if
// another handle already owns the path.
func (t *Table) TryAcquireWriter(path string, handleID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recordWriteOpenLocked(path)
	entry := t.fileState[path]
	if entry.writeOwner != nil {
		return false
	}
	id := handleID
	entry.writeOwner = &id
	entry.lastAccess = t.clock.Now()
	return true
}

// ConfirmOrAcquireWriter reports whether handleID holds write ownership
// of path after the call: if handleID already owns it, this is a no-op
// confirmation; if no one owns it, handleID acquires it; if another
// handle owns it, this returns false. Used by the write-time
// belt-and-suspenders check for handles that did not acquire ownership
// at open time (see Write in the concurrency-control engine).
func (t *Table) ConfirmOrAcquireWriter(path string, handleID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recordWriteOpenLocked(path)
	entry := t.fileState[path]
	if entry.writeOwner != nil {
		if *entry.writeOwner == handleID {
			entry.lastAccess = t.clock.Now()
			return true
		}
		return false
	}
	id := handleID
	entry.writeOwner = &id
	entry.lastAccess = t.clock.Now()
	return true
}

// ReleaseWriter clears the write owner for path, but only if handleID
// is the current owner. A no-op otherwise (including when the path has
// no file-state entry at all).
func (t *Table) ReleaseWriter(path string, handleID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.fileState[path]
	if !ok || entry.writeOwner == nil || *entry.writeOwner != handleID {
		return
	}
	entry.writeOwner = nil
	entry.lastAccess = t.clock.Now()
}

// IsWriteOwner reports whether handleID currently owns writes to
// path. Unlike ConfirmOrAcquireWriter, this never mutates state.
func (t *Table) IsWriteOwner(path string, handleID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.fileState[path]
	return ok && entry.writeOwner != nil && *entry.writeOwner == handleID
}

// HasActiveWriter reports whether path currently has a write owner.
// Observational; used by the virtual control surface.
func (t *Table) HasActiveWriter(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.fileState[path]
	return ok && entry.writeOwner != nil
}

// Invalidate deletes every session's receipt for path. Used when an
// external rewrite is detected; optional in normal operation since the
// hash-on-demand design tolerates out-of-band changes by simply
// refusing the next OCC check.
func (t *Table) Invalidate(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.receipts {
		if key.path == path {
			delete(t.receipts, key)
		}
	}
}

// Rename re-keys path's file-state entry and every session's receipt
// for path under newPath. Used by the rename protocol, which treats a
// rename as preserving each renaming session's view of the content
// under its new name (see the rename re-keying design decision).
func (t *Table) Rename(path, newPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.fileState[path]; ok {
		delete(t.fileState, path)
		t.fileState[newPath] = entry
	}

	for key, entry := range t.receipts {
		if key.path != path {
			continue
		}
		delete(t.receipts, key)
		t.receipts[receiptKey{sid: key.sid, path: newPath}] = entry
	}
}

// Remove deletes the file-state entry for path entirely (used after a
// successful unlink). Receipts are left alone; they'll be invalidated
// naturally the next time something is opened at that path, or pruned
// by eviction.
func (t *Table) Remove(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fileState, path)
}

// Evict prunes receipts and file-state entries whose last_access
// exceeds maxAge, skipping any file-state entry with a non-nil write
// owner. Returns the number of entries removed.
func (t *Table) Evict(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	removed := 0

	for path, entry := range t.fileState {
		if entry.writeOwner != nil {
			continue
		}
		if now.Sub(entry.lastAccess) > maxAge {
			delete(t.fileState, path)
			removed++
		}
	}

	for key, entry := range t.receipts {
		if now.Sub(entry.lastAccess) > maxAge {
			delete(t.receipts, key)
			removed++
		}
	}

	return removed
}

// TrackedFiles returns the number of paths with a file-state entry.
func (t *Table) TrackedFiles() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fileState)
}

// ActiveLocks returns the number of paths with a non-nil write owner.
func (t *Table) ActiveLocks() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, entry := range t.fileState {
		if entry.writeOwner != nil {
			count++
		}
	}
	return count
}

// Locks returns a snapshot of every tracked path's write-ownership
// state, for the virtual control surface.
func (t *Table) Locks() []LockInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	infos := make([]LockInfo, 0, len(t.fileState))
	for path, entry := range t.fileState {
		var owner *uint64
		if entry.writeOwner != nil {
			id := *entry.writeOwner
			owner = &id
		}
		infos = append(infos, LockInfo{
			Path:       path,
			WriteOwner: owner,
			LastAccess: entry.lastAccess,
		})
	}
	return infos
}
