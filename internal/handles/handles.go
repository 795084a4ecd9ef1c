package handles

import (
	"sync"
	"sync/atomic"
)

// Record describes one open file handle.
type Record struct {
	Path string
	SID  uint32
	// WriteFlag is true for handles opened with write access (O_WRONLY
	// or O_RDWR).
	WriteFlag bool
	// HashAtOpen is the content digest observed at open time. Present
	// iff the open mode permitted reads (O_RDONLY or O_RDWR); nil for
	// write-only handles, which rely on receipts rather than a
	// per-handle hash.
	HashAtOpen []byte
}

// Table allocates and tracks handle records keyed by a monotonically
// increasing 64-bit ID. IDs never recur within a process lifetime.
type Table struct {
	mu      sync.RWMutex
	records map[uint64]Record
	counter atomic.Uint64
}

// NewTable returns an empty handle table. The counter starts at 1 so 0
// can be used by callers as a sentinel "no handle" value.
func NewTable() *Table {
	t := &Table{records: make(map[uint64]Record)}
	t.counter.Store(0)
	return t
}

// Open allocates a new handle ID and records its state.
func (t *Table) Open(path string, sid uint32, writeFlag bool, hashAtOpen []byte) uint64 {
	id := t.counter.Add(1)

	t.mu.Lock()
	t.records[id] = Record{
		Path:       path,
		SID:        sid,
		WriteFlag:  writeFlag,
		HashAtOpen: hashAtOpen,
	}
	t.mu.Unlock()

	return id
}

// Get returns the record for id, if it is still open.
func (t *Table) Get(id uint64) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[id]
	return rec, ok
}

// Release removes the handle's record and returns it, if it existed.
func (t *Table) Release(id uint64) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if ok {
		delete(t.records, id)
	}
	return rec, ok
}

// Len returns the number of currently open handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}
