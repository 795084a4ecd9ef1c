package occ

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dibs-fs/dibs/internal/cas"
	"github.com/dibs-fs/dibs/internal/handles"
	"github.com/dibs-fs/dibs/internal/hash"
)

// RefusalRecorder receives a notification every time the engine
// refuses a mutating operation. Implementations are expected to be
// cheap and non-blocking (e.g. incrementing a Prometheus counter).
type RefusalRecorder interface {
	RecordRefusal(reason string)
}

// Engine is the concurrency-control engine. It owns no backing file
// descriptors itself; it decides whether a mutating operation may
// proceed and updates the CAS table and handle table accordingly,
// leaving the actual backing syscalls to the kernel adapter.
type Engine struct {
	CAS     *cas.Table
	Handles *handles.Table

	// BackingRoot is the real directory the mount mediates.
	BackingRoot string

	// Sum computes the content digest of a backing-relative path.
	// Defaults to hash.Sum wrapped to resolve against BackingRoot; a
	// test may override this to avoid touching the filesystem.
	Sum func(fullPath string) ([]byte, error)

	// Logger receives a structured line for every refusal and I/O
	// failure. May be nil.
	Logger *slog.Logger

	// Metrics, if set, is notified of every refusal.
	Metrics RefusalRecorder
}

// NewEngine returns an Engine wired against casTable and handleTable,
// resolving backing-relative paths under backingRoot with the default
// hash.Sum implementation.
func NewEngine(casTable *cas.Table, handleTable *handles.Table, backingRoot string, logger *slog.Logger) *Engine {
	return &Engine{
		CAS:         casTable,
		Handles:     handleTable,
		BackingRoot: backingRoot,
		Sum:         hash.Sum,
		Logger:      logger,
	}
}

func (e *Engine) full(relPath string) string {
	return filepath.Join(e.BackingRoot, relPath)
}

func (e *Engine) refuse(kind Kind, relPath string, cause error) error {
	err := &Error{Kind: kind, Path: relPath, Err: cause}
	if e.Logger != nil {
		e.Logger.Warn("occ refusal", "kind", kind.String(), "path", relPath, "error", cause)
	}
	if e.Metrics != nil {
		e.Metrics.RecordRefusal(kind.String())
	}
	return err
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// OpenForRead implements §4.5.1: compute the current hash, record a
// fresh receipt, and allocate a handle carrying that hash. rw is true
// for O_RDWR opens (the handle is read-capable either way, which is
// what OpenForRead means: hash_at_open is always present).
func (e *Engine) OpenForRead(sid uint32, relPath string, rw bool) (uint64, error) {
	h, err := e.Sum(e.full(relPath))
	if err != nil {
		return 0, e.refuse(KindIO, relPath, err)
	}
	e.CAS.TouchReader(sid, relPath, h)
	handleID := e.Handles.Open(relPath, sid, rw, h)
	return handleID, nil
}

// OpenForWrite implements §4.5.2: the pre-truncation hash is computed
// before the adapter performs the real (possibly truncating) open.
// Returns the handle ID on success; the caller is expected to perform
// the actual backing open only after this returns nil error.
func (e *Engine) OpenForWrite(sid uint32, relPath string) (uint64, error) {
	preHash, err := e.Sum(e.full(relPath))
	if err != nil {
		return 0, e.refuse(KindIO, relPath, err)
	}
	if err := e.checkWriteOCC(sid, relPath, preHash); err != nil {
		return 0, err
	}
	return e.acquireWriteHandle(sid, relPath)
}

// Create implements the O_CREAT path from §4.5.7: if the path does
// not yet exist, this is a blind creation (no OCC check, per
// §4.5.6); if it already exists, it follows the same protocol as
// OpenForWrite.
func (e *Engine) Create(sid uint32, relPath string) (uint64, error) {
	preHash, err := e.Sum(e.full(relPath))
	switch {
	case err == nil:
		if err := e.checkWriteOCC(sid, relPath, preHash); err != nil {
			return 0, err
		}
	case isNotExist(err):
		// Blind creation: no prior content to compare against.
	default:
		return 0, e.refuse(KindIO, relPath, err)
	}
	return e.acquireWriteHandle(sid, relPath)
}

// checkWriteOCC and acquireWriteHandle run as two separate cas.Table
// critical sections rather than one lock held across the whole
// decision (the hash in between is computed against the backing file,
// outside any lock). This diverges from holding a single per-path lock
// across the full decision; it stays correct because
// TryAcquireWriter/ConfirmOrAcquireWriter are themselves atomic, so a
// second session racing the same window still loses deterministically
// with OwnershipBusy rather than silently overwriting the first.
func (e *Engine) checkWriteOCC(sid uint32, relPath string, preHash []byte) error {
	prev, ok := e.CAS.GetReader(sid, relPath)
	if !ok {
		return nil // blind write: this session never observed the file
	}
	if !bytes.Equal(prev, preHash) {
		return e.refuse(KindStaleView, relPath, nil)
	}
	return nil
}

func (e *Engine) acquireWriteHandle(sid uint32, relPath string) (uint64, error) {
	handleID := e.Handles.Open(relPath, sid, true, nil)
	e.CAS.RecordWriteOpen(relPath)
	if !e.CAS.TryAcquireWriter(relPath, handleID) {
		e.Handles.Release(handleID)
		return 0, e.refuse(KindOwnershipBusy, relPath, nil)
	}
	return handleID, nil
}

// Write implements §4.5.3: the common case (a handle that already
// holds write ownership from OpenForWrite/Create) passes straight
// through. The rare case — an O_RDWR handle writing without having
// gone through the open-time write protocol — performs a
// belt-and-suspenders OCC check against the live hash before
// attempting ownership acquisition.
func (e *Engine) Write(handleID uint64) error {
	rec, ok := e.Handles.Get(handleID)
	if !ok {
		return e.refuse(KindIO, "", fmt.Errorf("write to unknown handle %d", handleID))
	}
	if e.CAS.IsWriteOwner(rec.Path, handleID) {
		return nil
	}

	current, err := e.Sum(e.full(rec.Path))
	if err != nil {
		return e.refuse(KindIO, rec.Path, err)
	}
	if prev, hasReceipt := e.CAS.GetReader(rec.SID, rec.Path); hasReceipt && !bytes.Equal(prev, current) {
		return e.refuse(KindStaleView, rec.Path, nil)
	}
	if !e.CAS.ConfirmOrAcquireWriter(rec.Path, handleID) {
		return e.refuse(KindOwnershipBusy, rec.Path, nil)
	}
	return nil
}

// Flush implements §4.5.4: a write-holding handle's flush rehashes the
// backing file, refreshes the session's receipt to match what it just
// produced, and releases write ownership. Flush on a non-write handle
// is a no-op.
func (e *Engine) Flush(handleID uint64) error {
	rec, ok := e.Handles.Get(handleID)
	if !ok {
		return e.refuse(KindIO, "", fmt.Errorf("flush of unknown handle %d", handleID))
	}
	if !rec.WriteFlag {
		return nil
	}

	newHash, err := e.Sum(e.full(rec.Path))
	if err != nil {
		return e.refuse(KindIO, rec.Path, err)
	}
	e.CAS.TouchReader(rec.SID, rec.Path, newHash)
	e.CAS.ReleaseWriter(rec.Path, handleID)
	return nil
}

// Release closes handleID: drops the handle record and releases write
// ownership if still held (a handle that flushed already released it;
// this is a safe no-op in that case).
func (e *Engine) Release(handleID uint64) {
	rec, ok := e.Handles.Release(handleID)
	if !ok {
		return
	}
	e.CAS.ReleaseWriter(rec.Path, handleID)
}

// checkMutation implements the shared receipt-check half of §4.5.5:
// permit unconditionally if the session holds no receipt for relPath,
// otherwise require the live hash to match the receipt.
func (e *Engine) checkMutation(sid uint32, relPath string) error {
	prev, ok := e.CAS.GetReader(sid, relPath)
	if !ok {
		return nil
	}
	current, err := e.Sum(e.full(relPath))
	if err != nil {
		return e.refuse(KindIO, relPath, err)
	}
	if !bytes.Equal(prev, current) {
		return e.refuse(KindStaleView, relPath, nil)
	}
	return nil
}

// Unlink implements §4.5.5 for removal: on success, all tracking for
// relPath is dropped since the backing file no longer exists.
func (e *Engine) Unlink(sid uint32, relPath string) error {
	if err := e.checkMutation(sid, relPath); err != nil {
		return err
	}
	e.CAS.Remove(relPath)
	e.CAS.Invalidate(relPath)
	return nil
}

// Rename implements §4.5.5 for rename: both the source and any
// pre-existing destination are checked. On success, tracking re-keys
// from oldPath to newPath (the resolved open question in SPEC_FULL.md
// §9.1 — a rename is the same logical content living at a new path
// from the renaming session's point of view).
func (e *Engine) Rename(sid uint32, oldPath, newPath string) error {
	if err := e.checkMutation(sid, oldPath); err != nil {
		return err
	}
	if err := e.checkMutation(sid, newPath); err != nil {
		return err
	}
	e.CAS.Rename(oldPath, newPath)
	return nil
}

// Truncate implements the setattr-size-change case from §4.5.7: a
// size change is a mutation and is checked exactly like unlink/rename.
// A metadata-only setattr (no size change) should never call this.
func (e *Engine) Truncate(sid uint32, relPath string) error {
	return e.checkMutation(sid, relPath)
}

// ObserveMutation refreshes sid's receipt for relPath to the file's
// current hash. Called after a successful non-handle-based mutation
// (e.g. a setattr truncate) so a later operation by the same session
// does not spuriously see its own change as a stale view.
func (e *Engine) ObserveMutation(sid uint32, relPath string) error {
	h, err := e.Sum(e.full(relPath))
	if err != nil {
		return e.refuse(KindIO, relPath, err)
	}
	e.CAS.TouchReader(sid, relPath, h)
	return nil
}
