package inodes

import "math"

// SyntheticBase is the first inode number reserved for the virtual
// control surface. No backing path is ever bound to an inode at or
// above this value.
const SyntheticBase = math.MaxUint64 - 1000

// Fixed, stable inode numbers for the synthetic control surface. Their
// order never changes across a process's lifetime.
const (
	DibsDirIno = SyntheticBase + 1 + iota
	StatusIno
	LocksIno
	ConflictsDirIno
	MetricsIno
)

// IsSynthetic reports whether ino falls in the reserved range.
func IsSynthetic(ino uint64) bool {
	return ino >= SyntheticBase
}
