package virtualfs

import (
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// SliceDirStream implements fs.DirStream over a fixed slice of
// entries, for the synthetic .dibs and .dibs/conflicts directories
// (which never need the backing readdir machinery).
type SliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

// NewSliceDirStream returns a DirStream that yields entries in order.
func NewSliceDirStream(entries []fuse.DirEntry) *SliceDirStream {
	return &SliceDirStream{entries: entries}
}

func (s *SliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *SliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *SliceDirStream) Close() {}
