package fsadapter

import (
	"context"
	"os"
	"path/filepath"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/dibs-fs/dibs/internal/inodes"
	"github.com/dibs-fs/dibs/internal/virtualfs"
)

// dibsDirNode is ".dibs": a fixed, read-only directory holding
// "status", "locks", "metrics", and — when conflict saving is enabled
// — "conflicts". Create and Mkdir on this node return EACCES, and
// every synthetic file's Open rejects write flags with EACCES. Other
// mutating calls under this subtree (creating an entry inside
// "conflicts", unlink, rename, setattr) are not overridden and get
// go-fuse's default error instead of EACCES.
type dibsDirNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*dibsDirNode)(nil)
var _ gofuse.NodeLookuper = (*dibsDirNode)(nil)
var _ gofuse.NodeReaddirer = (*dibsDirNode)(nil)
var _ gofuse.NodeCreater = (*dibsDirNode)(nil)
var _ gofuse.NodeMkdirer = (*dibsDirNode)(nil)

func (d *dibsDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	switch name {
	case "status":
		out.Mode = syscall.S_IFREG | 0o444
		return d.NewInode(ctx, &statusNode{options: d.options}, gofuse.StableAttr{
			Mode: syscall.S_IFREG, Ino: inodes.StatusIno,
		}), 0
	case "locks":
		out.Mode = syscall.S_IFREG | 0o444
		return d.NewInode(ctx, &locksNode{options: d.options}, gofuse.StableAttr{
			Mode: syscall.S_IFREG, Ino: inodes.LocksIno,
		}), 0
	case "metrics":
		if d.options.Metrics == nil {
			return nil, syscall.ENOENT
		}
		out.Mode = syscall.S_IFREG | 0o444
		return d.NewInode(ctx, &metricsNode{options: d.options}, gofuse.StableAttr{
			Mode: syscall.S_IFREG, Ino: inodes.MetricsIno,
		}), 0
	case "conflicts":
		if d.options.Conflicts == nil {
			return nil, syscall.ENOENT
		}
		out.Mode = syscall.S_IFDIR | 0o555
		return d.NewInode(ctx, &conflictsDirNode{options: d.options}, gofuse.StableAttr{
			Mode: syscall.S_IFDIR, Ino: inodes.ConflictsDirIno,
		}), 0
	default:
		return nil, syscall.ENOENT
	}
}

// Create refuses to create any new entry under ".dibs": the subtree is
// a fixed, read-only surface, so an attempted create always returns
// EACCES rather than go-fuse's default errno.
func (d *dibsDirNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, syscall.EACCES
}

// Mkdir refuses the same way Create does, for the same reason.
func (d *dibsDirNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, syscall.EACCES
}

func (d *dibsDirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries := []fuse.DirEntry{
		{Name: "status", Mode: syscall.S_IFREG, Ino: inodes.StatusIno},
		{Name: "locks", Mode: syscall.S_IFREG, Ino: inodes.LocksIno},
	}
	if d.options.Metrics != nil {
		entries = append(entries, fuse.DirEntry{Name: "metrics", Mode: syscall.S_IFREG, Ino: inodes.MetricsIno})
	}
	if d.options.Conflicts != nil {
		entries = append(entries, fuse.DirEntry{Name: "conflicts", Mode: syscall.S_IFDIR, Ino: inodes.ConflictsDirIno})
	}
	return virtualfs.NewSliceDirStream(entries), 0
}

// bytesHandle serves a fixed in-memory byte slice. Used for the
// rendered status/locks/metrics files, where the content is computed
// fresh on every Open rather than cached, so a reader always sees a
// current snapshot.
type bytesHandle struct {
	data []byte
}

var _ gofuse.FileReader = (*bytesHandle)(nil)

func (b *bytesHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off < 0 || off >= int64(len(b.data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(b.data)) {
		end = int64(len(b.data))
	}
	return fuse.ReadResultData(b.data[off:end]), 0
}

// statusNode is ".dibs/status".
type statusNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*statusNode)(nil)
var _ gofuse.NodeOpener = (*statusNode)(nil)
var _ gofuse.NodeGetattrer = (*statusNode)(nil)

func (s *statusNode) render() ([]byte, error) {
	return virtualfs.StatusJSON(s.options.Engine.CAS, s.options.Clock.Now(), s.options.StartedAt, s.options.SessionID)
}

func (s *statusNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	if data, err := s.render(); err == nil {
		out.Size = uint64(len(data))
	}
	return 0
}

func (s *statusNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EACCES
	}
	data, err := s.render()
	if err != nil {
		return nil, 0, syscall.EIO
	}
	return &bytesHandle{data: data}, fuse.FOPEN_DIRECT_IO, 0
}

// locksNode is ".dibs/locks".
type locksNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*locksNode)(nil)
var _ gofuse.NodeOpener = (*locksNode)(nil)
var _ gofuse.NodeGetattrer = (*locksNode)(nil)

func (l *locksNode) render() ([]byte, error) {
	return virtualfs.LocksJSON(l.options.Engine.CAS)
}

func (l *locksNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	if data, err := l.render(); err == nil {
		out.Size = uint64(len(data))
	}
	return 0
}

func (l *locksNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EACCES
	}
	data, err := l.render()
	if err != nil {
		return nil, 0, syscall.EIO
	}
	return &bytesHandle{data: data}, fuse.FOPEN_DIRECT_IO, 0
}

// metricsNode is ".dibs/metrics": the Prometheus registry rendered in
// text exposition format, the mount's only scrape surface since it
// runs no HTTP listener.
type metricsNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*metricsNode)(nil)
var _ gofuse.NodeOpener = (*metricsNode)(nil)
var _ gofuse.NodeGetattrer = (*metricsNode)(nil)

func (m *metricsNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	if data, err := m.options.Metrics.Render(); err == nil {
		out.Size = uint64(len(data))
	}
	return 0
}

func (m *metricsNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EACCES
	}
	data, err := m.options.Metrics.Render()
	if err != nil {
		return nil, 0, syscall.EIO
	}
	return &bytesHandle{data: data}, fuse.FOPEN_DIRECT_IO, 0
}

// conflictsDirNode is ".dibs/conflicts": a read-only view of the
// conflict sidecar directory on disk.
type conflictsDirNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*conflictsDirNode)(nil)
var _ gofuse.NodeLookuper = (*conflictsDirNode)(nil)
var _ gofuse.NodeReaddirer = (*conflictsDirNode)(nil)

func (c *conflictsDirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	dirEntries, err := os.ReadDir(c.options.Conflicts.Dir)
	if err != nil {
		return virtualfs.NewSliceDirStream(nil), 0
	}
	entries := make([]fuse.DirEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		entries = append(entries, fuse.DirEntry{Name: e.Name(), Mode: syscall.S_IFREG})
	}
	return virtualfs.NewSliceDirStream(entries), 0
}

func (c *conflictsDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	full := filepath.Join(c.options.Conflicts.Dir, name)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return nil, syscall.ENOENT
	}
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(info.Size())
	return c.NewInode(ctx, &conflictFileNode{path: full}, gofuse.StableAttr{Mode: syscall.S_IFREG}), 0
}

// conflictFileNode serves one saved conflict payload, read-only.
type conflictFileNode struct {
	gofuse.Inode
	path string
}

var _ gofuse.InodeEmbedder = (*conflictFileNode)(nil)
var _ gofuse.NodeOpener = (*conflictFileNode)(nil)
var _ gofuse.NodeGetattrer = (*conflictFileNode)(nil)

func (f *conflictFileNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	info, err := os.Stat(f.path)
	if err != nil {
		return syscall.ENOENT
	}
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(info.Size())
	return 0
}

func (f *conflictFileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EACCES
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, 0, syscall.EIO
	}
	return &bytesHandle{data: data}, fuse.FOPEN_DIRECT_IO, 0
}
