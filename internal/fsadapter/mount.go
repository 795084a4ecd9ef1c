package fsadapter

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/dibs-fs/dibs/internal/conflicts"
	"github.com/dibs-fs/dibs/internal/occ"
	"github.com/dibs-fs/dibs/internal/virtualfs"
	"github.com/dibs-fs/dibs/lib/clock"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory the filesystem is mounted onto.
	Mountpoint string

	// BackingRoot is the real directory being mediated. Must match
	// Engine.BackingRoot.
	BackingRoot string

	// Engine performs every OCC decision.
	Engine *occ.Engine

	// Metrics, if set, additionally receives notification of
	// refusals this package detects on its own (currently just
	// hardlink refusal; Engine records its own refusals directly) and
	// is rendered read-only at .dibs/metrics.
	Metrics *virtualfs.Metrics

	// Clock supplies "now" for .dibs/status's uptime field.
	Clock clock.Clock

	// StartedAt is the mount's start time, for .dibs/status's
	// uptime field. Defaults to Clock.Now() at Mount time.
	StartedAt time.Time

	// SessionID labels this mount in .dibs/status.
	SessionID string

	// Conflicts, if non-nil, persists refused writes and serves
	// .dibs/conflicts/ from its directory.
	Conflicts *conflicts.Sidecar

	// ReadonlyFallback converts write-path StaleView/OwnershipBusy
	// refusals into a silent discard. Never applies to unlink or
	// rename, per the resolved open question in §9.2.
	ReadonlyFallback bool

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a text logger that
	// writes only error-level messages to stderr is used.
	Logger *slog.Logger
}

// Mount mounts the dibs FUSE filesystem at options.Mountpoint,
// mediating options.BackingRoot. The caller must call Unmount on the
// returned server when done. The mountpoint directory is created if
// it does not already exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.BackingRoot == "" {
		return nil, fmt.Errorf("backing root is required")
	}
	if options.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.StartedAt.IsZero() {
		options.StartedAt = options.Clock.Now()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &node{options: &options}
	rootData := &gofuse.LoopbackRoot{
		Path:     options.BackingRoot,
		RootNode: root,
		NewNode: func(rootData *gofuse.LoopbackRoot, parent *gofuse.Inode, name string, st *syscall.Stat_t) gofuse.InodeEmbedder {
			return &node{LoopbackNode: gofuse.LoopbackNode{RootData: rootData}, options: &options}
		},
	}
	root.LoopbackNode = gofuse.LoopbackNode{RootData: rootData}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "dibs",
			Name:       "dibs",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("dibs FUSE filesystem mounted",
		"mountpoint", options.Mountpoint,
		"backing_root", options.BackingRoot,
		"session_id", options.SessionID,
	)
	return server, nil
}
