package fsadapter

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/dibs-fs/dibs/internal/cas"
	"github.com/dibs-fs/dibs/internal/conflicts"
	"github.com/dibs-fs/dibs/internal/handles"
	"github.com/dibs-fs/dibs/internal/occ"
	"github.com/dibs-fs/dibs/internal/virtualfs"
	"github.com/dibs-fs/dibs/lib/clock"
)

// fuseAvailable skips the test when /dev/fuse is not accessible in
// this environment (e.g. a sandboxed CI container).
func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
}

func testMount(t *testing.T, opts func(*Options)) (mountpoint, backing string, casTable *cas.Table) {
	t.Helper()
	fuseAvailable(t)

	root := t.TempDir()
	backing = filepath.Join(root, "backing")
	mountpoint = filepath.Join(root, "mount")
	if err := os.MkdirAll(backing, 0o755); err != nil {
		t.Fatalf("MkdirAll backing: %v", err)
	}

	clk := clock.Real()
	casTable = cas.NewTable(clk)
	engine := occ.NewEngine(casTable, handles.NewTable(), backing, nil)
	metrics := virtualfs.NewMetrics(casTable)
	engine.Metrics = metrics

	options := Options{
		Mountpoint: mountpoint,
		BackingRoot: backing,
		Engine:      engine,
		Metrics:     metrics,
		Clock:       clk,
		SessionID:   "test-session",
	}
	if opts != nil {
		opts(&options)
	}

	server, err := Mount(options)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})

	return mountpoint, backing, casTable
}

func TestMountRootListsDibs(t *testing.T) {
	mountpoint, backing, _ := testMount(t, nil)
	if err := os.WriteFile(filepath.Join(backing, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	entries, err := os.ReadDir(mountpoint)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name()] = true
	}
	if !names[".dibs"] {
		t.Error("missing .dibs in root listing")
	}
}

func TestMountStatusAndLocksAreValidJSON(t *testing.T) {
	mountpoint, _, _ := testMount(t, nil)

	statusBytes, err := os.ReadFile(filepath.Join(mountpoint, ".dibs", "status"))
	if err != nil {
		t.Fatalf("ReadFile status: %v", err)
	}
	var status virtualfs.Status
	if err := json.Unmarshal(statusBytes, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.SessionID != "test-session" {
		t.Errorf("session_id = %q, want test-session", status.SessionID)
	}

	locksBytes, err := os.ReadFile(filepath.Join(mountpoint, ".dibs", "locks"))
	if err != nil {
		t.Fatalf("ReadFile locks: %v", err)
	}
	var locks []virtualfs.LockEntry
	if err := json.Unmarshal(locksBytes, &locks); err != nil {
		t.Fatalf("unmarshal locks: %v", err)
	}
}

func TestMountMetricsServedAsPrometheusText(t *testing.T) {
	mountpoint, _, _ := testMount(t, nil)

	data, err := os.ReadFile(filepath.Join(mountpoint, ".dibs", "metrics"))
	if err != nil {
		t.Fatalf("ReadFile metrics: %v", err)
	}
	if !strings.Contains(string(data), "dibs_tracked_files") {
		t.Errorf("metrics output missing dibs_tracked_files:\n%s", data)
	}
}

func TestMountDibsIsReadOnly(t *testing.T) {
	mountpoint, _, _ := testMount(t, nil)

	err := os.WriteFile(filepath.Join(mountpoint, ".dibs", "status"), []byte("x"), 0o644)
	if !errors.Is(err, syscall.EACCES) {
		t.Fatalf("writing existing file under .dibs: err = %v, want EACCES", err)
	}
}

func TestMountDibsRefusesNewFile(t *testing.T) {
	mountpoint, _, _ := testMount(t, nil)

	err := os.WriteFile(filepath.Join(mountpoint, ".dibs", "new-file"), []byte("x"), 0o644)
	if !errors.Is(err, syscall.EACCES) {
		t.Fatalf("creating new file under .dibs: err = %v, want EACCES", err)
	}
}

func TestMountWriteReadRoundTrip(t *testing.T) {
	mountpoint, _, _ := testMount(t, nil)
	path := filepath.Join(mountpoint, "note.txt")

	if err := os.WriteFile(path, []byte("first version"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "first version" {
		t.Errorf("got %q, want %q", got, "first version")
	}
}

func TestMountUnlinkAndRename(t *testing.T) {
	mountpoint, _, _ := testMount(t, nil)
	a := filepath.Join(mountpoint, "a.txt")
	b := filepath.Join(mountpoint, "b.txt")

	if err := os.WriteFile(a, []byte("content"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Rename(a, b); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := os.Stat(a); err == nil {
		t.Error("source still exists after rename")
	}
	got, err := os.ReadFile(b)
	if err != nil {
		t.Fatalf("ReadFile after rename: %v", err)
	}
	if string(got) != "content" {
		t.Errorf("got %q after rename", got)
	}

	if err := os.Remove(b); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(b); err == nil {
		t.Error("file still exists after unlink")
	}
}

func TestMountHardlinkRefused(t *testing.T) {
	mountpoint, _, _ := testMount(t, nil)
	a := filepath.Join(mountpoint, "a.txt")
	b := filepath.Join(mountpoint, "b.txt")

	if err := os.WriteFile(a, []byte("content"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Link(a, b); err == nil {
		t.Fatal("expected hardlink to be refused")
	}
}

// TestMountRDWROpenDoesNotAcquireOwnershipEagerly guards against
// routing O_RDWR through the write-open protocol: that would acquire
// exclusive write ownership at open time, so two concurrent O_RDWR
// opens on the same file would spuriously collide with
// OwnershipBusy even before either one writes a byte.
func TestMountRDWROpenDoesNotAcquireOwnershipEagerly(t *testing.T) {
	mountpoint, _, _ := testMount(t, nil)
	path := filepath.Join(mountpoint, "rdwr.txt")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	first, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("first O_RDWR open: %v", err)
	}
	defer first.Close()

	second, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("second O_RDWR open: %v, want success", err)
	}
	defer second.Close()
}

// TestMountStaleWriteRefused reproduces scenario S-A through a real
// mount: a session reads a file through FUSE (recording a receipt),
// the backing content changes out from under it, and a subsequent
// write through FUSE is refused.
func TestMountStaleWriteRefused(t *testing.T) {
	mountpoint, backing, _ := testMount(t, nil)
	relPath := "shared.txt"
	backingPath := filepath.Join(backing, relPath)
	mountedPath := filepath.Join(mountpoint, relPath)

	if err := os.WriteFile(backingPath, []byte("original"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := os.ReadFile(mountedPath); err != nil {
		t.Fatalf("initial read through mount: %v", err)
	}

	// External rewrite, bypassing the mount entirely.
	if err := os.WriteFile(backingPath, []byte("someone else's change"), 0o644); err != nil {
		t.Fatalf("external rewrite: %v", err)
	}

	err := os.WriteFile(mountedPath, []byte("my change"), 0o644)
	if err == nil {
		t.Fatal("expected the stale write to be refused")
	}
}

// TestMountReadonlyFallbackDiscardsStaleWrite sets up the same stale
// scenario but with --readonly-fallback equivalent enabled, and
// expects the write call to succeed while the backing content is left
// untouched.
func TestMountReadonlyFallbackDiscardsStaleWrite(t *testing.T) {
	mountpoint, backing, _ := testMount(t, func(o *Options) {
		o.ReadonlyFallback = true
		o.Conflicts = &conflicts.Sidecar{Dir: filepath.Join(o.BackingRoot, "..", "conflicts"), Clock: clock.Real()}
	})
	relPath := "shared.txt"
	backingPath := filepath.Join(backing, relPath)
	mountedPath := filepath.Join(mountpoint, relPath)

	if err := os.WriteFile(backingPath, []byte("original"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := os.ReadFile(mountedPath); err != nil {
		t.Fatalf("initial read through mount: %v", err)
	}
	if err := os.WriteFile(backingPath, []byte("someone else's change"), 0o644); err != nil {
		t.Fatalf("external rewrite: %v", err)
	}

	if err := os.WriteFile(mountedPath, []byte("my change"), 0o644); err != nil {
		t.Fatalf("expected fallback write to report success, got: %v", err)
	}

	got, err := os.ReadFile(backingPath)
	if err != nil {
		t.Fatalf("ReadFile backing: %v", err)
	}
	if string(got) != "someone else's change" {
		t.Errorf("backing content = %q, want it left untouched", got)
	}
}
