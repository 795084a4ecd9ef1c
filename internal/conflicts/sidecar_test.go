package conflicts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dibs-fs/dibs/lib/clock"
)

func TestSaveWritesPayloadUnderDir(t *testing.T) {
	dir := t.TempDir()
	sidecar := &Sidecar{Dir: filepath.Join(dir, "conflicts"), Clock: clock.Fake(time.Unix(100, 0))}

	savedPath, err := sidecar.Save("project/notes.txt", []byte("attempted content"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !strings.HasSuffix(savedPath, "notes.txt") {
		t.Errorf("saved path = %q, want suffix notes.txt", savedPath)
	}
	data, err := os.ReadFile(savedPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "attempted content" {
		t.Errorf("saved content = %q, want %q", data, "attempted content")
	}
}

func TestSaveNamesAreUniqueAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	sidecar := &Sidecar{Dir: dir, Clock: clock.Fake(time.Unix(100, 0))}

	p1, err := sidecar.Save("f", []byte("a"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	p2, err := sidecar.Save("f", []byte("b"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if p1 == p2 {
		t.Errorf("two saves for the same path produced the same file: %q", p1)
	}
}
