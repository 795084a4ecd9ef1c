package hash

import (
	"bytes"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSumSmallFileUsesSHA256(t *testing.T) {
	dir := t.TempDir()
	content := []byte("hello, dibs")
	path := writeFile(t, dir, "small", content)

	got, err := Sum(path)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	want := sha256.Sum256(content)
	if !bytes.Equal(got, want[:]) {
		t.Errorf("Sum(small) = %x, want %x", got, want)
	}
	if len(got) != 32 {
		t.Errorf("Sum(small) length = %d, want 32", len(got))
	}
}

func TestSumLargeFileUsesFastRegime(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("x"), Threshold+1)
	path := writeFile(t, dir, "large", content)

	got, err := Sum(path)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if len(got) != 16 {
		t.Errorf("Sum(large) length = %d, want 16 (murmur3 128-bit)", len(got))
	}
}

func TestSumIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f", []byte("repeat me"))

	a, err := Sum(path)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	b, err := Sum(path)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("Sum not deterministic: %x != %x", a, b)
	}
}

func TestSumDiffersOnContentChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f", []byte("v0"))

	h0, err := Sum(path)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	h1, err := Sum(path)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	if bytes.Equal(h0, h1) {
		t.Error("Sum did not change after content changed")
	}
}

func TestSumMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := Sum(filepath.Join(dir, "missing")); err == nil {
		t.Error("Sum(missing) = nil error, want error")
	}
}
