package csvlog

import (
	"os"
	"path/filepath"
	"testing"
)

const header = "A,B\n"

func TestOpen_CreatesWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")

	f, err := Open(path, header)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := f.Append("1,2\n"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "A,B\n1,2\n" {
		t.Errorf("file = %q", got)
	}
}

func TestOpen_LeavesExistingFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(path, []byte("old header\n9,9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(path, header)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := f.Append("1,2\n"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "old header\n9,9\n1,2\n" {
		t.Errorf("file = %q", got)
	}
}

func TestOpen_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "log.txt")
	if _, err := Open(path, header); err == nil {
		t.Fatal("Open() error = nil, want error")
	}
}

func TestAppend_RecreatesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	f, err := Open(path, header)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Append("1,2\n"); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(path, filepath.Join(dir, "log.txt.1")); err != nil {
		t.Fatal(err)
	}

	if err := f.Append("3,4\n"); err != nil {
		t.Fatalf("Append() after rotation error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log not recreated: %v", err)
	}
	if string(got) != "A,B\n3,4\n" {
		t.Errorf("file = %q", got)
	}
	rotated, _ := os.ReadFile(filepath.Join(dir, "log.txt.1"))
	if string(rotated) != "A,B\n1,2\n" {
		t.Errorf("rotated file = %q", rotated)
	}
}

func TestAppend_DirectoryRemoved(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := Open(filepath.Join(dir, "log.txt"), header)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := f.Append("1,2\n"); err == nil {
		t.Error("Append() error = nil with the log directory gone")
	}
}
