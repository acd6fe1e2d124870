package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestObjectKeyShape(t *testing.T) {
	key := ObjectKey(7, 42, "report.pdf")
	if !strings.HasPrefix(key, "7/42/") {
		t.Fatalf("unexpected key prefix: %q", key)
	}
	if !strings.HasSuffix(key, "-report.pdf") {
		t.Fatalf("unexpected key suffix: %q", key)
	}
	if key == ObjectKey(7, 42, "report.pdf") {
		t.Fatalf("expected unique keys for repeated uploads")
	}
}

func TestObjectKeyStripsPath(t *testing.T) {
	key := ObjectKey(1, 1, "../../etc/passwd")
	if strings.Contains(key, "..") {
		t.Fatalf("path components not stripped: %q", key)
	}
	if !strings.HasSuffix(key, "-passwd") {
		t.Fatalf("expected base name only, got %q", key)
	}
}

func TestLocalStorePutAndObjectPath(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "/files")

	key := ObjectKey(3, 9, "notes.txt")
	url, err := store.Put(context.Background(), key, strings.NewReader("hello disk"), "text/plain")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "/files/"+key {
		t.Fatalf("unexpected url: %q", url)
	}

	data, err := os.ReadFile(store.ObjectPath(key))
	if err != nil {
		t.Fatalf("read stored object: %v", err)
	}
	if string(data) != "hello disk" {
		t.Fatalf("stored content mismatch: %q", data)
	}

	// Nested directories are created on demand.
	if _, err := os.Stat(filepath.Join(dir, "3", "9")); err != nil {
		t.Fatalf("expected nested directories: %v", err)
	}
}
