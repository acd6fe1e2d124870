package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects on the local filesystem under a base directory and
// serves them from a static URL prefix.
type LocalStore struct {
	baseDir string
	baseURL string
}

func NewLocalStore(baseDir, baseURL string) *LocalStore {
	return &LocalStore{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/")}
}

// BaseDir returns the directory objects are written under.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	destPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

// ObjectPath maps an object key to its path on disk.
func (s *LocalStore) ObjectPath(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}
