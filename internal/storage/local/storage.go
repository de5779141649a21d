// Package local provides a filesystem storage backend. Files are kept under
// a base directory shared with the worker, so job locators can stay file://
// URIs.
package local

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage stores files under a base path on the local filesystem.
type Storage struct {
	basePath string
}

// NewStorage creates a Storage rooted at basePath.
func NewStorage(basePath string) *Storage {
	return &Storage{basePath: basePath}
}

// Save stores the file in the given subdirectory (e.g. "uploads" or
// "processed") with the provided filename and returns its absolute path.
func (s *Storage) Save(subdir, filename string, src io.Reader) (string, error) {
	dir := filepath.Join(s.basePath, subdir)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	dstPath := filepath.Join(dir, filename)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to save file %s: %w", dstPath, err)
	}

	abs, err := filepath.Abs(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", dstPath, err)
	}

	return abs, nil
}

// Path returns the absolute path a file in subdir would have, without
// creating it.
func (s *Storage) Path(subdir, filename string) (string, error) {
	abs, err := filepath.Abs(filepath.Join(s.basePath, subdir, filename))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	return abs, nil
}

// Open opens a stored file for reading.
func (s *Storage) Open(subdir, filename string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.basePath, subdir, filename))
}

// Delete removes a file from storage.
func (s *Storage) Delete(subdir, filename string) error {
	return os.Remove(filepath.Join(s.basePath, subdir, filename))
}
