package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps artifacts on the local filesystem under a root
// directory. It is the default store for development and the fallback when
// Google Drive is not configured.
type LocalStorage struct {
	rootDir string
	baseURL string
}

// NewLocalStorage creates a local object store rooted at rootDir. baseURL
// prefixes returned read URLs (e.g. "/media").
func NewLocalStorage(rootDir, baseURL string) *LocalStorage {
	return &LocalStorage{rootDir: rootDir, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Put writes the object, creating parent directories as needed.
func (ls *LocalStorage) Put(_ context.Context, path string, data []byte, _ string) (string, error) {
	full := filepath.Join(ls.rootDir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	return ls.url(path), nil
}

// ReadURL returns the URL the object would be served from.
func (ls *LocalStorage) ReadURL(_ context.Context, path string) (string, error) {
	return ls.url(path), nil
}

// Exists checks for the object on disk.
func (ls *LocalStorage) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(filepath.Join(ls.rootDir, filepath.FromSlash(path)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// RootDir exposes the storage root for the file-serving route.
func (ls *LocalStorage) RootDir() string { return ls.rootDir }

func (ls *LocalStorage) url(path string) string {
	return ls.baseURL + "/" + strings.TrimPrefix(path, "/")
}
