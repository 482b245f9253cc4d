// Package chunkstore persists encoded audio chunks.
package chunkstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes a WAV chunk under key and returns where it was written.
// Both implementations satisfy audio.Persister.
type Store interface {
	Put(ctx context.Context, key string, wav []byte) (string, error)
}

// FileStore writes chunks into a local directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store writing into it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Put writes wav to dir/key atomically and returns the file path.
func (s *FileStore) Put(ctx context.Context, key string, wav []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create chunk file: %w", err)
	}
	if _, err := tmp.Write(wav); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write chunk file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close chunk file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move chunk file: %w", err)
	}
	return path, nil
}

func cleanKey(key string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + key))
	if name == "/" || name == "." || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("invalid chunk key %q", key)
	}
	return name, nil
}
