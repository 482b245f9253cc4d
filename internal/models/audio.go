package models

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
)

// AudioSource is an opaque handle to a recording that a transcriber can read.
type AudioSource interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads a recording from the local filesystem.
type FileSource struct {
	Path string
}

// Name returns the base name of the file.
func (f FileSource) Name() string {
	return filepath.Base(f.Path)
}

// Open opens the file for reading.
func (f FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// MemorySource holds an encoded recording in memory.
type MemorySource struct {
	Label string
	Data  []byte
}

// Name returns the label of the recording.
func (m MemorySource) Name() string {
	return m.Label
}

// Open returns a reader over the in-memory bytes.
func (m MemorySource) Open(_ context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.Data)), nil
}
