// Package storage keeps uploaded utterance audio on local disk or in an
// S3-compatible bucket, and sweeps out old recordings.
//
// Stores address objects by forward-slash paths relative to their root.
// Archive names new recordings by upload day:
//
//	utterances/YYYY/MM/DD/{uuid}.wav
package storage

import (
	"context"
	"io"
	"iter"
	"time"
)

// Object describes one stored file.
type Object struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FileStore is a minimal interface for file-oriented storage.
//
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading. The caller must close it.
	// A missing file yields an error wrapping os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating any existing
	// content. The caller must close the writer to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List iterates over files whose path starts with prefix, in
	// lexicographic order.
	List(ctx context.Context, prefix string) iter.Seq2[Object, error]
}
