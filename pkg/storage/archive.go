package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ArchivePrefix is the directory new recordings are written under.
const ArchivePrefix = "utterances/"

// DefaultMaxAge is how long archived audio is kept by default.
const DefaultMaxAge = 24 * time.Hour

// ArchivePath returns a fresh object path for a recording received at now.
func ArchivePath(now time.Time) string {
	return path.Join(ArchivePrefix, now.UTC().Format("2006/01/02"), uuid.NewString()+".wav")
}

// Archive writes data to a fresh path under ArchivePrefix and returns it.
func Archive(ctx context.Context, store FileStore, now time.Time, data []byte) (string, error) {
	p := ArchivePath(now)
	w, err := store.Write(ctx, p)
	if err != nil {
		return "", fmt.Errorf("storage: archive %s: %w", p, err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return "", fmt.Errorf("storage: archive %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: archive %s: %w", p, err)
	}
	return p, nil
}

// Cleaner deletes stale recordings.
type Cleaner struct {
	Store  FileStore
	MaxAge time.Duration // DefaultMaxAge when zero
	Prefix string        // ArchivePrefix when empty
	Suffix string        // only matching paths are removed; "" matches all
	Logger *slog.Logger
}

// Sweep deletes every object under Prefix with Suffix that was modified
// more than MaxAge before now, and returns how many were removed. A failed
// delete is logged and skipped; a listing failure aborts the sweep.
func (c *Cleaner) Sweep(ctx context.Context, now time.Time) (int, error) {
	if c.Store == nil {
		return 0, errors.New("storage: cleaner has no store")
	}
	maxAge := c.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	prefix := c.Prefix
	if prefix == "" {
		prefix = ArchivePrefix
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage.cleaner")

	cutoff := now.Add(-maxAge)
	var stale []string
	for obj, err := range c.Store.List(ctx, prefix) {
		if err != nil {
			return 0, fmt.Errorf("storage: list %s: %w", prefix, err)
		}
		if !strings.HasSuffix(obj.Path, c.Suffix) {
			continue
		}
		if obj.ModTime.Before(cutoff) {
			stale = append(stale, obj.Path)
		}
	}

	removed := 0
	for _, p := range stale {
		if err := c.Store.Delete(ctx, p); err != nil {
			logger.WarnContext(ctx, "delete stale recording", "path", p, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.InfoContext(ctx, "swept stale recordings", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}
