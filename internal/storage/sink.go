// Package storage writes captured stills to disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/logging"
)

// Sink durably stores a captured frame and returns where it went.
type Sink interface {
	Save(ctx context.Context, frame driver.Frame) (string, error)
}

// FileSink writes JPEG files into a directory.
//
// Files are named capture_{timestamp}_{seq:06d}.jpg, e.g.
// capture_20261014_101500.123_000042.jpg, with a _N suffix if that name is
// already taken. Each file is written to a temporary name, synced and then
// linked into place, so a reader never sees a partial image.
type FileSink struct {
	dir     string
	quality int
	logger  *slog.Logger

	saved  atomic.Uint64
	failed atomic.Uint64
}

// NewFileSink creates the directory if needed.
func NewFileSink(dir string, quality int) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("capture directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &FileSink{
		dir:     dir,
		quality: quality,
		logger:  logging.GetLogger("storage"),
	}, nil
}

// Dir returns the capture directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Save encodes frame as JPEG and writes it atomically.
func (s *FileSink) Save(ctx context.Context, frame driver.Frame) (string, error) {
	path, err := s.save(ctx, frame)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("Failed to save capture", "seq", frame.Seq, "error", err)
		return "", err
	}
	s.saved.Add(1)
	s.logger.Info("Capture saved", "path", path, "bytes", len(frame.Data))
	return path, nil
}

func (s *FileSink) save(ctx context.Context, frame driver.Frame) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := EncodeJPEG(frame, s.quality)
	if err != nil {
		return "", err
	}

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	base := fmt.Sprintf("capture_%s_%06d", ts.Format("20060102_150405.000"), frame.Seq)

	tmp, err := os.CreateTemp(s.dir, ".capture-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write capture: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync capture: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close capture: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("failed to set capture permissions: %w", err)
	}
	path, err := s.claim(tmpName, base)
	if err != nil {
		return "", err
	}
	_ = os.Remove(tmpName)
	return path, nil
}

// Stats returns the number of saved and failed captures.
func (s *FileSink) Stats() (saved, failed uint64) {
	return s.saved.Load(), s.failed.Load()
}

// maxNameAttempts bounds the suffixes tried when a capture name is taken.
const maxNameAttempts = 100

// claim hard-links tmpName to the first free name derived from base. Link
// never replaces an existing file, so two captures that format to the same
// name both survive.
func (s *FileSink) claim(tmpName, base string) (string, error) {
	for i := range maxNameAttempts {
		name := base + ".jpg"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.jpg", base, i)
		}
		path := filepath.Join(s.dir, name)
		err := os.Link(tmpName, path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to store capture: %w", err)
		}
	}
	return "", fmt.Errorf("failed to store capture: no free name for %s", base)
}
