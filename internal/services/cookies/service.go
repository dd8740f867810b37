package cookies

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ternarybob/arbor"
)

// MaxSize caps an uploaded cookies file
const MaxSize = 10 << 20

var (
	// ErrEmpty is returned when an upload has no content
	ErrEmpty = errors.New("no cookies provided")
	// ErrTooLarge is returned when an upload exceeds MaxSize
	ErrTooLarge = errors.New("cookies file too large")
)

// Info describes the stored cookies file
type Info struct {
	Exists       bool       `json:"exists"`
	Size         int64      `json:"size"`
	HumanSize    string     `json:"humanSize,omitempty"`
	LastModified *time.Time `json:"lastModified,omitempty"`
}

// Service stores the cookies file passed to yt-dlp
type Service struct {
	path   string
	logger arbor.ILogger
}

// NewService creates a cookies service writing to path
func NewService(path string, logger arbor.ILogger) *Service {
	return &Service{
		path:   path,
		logger: logger,
	}
}

// Path returns the cookies file location
func (s *Service) Path() string {
	return s.path
}

// Save replaces the cookies file with the content of r. The file is written
// beside the target and renamed into place, so yt-dlp never reads a partial file.
func (s *Service) Save(ctx context.Context, r io.Reader) (*Info, error) {
	dir := filepath.Dir(s.path)

	// A stray file where the directory belongs blocks the write
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		s.logger.Warn().Str("path", dir).Msg("Removing file in place of cookies directory")
		if err := os.Remove(dir); err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cookies directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cookies-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmp, io.LimitReader(r, MaxSize+1))
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write cookies: %w", err)
	}

	switch {
	case written == 0:
		return nil, ErrEmpty
	case written > MaxSize:
		return nil, ErrTooLarge
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return nil, fmt.Errorf("failed to replace cookies file: %w", err)
	}

	s.logger.Info().Str("path", s.path).Str("size", humanize.Bytes(uint64(written))).Msg("Cookies file updated")
	return s.Info()
}

// Info reports whether the cookies file exists, its size and modification time
func (s *Service) Info() (*Info, error) {
	stat, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Info{Exists: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat cookies file: %w", err)
	}

	modified := stat.ModTime().UTC()
	return &Info{
		Exists:       true,
		Size:         stat.Size(),
		HumanSize:    humanize.Bytes(uint64(stat.Size())),
		LastModified: &modified,
	}, nil
}
