// -----------------------------------------------------------------------
// Placer - moves finished downloads into their tagged location
// -----------------------------------------------------------------------

package placement

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
)

// MarkerSuffix is appended to the placed file name to form the completion marker
const MarkerSuffix = ".done"

// Placer implements interfaces.Placer on the local filesystem
type Placer struct {
	root       string
	defaultDir string
	markerDir  string
	mirror     interfaces.Mirror
	logger     arbor.ILogger
	now        func() time.Time

	// mu serializes name selection and the move so two workers cannot claim the same name
	mu sync.Mutex
}

var _ interfaces.Placer = (*Placer)(nil)

// NewPlacer creates a placer. mirror may be nil.
func NewPlacer(config *common.PlacementConfig, mirror interfaces.Mirror, logger arbor.ILogger) *Placer {
	return &Placer{
		root:       config.Root,
		defaultDir: config.DefaultDir,
		markerDir:  config.MarkerDir,
		mirror:     mirror,
		logger:     logger,
		now:        time.Now,
	}
}

// Place moves localPath to its final location and drops a zero-byte marker.
// Only a move failure or name exhaustion is returned; marker and mirror
// problems are logged.
func (p *Placer) Place(ctx context.Context, job *models.Job, tag *models.Tag, localPath string) (string, error) {
	name := SanitizeFileName(filepath.Base(localPath))
	dir, name := ApplyTag(p.root, p.defaultDir, name, tag)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create target directory: %w", err)
	}

	p.mu.Lock()
	now := p.now()
	finalName, err := UniqueName(dir, name, now)
	if err != nil {
		p.mu.Unlock()
		return "", err
	}
	finalPath := filepath.Join(dir, finalName)

	if err := moveFile(localPath, finalPath); err != nil {
		p.mu.Unlock()
		return "", fmt.Errorf("failed to move %s to %s: %w", localPath, finalPath, err)
	}

	markerPath, markerErr := p.writeMarker(finalName, now)
	p.mu.Unlock()

	if markerErr != nil {
		p.logger.Warn().Err(markerErr).Str("file", finalPath).Msg("Failed to create completion marker")
	}

	p.logger.Info().
		Int64("job_id", int64(job.ID)).
		Str("path", finalPath).
		Str("marker", markerPath).
		Msg("Download placed")

	if p.mirror != nil {
		if err := p.mirror.Upload(ctx, finalPath); err != nil {
			p.logger.Warn().Err(err).Str("path", finalPath).Msg("Mirror upload failed")
		}
	}

	return finalPath, nil
}

func (p *Placer) writeMarker(finalName string, now time.Time) (string, error) {
	if err := os.MkdirAll(p.markerDir, 0755); err != nil {
		return "", err
	}

	markerName, err := UniqueName(p.markerDir, finalName+MarkerSuffix, now)
	if err != nil {
		return "", err
	}

	markerPath := filepath.Join(p.markerDir, markerName)
	f, err := os.OpenFile(markerPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	return markerPath, f.Close()
}

// moveFile renames src to dst, falling back to copy and remove across devices
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
