package downloads

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
)

// ErrPlaylistUnavailable wraps failures of the external playlist listing
var ErrPlaylistUnavailable = errors.New("playlist could not be expanded")

// PlaylistResult reports what enqueueing a playlist did
type PlaylistResult struct {
	Jobs    []*models.Job `json:"jobs"`
	Created int           `json:"created"`
	Skipped []string      `json:"skipped"`
}

// PlaylistService turns a playlist link into one queued job per entry
type PlaylistService struct {
	expander interfaces.PlaylistExpander
	jobs     *JobService
	logger   arbor.ILogger
}

// NewPlaylistService creates a playlist service that enqueues through jobs
func NewPlaylistService(expander interfaces.PlaylistExpander, jobs *JobService, logger arbor.ILogger) *PlaylistService {
	return &PlaylistService{
		expander: expander,
		jobs:     jobs,
		logger:   logger,
	}
}

// Entries lists the entry URLs of a playlist without enqueueing anything
func (s *PlaylistService) Entries(ctx context.Context, rawURL string) ([]string, error) {
	url, err := common.NormalizeMediaURL(rawURL)
	if err != nil {
		return nil, err
	}
	entries, err := s.expander.ExpandPlaylist(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaylistUnavailable, err)
	}
	return entries, nil
}

// Enqueue expands the playlist and enqueues every entry with the same tag.
// Entries already queued are returned as they are; entries that are not
// valid media URLs are reported in Skipped.
func (s *PlaylistService) Enqueue(ctx context.Context, rawURL string, tagID *uint64) (*PlaylistResult, error) {
	url, err := common.NormalizeMediaURL(rawURL)
	if err != nil {
		return nil, err
	}

	// Check the tag before the slow expansion
	if tagID != nil {
		if _, err := s.jobs.tags.GetTag(ctx, *tagID); err != nil {
			return nil, err
		}
	}

	entries, err := s.expander.ExpandPlaylist(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaylistUnavailable, err)
	}

	result := &PlaylistResult{Jobs: []*models.Job{}, Skipped: []string{}}
	for _, entry := range entries {
		if _, err := common.NormalizeMediaURL(entry); err != nil {
			s.logger.Warn().Err(err).Str("playlist", url).Str("entry", entry).Msg("Skipping playlist entry")
			result.Skipped = append(result.Skipped, entry)
			continue
		}

		job, created, err := s.jobs.Enqueue(ctx, entry, tagID)
		if err != nil {
			return nil, fmt.Errorf("enqueue playlist entry %s: %w", entry, err)
		}
		if created {
			result.Created++
		}
		result.Jobs = append(result.Jobs, job)
	}

	s.logger.Info().
		Str("playlist", url).
		Int("entries", len(entries)).
		Int("created", result.Created).
		Int("skipped", len(result.Skipped)).
		Msg("Playlist enqueued")
	return result, nil
}
