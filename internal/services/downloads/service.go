// -----------------------------------------------------------------------
// JobService - lifecycle transitions for download jobs
// -----------------------------------------------------------------------

package downloads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
)

// ErrNotCancellable is returned when Cancel targets a job that is running or already done
var ErrNotCancellable = errors.New("job cannot be cancelled in its current state")

// JobService applies transitions through the store. It never holds job state:
// every method writes by id and returns the record the store committed.
type JobService struct {
	jobs    interfaces.JobStorage
	tags    interfaces.TagStorage
	fetcher interfaces.MetadataFetcher
	events  interfaces.EventService
	logger  arbor.ILogger
	now     func() time.Time
}

// NewJobService creates a job service. events may be nil.
func NewJobService(
	jobs interfaces.JobStorage,
	tags interfaces.TagStorage,
	fetcher interfaces.MetadataFetcher,
	events interfaces.EventService,
	logger arbor.ILogger,
) *JobService {
	return &JobService{
		jobs:    jobs,
		tags:    tags,
		fetcher: fetcher,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

// Enqueue registers a URL for download. Enqueueing a known URL returns the
// existing job with created=false.
func (s *JobService) Enqueue(ctx context.Context, rawURL string, tagID *uint64) (*models.Job, bool, error) {
	url, err := common.NormalizeMediaURL(rawURL)
	if err != nil {
		return nil, false, err
	}

	if tagID != nil {
		if _, err := s.tags.GetTag(ctx, *tagID); err != nil {
			return nil, false, err
		}
	}

	job, created, err := s.jobs.Create(ctx, url, tagID)
	if err != nil {
		return nil, false, err
	}

	if created {
		s.logger.Info().Int64("job_id", int64(job.ID)).Str("url", url).Msg("Download enqueued")
		s.publish(ctx, interfaces.EventJobCreated, job)
	}
	return job, created, nil
}

// UpdateInfo fetches metadata and stores it, returning the job to Pending.
// A failed fetch marks the job Failed and is returned so no download is attempted.
// A cancelled job is returned unchanged.
func (s *JobService) UpdateInfo(ctx context.Context, job *models.Job) (*models.Job, error) {
	meta, err := s.fetcher.FetchMetadata(ctx, job.URL)
	if err != nil {
		// A fetch cut short by shutdown is not a metadata failure
		if ctx.Err() != nil {
			return nil, fmt.Errorf("metadata for job %d: %w", job.ID, ctx.Err())
		}
		s.logger.Warn().Err(err).Int64("job_id", int64(job.ID)).Str("url", job.URL).Msg("Metadata fetch failed")

		if _, failErr := s.apply(ctx, job.ID, models.MetadataFailed(s.now(), err.Error())); failErr != nil {
			s.logger.Error().Err(failErr).Int64("job_id", int64(job.ID)).Msg("Failed to record metadata failure")
		}
		return nil, fmt.Errorf("metadata for job %d: %w", job.ID, err)
	}

	updated, err := s.apply(ctx, job.ID, models.UpdateInfo(meta.Title, meta.Thumbnail, meta.EstimatedSize))
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Int64("job_id", int64(job.ID)).Str("title", meta.Title).Msg("Metadata resolved")
	return updated, nil
}

// Start marks the job Downloading
func (s *JobService) Start(ctx context.Context, id uint64) (*models.Job, error) {
	return s.apply(ctx, id, models.Start(s.now()))
}

// UpdateProgress records forward progress. Failures are logged and swallowed
// so a progress write can never abort a download.
func (s *JobService) UpdateProgress(ctx context.Context, id uint64, progress interfaces.DownloadProgress) {
	update := models.Progress(progress.Percent, progress.Speed, progress.ETA)
	if _, err := s.jobs.ApplyUpdate(ctx, id, update); err != nil {
		s.logger.Debug().Err(err).Int64("job_id", int64(id)).Int("progress", progress.Percent).Msg("Progress update dropped")
	}
}

// Finish records success with the size of the placed file
func (s *JobService) Finish(ctx context.Context, id uint64, fileSize int64) (*models.Job, error) {
	return s.apply(ctx, id, models.Finish(s.now(), fileSize))
}

// Fail records a failed attempt
func (s *JobService) Fail(ctx context.Context, id uint64, message string) (*models.Job, error) {
	return s.apply(ctx, id, models.Fail(s.now(), message))
}

// RecordRetry bumps the retry counter of a job being re-attempted
func (s *JobService) RecordRetry(ctx context.Context, id uint64) (*models.Job, error) {
	return s.apply(ctx, id, models.Retry())
}

// Cancel stops a Pending or Failed job
func (s *JobService) Cancel(ctx context.Context, id uint64) (*models.Job, error) {
	job, err := s.apply(ctx, id, models.Cancel(s.now()))
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCancelled {
		return job, ErrNotCancellable
	}
	return job, nil
}

// Delete removes the job record
func (s *JobService) Delete(ctx context.Context, id uint64) error {
	if err := s.jobs.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, interfaces.EventJobDeleted, id)
	return nil
}

// TagFor resolves the job's tag. Untagged jobs and deleted tags yield nil.
func (s *JobService) TagFor(ctx context.Context, job *models.Job) (*models.Tag, error) {
	if job.TagID == nil {
		return nil, nil
	}
	tag, err := s.tags.GetTag(ctx, *job.TagID)
	if errors.Is(err, interfaces.ErrTagNotFound) {
		s.logger.Warn().Int64("job_id", int64(job.ID)).Int64("tag_id", int64(*job.TagID)).Msg("Job references a deleted tag, using default placement")
		return nil, nil
	}
	return tag, err
}

func (s *JobService) apply(ctx context.Context, id uint64, update models.JobUpdate) (*models.Job, error) {
	job, err := s.jobs.ApplyUpdate(ctx, id, update)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, interfaces.EventJobUpdated, job)
	return job, nil
}

func (s *JobService) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	// Subscribers outlive the request or worker that caused the event
	event := interfaces.Event{Type: eventType, Payload: payload}
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}
