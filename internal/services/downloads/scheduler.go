// -----------------------------------------------------------------------
// Scheduler - polls the store and runs downloads in bounded parallel
// -----------------------------------------------------------------------

package downloads

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/metrics"
	"github.com/ternarybob/tubeq/internal/models"
)

// failTimeout bounds the store write that records an interrupted job during shutdown
const failTimeout = 5 * time.Second

// Cascade downloads a job with fallback strategies
type Cascade interface {
	Download(ctx context.Context, job *models.Job, onProgress interfaces.ProgressFunc) (*interfaces.DownloadResult, *models.OptionStrategy, error)
}

// SchedulerOptions tunes the poll loop
type SchedulerOptions struct {
	PollInterval time.Duration
	ErrorBackoff time.Duration
	MaxDownloads int
}

// NewSchedulerOptions reads scheduler settings, falling back to defaults for invalid values
func NewSchedulerOptions(config *common.SchedulerConfig) SchedulerOptions {
	opts := SchedulerOptions{
		PollInterval: common.ParseDurationOrDefault(config.PollInterval, 5*time.Second),
		ErrorBackoff: common.ParseDurationOrDefault(config.ErrorBackoff, 5*time.Second),
		MaxDownloads: config.MaxConcurrentDownloads,
	}
	if opts.MaxDownloads <= 0 {
		opts.MaxDownloads = 5
	}
	return opts
}

// Scheduler owns the in-flight set and the download slots. Each job id is
// processed by at most one worker at a time; at most MaxDownloads workers
// hold a slot.
type Scheduler struct {
	jobs     interfaces.JobStorage
	tags     interfaces.TagStorage
	service  *JobService
	cascade  Cascade
	placer   interfaces.Placer
	metrics  *metrics.Metrics
	logger   arbor.ILogger
	opts     SchedulerOptions
	now      func() time.Time
	slots    chan struct{}
	mu       sync.Mutex
	inFlight map[uint64]struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. m may be nil.
func NewScheduler(
	jobs interfaces.JobStorage,
	tags interfaces.TagStorage,
	service *JobService,
	cascade Cascade,
	placer interfaces.Placer,
	m *metrics.Metrics,
	opts SchedulerOptions,
	logger arbor.ILogger,
) *Scheduler {
	if opts.MaxDownloads <= 0 {
		opts.MaxDownloads = 1
	}
	return &Scheduler{
		jobs:     jobs,
		tags:     tags,
		service:  service,
		cascade:  cascade,
		placer:   placer,
		metrics:  m,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		slots:    make(chan struct{}, opts.MaxDownloads),
		inFlight: make(map[uint64]struct{}),
	}
}

// Run polls until ctx is cancelled, then waits for every worker to return
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().
		Str("poll_interval", s.opts.PollInterval.String()).
		Int("max_downloads", s.opts.MaxDownloads).
		Msg("Download scheduler starting")

	s.recoverInterrupted(ctx)

	for {
		wait := s.opts.PollInterval
		err := common.CapturePanic(func() error {
			return s.cycle(ctx)
		})
		if err != nil && ctx.Err() == nil {
			s.metrics.RecordPollError()
			var panicErr *common.PanicError
			if errors.As(err, &panicErr) {
				s.logger.Error().Str("panic", fmt.Sprintf("%v", panicErr.Value)).Str("stack", panicErr.Stack).Msg("Recovered from panic in scheduler cycle")
			}
			s.logger.Error().Err(err).Str("backoff", s.opts.ErrorBackoff.String()).Msg("Scheduler cycle failed")
			wait = s.opts.ErrorBackoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Int("in_flight", s.InFlight()).Msg("Download scheduler stopping, waiting for workers")
			s.wg.Wait()
			s.logger.Info().Msg("Download scheduler stopped")
			return
		case <-timer.C:
		}
	}
}

// InFlight returns the number of jobs currently owned by a worker
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Wait blocks until all spawned workers have returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) cycle(ctx context.Context) error {
	untitled, err := s.jobs.ListWithoutTitle(ctx)
	if err != nil {
		return fmt.Errorf("list jobs without metadata: %w", err)
	}

	// Jobs whose metadata failed this cycle are not dispatched until the next one
	skip := make(map[uint64]bool)
	for _, job := range untitled {
		if ctx.Err() != nil {
			return nil
		}
		if job.Status == models.JobStatusCancelled || s.isInFlight(job.ID) {
			continue
		}
		if _, err := s.service.UpdateInfo(ctx, job); err != nil {
			skip[job.ID] = true
		}
	}

	pending, err := s.jobs.ListByStatus(ctx, models.JobStatusPending)
	if err != nil {
		return fmt.Errorf("list pending jobs: %w", err)
	}
	failed, err := s.jobs.ListByStatus(ctx, models.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("list failed jobs: %w", err)
	}
	tags, err := s.tags.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("list tags: %w", err)
	}

	for _, job := range SortCandidates(pending, failed, TagPriority(tags)) {
		if ctx.Err() != nil {
			return nil
		}
		if skip[job.ID] || !s.claim(job.ID) {
			continue
		}

		s.wg.Add(1)
		go s.work(ctx, job)
	}
	return nil
}

func (s *Scheduler) claim(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

func (s *Scheduler) isInFlight(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inFlight[id]
	return busy
}

// attempt tracks how far a worker got, so failures are recorded correctly
type attempt struct {
	started   bool
	startedAt time.Time
}

// work is the worker boundary: any error or panic from processing fails this job only
func (s *Scheduler) work(ctx context.Context, job *models.Job) {
	defer s.wg.Done()
	defer s.release(job.ID)

	var a attempt
	err := common.CapturePanic(func() error {
		return s.process(ctx, job, &a)
	})
	if err == nil {
		return
	}

	var panicErr *common.PanicError
	if errors.As(err, &panicErr) {
		s.logger.Error().
			Int64("job_id", int64(job.ID)).
			Str("panic", fmt.Sprintf("%v", panicErr.Value)).
			Str("stack", panicErr.Stack).
			Msg("Recovered from panic in download worker")
	}

	// Never started and shutting down: leave the job for the next run
	if !a.started && ctx.Err() != nil {
		return
	}
	s.fail(ctx, job, err, a)
}

func (s *Scheduler) process(ctx context.Context, job *models.Job, a *attempt) error {
	retrying := job.Status == models.JobStatusFailed

	// Metadata is fetched again for every attempt; a failure is already recorded
	// on the job and no download is made
	updated, err := s.service.UpdateInfo(ctx, job)
	if err != nil {
		return nil
	}
	if updated.Status != models.JobStatusPending {
		s.logger.Debug().Int64("job_id", int64(job.ID)).Str("status", updated.Status.String()).Msg("Job left the queue before download, skipping")
		return nil
	}

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil
	}
	defer func() { <-s.slots }()

	// A slot freed by a cancelled download can race with shutdown
	if ctx.Err() != nil {
		return nil
	}

	if retrying {
		if _, err := s.service.RecordRetry(ctx, job.ID); err != nil {
			return s.ignoreRemoved(job, err)
		}
	}

	started, err := s.service.Start(ctx, job.ID)
	if err != nil {
		return s.ignoreRemoved(job, err)
	}
	// Cancelled while waiting for a slot
	if started.Status != models.JobStatusDownloading {
		s.logger.Debug().Int64("job_id", int64(job.ID)).Str("status", started.Status.String()).Msg("Job left the queue before download, skipping")
		return nil
	}
	a.started = true
	a.startedAt = s.now()

	s.metrics.StartDownload()
	defer s.metrics.EndDownload()

	s.logger.Info().Int64("job_id", int64(job.ID)).Str("title", started.DisplayName()).Int("retries", started.Retries).Msg("Download started")

	result, strategy, err := s.cascade.Download(ctx, started, func(p interfaces.DownloadProgress) {
		s.service.UpdateProgress(ctx, job.ID, p)
	})
	if err != nil {
		return err
	}

	tag, err := s.service.TagFor(ctx, started)
	if err != nil {
		return fmt.Errorf("resolve tag: %w", err)
	}

	finalPath, err := s.placer.Place(ctx, started, tag, result.LocalPath)
	if err != nil {
		return fmt.Errorf("placement failed: %w", err)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return fmt.Errorf("stat placed file: %w", err)
	}

	if _, err := s.service.Finish(ctx, job.ID, info.Size()); err != nil {
		return err
	}

	s.metrics.RecordOutcome(metrics.StatusFinished, s.now().Sub(a.startedAt).Seconds())
	s.metrics.RecordFileSize(info.Size())
	s.logger.Info().
		Int64("job_id", int64(job.ID)).
		Str("strategy", strategy.Name).
		Str("path", finalPath).
		Int64("size", info.Size()).
		Msg("Download finished")
	return nil
}

func (s *Scheduler) fail(ctx context.Context, job *models.Job, cause error, a attempt) {
	message := cause.Error()
	if ctx.Err() != nil {
		message = "interrupted: " + message
	}

	// The worker context may already be cancelled; the failure must still be stored
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()

	if _, err := s.service.Fail(failCtx, job.ID, message); err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			return
		}
		s.logger.Error().Err(err).Int64("job_id", int64(job.ID)).Msg("Failed to record download failure")
		return
	}

	var seconds float64
	if a.started {
		seconds = s.now().Sub(a.startedAt).Seconds()
	}
	s.metrics.RecordOutcome(metrics.StatusFailed, seconds)
	s.logger.Warn().Int64("job_id", int64(job.ID)).Str("error", message).Msg("Download failed")
}

// ignoreRemoved treats a job deleted mid-flight as done rather than failed
func (s *Scheduler) ignoreRemoved(job *models.Job, err error) error {
	if errors.Is(err, interfaces.ErrJobNotFound) {
		s.logger.Debug().Int64("job_id", int64(job.ID)).Msg("Job removed before download, skipping")
		return nil
	}
	return err
}

// recoverInterrupted fails jobs left Downloading by a previous process so
// they re-enter the queue through the failed path
func (s *Scheduler) recoverInterrupted(ctx context.Context) {
	stale, err := s.jobs.ListByStatus(ctx, models.JobStatusDownloading)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list interrupted downloads")
		return
	}

	for _, job := range stale {
		if s.isInFlight(job.ID) {
			continue
		}
		if _, err := s.service.Fail(ctx, job.ID, "interrupted: service restarted during download"); err != nil {
			s.logger.Warn().Err(err).Int64("job_id", int64(job.ID)).Msg("Failed to reset interrupted download")
			continue
		}
		s.logger.Info().Int64("job_id", int64(job.ID)).Msg("Interrupted download marked failed")
	}
}
