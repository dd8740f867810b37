// -----------------------------------------------------------------------
// Archive - retention of finished download jobs
// -----------------------------------------------------------------------

package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
)

const defaultSchedule = "@every 1h"

// Service archives finished jobs once they are older than the retention
// window and purges them on a cron schedule.
type Service struct {
	jobs      interfaces.JobStorage
	events    interfaces.EventService
	logger    arbor.ILogger
	retention time.Duration
	schedule  string
	now       func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewService creates an archive service. events may be nil.
func NewService(jobs interfaces.JobStorage, events interfaces.EventService, config *common.ArchiveConfig, logger arbor.ILogger) *Service {
	schedule := config.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}
	return &Service{
		jobs:      jobs,
		events:    events,
		logger:    logger,
		retention: common.ParseDurationOrDefault(config.Retention, 120*time.Hour),
		schedule:  schedule,
		now:       time.Now,
		cron:      cron.New(),
	}
}

// Retention returns how long finished jobs stay visible
func (s *Service) Retention() time.Duration {
	return s.retention
}

// Cutoff is the finish time before which jobs count as archived
func (s *Service) Cutoff() time.Time {
	return s.now().Add(-s.retention)
}

// ListArchived returns finished jobs older than the retention window, newest first
func (s *Service) ListArchived(ctx context.Context) ([]*models.Job, error) {
	return s.jobs.ListFinishedBefore(ctx, s.Cutoff())
}

// ListVisible returns every job still inside the retention window
func (s *Service) ListVisible(ctx context.Context) ([]*models.Job, error) {
	return s.jobs.ListVisible(ctx, s.Cutoff())
}

// Purge deletes archived jobs and returns how many were removed
func (s *Service) Purge(ctx context.Context) (int, error) {
	deleted, err := s.jobs.DeleteFinishedBefore(ctx, s.Cutoff())
	if err != nil {
		return deleted, fmt.Errorf("failed to purge archived jobs: %w", err)
	}

	if deleted > 0 {
		s.logger.Info().Int("deleted", deleted).Str("retention", s.retention.String()).Msg("Archived jobs purged")
		if s.events != nil {
			event := interfaces.Event{Type: interfaces.EventJobsArchived, Payload: deleted}
			if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to publish archive event")
			}
		}
	}
	return deleted, nil
}

// Start registers the purge on the cron schedule
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("archive sweeper already running")
	}

	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("invalid archive schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().Str("schedule", s.schedule).Str("retention", s.retention.String()).Msg("Archive sweeper started")
	return nil
}

// Stop halts the cron and waits for a running sweep to finish
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("Archive sweeper stopped")
}

func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.Purge(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Archive sweep failed")
	}
}
