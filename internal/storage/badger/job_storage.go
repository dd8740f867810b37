package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const (
	jobSequence = "job_seq"

	// maxTxnAttempts bounds retries when badger reports a write conflict
	maxTxnAttempts = 3
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// writeMu serializes job writes. Index entries are shared between records,
	// so unserialized writers to different jobs would conflict on commit.
	// It also makes the URL lookup and insert in Create atomic.
	writeMu sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) Create(ctx context.Context, url string, tagID *uint64) (*models.Job, bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var existing []models.Job
	if err := s.db.Store().Find(&existing, badgerhold.Where("URL").Eq(url).Index("URL")); err != nil {
		return nil, false, fmt.Errorf("failed to look up job by url: %w", err)
	}
	if len(existing) > 0 {
		return &existing[0], false, nil
	}

	id, err := s.db.NextID(jobSequence)
	if err != nil {
		return nil, false, err
	}

	job := models.NewJob(url, tagID, time.Now())
	job.ID = id

	if err := s.db.Store().Insert(id, job); err != nil {
		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug().Int64("job_id", int64(id)).Str("url", url).Msg("Job created")
	return job, true, nil
}

func (s *JobStorage) Get(ctx context.Context, id uint64) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) Delete(ctx context.Context, id uint64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.db.Store().Delete(id, &models.Job{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return interfaces.ErrJobNotFound
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// ApplyUpdate reads, mutates and writes the job inside one badger transaction.
// Concurrent writers to the same record surface as ErrConflict and are retried,
// so preconditions are always evaluated against the committed state.
func (s *JobStorage) ApplyUpdate(ctx context.Context, id uint64, update models.JobUpdate) (*models.Job, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		result models.Job
		err    error
	)

	for attempt := 1; attempt <= maxTxnAttempts; attempt++ {
		err = s.db.Store().Badger().Update(func(tx *badger.Txn) error {
			var current models.Job
			if err := s.db.Store().TxGet(tx, id, &current); err != nil {
				if errors.Is(err, badgerhold.ErrNotFound) {
					return interfaces.ErrJobNotFound
				}
				return err
			}

			if !update.ApplyTo(&current) {
				result = current
				return nil
			}

			if err := s.db.Store().TxUpdate(tx, id, &current); err != nil {
				return err
			}
			result = current
			return nil
		})

		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.logger.Debug().Int64("job_id", int64(id)).Int("attempt", attempt).Str("update", update.Name).Msg("Write conflict, retrying job update")
	}

	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to apply %s to job %d: %w", update.Name, id, err)
	}
	return &result, nil
}

func (s *JobStorage) ListByStatus(ctx context.Context, statuses ...models.JobStatus) ([]*models.Job, error) {
	if len(statuses) == 0 {
		return s.listAll()
	}

	values := make([]interface{}, len(statuses))
	for i, status := range statuses {
		values[i] = status
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").In(values...).Index("Status")); err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}
	return newestFirst(jobs), nil
}

func (s *JobStorage) ListWithoutTitle(ctx context.Context) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Title").Eq("")); err != nil {
		return nil, fmt.Errorf("failed to list jobs without title: %w", err)
	}
	return newestFirst(jobs), nil
}

// ListVisible returns everything except finished jobs that completed before finishedSince
func (s *JobStorage) ListVisible(ctx context.Context, finishedSince time.Time) ([]*models.Job, error) {
	all, err := s.listAll()
	if err != nil {
		return nil, err
	}

	visible := make([]*models.Job, 0, len(all))
	for _, job := range all {
		if finishedBefore(job, finishedSince) {
			continue
		}
		visible = append(visible, job)
	}
	return visible, nil
}

func (s *JobStorage) ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]*models.Job, error) {
	finished, err := s.ListByStatus(ctx, models.JobStatusFinished)
	if err != nil {
		return nil, err
	}

	result := make([]*models.Job, 0, len(finished))
	for _, job := range finished {
		if finishedBefore(job, cutoff) {
			result = append(result, job)
		}
	}
	return result, nil
}

func (s *JobStorage) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	expired, err := s.ListFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deleted := 0
	for _, job := range expired {
		if err := s.db.Store().Delete(job.ID, &models.Job{}); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			return deleted, fmt.Errorf("failed to delete job %d: %w", job.ID, err)
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Debug().Int("count", deleted).Str("cutoff", cutoff.Format(time.RFC3339)).Msg("Deleted finished jobs")
	}
	return deleted, nil
}

func (s *JobStorage) listAll() ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, nil); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return newestFirst(jobs), nil
}

func finishedBefore(job *models.Job, cutoff time.Time) bool {
	return job.Status == models.JobStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff)
}

// newestFirst orders by creation time descending, id breaking ties
func newestFirst(jobs []models.Job) []*models.Job {
	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result
}
