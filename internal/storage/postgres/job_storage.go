package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
)

var jobColumns = []string{
	"id", "url", "title", "thumbnail", "total_size", "status", "progress", "speed", "eta",
	"created_at", "started_at", "finished_at", "error_message", "retries", "tag_id",
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// JobStorage implements the JobStorage interface for PostgreSQL
type JobStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *DB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// Create relies on the unique url index: a conflicting insert returns no row
// and the existing record is read back instead.
func (s *JobStorage) Create(ctx context.Context, url string, tagID *uint64) (*models.Job, bool, error) {
	job := models.NewJob(url, tagID, time.Now())

	query := s.db.qb.Insert("jobs").
		Columns("url", "status", "progress", "created_at", "tag_id").
		Values(job.URL, string(job.Status), job.Progress, job.CreatedAt, nullableID(tagID)).
		Suffix("ON CONFLICT (url) DO NOTHING RETURNING " + strings.Join(jobColumns, ", "))

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build query: %w", err)
	}

	created, err := scanJob(s.db.conn.QueryRowContext(ctx, sqlQuery, args...))
	if err == nil {
		s.logger.Debug().Int64("job_id", int64(created.ID)).Str("url", url).Msg("Job created")
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}

	existing, err := s.getWhere(ctx, s.db.conn, squirrel.Eq{"url": url}, false)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *JobStorage) Get(ctx context.Context, id uint64) (*models.Job, error) {
	return s.getWhere(ctx, s.db.conn, squirrel.Eq{"id": id}, false)
}

func (s *JobStorage) Delete(ctx context.Context, id uint64) error {
	sqlQuery, args, err := s.db.qb.Delete("jobs").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	result, err := s.db.conn.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return interfaces.ErrJobNotFound
	}
	return nil
}

// ApplyUpdate locks the row, evaluates the transition in Go and writes back
// only the named columns.
func (s *JobStorage) ApplyUpdate(ctx context.Context, id uint64, update models.JobUpdate) (*models.Job, error) {
	var result *models.Job

	err := s.db.Serializable(ctx, func(tx *sql.Tx) error {
		current, err := s.getWhere(ctx, tx, squirrel.Eq{"id": id}, true)
		if err != nil {
			return err
		}

		if !update.ApplyTo(current) {
			result = current
			return nil
		}

		sqlQuery, args, err := buildJobUpdate(s.db.qb, current, update.Fields)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqlQuery, args...); err != nil {
			return err
		}
		result = current
		return nil
	})

	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to apply %s to job %d: %w", update.Name, id, err)
	}
	return result, nil
}

func (s *JobStorage) ListByStatus(ctx context.Context, statuses ...models.JobStatus) ([]*models.Job, error) {
	if len(statuses) == 0 {
		return s.listWhere(ctx, nil)
	}

	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}
	return s.listWhere(ctx, squirrel.Eq{"status": values})
}

func (s *JobStorage) ListWithoutTitle(ctx context.Context) ([]*models.Job, error) {
	return s.listWhere(ctx, squirrel.Eq{"title": ""})
}

func (s *JobStorage) ListVisible(ctx context.Context, finishedSince time.Time) ([]*models.Job, error) {
	return s.listWhere(ctx, squirrel.Or{
		squirrel.NotEq{"status": string(models.JobStatusFinished)},
		squirrel.Eq{"finished_at": nil},
		squirrel.GtOrEq{"finished_at": finishedSince.UTC()},
	})
}

func (s *JobStorage) ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]*models.Job, error) {
	return s.listWhere(ctx, finishedBeforeClause(cutoff))
}

func (s *JobStorage) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	sqlQuery, args, err := s.db.qb.Delete("jobs").Where(finishedBeforeClause(cutoff)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	result, err := s.db.conn.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished jobs: %w", err)
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *JobStorage) getWhere(ctx context.Context, q queryer, where squirrel.Sqlizer, forUpdate bool) (*models.Job, error) {
	query := s.db.qb.Select(jobColumns...).From("jobs").Where(where)
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	job, err := scanJob(q.QueryRowContext(ctx, sqlQuery, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *JobStorage) listWhere(ctx context.Context, where squirrel.Sqlizer) ([]*models.Job, error) {
	query := s.db.qb.Select(jobColumns...).From("jobs").OrderBy("created_at DESC", "id DESC")
	if where != nil {
		query = query.Where(where)
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.conn.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func finishedBeforeClause(cutoff time.Time) squirrel.Sqlizer {
	return squirrel.And{
		squirrel.Eq{"status": string(models.JobStatusFinished)},
		squirrel.Lt{"finished_at": cutoff.UTC()},
	}
}

// buildJobUpdate writes only the columns named by fields, taking values from job
func buildJobUpdate(qb squirrel.StatementBuilderType, job *models.Job, fields []models.JobField) (string, []interface{}, error) {
	query := qb.Update("jobs")
	for _, field := range fields {
		value, err := jobColumnValue(job, field)
		if err != nil {
			return "", nil, err
		}
		query = query.Set(string(field), value)
	}
	return query.Where(squirrel.Eq{"id": job.ID}).ToSql()
}

func jobColumnValue(job *models.Job, field models.JobField) (interface{}, error) {
	switch field {
	case models.FieldTitle:
		return job.Title, nil
	case models.FieldThumbnail:
		return job.Thumbnail, nil
	case models.FieldTotalSize:
		if job.TotalSize == nil {
			return nil, nil
		}
		return *job.TotalSize, nil
	case models.FieldStatus:
		return string(job.Status), nil
	case models.FieldProgress:
		return job.Progress, nil
	case models.FieldSpeed:
		return job.Speed, nil
	case models.FieldETA:
		return job.ETA, nil
	case models.FieldStartedAt:
		return nullableTime(job.StartedAt), nil
	case models.FieldFinishedAt:
		return nullableTime(job.FinishedAt), nil
	case models.FieldErrorMessage:
		return job.ErrorMessage, nil
	case models.FieldRetries:
		return job.Retries, nil
	default:
		return nil, fmt.Errorf("unknown job field: %s", field)
	}
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job        models.Job
		status     string
		totalSize  sql.NullInt64
		startedAt  sql.NullTime
		finishedAt sql.NullTime
		tagID      sql.NullInt64
	)

	err := row.Scan(
		&job.ID, &job.URL, &job.Title, &job.Thumbnail, &totalSize, &status,
		&job.Progress, &job.Speed, &job.ETA, &job.CreatedAt, &startedAt,
		&finishedAt, &job.ErrorMessage, &job.Retries, &tagID,
	)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	job.CreatedAt = job.CreatedAt.UTC()
	if totalSize.Valid {
		v := totalSize.Int64
		job.TotalSize = &v
	}
	if startedAt.Valid {
		v := startedAt.Time.UTC()
		job.StartedAt = &v
	}
	if finishedAt.Valid {
		v := finishedAt.Time.UTC()
		job.FinishedAt = &v
	}
	if tagID.Valid {
		v := uint64(tagID.Int64)
		job.TagID = &v
	}
	return &job, nil
}

func nullableID(id *uint64) interface{} {
	if id == nil {
		return nil
	}
	return int64(*id)
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
