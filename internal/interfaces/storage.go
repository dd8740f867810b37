// -----------------------------------------------------------------------
// Storage interfaces - persistence contracts for jobs, tags and strategies
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/tubeq/internal/models"
)

var (
	// ErrJobNotFound is returned when a job id does not exist (or was removed)
	ErrJobNotFound = errors.New("job not found")
	// ErrTagNotFound is returned when a tag id does not exist
	ErrTagNotFound = errors.New("tag not found")
	// ErrStrategyNotFound is returned when a strategy id does not exist
	ErrStrategyNotFound = errors.New("strategy not found")
)

// JobStorage - interface for download job persistence.
// Implementations serialize concurrent updates per record.
type JobStorage interface {
	// Create inserts a pending job. Idempotent on URL: an existing record is
	// returned unchanged and created is false.
	Create(ctx context.Context, url string, tagID *uint64) (job *models.Job, created bool, err error)
	Get(ctx context.Context, id uint64) (*models.Job, error)
	Delete(ctx context.Context, id uint64) error

	// ApplyUpdate applies a named-field update transactionally and returns the
	// stored record. Returns ErrJobNotFound for missing ids; never re-creates a record.
	ApplyUpdate(ctx context.Context, id uint64, update models.JobUpdate) (*models.Job, error)

	// Queries (newest created first)
	ListByStatus(ctx context.Context, statuses ...models.JobStatus) ([]*models.Job, error)
	ListWithoutTitle(ctx context.Context) ([]*models.Job, error)
	ListVisible(ctx context.Context, finishedSince time.Time) ([]*models.Job, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]*models.Job, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// TagStorage - interface for tag persistence
type TagStorage interface {
	CreateTag(ctx context.Context, tag *models.Tag) error
	GetTag(ctx context.Context, id uint64) (*models.Tag, error)
	ListTags(ctx context.Context) ([]*models.Tag, error)
	UpdateTag(ctx context.Context, tag *models.Tag) error
	DeleteTag(ctx context.Context, id uint64) error
	CountTags(ctx context.Context) (int, error)
}

// StrategyStorage - interface for option strategy persistence
type StrategyStorage interface {
	CreateStrategy(ctx context.Context, strategy *models.OptionStrategy) error
	GetStrategy(ctx context.Context, id uint64) (*models.OptionStrategy, error)
	ListStrategies(ctx context.Context) ([]*models.OptionStrategy, error)
	UpdateStrategy(ctx context.Context, strategy *models.OptionStrategy) error
	DeleteStrategy(ctx context.Context, id uint64) error
	UpdatePriorities(ctx context.Context, priorities map[uint64]int) error
	CountStrategies(ctx context.Context) (int, error)

	// ListEnabled returns enabled strategies in ascending priority
	ListEnabled(ctx context.Context) ([]*models.OptionStrategy, error)
}

// StorageManager - interface for managing all storage backends
type StorageManager interface {
	JobStorage() JobStorage
	TagStorage() TagStorage
	StrategyStorage() StrategyStorage

	// DB returns the underlying handle (*badgerhold.Store or *sql.DB)
	DB() interface{}

	Close() error
}
