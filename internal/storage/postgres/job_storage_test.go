package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
)

func TestBuildJobUpdate_OnlyNamedColumns(t *testing.T) {
	qb := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	job := &models.Job{ID: 7, Status: models.JobStatusDownloading, StartedAt: &started, Title: "ignored"}

	sqlQuery, args, err := buildJobUpdate(qb, job, models.Start(started).Fields)
	require.NoError(t, err)

	assert.Equal(t, "UPDATE jobs SET status = $1, started_at = $2, progress = $3, speed = $4, eta = $5 WHERE id = $6", sqlQuery)
	assert.Equal(t, []interface{}{"downloading", started, 0, "", "", uint64(7)}, args)
}

func TestBuildJobUpdate_NullablesAndRetries(t *testing.T) {
	qb := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	job := &models.Job{ID: 3, Retries: 2}

	sqlQuery, args, err := buildJobUpdate(qb, job, []models.JobField{models.FieldTotalSize, models.FieldFinishedAt, models.FieldRetries})
	require.NoError(t, err)

	assert.Equal(t, "UPDATE jobs SET total_size = $1, finished_at = $2, retries = $3 WHERE id = $4", sqlQuery)
	assert.Equal(t, []interface{}{nil, nil, 2, uint64(3)}, args)
}

func TestBuildJobUpdate_UnknownField(t *testing.T) {
	qb := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	_, _, err := buildJobUpdate(qb, &models.Job{ID: 1}, []models.JobField{"bogus"})
	assert.Error(t, err)
}

// openTestDB connects to the database named by TUBEQ_TEST_POSTGRES_DSN and empties it
func openTestDB(t *testing.T) *Manager {
	t.Helper()

	dsn := os.Getenv("TUBEQ_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TUBEQ_TEST_POSTGRES_DSN not set")
	}

	logger := arbor.NewLogger()
	db, err := open(logger, dsn, 4, 2)
	require.NoError(t, err)

	_, err = db.conn.Exec("TRUNCATE jobs, tags, strategies RESTART IDENTITY")
	require.NoError(t, err)

	manager := newManager(db, logger)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestJobStorage_Postgres(t *testing.T) {
	manager := openTestDB(t)
	store := manager.JobStorage()
	ctx := context.Background()

	first, created, err := store.Create(ctx, "https://example.com/v/1", nil)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := store.Create(ctx, "https://example.com/v/1", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, err = store.ApplyUpdate(ctx, first.ID, models.Start(time.Now()))
	require.NoError(t, err)

	job, err := store.ApplyUpdate(ctx, first.ID, models.Progress(40, "1MiB/s", "00:10"))
	require.NoError(t, err)
	assert.Equal(t, 40, job.Progress)

	job, err = store.ApplyUpdate(ctx, first.ID, models.Progress(20, "", ""))
	require.NoError(t, err)
	assert.Equal(t, 40, job.Progress)

	_, err = store.ApplyUpdate(ctx, 9999, models.Start(time.Now()))
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)

	without, err := store.ListWithoutTitle(ctx)
	require.NoError(t, err)
	assert.Len(t, without, 1)
}

func TestStrategyStorage_Postgres(t *testing.T) {
	manager := openTestDB(t)
	store := manager.StrategyStorage()
	ctx := context.Background()

	a := &models.OptionStrategy{Name: "a", Priority: 5, IsEnabled: true}
	b := &models.OptionStrategy{Name: "b", Priority: 1, IsEnabled: true}
	require.NoError(t, store.CreateStrategy(ctx, a))
	require.NoError(t, store.CreateStrategy(ctx, b))

	require.NoError(t, store.UpdatePriorities(ctx, map[uint64]int{a.ID: 0, b.ID: 9}))

	enabled, err := store.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, "a", enabled[0].Name)

	err = store.UpdatePriorities(ctx, map[uint64]int{4242: 1})
	assert.ErrorIs(t, err, interfaces.ErrStrategyNotFound)
}
