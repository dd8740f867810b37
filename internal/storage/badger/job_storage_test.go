package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()
	db, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestJobStorage_CreateIsIdempotentOnURL(t *testing.T) {
	store := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	first, created, err := store.Create(ctx, "https://example.com/watch?v=1", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, models.JobStatusPending, first.Status)

	again, created, err := store.Create(ctx, "https://example.com/watch?v=1", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	all, err := store.ListByStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestJobStorage_ConcurrentCreateSameURL(t *testing.T) {
	store := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.Create(ctx, "https://example.com/same", nil)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	all, err := store.ListByStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestJobStorage_ApplyUpdate(t *testing.T) {
	store := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, _, err := store.Create(ctx, "https://example.com/a", nil)
	require.NoError(t, err)

	_, err = store.ApplyUpdate(ctx, job.ID, models.UpdateInfo("Title A", "thumb.jpg", 1024))
	require.NoError(t, err)
	_, err = store.ApplyUpdate(ctx, job.ID, models.Start(time.Now()))
	require.NoError(t, err)

	updated, err := store.ApplyUpdate(ctx, job.ID, models.Progress(50, "2MiB/s", "00:05"))
	require.NoError(t, err)
	assert.Equal(t, 50, updated.Progress)

	// Regressions are ignored
	updated, err = store.ApplyUpdate(ctx, job.ID, models.Progress(30, "1MiB/s", "00:09"))
	require.NoError(t, err)
	assert.Equal(t, 50, updated.Progress)
	assert.Equal(t, "2MiB/s", updated.Speed)

	stored, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Title A", stored.Title)
	assert.Equal(t, models.JobStatusDownloading, stored.Status)
	assert.Equal(t, 50, stored.Progress)
}

func TestJobStorage_ConcurrentProgressNeverRegresses(t *testing.T) {
	store := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, _, err := store.Create(ctx, "https://example.com/race", nil)
	require.NoError(t, err)
	_, err = store.ApplyUpdate(ctx, job.ID, models.Start(time.Now()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for pct := 1; pct <= 40; pct++ {
		wg.Add(1)
		go func(pct int) {
			defer wg.Done()
			// Conflicts beyond the retry budget are acceptable here; progress is best effort
			store.ApplyUpdate(ctx, job.ID, models.Progress(pct, "", ""))
		}(pct)
	}
	wg.Wait()

	_, err = store.ApplyUpdate(ctx, job.ID, models.Progress(41, "", ""))
	require.NoError(t, err)

	stored, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 41, stored.Progress)
}

func TestJobStorage_ApplyUpdateMissingJob(t *testing.T) {
	store := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	job, _, err := store.Create(ctx, "https://example.com/gone", nil)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, job.ID))

	_, err = store.ApplyUpdate(ctx, job.ID, models.Fail(time.Now(), "late failure"))
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)

	// The update must not resurrect the record
	_, err = store.Get(ctx, job.ID)
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)

	assert.ErrorIs(t, store.Delete(ctx, job.ID), interfaces.ErrJobNotFound)
}

func TestJobStorage_ListByStatusNewestFirst(t *testing.T) {
	store := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	var ids []uint64
	for i := 0; i < 3; i++ {
		job, _, err := store.Create(ctx, fmt.Sprintf("https://example.com/%d", i), nil)
		require.NoError(t, err)
		ids = append(ids, job.ID)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := store.ApplyUpdate(ctx, ids[1], models.Fail(time.Now(), "boom"))
	require.NoError(t, err)

	pending, err := store.ListByStatus(ctx, models.JobStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[2], pending[0].ID)
	assert.Equal(t, ids[0], pending[1].ID)

	failed, err := store.ListByStatus(ctx, models.JobStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].ErrorMessage)

	both, err := store.ListByStatus(ctx, models.JobStatusPending, models.JobStatusFailed)
	require.NoError(t, err)
	assert.Len(t, both, 3)
}

func TestJobStorage_ListWithoutTitleIgnoresStatus(t *testing.T) {
	store := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	a, _, err := store.Create(ctx, "https://example.com/a", nil)
	require.NoError(t, err)
	b, _, err := store.Create(ctx, "https://example.com/b", nil)
	require.NoError(t, err)
	c, _, err := store.Create(ctx, "https://example.com/c", nil)
	require.NoError(t, err)

	_, err = store.ApplyUpdate(ctx, a.ID, models.MetadataFailed(time.Now(), "unavailable"))
	require.NoError(t, err)
	_, err = store.ApplyUpdate(ctx, b.ID, models.UpdateInfo("B", "", 0))
	require.NoError(t, err)

	without, err := store.ListWithoutTitle(ctx)
	require.NoError(t, err)

	var got []uint64
	for _, job := range without {
		got = append(got, job.ID)
	}
	assert.ElementsMatch(t, []uint64{a.ID, c.ID}, got)
}

func TestJobStorage_FinishedRetention(t *testing.T) {
	store := NewJobStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()
	now := time.Now()
	cutoff := now.Add(-120 * time.Hour)

	old, _, err := store.Create(ctx, "https://example.com/old", nil)
	require.NoError(t, err)
	recent, _, err := store.Create(ctx, "https://example.com/recent", nil)
	require.NoError(t, err)
	pending, _, err := store.Create(ctx, "https://example.com/pending", nil)
	require.NoError(t, err)

	_, err = store.ApplyUpdate(ctx, old.ID, models.Finish(now.Add(-200*time.Hour), 10))
	require.NoError(t, err)
	_, err = store.ApplyUpdate(ctx, recent.ID, models.Finish(now.Add(-time.Hour), 20))
	require.NoError(t, err)

	visible, err := store.ListVisible(ctx, cutoff)
	require.NoError(t, err)
	var visibleIDs []uint64
	for _, job := range visible {
		visibleIDs = append(visibleIDs, job.ID)
	}
	assert.ElementsMatch(t, []uint64{recent.ID, pending.ID}, visibleIDs)

	archived, err := store.ListFinishedBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, old.ID, archived[0].ID)

	deleted, err := store.DeleteFinishedBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.Get(ctx, old.ID)
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)
}
