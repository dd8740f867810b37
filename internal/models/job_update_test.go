package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func downloadingJob(progress int) *Job {
	return &Job{ID: 1, URL: "https://example.com/v", Status: JobStatusDownloading, Progress: progress}
}

func TestProgress_IsMonotonic(t *testing.T) {
	job := downloadingJob(0)

	sequence := []int{10, 5, 30, 30, 29, 80, 12, 100, 99}
	for _, pct := range sequence {
		before := job.Progress
		Progress(pct, "1MiB/s", "00:10").ApplyTo(job)
		assert.GreaterOrEqual(t, job.Progress, before, "progress regressed after callback with %d", pct)
	}
	assert.Equal(t, 100, job.Progress)
}

func TestProgress_IgnoredWhenNotDownloading(t *testing.T) {
	for _, status := range []JobStatus{JobStatusPending, JobStatusFinished, JobStatusFailed, JobStatusCancelled} {
		job := &Job{Status: status, Progress: 3}
		applied := Progress(50, "x", "y").ApplyTo(job)
		assert.False(t, applied, status.String())
		assert.Equal(t, 3, job.Progress)
		assert.Empty(t, job.Speed)
	}
}

func TestProgress_ClampsAbove100(t *testing.T) {
	job := downloadingJob(10)
	require.True(t, Progress(250, "", "").ApplyTo(job))
	assert.Equal(t, 100, job.Progress)
}

func TestUpdateInfo_PreservesErrorMessage(t *testing.T) {
	job := &Job{Status: JobStatusFailed, ErrorMessage: "HTTP Error 403", Progress: 40}

	require.True(t, UpdateInfo("A title", "https://img/x.jpg", 1234).ApplyTo(job))

	assert.Equal(t, "A title", job.Title)
	assert.Equal(t, "https://img/x.jpg", job.Thumbnail)
	require.NotNil(t, job.TotalSize)
	assert.Equal(t, int64(1234), *job.TotalSize)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, "HTTP Error 403", job.ErrorMessage)
	assert.Equal(t, 40, job.Progress, "progress is not part of the field set")
}

func TestStart_PreservesErrorMessage(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	job := &Job{Status: JobStatusFailed, ErrorMessage: "previous failure"}

	update := Start(now)
	require.True(t, update.ApplyTo(job))

	assert.False(t, update.Has(FieldErrorMessage))
	assert.Equal(t, JobStatusDownloading, job.Status)
	require.NotNil(t, job.StartedAt)
	assert.True(t, now.Equal(*job.StartedAt))
	assert.Equal(t, "previous failure", job.ErrorMessage)
}

func TestFinish_ClearsTransientFields(t *testing.T) {
	now := time.Now()
	job := &Job{Status: JobStatusDownloading, Progress: 87, Speed: "2MiB/s", ETA: "00:03", ErrorMessage: "old"}

	require.True(t, Finish(now, 4096).ApplyTo(job))

	assert.Equal(t, JobStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Empty(t, job.Speed)
	assert.Empty(t, job.ETA)
	assert.Empty(t, job.ErrorMessage)
	require.NotNil(t, job.FinishedAt)
	require.NotNil(t, job.TotalSize)
	assert.Equal(t, int64(4096), *job.TotalSize)
}

func TestFail_SetsMessageAndKeepsProgress(t *testing.T) {
	job := &Job{Status: JobStatusDownloading, Progress: 42, Speed: "1MiB/s", ETA: "01:00"}

	require.True(t, Fail(time.Now(), "all strategies failed").ApplyTo(job))

	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "all strategies failed", job.ErrorMessage)
	assert.Empty(t, job.Speed)
	assert.Empty(t, job.ETA)
	assert.Equal(t, 42, job.Progress)
	assert.NotNil(t, job.FinishedAt)
}

func TestRetry_Increments(t *testing.T) {
	job := &Job{Status: JobStatusFailed, Retries: 2}
	Retry().ApplyTo(job)
	Retry().ApplyTo(job)
	assert.Equal(t, 4, job.Retries)
}

func TestStart_OnlyFromQueuedStates(t *testing.T) {
	tests := []struct {
		status  JobStatus
		applied bool
	}{
		{JobStatusPending, true},
		{JobStatusFailed, true},
		{JobStatusDownloading, false},
		{JobStatusFinished, false},
		{JobStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			job := &Job{Status: tt.status}
			assert.Equal(t, tt.applied, Start(time.Now()).ApplyTo(job))
			assert.Equal(t, tt.applied, Retry().ApplyTo(&Job{Status: tt.status}))
			if !tt.applied {
				assert.Equal(t, tt.status, job.Status)
				assert.Nil(t, job.StartedAt)
			}
		})
	}
}

func TestStart_ResetsProgressForRetry(t *testing.T) {
	job := &Job{Status: JobStatusFailed, Progress: 64, Speed: "3MiB/s", ETA: "00:20"}

	require.True(t, Start(time.Now()).ApplyTo(job))
	assert.Equal(t, 0, job.Progress)
	assert.Empty(t, job.Speed)
	assert.Empty(t, job.ETA)

	// The new attempt reports from zero again
	require.True(t, Progress(12, "1MiB/s", "01:00").ApplyTo(job))
	assert.Equal(t, 12, job.Progress)
}

func TestCancelledJobIgnoresSchedulerTransitions(t *testing.T) {
	now := time.Now()
	updates := []JobUpdate{
		UpdateInfo("late title", "", 10),
		Start(now),
		Fail(now, "late failure"),
		MetadataFailed(now, "late metadata failure"),
		Retry(),
	}

	for _, update := range updates {
		t.Run(update.Name, func(t *testing.T) {
			job := &Job{Status: JobStatusCancelled}
			assert.False(t, update.ApplyTo(job))
			assert.Equal(t, JobStatusCancelled, job.Status)
			assert.Empty(t, job.Title)
			assert.Empty(t, job.ErrorMessage)
			assert.Zero(t, job.Retries)
		})
	}
}

func TestCancel_OnlyFromIdleStates(t *testing.T) {
	tests := []struct {
		status  JobStatus
		applied bool
	}{
		{JobStatusPending, true},
		{JobStatusFailed, true},
		{JobStatusDownloading, false},
		{JobStatusFinished, false},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			job := &Job{Status: tt.status}
			assert.Equal(t, tt.applied, Cancel(time.Now()).ApplyTo(job))
			if tt.applied {
				assert.Equal(t, JobStatusCancelled, job.Status)
			} else {
				assert.Equal(t, tt.status, job.Status)
			}
		})
	}
}

func TestParseJobStatus(t *testing.T) {
	s, err := ParseJobStatus(" Failed ")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, s)

	_, err = ParseJobStatus("paused")
	assert.Error(t, err)
}

func TestJob_CloneIsDeep(t *testing.T) {
	size := int64(10)
	tagID := uint64(3)
	job := &Job{ID: 7, TotalSize: &size, TagID: &tagID}

	c := job.Clone()
	*c.TotalSize = 99
	*c.TagID = 4

	assert.Equal(t, int64(10), *job.TotalSize)
	assert.Equal(t, uint64(3), *job.TagID)
}
