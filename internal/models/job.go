// -----------------------------------------------------------------------
// Job - one URL's download request and its tracked lifecycle state
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a download job
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusFinished    JobStatus = "finished"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// String returns the string representation of the status
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the job has reached an end state.
// Failed is terminal in storage but stays eligible for scheduler retries.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusFinished || s == JobStatusFailed || s == JobStatusCancelled
}

// IsActive reports whether the job is queued or running
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusDownloading
}

// ParseJobStatus converts a string to a JobStatus (case-insensitive)
func ParseJobStatus(value string) (JobStatus, error) {
	switch s := JobStatus(strings.ToLower(strings.TrimSpace(value))); s {
	case JobStatusPending, JobStatusDownloading, JobStatusFinished, JobStatusFailed, JobStatusCancelled:
		return s, nil
	default:
		return "", fmt.Errorf("unknown job status: %q", value)
	}
}

// Job is the persisted record of a single download request.
// Mutations go through JobUpdate transitions (see job_update.go); the store
// is the system of record and nothing caches job content across cycles.
type Job struct {
	ID  uint64 `json:"id" badgerhold:"key"`
	URL string `json:"url" badgerhold:"index"`

	// Descriptive - empty Title means metadata was never resolved
	Title     string `json:"title,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	TotalSize *int64 `json:"totalSize,omitempty"`

	// Progress
	Status   JobStatus `json:"status" badgerhold:"index"`
	Progress int       `json:"progress"`
	Speed    string    `json:"speed,omitempty"`
	ETA      string    `json:"eta,omitempty"`

	// Timestamps
	CreatedAt  time.Time  `json:"created"`
	StartedAt  *time.Time `json:"started,omitempty"`
	FinishedAt *time.Time `json:"finished,omitempty"`

	// Outcome
	ErrorMessage string `json:"errorMessage,omitempty"`
	Retries      int    `json:"retries"`

	// Routing
	TagID *uint64 `json:"tagId,omitempty"`
}

// NewJob creates a pending job for the given URL
func NewJob(url string, tagID *uint64, now time.Time) *Job {
	return &Job{
		URL:       url,
		Status:    JobStatusPending,
		Progress:  0,
		CreatedAt: now.UTC(),
		TagID:     tagID,
	}
}

// HasMetadata reports whether the metadata fetch has succeeded at least once
func (j *Job) HasMetadata() bool {
	return j.Title != ""
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.TotalSize != nil {
		v := *j.TotalSize
		c.TotalSize = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		c.StartedAt = &v
	}
	if j.FinishedAt != nil {
		v := *j.FinishedAt
		c.FinishedAt = &v
	}
	if j.TagID != nil {
		v := *j.TagID
		c.TagID = &v
	}
	return &c
}

// DisplayName returns the title when known, falling back to the URL
func (j *Job) DisplayName() string {
	if j.Title != "" {
		return j.Title
	}
	return j.URL
}
