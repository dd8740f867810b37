package models

import (
	"time"
)

// JobField names a persisted Job column that a transition may write
type JobField string

const (
	FieldTitle        JobField = "title"
	FieldThumbnail    JobField = "thumbnail"
	FieldTotalSize    JobField = "total_size"
	FieldStatus       JobField = "status"
	FieldProgress     JobField = "progress"
	FieldSpeed        JobField = "speed"
	FieldETA          JobField = "eta"
	FieldStartedAt    JobField = "started_at"
	FieldFinishedAt   JobField = "finished_at"
	FieldErrorMessage JobField = "error_message"
	FieldRetries      JobField = "retries"
)

// JobUpdate is a partial update expressed as a named field set.
// Stores apply it against the current record inside a transaction: Precondition
// (when set) is evaluated first, then only Fields are copied from Values.
type JobUpdate struct {
	Name   string
	Fields []JobField
	Values Job

	// Precondition guards the write; a false result makes the update a no-op
	Precondition func(current *Job) bool

	// IncrementRetries adds one to the stored retry count instead of copying Values.Retries
	IncrementRetries bool
}

// Has reports whether the update writes the given field
func (u JobUpdate) Has(field JobField) bool {
	for _, f := range u.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Allows evaluates the precondition against the stored record
func (u JobUpdate) Allows(current *Job) bool {
	if u.Precondition == nil {
		return true
	}
	return u.Precondition(current)
}

// ApplyTo copies the named fields onto job. Returns false (and leaves job
// untouched) when the precondition rejects the current state.
func (u JobUpdate) ApplyTo(job *Job) bool {
	if !u.Allows(job) {
		return false
	}

	v := u.Values
	for _, f := range u.Fields {
		switch f {
		case FieldTitle:
			job.Title = v.Title
		case FieldThumbnail:
			job.Thumbnail = v.Thumbnail
		case FieldTotalSize:
			job.TotalSize = copyInt64(v.TotalSize)
		case FieldStatus:
			job.Status = v.Status
		case FieldProgress:
			job.Progress = v.Progress
		case FieldSpeed:
			job.Speed = v.Speed
		case FieldETA:
			job.ETA = v.ETA
		case FieldStartedAt:
			job.StartedAt = copyTime(v.StartedAt)
		case FieldFinishedAt:
			job.FinishedAt = copyTime(v.FinishedAt)
		case FieldErrorMessage:
			job.ErrorMessage = v.ErrorMessage
		case FieldRetries:
			if u.IncrementRetries {
				job.Retries++
			} else {
				job.Retries = v.Retries
			}
		}
	}
	return true
}

// UpdateInfo records resolved metadata and puts the job back in the queue.
// ErrorMessage is not part of the field set. A cancelled job stays cancelled.
func UpdateInfo(title, thumbnail string, totalSize int64) JobUpdate {
	return JobUpdate{
		Name:   "update_info",
		Fields: []JobField{FieldTitle, FieldThumbnail, FieldTotalSize, FieldStatus},
		Values: Job{
			Title:     title,
			Thumbnail: thumbnail,
			TotalSize: &totalSize,
			Status:    JobStatusPending,
		},
		Precondition: notCancelled,
	}
}

// Start marks a Pending or Failed job as downloading and resets progress for
// the new attempt. A previous ErrorMessage survives so clients can show what
// the retry is recovering from.
func Start(now time.Time) JobUpdate {
	started := now.UTC()
	return JobUpdate{
		Name:   "start",
		Fields: []JobField{FieldStatus, FieldStartedAt, FieldProgress, FieldSpeed, FieldETA},
		Values: Job{
			Status:    JobStatusDownloading,
			StartedAt: &started,
		},
		Precondition: queued,
	}
}

// Progress records download progress. Applied only while downloading and
// only when the percentage moves forward.
func Progress(percent int, speed, eta string) JobUpdate {
	if percent > 100 {
		percent = 100
	}
	return JobUpdate{
		Name:   "progress",
		Fields: []JobField{FieldProgress, FieldSpeed, FieldETA},
		Values: Job{
			Progress: percent,
			Speed:    speed,
			ETA:      eta,
		},
		Precondition: func(current *Job) bool {
			return current.Status == JobStatusDownloading && percent > current.Progress
		},
	}
}

// Finish records a successful download with the actual produced file size
func Finish(now time.Time, fileSize int64) JobUpdate {
	finished := now.UTC()
	return JobUpdate{
		Name: "finish",
		Fields: []JobField{
			FieldStatus, FieldFinishedAt, FieldETA, FieldSpeed,
			FieldProgress, FieldTotalSize, FieldErrorMessage,
		},
		Values: Job{
			Status:       JobStatusFinished,
			FinishedAt:   &finished,
			Progress:     100,
			TotalSize:    &fileSize,
			ErrorMessage: "",
		},
	}
}

// Fail records a failed attempt with a human-readable cause
func Fail(now time.Time, message string) JobUpdate {
	finished := now.UTC()
	return JobUpdate{
		Name:   "fail",
		Fields: []JobField{FieldStatus, FieldFinishedAt, FieldETA, FieldSpeed, FieldErrorMessage},
		Values: Job{
			Status:       JobStatusFailed,
			FinishedAt:   &finished,
			ErrorMessage: message,
		},
		Precondition: notCancelled,
	}
}

// MetadataFailed is Fail for a job whose metadata fetch did not succeed
func MetadataFailed(now time.Time, message string) JobUpdate {
	u := Fail(now, message)
	u.Name = "metadata_failed"
	return u
}

// Retry bumps the informational retry counter
func Retry() JobUpdate {
	return JobUpdate{
		Name:             "retry",
		Fields:           []JobField{FieldRetries},
		IncrementRetries: true,
		Precondition:     queued,
	}
}

// Cancel stops a job that is not running. Only reachable through the API.
func Cancel(now time.Time) JobUpdate {
	finished := now.UTC()
	return JobUpdate{
		Name:   "cancel",
		Fields: []JobField{FieldStatus, FieldFinishedAt, FieldETA, FieldSpeed},
		Values: Job{
			Status:     JobStatusCancelled,
			FinishedAt: &finished,
		},
		Precondition: queued,
	}
}

// queued reports whether the scheduler may still pick the job up
func queued(current *Job) bool {
	return current.Status == JobStatusPending || current.Status == JobStatusFailed
}

func notCancelled(current *Job) bool {
	return current.Status != JobStatusCancelled
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
