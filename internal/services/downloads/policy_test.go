package downloads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/tubeq/internal/models"
)

func jobAt(id uint64, status models.JobStatus, created time.Time, tagID *uint64) *models.Job {
	return &models.Job{ID: id, URL: "https://example.com/" + string(rune('a'+id)), Status: status, CreatedAt: created, TagID: tagID}
}

func ids(jobs []*models.Job) []uint64 {
	result := make([]uint64, len(jobs))
	for i, job := range jobs {
		result[i] = job.ID
	}
	return result
}

func TestSortCandidates_PendingTagThenNewest(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := uint64(7)

	// A: pending, untagged, oldest. B: pending, deferred tag, newest. C: failed, untagged.
	a := jobAt(1, models.JobStatusPending, base, nil)
	b := jobAt(2, models.JobStatusPending, base.Add(2*time.Hour), &later)
	c := jobAt(3, models.JobStatusFailed, base.Add(time.Hour), nil)

	priority := TagPriority([]*models.Tag{{ID: later, Priority: 1}})
	got := SortCandidates([]*models.Job{a, b}, []*models.Job{c}, priority)

	// Pending A outranks pending B through the tag; both outrank failed C
	assert.Equal(t, []uint64{1, 2, 3}, ids(got))
}

func TestSortCandidates_ACB(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := uint64(7)

	a := jobAt(1, models.JobStatusPending, t1, nil)
	b := jobAt(2, models.JobStatusFailed, t1.Add(time.Hour), nil)
	c := jobAt(3, models.JobStatusPending, t1.Add(2*time.Hour), &later)

	priority := TagPriority([]*models.Tag{{ID: later, Priority: 1}})
	got := SortCandidates([]*models.Job{a, c}, []*models.Job{b}, priority)

	assert.Equal(t, []uint64{1, 3, 2}, ids(got))
}

func TestSortCandidates_NewestFirstThenID(t *testing.T) {
	same := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got := SortCandidates([]*models.Job{
		jobAt(5, models.JobStatusPending, same, nil),
		jobAt(2, models.JobStatusPending, same, nil),
		jobAt(9, models.JobStatusPending, same.Add(time.Minute), nil),
	}, nil, nil)

	assert.Equal(t, []uint64{9, 2, 5}, ids(got))
}

func TestSortCandidates_FailedAlwaysAfterPending(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	deferred := uint64(1)

	pending := []*models.Job{jobAt(1, models.JobStatusPending, base, &deferred)}
	failed := []*models.Job{jobAt(2, models.JobStatusFailed, base.Add(time.Hour), nil)}

	got := SortCandidates(pending, failed, TagPriority([]*models.Tag{{ID: deferred, Priority: 10}}))
	assert.Equal(t, []uint64{1, 2}, ids(got))
}

func TestSortCandidates_DoesNotModifyInputs(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pending := []*models.Job{
		jobAt(1, models.JobStatusPending, base, nil),
		jobAt(2, models.JobStatusPending, base.Add(time.Hour), nil),
	}

	SortCandidates(pending, nil, nil)
	assert.Equal(t, []uint64{1, 2}, ids(pending))
}

func TestTagPriority_UnknownTagIsNormal(t *testing.T) {
	missing := uint64(42)
	priority := TagPriority(nil)
	assert.Equal(t, 0, priority(&models.Job{TagID: &missing}))
	assert.Equal(t, 0, priority(&models.Job{}))
}
