package downloads

import (
	"sort"

	"github.com/ternarybob/tubeq/internal/models"
)

// PriorityFunc returns a job's secondary scheduling priority (0 is normal, higher runs later)
type PriorityFunc func(job *models.Job) int

// SortCandidates merges pending and failed jobs into dispatch order: pending
// before failed, then ascending priority, then newest first, then ascending id.
// The inputs are not modified.
func SortCandidates(pending, failed []*models.Job, priority PriorityFunc) []*models.Job {
	if priority == nil {
		priority = func(*models.Job) int { return 0 }
	}

	type candidate struct {
		job      *models.Job
		group    int
		priority int
	}

	all := make([]candidate, 0, len(pending)+len(failed))
	for _, job := range pending {
		all = append(all, candidate{job: job, group: 0, priority: priority(job)})
	}
	for _, job := range failed {
		all = append(all, candidate{job: job, group: 1, priority: priority(job)})
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.group != b.group {
			return a.group < b.group
		}
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			return a.job.CreatedAt.After(b.job.CreatedAt)
		}
		return a.job.ID < b.job.ID
	})

	result := make([]*models.Job, len(all))
	for i, c := range all {
		result[i] = c.job
	}
	return result
}

// TagPriority resolves priority from the job's tag. Untagged jobs and jobs
// whose tag no longer exists get 0.
func TagPriority(tags []*models.Tag) PriorityFunc {
	byID := make(map[uint64]int, len(tags))
	for _, tag := range tags {
		byID[tag.ID] = tag.Priority
	}
	return func(job *models.Job) int {
		if job.TagID == nil {
			return 0
		}
		return byID[*job.TagID]
	}
}
