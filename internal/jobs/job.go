// Package jobs owns the durable job queue: its row model, the CSV file that
// persists it, and the explicit sync and re-queue actions around it.
package jobs

import (
	"time"

	"github.com/joseph-ayodele/clinicalgraph/constants"
)

// Job is one unit of work: one case note to one fragment.
type Job struct {
	JobID       string
	SourcePath  string
	Status      constants.JobStatus
	OutputPath  string    // set only on success
	LastUpdated time.Time // set on every terminal transition
	CreatedAt   time.Time
	LastError   string // detail of the most recent failure
}

// Counts tallies jobs per status.
func Counts(jobs []Job) map[constants.JobStatus]int {
	out := make(map[constants.JobStatus]int, 6)
	for _, j := range jobs {
		out[j.Status]++
	}
	return out
}

// Requeue resets matching jobs to pending and returns how many changed.
// With no statuses every failed_* job matches; ids, when given, further
// restrict the match to those job ids. This is the only way a terminal job
// becomes pending again.
func Requeue(jobs []Job, statuses []constants.JobStatus, ids []string) int {
	match := map[constants.JobStatus]bool{}
	if len(statuses) == 0 {
		statuses = constants.FailedStatuses
	}
	for _, s := range statuses {
		if s != constants.JobStatusPending {
			match[s] = true
		}
	}
	var only map[string]bool
	if len(ids) > 0 {
		only = make(map[string]bool, len(ids))
		for _, id := range ids {
			only[id] = true
		}
	}

	n := 0
	for i := range jobs {
		j := &jobs[i]
		if !match[j.Status] {
			continue
		}
		if only != nil && !only[j.JobID] {
			continue
		}
		j.Status = constants.JobStatusPending
		j.LastError = ""
		n++
	}
	return n
}
