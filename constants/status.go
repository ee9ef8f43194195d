package constants

// JobStatus is the canonical status for rows in the job queue file.
type JobStatus string

// Stable values (store these exact strings in the queue file).
const (
	JobStatusPending       JobStatus = "pending"        // waiting for (re)processing
	JobStatusCompleted     JobStatus = "completed"      // fragment written
	JobStatusFailedBadID   JobStatus = "failed_bad_id"  // identifier rejected before inference
	JobStatusFailedTimeout JobStatus = "failed_timeout" // inference deadline exceeded
	JobStatusFailedSystem  JobStatus = "failed_system"  // transport or collaborator error
	JobStatusFailedParse   JobStatus = "failed_parse"   // unreadable note or non-conforming payload
)

// AllStatuses lists every status in queue-file order.
var AllStatuses = []JobStatus{
	JobStatusPending,
	JobStatusCompleted,
	JobStatusFailedBadID,
	JobStatusFailedTimeout,
	JobStatusFailedSystem,
	JobStatusFailedParse,
}

// FailedStatuses lists every failure state, in classification priority order.
var FailedStatuses = []JobStatus{
	JobStatusFailedBadID,
	JobStatusFailedTimeout,
	JobStatusFailedSystem,
	JobStatusFailedParse,
}

// ParseJobStatus maps a stored string onto a JobStatus. An empty cell reads as pending.
func ParseJobStatus(s string) (JobStatus, bool) {
	if s == "" {
		return JobStatusPending, true
	}
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsFailed reports whether the status is one of the failed_* states.
func (s JobStatus) IsFailed() bool {
	for _, st := range FailedStatuses {
		if s == st {
			return true
		}
	}
	return false
}
