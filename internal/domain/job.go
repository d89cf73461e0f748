package domain

import "time"

// JobStatus enumerates the states reported by the inference backend.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusStarting   JobStatus = "starting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// ParseJobStatus maps a backend status string onto the closed enum. Unknown
// values are returned as-is with ok=false so callers decide how to react
// instead of silently treating them as progress.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusStarting, JobStatusProcessing,
		JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return JobStatus(s), true
	default:
		return JobStatus(s), false
	}
}

// IsTerminal reports whether no further transitions can occur.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// GenerationJob tracks a single inference request through the backend's
// queued->terminal lifecycle. Once a terminal status is observed the job is
// immutable and is discarded after its result is consumed.
type GenerationJob struct {
	ID        string
	Status    JobStatus
	Model     string
	Prompt    string
	OutputURL string
	Error     string
	CreatedAt time.Time
}
