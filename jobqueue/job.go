/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package jobqueue

import "time"

// Priority is a scheduling tier of a job. Dispatch order across tiers is
// strict: no lower-priority job starts while a higher-priority one is eligible.
type Priority string

// Supported job priorities, from the most to the least urgent.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// priorityScanOrder is the strict dispatch order of priority classes.
var priorityScanOrder = [...]Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

// IsValid reports whether p is one of the supported priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Status is a job's lifecycle state.
type Status string

// Job statuses. StatusCompleted and StatusFailed are terminal.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRetrying   Status = "retrying"
)

// IsTerminal reports whether no further transitions are possible from the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is a unit of deferred work tracked by the queue.
// Values returned by the queue's read methods are snapshot copies,
// mutating them does not affect the queue's state.
type Job struct {
	// ID is an opaque unique identifier assigned at submission.
	ID string

	// Type selects the registered handler.
	Type string

	// Priority is the job's scheduling tier.
	Priority Priority

	// Payload is the caller-supplied input, opaque to the queue.
	Payload interface{}

	// Status is the current lifecycle state.
	Status Status

	// Attempts is the number of started execution attempts.
	// It increments only at the start of an attempt.
	Attempts int

	// MaxAttempts caps the number of execution attempts.
	MaxAttempts int

	// CreatedAt is the submission time.
	CreatedAt time.Time

	// StartedAt is the start time of the latest execution attempt.
	StartedAt *time.Time

	// CompletedAt is set exactly once, on the transition into a terminal status.
	CompletedAt *time.Time

	// NextRetryAt is the earliest time a retrying job becomes eligible again.
	NextRetryAt *time.Time

	// Result is the handler's return value of a completed job.
	Result interface{}

	// Error is a human-readable description of the last failure.
	Error string

	// Metadata holds free-form caller annotations, never interpreted by the queue.
	Metadata map[string]interface{}
}

func copyJob(job Job) Job {
	job.StartedAt = copyTime(job.StartedAt)
	job.CompletedAt = copyTime(job.CompletedAt)
	job.NextRetryAt = copyTime(job.NextRetryAt)
	if job.Metadata != nil {
		metadata := make(map[string]interface{}, len(job.Metadata))
		for k, v := range job.Metadata {
			metadata[k] = v
		}
		job.Metadata = metadata
	}
	return job
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	tc := *t
	return &tc
}
