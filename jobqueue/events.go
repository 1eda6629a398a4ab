/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package jobqueue

import (
	"time"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
)

// EventType identifies a discrete lifecycle event emitted by the queue.
type EventType string

// Queue event types.
const (
	EventJobAdded      EventType = "job:added"
	EventJobProcessing EventType = "job:processing"
	EventJobCompleted  EventType = "job:completed"
	EventJobRetrying   EventType = "job:retrying"
	EventJobFailed     EventType = "job:failed"
	EventJobRemoved    EventType = "job:removed"
	EventCleanup       EventType = "cleanup"
)

// Event is a single queue lifecycle notification.
type Event struct {
	// Type identifies what happened.
	Type EventType

	// Job is a snapshot of the affected job taken right after the transition.
	// It is nil for EventCleanup.
	Job *Job

	// Removed is the number of jobs removed by a cleanup. Zero for other event types.
	Removed int

	// Time is when the event was emitted.
	Time time.Time
}

// EventListener receives queue events. Delivery is synchronous in the
// goroutine that performed the transition; listeners must be fast and
// must not call back into the queue.
type EventListener interface {
	HandleQueueEvent(e Event)
}

// The EventListenerFunc type is an adapter to allow the use of ordinary functions as EventListener.
type EventListenerFunc func(e Event)

// HandleQueueEvent implements EventListener.
func (f EventListenerFunc) HandleQueueEvent(e Event) {
	f(e)
}

// LoggingEventListener writes one structured log entry per queue event.
type LoggingEventListener struct {
	logger log.FieldLogger
}

var _ EventListener = (*LoggingEventListener)(nil)

// NewLoggingEventListener creates a new LoggingEventListener.
func NewLoggingEventListener(logger log.FieldLogger) *LoggingEventListener {
	return &LoggingEventListener{logger: logger}
}

// HandleQueueEvent implements EventListener.
func (l *LoggingEventListener) HandleQueueEvent(e Event) {
	if e.Type == EventCleanup {
		l.logger.Info("job queue cleanup", log.Int("removed", e.Removed))
		return
	}
	fields := []log.Field{
		log.String("job_id", e.Job.ID),
		log.String("job_type", e.Job.Type),
		log.String("priority", string(e.Job.Priority)),
		log.Int("attempts", e.Job.Attempts),
	}
	switch e.Type {
	case EventJobAdded:
		l.logger.Info("job added", fields...)
	case EventJobProcessing:
		l.logger.Debug("job processing", fields...)
	case EventJobCompleted:
		l.logger.Info("job completed", fields...)
	case EventJobRetrying:
		fields = append(fields, log.String("error", e.Job.Error))
		if e.Job.NextRetryAt != nil {
			fields = append(fields, log.Time("next_retry_at", *e.Job.NextRetryAt))
		}
		l.logger.Warn("job will be retried", fields...)
	case EventJobFailed:
		l.logger.Error("job failed", append(fields, log.String("error", e.Job.Error))...)
	case EventJobRemoved:
		l.logger.Info("job removed", fields...)
	}
}
