/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package jobqueue

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
)

// CronScheduler submits recurring jobs to a Queue on cron schedules.
// Schedule specs use the 6-field format with a seconds field and also accept
// the @every and @hourly style descriptors.
type CronScheduler struct {
	logger log.FieldLogger
	queue  *Queue
	cron   *cron.Cron
}

// NewCronScheduler creates a new CronScheduler submitting to the given queue.
func NewCronScheduler(queue *Queue, logger log.FieldLogger) *CronScheduler {
	return &CronScheduler{
		logger: logger,
		queue:  queue,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Schedule registers a recurring submission of the given job type and payload.
// The returned entry ID may be passed to Unschedule.
func (s *CronScheduler) Schedule(spec, jobType string, payload interface{}, opts SubmitOptions) (cron.EntryID, error) {
	entryID, err := s.cron.AddFunc(spec, func() {
		jobID, err := s.queue.Submit(jobType, payload, opts)
		if err != nil {
			s.logger.Error("scheduled job submission failed",
				log.String("job_type", jobType), log.String("schedule", spec), log.Error(err))
			return
		}
		s.logger.Debug("scheduled job submitted",
			log.String("job_type", jobType), log.String("job_id", jobID), log.String("schedule", spec))
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("recurring job scheduled", log.String("job_type", jobType), log.String("schedule", spec))
	return entryID, nil
}

// Unschedule removes a previously scheduled recurring submission.
func (s *CronScheduler) Unschedule(id cron.EntryID) {
	s.cron.Remove(id)
}

// Entries returns snapshots of all registered cron entries.
func (s *CronScheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Run starts the cron loop and blocks until ctx is canceled, then waits for
// running submissions to finish. It implements service.Worker.
func (s *CronScheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
