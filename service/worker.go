/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
)

// ErrPeriodicWorkerStop may be returned from the underlying worker to break PeriodicWorker's loop
// without reporting an error.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker error")

// Worker performs some (usually long-running) work.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run is a part of Worker interface.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker runs the underlying worker in a loop, sleeping between the iterations.
type PeriodicWorker struct {
	worker            Worker
	logger            log.FieldLogger
	clock             clock.Clock
	initialDelay      time.Duration
	intervalDelay     time.Duration
	intervalDelayFunc func(worker Worker, err error) time.Duration
}

// PeriodicWorkerOpts contains optional parameters for constructing PeriodicWorker.
type PeriodicWorkerOpts struct {
	// InitialDelay postpones the first iteration. Zero means the first iteration starts immediately.
	InitialDelay time.Duration

	// IntervalDelayFunc computes the delay before the next iteration based on the result of
	// the previous one. When nil, the constant interval delay is used.
	IntervalDelayFunc func(worker Worker, err error) time.Duration

	// Clock is a time source for the loop timers. The real clock is used when nil;
	// tests may pass a mock to advance time virtually.
	Clock clock.Clock
}

// NewPeriodicWorker creates a new PeriodicWorker with a constant delay between the iterations.
func NewPeriodicWorker(worker Worker, intervalDelay time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, intervalDelay, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts creates a new PeriodicWorker with additional options.
func NewPeriodicWorkerWithOpts(
	worker Worker, intervalDelay time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	cl := opts.Clock
	if cl == nil {
		cl = clock.New()
	}
	return &PeriodicWorker{
		worker:            worker,
		clock:             cl,
		initialDelay:      opts.InitialDelay,
		intervalDelay:     intervalDelay,
		intervalDelayFunc: opts.IntervalDelayFunc,
		logger:            logger,
	}
}

// Run runs the loop until ctx is canceled or the underlying worker returns ErrPeriodicWorkerStop.
// An iteration error other than ErrPeriodicWorkerStop is logged and does not stop the loop.
func (pw *PeriodicWorker) Run(ctx context.Context) (resErr error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			pw.logger.Error(fmt.Sprintf("panic: %+v", p), log.String("stack", string(stack)))
			panic(p)
		}
		if resErr != nil {
			pw.logger.Error("periodic worker stopped with error", log.Error(resErr))
			return
		}
		pw.logger.Info("periodic worker stopped successfully")
	}()

	pw.logger.Infof("running periodic worker (initialDelay=%s, intervalDelay=%s)...",
		pw.initialDelay, pw.intervalDelay)

	timer := pw.clock.Timer(pw.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		err := pw.worker.Run(ctx)
		if err != nil {
			if errors.Is(err, ErrPeriodicWorkerStop) {
				return nil
			}
			pw.logger.Error("periodically running worker finished with error", log.Error(err))
		}

		timer.Stop()
		timer = pw.clock.Timer(pw.nextDelay(err))
	}
}

func (pw *PeriodicWorker) nextDelay(lastRunErr error) time.Duration {
	if pw.intervalDelayFunc != nil {
		return pw.intervalDelayFunc(pw.worker, lastRunErr)
	}
	return pw.intervalDelay
}
