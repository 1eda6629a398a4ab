/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/internal/slots"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/retry"
)

// Default profile values. They are applied field-wise to profiles that leave
// the corresponding field unset and make up the profile of unknown services.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultMaxConcurrent     = 3
	DefaultMaxRetries        = 3
	DefaultInitialBackoff    = time.Second
	DefaultMaxBackoff        = time.Second * 30
)

// ErrThrottlerStopped is returned to callers whose tickets were still queued
// when the throttler shut down, and for all calls made after that.
var ErrThrottlerStopped = errors.New("throttler is stopped")

// Operation is a single outbound call. It receives the caller's context.
type Operation func(ctx context.Context) (interface{}, error)

// ServiceProfile describes how calls to one external service are paced.
type ServiceProfile struct {
	// RequestsPerSecond sets the minimum spacing between call starts (1/RequestsPerSecond).
	RequestsPerSecond float64

	// MaxConcurrent bounds the number of in-flight calls.
	MaxConcurrent int

	// MaxRetries is the number of retries after the first failed attempt,
	// so a ticket is executed at most MaxRetries+1 times.
	MaxRetries int

	// InitialBackoff is the delay before the first retry. Each following retry
	// doubles it, capped at MaxBackoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
}

// DefaultServiceProfile returns the profile used for services that have no configured one.
func DefaultServiceProfile() ServiceProfile {
	return ServiceProfile{
		RequestsPerSecond: DefaultRequestsPerSecond,
		MaxConcurrent:     DefaultMaxConcurrent,
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
	}
}

// withDefaults fills unset fields. MaxRetries is kept as is:
// zero is a valid "never retry" setting.
func (p ServiceProfile) withDefaults() ServiceProfile {
	if p.RequestsPerSecond <= 0 {
		p.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = DefaultMaxConcurrent
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

func (p ServiceProfile) newBackoffSchedule() backoff.BackOff {
	policy := retry.NewExponentialBackoffPolicyWithOpts(p.InitialBackoff, 0, retry.ExponentialBackoffOpts{
		Multiplier:  2,
		NoJitter:    true,
		MaxInterval: p.MaxBackoff,
	})
	return policy.NewBackOff()
}

type ticketResult struct {
	value interface{}
	err   error
}

// ticket is one queued outbound call. A ticket is owned by exactly one
// goroutine at a time (caller -> dispatcher -> runner -> retry timer -> ...),
// so its fields need no locking and deliver is called at most once.
type ticket struct {
	callerCtx context.Context
	op        Operation
	resultCh  chan ticketResult
	attempts  int // retries so far, not total executions
	backoff   backoff.BackOff
}

func (tk *ticket) deliver(value interface{}, err error) {
	tk.resultCh <- ticketResult{value: value, err: err}
}

// serviceState holds the queue and pacing primitives of one service.
type serviceState struct {
	name      string
	profile   ServiceProfile
	pacer     *rate.Limiter
	slots     *slots.Pool
	metrics   *serviceMetrics
	collector MetricsCollector

	mu      sync.Mutex
	queue   []*ticket
	stopped bool
	wake    chan struct{}
}

func newServiceState(name string, profile ServiceProfile, collector MetricsCollector) *serviceState {
	pool, _ := slots.NewPool(profile.MaxConcurrent) // capacity is normalized, never invalid
	return &serviceState{
		name:      name,
		profile:   profile,
		pacer:     rate.NewLimiter(rate.Limit(profile.RequestsPerSecond), 1),
		slots:     pool,
		metrics:   &serviceMetrics{},
		collector: collector,
		wake:      make(chan struct{}, 1),
	}
}

func (s *serviceState) enqueueBack(tk *ticket) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, tk)
	queueLen := len(s.queue)
	s.mu.Unlock()
	s.collector.QueueLengthChanged(s.name, queueLen)
	s.wakeUp()
	return true
}

func (s *serviceState) enqueueFront(tk *ticket) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.queue = append([]*ticket{tk}, s.queue...)
	queueLen := len(s.queue)
	s.mu.Unlock()
	s.collector.QueueLengthChanged(s.name, queueLen)
	s.wakeUp()
	return true
}

func (s *serviceState) popFront() *ticket {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return nil
	}
	tk := s.queue[0]
	s.queue = s.queue[1:]
	queueLen := len(s.queue)
	s.mu.Unlock()
	s.collector.QueueLengthChanged(s.name, queueLen)
	return tk
}

// drainAndStop empties the queue and makes all further enqueues fail.
func (s *serviceState) drainAndStop() []*ticket {
	s.mu.Lock()
	s.stopped = true
	drained := s.queue
	s.queue = nil
	s.mu.Unlock()
	s.collector.QueueLengthChanged(s.name, 0)
	return drained
}

func (s *serviceState) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *serviceState) wakeUp() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Throttler paces outbound calls per service. All methods are safe for concurrent use.
type Throttler struct {
	logger         log.FieldLogger
	clock          clock.Clock
	collector      MetricsCollector
	defaultProfile ServiceProfile
	profiles       map[string]ServiceProfile

	mu       sync.Mutex
	services map[string]*serviceState
	running  bool
	stopped  bool
	runCtx   context.Context
	wg       sync.WaitGroup
}

// Opts contains optional parameters for Throttler.
type Opts struct {
	// DefaultProfile is used for services missing from Profiles.
	// A completely zero profile is replaced with DefaultServiceProfile(),
	// in a partially set one unset fields fall back to the package defaults.
	DefaultProfile ServiceProfile

	// Profiles maps service names to their pacing profiles. A completely zero
	// profile means the default profile. In a partially set profile unset
	// fields fall back to the package defaults, and MaxRetries zero means
	// the service's calls are never retried.
	Profiles map[string]ServiceProfile

	// MetricsCollector receives per-call observations. Disabled when nil.
	MetricsCollector MetricsCollector

	// Clock is a time source for retry delays. The real clock is used when nil.
	Clock clock.Clock
}

// NewThrottler creates a new Throttler with default options.
func NewThrottler(logger log.FieldLogger) *Throttler {
	return NewThrottlerWithOpts(logger, Opts{})
}

// NewThrottlerWithOpts creates a new Throttler
// with an ability to specify different optional parameters.
func NewThrottlerWithOpts(logger log.FieldLogger, opts Opts) *Throttler {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	if opts.DefaultProfile == (ServiceProfile{}) {
		opts.DefaultProfile = DefaultServiceProfile()
	}
	defaultProfile := opts.DefaultProfile.withDefaults()
	profiles := make(map[string]ServiceProfile, len(opts.Profiles))
	for name, profile := range opts.Profiles {
		if profile == (ServiceProfile{}) {
			profile = defaultProfile
		}
		profiles[name] = profile.withDefaults()
	}
	return &Throttler{
		logger:         logger,
		clock:          opts.Clock,
		collector:      opts.MetricsCollector,
		defaultProfile: defaultProfile,
		profiles:       profiles,
		services:       make(map[string]*serviceState),
	}
}

// Execute enqueues op on serviceName's FIFO queue and blocks until the
// operation finishes (possibly after retries), the throttler shuts down,
// or ctx is done. Tickets may be enqueued before Run; they are dispatched
// once the throttler is running.
func (t *Throttler) Execute(ctx context.Context, serviceName string, op Operation) (interface{}, error) {
	s, err := t.stateFor(serviceName)
	if err != nil {
		return nil, err
	}

	tk := &ticket{
		callerCtx: ctx,
		op:        op,
		resultCh:  make(chan ticketResult, 1),
		backoff:   s.profile.newBackoffSchedule(),
	}
	if !s.enqueueBack(tk) {
		return nil, ErrThrottlerStopped
	}

	select {
	case res := <-tk.resultCh:
		return res.value, res.err
	case <-ctx.Done():
		// The ticket stays queued; the dispatcher will notice the canceled
		// context and drop it without starting the call.
		return nil, ctx.Err()
	}
}

// Metrics returns a metrics snapshot for one service.
// ok is false if the service has never been used.
func (t *Throttler) Metrics(serviceName string) (ServiceMetrics, bool) {
	t.mu.Lock()
	s, ok := t.services[serviceName]
	t.mu.Unlock()
	if !ok {
		return ServiceMetrics{}, false
	}
	return s.snapshotMetrics(), true
}

// AllMetrics returns metrics snapshots for all services that have been used.
func (t *Throttler) AllMetrics() map[string]ServiceMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make(map[string]ServiceMetrics, len(t.services))
	for name, s := range t.services {
		result[name] = s.snapshotMetrics()
	}
	return result
}

// Run dispatches queued tickets until ctx is canceled, then rejects all
// still-queued tickets with ErrThrottlerStopped and waits for in-flight
// calls to finish. It implements service.Worker.
func (t *Throttler) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrThrottlerStopped
	}
	if t.running {
		t.mu.Unlock()
		return errors.New("throttler is already running")
	}
	t.running = true
	t.runCtx = ctx
	for _, s := range t.services {
		t.startDispatcher(ctx, s)
	}
	t.mu.Unlock()

	<-ctx.Done()

	t.mu.Lock()
	t.running = false
	t.stopped = true
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

func (t *Throttler) stateFor(serviceName string) (*serviceState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil, ErrThrottlerStopped
	}
	if s, ok := t.services[serviceName]; ok {
		return s, nil
	}

	profile, ok := t.profiles[serviceName]
	if !ok {
		profile = t.defaultProfile
	}
	s := newServiceState(serviceName, profile, t.collector)
	t.services[serviceName] = s
	t.logger.Info("throttling queue created for service",
		log.String("service", serviceName),
		log.Float64("rps", profile.RequestsPerSecond),
		log.Int("max_concurrent", profile.MaxConcurrent),
		log.Int("max_retries", profile.MaxRetries))
	if t.running {
		t.startDispatcher(t.runCtx, s)
	}
	return s, nil
}

func (t *Throttler) startDispatcher(ctx context.Context, s *serviceState) {
	t.wg.Add(1)
	go t.dispatchLoop(ctx, s)
}

// dispatchLoop dequeues tickets FIFO and launches them, holding a concurrency
// slot first and pacing the start last, so consecutive starts are always at
// least 1/RequestsPerSecond apart.
func (t *Throttler) dispatchLoop(ctx context.Context, s *serviceState) {
	defer t.wg.Done()
	for {
		tk := s.popFront()
		if tk == nil {
			select {
			case <-ctx.Done():
				t.rejectPending(s)
				return
			case <-s.wake:
				continue
			}
		}

		if tk.callerCtx.Err() != nil { // the caller gave up while the ticket was queued
			tk.deliver(nil, tk.callerCtx.Err())
			continue
		}

		if err := s.slots.Acquire(ctx); err != nil {
			tk.deliver(nil, ErrThrottlerStopped)
			t.rejectPending(s)
			return
		}
		if err := s.pacer.Wait(ctx); err != nil {
			s.slots.Release()
			tk.deliver(nil, ErrThrottlerStopped)
			t.rejectPending(s)
			return
		}
		if tk.callerCtx.Err() != nil { // the caller may have given up while we waited for a slot
			s.slots.Release()
			tk.deliver(nil, tk.callerCtx.Err())
			continue
		}

		t.wg.Add(1)
		go t.runTicket(ctx, s, tk)
	}
}

func (t *Throttler) rejectPending(s *serviceState) {
	for _, tk := range s.drainAndStop() {
		tk.deliver(nil, ErrThrottlerStopped)
	}
}

func (t *Throttler) runTicket(runCtx context.Context, s *serviceState, tk *ticket) {
	defer t.wg.Done()

	s.metrics.totalRequests.Inc()
	t.collector.RequestStarted(s.name)
	startedAt := t.clock.Now()
	value, err := tk.op(tk.callerCtx)
	elapsed := t.clock.Since(startedAt)
	s.slots.Release()

	if err == nil {
		s.metrics.observeSuccess(elapsed)
		t.collector.RequestFinished(s.name, true, elapsed)
		tk.deliver(value, nil)
		return
	}

	s.metrics.totalFailures.Inc()
	t.collector.RequestFinished(s.name, false, elapsed)

	if tk.attempts >= s.profile.MaxRetries {
		tk.deliver(nil, err)
		return
	}
	tk.attempts++
	s.metrics.totalRetries.Inc()
	delay := tk.backoff.NextBackOff()
	t.collector.RetryScheduled(s.name)
	t.logger.Warn("throttled call failed, retry scheduled",
		log.String("service", s.name),
		log.Int("retry", tk.attempts),
		log.Int("max_retries", s.profile.MaxRetries),
		log.Duration("delay", delay),
		log.Error(err))
	t.scheduleRetry(runCtx, s, tk, delay)
}

// scheduleRetry re-queues the ticket at the FRONT of its service's queue
// after the backoff delay, so retries are prioritized over fresh work for
// the same service only.
func (t *Throttler) scheduleRetry(runCtx context.Context, s *serviceState, tk *ticket, delay time.Duration) {
	t.wg.Add(1)
	timer := t.clock.Timer(delay)
	go func() {
		defer t.wg.Done()
		defer timer.Stop()
		select {
		case <-timer.C:
			if !s.enqueueFront(tk) {
				tk.deliver(nil, ErrThrottlerStopped)
			}
		case <-runCtx.Done():
			tk.deliver(nil, ErrThrottlerStopped)
		case <-tk.callerCtx.Done():
			tk.deliver(nil, tk.callerCtx.Err())
		}
	}()
}
