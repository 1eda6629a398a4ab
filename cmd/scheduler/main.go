/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command scheduler runs the admission-control daemon: a prioritized job
// queue, a sliding-window rate limiter, and an outbound request throttler
// behind a REST API.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/config"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/httpserver"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/jobqueue"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/ratelimit"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/service"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/throttle"
)

const (
	errDomain        = "Scheduler"
	metricsNamespace = "scheduler"
	envVarsPrefix    = "scheduler"

	// apiRateLimitZone is the rate limiting zone consulted for every API request.
	// The API is served unlimited when the zone is missing from the config.
	apiRateLimitZone = "api"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yml", "path to the configuration file")
	flag.Parse()

	cfg := newAppConfig()
	if err := config.NewDefaultLoader(envVarsPrefix).LoadFromFile(cfgPath, config.DataTypeYAML,
		cfg.Log, cfg.Server, cfg.JobQueue, cfg.RateLimit, cfg.Throttle,
	); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	queue := jobqueue.NewQueueWithOpts(logger, cfg.JobQueue.QueueOpts())
	queueMetrics := jobqueue.NewPrometheusMetricsCollectorWithOpts(
		jobqueue.PrometheusMetricsCollectorOpts{Namespace: metricsNamespace})
	queue.Subscribe(queueMetrics)
	queue.Subscribe(jobqueue.NewLoggingEventListener(logger))

	limiter, err := ratelimit.NewSlidingWindowLimiterWithOpts(logger, cfg.RateLimit.LimiterOpts())
	if err != nil {
		return fmt.Errorf("create rate limiter: %w", err)
	}

	throttleMetrics := throttle.NewPrometheusMetricsCollectorWithOpts(
		throttle.PrometheusMetricsCollectorOpts{Namespace: metricsNamespace})
	throttlerOpts := cfg.Throttle.ThrottlerOpts()
	throttlerOpts.MetricsCollector = throttleMetrics
	throttler := throttle.NewThrottlerWithOpts(logger, throttlerOpts)

	queue.RegisterHandler(jobTypeOutboundRequest, newOutboundRequestHandler(throttler, logger))

	cronScheduler := jobqueue.NewCronScheduler(queue, logger)

	api := &schedulerAPI{
		queue:        queue,
		limiter:      limiter,
		throttler:    throttler,
		cron:         cronScheduler,
		rateLimitCfg: cfg.RateLimit,
	}

	httpServer, err := httpserver.New(cfg.Server, logger, httpserver.Opts{
		ServiceNameInURL: "scheduler",
		ErrorDomain:      errDomain,
		APIRoutes: map[httpserver.APIVersion]httpserver.APIRoute{
			1: api.routes,
		},
		HealthCheck:        healthCheck,
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{Namespace: metricsNamespace},
	})
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	queueMetrics.MustRegister()
	defer queueMetrics.Unregister()
	throttleMetrics.MustRegister()
	defer throttleMetrics.Unregister()

	unit := service.NewCompositeUnit(
		service.NewWorkerUnit(service.WorkerFunc(queue.Run)),
		service.NewWorkerUnit(service.WorkerFunc(limiter.Run)),
		service.NewWorkerUnit(service.WorkerFunc(throttler.Run)),
		service.NewWorkerUnit(service.WorkerFunc(cronScheduler.Run)),
		httpServer,
	)
	return service.New(logger, unit).Start()
}

func healthCheck() (httpserver.HealthCheckResult, error) {
	return httpserver.HealthCheckResult{
		"job_queue": httpserver.HealthCheckStatusOK,
		"throttler": httpserver.HealthCheckStatusOK,
	}, nil
}
