/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/httpserver/middleware"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/jobqueue"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/ratelimit"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/restapi"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/throttle"
)

// API error codes.
const (
	errCodeInvalidRequest  = "invalidRequest"
	errCodeJobNotRemovable = "jobNotRemovable"
	errCodeJobRemoved      = "jobRemoved"
	errCodeWaitTimeout     = "waitTimeout"
)

const defaultAwaitTimeout = time.Second * 30

// floodGuardMaxRate bounds the total API request rate regardless of the
// per-client sliding-window limits. floodGuardMaxBurst allows short bursts
// above the sustained rate before requests start being shed.
var (
	floodGuardMaxRate  = middleware.Rate{Count: 200, Duration: time.Second}
	floodGuardMaxBurst = 50
)

type schedulerAPI struct {
	queue        *jobqueue.Queue
	limiter      *ratelimit.SlidingWindowLimiter
	throttler    *throttle.Throttler
	cron         *jobqueue.CronScheduler
	rateLimitCfg *ratelimit.Config
}

func (api *schedulerAPI) routes(router chi.Router) {
	router.Use(middleware.MustFloodGuardWithOpts(floodGuardMaxRate, errDomain,
		middleware.FloodGuardOpts{MaxBurst: floodGuardMaxBurst}))
	if policy, ok := api.rateLimitCfg.PolicyFor(apiRateLimitZone); ok {
		router.Use(middleware.MustRateLimit(api.limiter, policy, errDomain))
	}

	router.Post("/jobs", api.submitJob)
	router.Get("/jobs", api.listJobs)
	router.Get("/jobs/{jobID}", api.getJob)
	router.Delete("/jobs/{jobID}", api.removeJob)
	router.Get("/jobs/{jobID}/wait", api.awaitJob)
	router.Post("/jobs/cleanup", api.cleanupJobs)
	router.Get("/stats", api.queueStats)
	router.Post("/limits/{zone}/check", api.checkLimit)
	router.Post("/limits/{zone}/reset", api.resetLimit)
	router.Get("/throttling/services", api.listThrottlingMetrics)
	router.Get("/throttling/services/{serviceName}", api.getThrottlingMetrics)
	router.Post("/schedules", api.createSchedule)
	router.Get("/schedules", api.listSchedules)
	router.Delete("/schedules/{scheduleID}", api.removeSchedule)
}

type jobView struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Priority    jobqueue.Priority      `json:"priority"`
	Status      jobqueue.Status        `json:"status"`
	Attempts    int                    `json:"attempts"`
	MaxAttempts int                    `json:"maxAttempts"`
	CreatedAt   time.Time              `json:"createdAt"`
	StartedAt   *time.Time             `json:"startedAt,omitempty"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	NextRetryAt *time.Time             `json:"nextRetryAt,omitempty"`
	Result      interface{}            `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func makeJobView(job jobqueue.Job) jobView {
	return jobView{
		ID:          job.ID,
		Type:        job.Type,
		Priority:    job.Priority,
		Status:      job.Status,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		NextRetryAt: job.NextRetryAt,
		Result:      job.Result,
		Error:       job.Error,
		Metadata:    job.Metadata,
	}
}

type submitJobRequest struct {
	Type        string                 `json:"type"`
	Payload     interface{}            `json:"payload"`
	Priority    string                 `json:"priority"`
	MaxAttempts int                    `json:"maxAttempts"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func (api *schedulerAPI) submitJob(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	var req submitJobRequest
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, errDomain, err, logger)
		return
	}
	id, err := api.queue.Submit(req.Type, req.Payload, jobqueue.SubmitOptions{
		Priority:    jobqueue.Priority(req.Priority),
		MaxAttempts: req.MaxAttempts,
		Metadata:    req.Metadata,
	})
	if err != nil {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(errDomain, errCodeInvalidRequest, err.Error()), logger)
		return
	}
	restapi.RespondCodeAndJSON(rw, http.StatusCreated, map[string]string{"id": id}, logger)
}

func (api *schedulerAPI) listJobs(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	status := r.URL.Query().Get("status")
	jobType := r.URL.Query().Get("type")

	var jobs []jobqueue.Job
	switch {
	case status != "":
		jobs = api.queue.ListByStatus(jobqueue.Status(status))
	case jobType != "":
		jobs = api.queue.ListByType(jobType)
	default:
		restapi.RespondError(rw, http.StatusBadRequest, restapi.NewError(errDomain, errCodeInvalidRequest,
			`Either "status" or "type" query parameter should be set.`), logger)
		return
	}

	views := make([]jobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, makeJobView(jobs[i]))
	}
	restapi.RespondJSON(rw, map[string]interface{}{"items": views}, logger)
}

func (api *schedulerAPI) getJob(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	job, found := api.queue.Get(chi.URLParam(r, "jobID"))
	if !found {
		restapi.RespondError(rw, http.StatusNotFound,
			restapi.NewError(errDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound), logger)
		return
	}
	restapi.RespondJSON(rw, makeJobView(job), logger)
}

func (api *schedulerAPI) removeJob(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	jobID := chi.URLParam(r, "jobID")
	if api.queue.Remove(jobID) {
		restapi.RespondCodeAndJSON(rw, http.StatusNoContent, nil, logger)
		return
	}
	if _, found := api.queue.Get(jobID); found {
		restapi.RespondError(rw, http.StatusConflict, restapi.NewError(errDomain, errCodeJobNotRemovable,
			"Job is running and cannot be removed."), logger)
		return
	}
	restapi.RespondError(rw, http.StatusNotFound,
		restapi.NewError(errDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound), logger)
}

func (api *schedulerAPI) awaitJob(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	timeout := defaultAwaitTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			restapi.RespondError(rw, http.StatusBadRequest, restapi.NewError(errDomain, errCodeInvalidRequest,
				`"timeout" query parameter should be a positive duration.`), logger)
			return
		}
		timeout = d
	}

	job, err := api.queue.AwaitCompletion(r.Context(), chi.URLParam(r, "jobID"), timeout)
	switch {
	case errors.Is(err, jobqueue.ErrJobNotFound):
		restapi.RespondError(rw, http.StatusNotFound,
			restapi.NewError(errDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound), logger)
	case errors.Is(err, jobqueue.ErrJobRemoved):
		restapi.RespondError(rw, http.StatusGone,
			restapi.NewError(errDomain, errCodeJobRemoved, "Job was removed before completion."), logger)
	case errors.Is(err, jobqueue.ErrWaitTimeout):
		restapi.RespondError(rw, http.StatusRequestTimeout,
			restapi.NewError(errDomain, errCodeWaitTimeout, "Job did not complete in time."), logger)
	case err != nil:
		restapi.RespondInternalError(rw, errDomain, logger)
	default:
		restapi.RespondJSON(rw, makeJobView(job), logger)
	}
}

func (api *schedulerAPI) cleanupJobs(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	removed := api.queue.ClearCompleted()
	restapi.RespondJSON(rw, map[string]int{"removed": removed}, logger)
}

type statsView struct {
	Total                   int                     `json:"total"`
	CountByStatus           map[jobqueue.Status]int `json:"countByStatus"`
	AverageProcessingTimeMs float64                 `json:"averageProcessingTimeMs"`
	SuccessRate             float64                 `json:"successRate"`
}

func (api *schedulerAPI) queueStats(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	stats := api.queue.Stats()
	restapi.RespondJSON(rw, statsView{
		Total:                   stats.Total,
		CountByStatus:           stats.CountByStatus,
		AverageProcessingTimeMs: float64(stats.AverageProcessingTime) / float64(time.Millisecond),
		SuccessRate:             stats.SuccessRate,
	}, logger)
}

type limitIdentifierRequest struct {
	Identifier string `json:"identifier"`
}

type limitResultView struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Current   int       `json:"current"`
	ResetTime time.Time `json:"resetTime"`
}

func (api *schedulerAPI) checkLimit(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	zone := chi.URLParam(r, "zone")
	policy, found := api.rateLimitCfg.PolicyFor(zone)
	if !found {
		restapi.RespondError(rw, http.StatusNotFound, restapi.NewError(errDomain, restapi.ErrCodeNotFound,
			"Unknown rate limiting zone: "+zone+"."), logger)
		return
	}
	var req limitIdentifierRequest
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, errDomain, err, logger)
		return
	}
	if req.Identifier == "" {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(errDomain, errCodeInvalidRequest, `"identifier" should not be empty.`), logger)
		return
	}
	result := api.limiter.CheckLimit(req.Identifier, policy)
	restapi.RespondJSON(rw, limitResultView{
		Allowed:   result.Allowed,
		Limit:     result.Limit,
		Remaining: result.Remaining,
		Current:   result.Current,
		ResetTime: result.ResetTime,
	}, logger)
}

func (api *schedulerAPI) resetLimit(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	zone := chi.URLParam(r, "zone")
	if _, found := api.rateLimitCfg.PolicyFor(zone); !found {
		restapi.RespondError(rw, http.StatusNotFound, restapi.NewError(errDomain, restapi.ErrCodeNotFound,
			"Unknown rate limiting zone: "+zone+"."), logger)
		return
	}
	var req limitIdentifierRequest
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, errDomain, err, logger)
		return
	}
	if req.Identifier == "" {
		api.limiter.ResetAll(zone)
	} else {
		api.limiter.Reset(req.Identifier, zone)
	}
	restapi.RespondCodeAndJSON(rw, http.StatusNoContent, nil, logger)
}

type serviceMetricsView struct {
	TotalRequests     int64   `json:"totalRequests"`
	TotalSuccesses    int64   `json:"totalSuccesses"`
	TotalFailures     int64   `json:"totalFailures"`
	TotalRetries      int64   `json:"totalRetries"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
	QueueLength       int     `json:"queueLength"`
	InFlight          int     `json:"inFlight"`
}

func makeServiceMetricsView(m throttle.ServiceMetrics) serviceMetricsView {
	return serviceMetricsView{
		TotalRequests:     m.TotalRequests,
		TotalSuccesses:    m.TotalSuccesses,
		TotalFailures:     m.TotalFailures,
		TotalRetries:      m.TotalRetries,
		AvgResponseTimeMs: float64(m.AvgResponseTime) / float64(time.Millisecond),
		QueueLength:       m.QueueLength,
		InFlight:          m.InFlight,
	}
}

func (api *schedulerAPI) listThrottlingMetrics(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	all := api.throttler.AllMetrics()
	views := make(map[string]serviceMetricsView, len(all))
	for name, m := range all {
		views[name] = makeServiceMetricsView(m)
	}
	restapi.RespondJSON(rw, map[string]interface{}{"services": views}, logger)
}

func (api *schedulerAPI) getThrottlingMetrics(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	serviceName := chi.URLParam(r, "serviceName")
	m, found := api.throttler.Metrics(serviceName)
	if !found {
		restapi.RespondError(rw, http.StatusNotFound, restapi.NewError(errDomain, restapi.ErrCodeNotFound,
			"No calls were made to service: "+serviceName+"."), logger)
		return
	}
	restapi.RespondJSON(rw, makeServiceMetricsView(m), logger)
}

type createScheduleRequest struct {
	Spec        string                 `json:"spec"`
	Type        string                 `json:"type"`
	Payload     interface{}            `json:"payload"`
	Priority    string                 `json:"priority"`
	MaxAttempts int                    `json:"maxAttempts"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type scheduleView struct {
	ID   int        `json:"id"`
	Next *time.Time `json:"next,omitempty"`
	Prev *time.Time `json:"prev,omitempty"`
}

func (api *schedulerAPI) createSchedule(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	var req createScheduleRequest
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, errDomain, err, logger)
		return
	}
	id, err := api.cron.Schedule(req.Spec, req.Type, req.Payload, jobqueue.SubmitOptions{
		Priority:    jobqueue.Priority(req.Priority),
		MaxAttempts: req.MaxAttempts,
		Metadata:    req.Metadata,
	})
	if err != nil {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(errDomain, errCodeInvalidRequest, err.Error()), logger)
		return
	}
	restapi.RespondCodeAndJSON(rw, http.StatusCreated, map[string]int{"id": int(id)}, logger)
}

func (api *schedulerAPI) listSchedules(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	entries := api.cron.Entries()
	views := make([]scheduleView, 0, len(entries))
	for _, entry := range entries {
		view := scheduleView{ID: int(entry.ID)}
		if !entry.Next.IsZero() {
			next := entry.Next
			view.Next = &next
		}
		if !entry.Prev.IsZero() {
			prev := entry.Prev
			view.Prev = &prev
		}
		views = append(views, view)
	}
	restapi.RespondJSON(rw, map[string]interface{}{"items": views}, logger)
}

func (api *schedulerAPI) removeSchedule(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	id, err := strconv.Atoi(chi.URLParam(r, "scheduleID"))
	if err != nil {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(errDomain, errCodeInvalidRequest, "Schedule ID should be an integer."), logger)
		return
	}
	api.cron.Unschedule(cron.EntryID(id))
	restapi.RespondCodeAndJSON(rw, http.StatusNoContent, nil, logger)
}
