/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/httpserver/middleware"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/restapi"
)

// StatusClientClosedRequest is the non-standard HTTP status code (introduced by Nginx)
// reported when the client closed the request before the server could respond.
const StatusClientClosedRequest = 499

// HealthCheckComponentName names a single checked component.
type HealthCheckComponentName = string

// HealthCheckStatus is a resulting status of the health-check.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult holds per-component statuses of a health-check.
type HealthCheckResult = map[HealthCheckComponentName]HealthCheckStatus

// HealthCheck is a health-check operation.
type HealthCheck = func() (HealthCheckResult, error)

// HealthCheckContext is a health-check operation that has access to the request Context.
type HealthCheckContext = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

// HealthCheckHandler is an http.Handler performing the service health-check.
type HealthCheckHandler struct {
	healthCheckFn HealthCheckContext
}

// NewHealthCheckHandler creates a new health-check http.Handler.
// The passed function is called on every request and should return statuses of the service's components.
func NewHealthCheckHandler(fn HealthCheck) *HealthCheckHandler {
	if fn == nil {
		fn = func() (HealthCheckResult, error) {
			return HealthCheckResult{}, nil
		}
	}
	return &HealthCheckHandler{func(_ context.Context) (HealthCheckResult, error) {
		return fn()
	}}
}

// NewHealthCheckHandlerContext is a NewHealthCheckHandler variant whose check function
// receives the request Context.
func NewHealthCheckHandlerContext(fn HealthCheckContext) *HealthCheckHandler {
	if fn == nil {
		fn = func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{}, ctx.Err()
		}
	}
	return &HealthCheckHandler{fn}
}

// ServeHTTP serves the health-check HTTP request.
func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	hcResult, err := h.healthCheckFn(r.Context())
	if err != nil {
		if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
			logger.Error("error while checking health", log.Error(err))
		}
		if errors.Is(err, context.Canceled) {
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	respStatus := http.StatusOK
	respData := healthCheckResponseData{Components: map[string]bool{}}
	for name, status := range hcResult {
		respData.Components[name] = status == HealthCheckStatusOK
		if status == HealthCheckStatusFail {
			respStatus = http.StatusServiceUnavailable
		}
	}

	if errors.Is(r.Context().Err(), context.Canceled) {
		rw.WriteHeader(StatusClientClosedRequest)
		return
	}

	restapi.RespondCodeAndJSON(rw, respStatus, respData, middleware.GetLoggerFromContext(r.Context()))
}
