/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/restapi"
)

// FloodGuardErrCode is an error code that is used in a response body
// if the request is rejected by the FloodGuard middleware.
const FloodGuardErrCode = "serviceOverloaded"

// FloodGuardLogFieldKey it is the name of the logged field that contains a key for the flood guard.
const FloodGuardLogFieldKey = "flood_guard_key"

// DefaultFloodGuardMaxKeys is a default value of maximum keys number for the FloodGuard middleware.
const DefaultFloodGuardMaxKeys = 10000

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// FloodGuardParams contains data that relates to the flood protection procedure
// and could be used for rejecting or handling an occurred error.
type FloodGuardParams struct {
	ErrDomain  string
	Key        string
	RetryAfter time.Duration
}

// FloodGuardOnRejectFunc is a function that is called for rejecting HTTP request when the flood is detected.
type FloodGuardOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params FloodGuardParams, next http.Handler, logger log.FieldLogger)

// FloodGuardOnErrorFunc is a function that is called when the flood protection fails internally.
type FloodGuardOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params FloodGuardParams, err error, next http.Handler, logger log.FieldLogger)

// FloodGuardOpts represents an options for the FloodGuard middleware.
type FloodGuardOpts struct {
	// MaxBurst is the number of requests that may exceed the sustained rate momentarily. Zero means strict pacing.
	MaxBurst int

	// GetKey extracts the guarding key from the request. If not set, all requests share a single bucket.
	GetKey RateLimitGetKeyFunc

	// MaxKeys bounds the number of tracked keys. Used only when GetKey is set.
	MaxKeys int

	OnReject FloodGuardOnRejectFunc
	OnError  FloodGuardOnErrorFunc
}

type floodGuardHandler struct {
	next      http.Handler
	limiter   *throttled.GCRARateLimiterCtx
	getKey    RateLimitGetKeyFunc
	errDomain string

	onReject FloodGuardOnRejectFunc
	onError  FloodGuardOnErrorFunc
}

// FloodGuard is a middleware that protects the server from request floods using GCRA
// (Generic Cell Rate Algorithm, a leaky bucket variant). Unlike RateLimit, which enforces
// a per-client admission policy, FloodGuard paces the aggregate request flow and answers
// 503 with Retry-After when the sustained rate is exceeded.
func FloodGuard(maxRate Rate, errDomain string) (func(next http.Handler) http.Handler, error) {
	return FloodGuardWithOpts(maxRate, errDomain, FloodGuardOpts{})
}

// MustFloodGuard is a version of FloodGuard that panics if an error occurs.
func MustFloodGuard(maxRate Rate, errDomain string) func(next http.Handler) http.Handler {
	mw, err := FloodGuard(maxRate, errDomain)
	if err != nil {
		panic(err)
	}
	return mw
}

// FloodGuardWithOpts is a configurable version of FloodGuard middleware.
func FloodGuardWithOpts(
	maxRate Rate, errDomain string, opts FloodGuardOpts,
) (func(next http.Handler) http.Handler, error) {
	if maxRate.Count <= 0 || maxRate.Duration <= 0 {
		return nil, fmt.Errorf("invalid flood guard rate: %d per %s", maxRate.Count, maxRate.Duration)
	}

	maxKeys := 0
	if opts.GetKey != nil {
		maxKeys = opts.MaxKeys
		if maxKeys == 0 {
			maxKeys = DefaultFloodGuardMaxKeys
		}
	}

	gcraStore, err := memstore.NewCtx(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new in-memory store: %w", err)
	}
	limiter, err := throttled.NewGCRARateLimiterCtx(gcraStore, throttled.RateQuota{
		MaxRate:  throttled.PerDuration(maxRate.Count, maxRate.Duration),
		MaxBurst: opts.MaxBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("new GCRA rate limiter: %w", err)
	}

	onReject := opts.OnReject
	if onReject == nil {
		onReject = DefaultFloodGuardOnReject
	}
	onError := opts.OnError
	if onError == nil {
		onError = DefaultFloodGuardOnError
	}

	return func(next http.Handler) http.Handler {
		return &floodGuardHandler{
			next:      next,
			limiter:   limiter,
			getKey:    opts.GetKey,
			errDomain: errDomain,
			onReject:  onReject,
			onError:   onError,
		}
	}, nil
}

// MustFloodGuardWithOpts is a version of FloodGuardWithOpts that panics if an error occurs.
func MustFloodGuardWithOpts(
	maxRate Rate, errDomain string, opts FloodGuardOpts,
) func(next http.Handler) http.Handler {
	mw, err := FloodGuardWithOpts(maxRate, errDomain, opts)
	if err != nil {
		panic(err)
	}
	return mw
}

func (h *floodGuardHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	var key string
	if h.getKey != nil {
		k, bypass, err := h.getKey(r)
		if err != nil {
			params := FloodGuardParams{ErrDomain: h.errDomain, Key: k}
			h.onError(rw, r, params, err, h.next, GetLoggerFromContext(r.Context()))
			return
		}
		if bypass {
			h.next.ServeHTTP(rw, r)
			return
		}
		key = k
	}

	limited, res, err := h.limiter.RateLimitCtx(r.Context(), key, 1)
	if err != nil {
		params := FloodGuardParams{ErrDomain: h.errDomain, Key: key}
		h.onError(rw, r, params, err, h.next, GetLoggerFromContext(r.Context()))
		return
	}
	if limited {
		params := FloodGuardParams{ErrDomain: h.errDomain, Key: key, RetryAfter: res.RetryAfter}
		h.onReject(rw, r, params, h.next, GetLoggerFromContext(r.Context()))
		return
	}

	h.next.ServeHTTP(rw, r)
}

// DefaultFloodGuardOnReject sends a response with 503 HTTP status code,
// the Retry-After header, and an error in body when the flood is detected.
func DefaultFloodGuardOnReject(
	rw http.ResponseWriter, r *http.Request, params FloodGuardParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.String(FloodGuardLogFieldKey, params.Key),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	if params.RetryAfter > 0 {
		rw.Header().Set(headerRetryAfter, strconv.Itoa(int(math.Ceil(params.RetryAfter.Seconds()))))
	}
	apiErr := restapi.NewError(params.ErrDomain, FloodGuardErrCode, "Service is overloaded, try again later.")
	restapi.RespondError(rw, http.StatusServiceUnavailable, apiErr, logger)
}

// DefaultFloodGuardOnError sends a response with 500 HTTP status code in case of internal flood protection error.
func DefaultFloodGuardOnError(
	rw http.ResponseWriter, r *http.Request, params FloodGuardParams, err error, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error(err.Error(), log.String(FloodGuardLogFieldKey, params.Key))
	}
	restapi.RespondInternalError(rw, params.ErrDomain, logger)
}
