/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/ratelimit"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/restapi"
)

// RateLimitErrCode is an error code that is used in a response body
// if the request is rejected by the middleware that limits the rate of HTTP requests.
const RateLimitErrCode = "tooManyRequests"

// RateLimitLogFieldKey it is the name of the logged field that contains a key for the requests rate limiter.
const RateLimitLogFieldKey = "rate_limit_key"

// Response HTTP headers that expose the state of the limiting window to clients.
const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerRetryAfter         = "Retry-After"
)

// RateLimitParams contains data that relates to the rate limiting procedure
// and could be used for rejecting or handling an occurred error.
type RateLimitParams struct {
	ErrDomain          string
	ResponseStatusCode int
	Key                string
	Result             ratelimit.Result
}

// RateLimitOnRejectFunc is a function that is called for rejecting HTTP request when the rate limit is exceeded.
type RateLimitOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger)

// RateLimitOnErrorFunc is a function that is called when an error occurs while getting the limiting key.
type RateLimitOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, err error, next http.Handler, logger log.FieldLogger)

// RateLimitGetKeyFunc is a function that is called for getting key for rate limiting.
type RateLimitGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

type rateLimitHandler struct {
	next           http.Handler
	limiter        *ratelimit.SlidingWindowLimiter
	policy         ratelimit.Policy
	getKey         RateLimitGetKeyFunc
	errDomain      string
	respStatusCode int

	onReject RateLimitOnRejectFunc
	onError  RateLimitOnErrorFunc
}

// RateLimitOpts represents an options for the RateLimit middleware.
type RateLimitOpts struct {
	// GetKey extracts the limiting identifier from the request.
	// If not set, the client IP address (respecting X-Forwarded-For and X-Real-IP) is used.
	GetKey RateLimitGetKeyFunc

	// ResponseStatusCode is an HTTP status code for rejected requests. 429 by default.
	ResponseStatusCode int

	// DryRun makes the middleware only log and count rejections without actually rejecting requests.
	DryRun bool

	OnReject         RateLimitOnRejectFunc
	OnRejectInDryRun RateLimitOnRejectFunc
	OnError          RateLimitOnErrorFunc
}

// RateLimit is a middleware that limits the rate of HTTP requests using the passed sliding window limiter.
// The limiting key is the client IP address, and each response carries X-RateLimit-* headers.
func RateLimit(
	limiter *ratelimit.SlidingWindowLimiter, policy ratelimit.Policy, errDomain string,
) (func(next http.Handler) http.Handler, error) {
	return RateLimitWithOpts(limiter, policy, errDomain, RateLimitOpts{})
}

// MustRateLimit is a version of RateLimit that panics if an error occurs.
func MustRateLimit(
	limiter *ratelimit.SlidingWindowLimiter, policy ratelimit.Policy, errDomain string,
) func(next http.Handler) http.Handler {
	mw, err := RateLimit(limiter, policy, errDomain)
	if err != nil {
		panic(err)
	}
	return mw
}

// RateLimitWithOpts is a configurable version of a middleware to limit the rate of HTTP requests.
func RateLimitWithOpts(
	limiter *ratelimit.SlidingWindowLimiter, policy ratelimit.Policy, errDomain string, opts RateLimitOpts,
) (func(next http.Handler) http.Handler, error) {
	if err := ratelimit.ValidatePolicy(policy); err != nil {
		return nil, fmt.Errorf("validate rate limit policy: %w", err)
	}

	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusTooManyRequests
	}

	getKey := opts.GetKey
	if getKey == nil {
		getKey = GetRateLimitKeyFromClientAddr
	}

	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:           next,
			limiter:        limiter,
			policy:         policy,
			getKey:         getKey,
			errDomain:      errDomain,
			respStatusCode: respStatusCode,
			onReject:       makeRateLimitOnRejectFunc(opts),
			onError:        makeRateLimitOnErrorFunc(opts),
		}
	}, nil
}

// MustRateLimitWithOpts is a version of RateLimitWithOpts that panics if an error occurs.
func MustRateLimitWithOpts(
	limiter *ratelimit.SlidingWindowLimiter, policy ratelimit.Policy, errDomain string, opts RateLimitOpts,
) func(next http.Handler) http.Handler {
	mw, err := RateLimitWithOpts(limiter, policy, errDomain, opts)
	if err != nil {
		panic(err)
	}
	return mw
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	key, bypass, err := h.getKey(r)
	if err != nil {
		params := RateLimitParams{ErrDomain: h.errDomain, ResponseStatusCode: h.respStatusCode, Key: key}
		h.onError(rw, r, params, err, h.next, GetLoggerFromContext(r.Context()))
		return
	}
	if bypass {
		h.next.ServeHTTP(rw, r)
		return
	}

	res := h.limiter.CheckLimit(key, h.policy)
	setRateLimitHeaders(rw, res)

	if res.Allowed {
		h.next.ServeHTTP(rw, r)
		return
	}

	params := RateLimitParams{ErrDomain: h.errDomain, ResponseStatusCode: h.respStatusCode, Key: key, Result: res}
	h.onReject(rw, r, params, h.next, GetLoggerFromContext(r.Context()))
}

func setRateLimitHeaders(rw http.ResponseWriter, res ratelimit.Result) {
	rw.Header().Set(headerRateLimitLimit, strconv.Itoa(res.Limit))
	rw.Header().Set(headerRateLimitRemaining, strconv.Itoa(res.Remaining))
	rw.Header().Set(headerRateLimitReset, strconv.FormatInt(res.ResetTime.Unix(), 10))
}

// GetRateLimitKeyFromClientAddr is the default RateLimitGetKeyFunc.
// It uses the client IP address as the limiting key, preferring the one
// from the X-Forwarded-For or X-Real-IP headers when present.
func GetRateLimitKeyFromClientAddr(r *http.Request) (key string, bypass bool, err error) {
	if originAddr := getOriginAddr(r); originAddr != "" {
		return originAddr, false, nil
	}
	host, _, splitErr := net.SplitHostPort(r.RemoteAddr)
	if splitErr != nil {
		return r.RemoteAddr, false, nil
	}
	return host, false, nil
}

// DefaultRateLimitOnReject sends a response with the configured status code (429 by default),
// the Retry-After header, and an error in body when the rate limit is exceeded.
func DefaultRateLimitOnReject(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.String(RateLimitLogFieldKey, params.Key),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	if retryAfter := time.Until(params.Result.ResetTime); retryAfter > 0 {
		rw.Header().Set(headerRetryAfter, strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
	apiErr := restapi.NewError(params.ErrDomain, RateLimitErrCode, "Too many requests.")
	restapi.RespondError(rw, params.ResponseStatusCode, apiErr, logger)
}

// DefaultRateLimitOnError sends a response with 500 HTTP status code
// in case when an error occurs while getting the limiting key.
func DefaultRateLimitOnError(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, err error, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error(err.Error(), log.String(RateLimitLogFieldKey, params.Key))
	}
	restapi.RespondInternalError(rw, params.ErrDomain, logger)
}

// DefaultRateLimitOnRejectInDryRun continues serving the request when the rate limit is exceeded in the dry-run mode.
func DefaultRateLimitOnRejectInDryRun(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("too many requests, serving will be continued because of dry run mode",
			log.String(RateLimitLogFieldKey, params.Key),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	next.ServeHTTP(rw, r)
}

func makeRateLimitOnRejectFunc(opts RateLimitOpts) RateLimitOnRejectFunc {
	if opts.DryRun {
		if opts.OnRejectInDryRun != nil {
			return opts.OnRejectInDryRun
		}
		return DefaultRateLimitOnRejectInDryRun
	}
	if opts.OnReject != nil {
		return opts.OnReject
	}
	return DefaultRateLimitOnReject
}

func makeRateLimitOnErrorFunc(opts RateLimitOpts) RateLimitOnErrorFunc {
	if opts.OnError != nil {
		return opts.OnError
	}
	return DefaultRateLimitOnError
}
