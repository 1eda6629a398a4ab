/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/restapi"
)

// RecoveryDefaultStackSize is the default size of the stack part that will be logged.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts represents options for the Recovery middleware.
type RecoveryOpts struct {
	StackSize int
}

// Recovery is a middleware that recovers from panics, logs the panic value with a stack trace,
// and responds with a 500 status code and a properly formatted error body.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return RecoveryWithOpts(errDomain, RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

// RecoveryWithOpts is a more configurable version of the Recovery middleware.
func RecoveryWithOpts(errDomain string, opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}

				logger := GetLoggerFromContext(r.Context())

				if p == http.ErrAbortHandler {
					// The sentinel panic for aborting a handler.
					// http.Server does not log a stack trace for it, and neither should we,
					// the panic continues its propagation.
					if logger != nil {
						logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
					}
					panic(p)
				}

				if logger != nil {
					var logFields []log.Field
					if opts.StackSize != 0 {
						stack := make([]byte, opts.StackSize)
						stack = stack[:runtime.Stack(stack, false)]
						logFields = append(logFields, log.Bytes("stack", stack))
					}
					logger.Error(fmt.Sprintf("Panic: %+v", p), logFields...)
				}

				restapi.RespondError(rw, http.StatusInternalServerError, restapi.NewInternalError(errDomain), logger)
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
