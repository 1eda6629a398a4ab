/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

const (
	headerRequestID         = "X-Request-ID"
	headerInternalRequestID = "X-Int-Request-ID"
)

// RequestIDOpts represents options for the RequestID middleware.
type RequestIDOpts struct {
	GenerateID         func() string
	GenerateInternalID func() string
}

func newID() string {
	return xid.New().String()
}

// RequestID is a middleware that propagates two request identifiers.
// The external one is taken from the X-Request-ID request header (generated when absent),
// the internal one is always generated. Both are stored in the request's context
// and returned in the X-Request-ID and X-Int-Request-ID response headers.
// IDs are generated with xid, which is fast and has enough entropy for correlation purposes.
func RequestID() func(next http.Handler) http.Handler {
	return RequestIDWithOpts(RequestIDOpts{
		GenerateID:         newID,
		GenerateInternalID: newID,
	})
}

// RequestIDWithOpts is a more configurable version of the RequestID middleware.
func RequestIDWithOpts(opts RequestIDOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := r.Header.Get(headerRequestID)
			if requestID == "" {
				requestID = opts.GenerateID()
			}
			ctx = NewContextWithRequestID(ctx, requestID)
			rw.Header().Set(headerRequestID, requestID)

			internalRequestID := opts.GenerateInternalID()
			ctx = NewContextWithInternalRequestID(ctx, internalRequestID)
			rw.Header().Set(headerInternalRequestID, internalRequestID)

			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
