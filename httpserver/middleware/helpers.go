/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
)

// RoutePatternGetterFunc extracts the route pattern from the request.
// The implementation depends on the router the HTTP server uses, e.g. for chi
// it would read chi.RouteCtxKey from the request context and call RoutePattern().
type RoutePatternGetterFunc func(r *http.Request) string

// WrapResponseWriterIfNeeded returns rw as a WrapResponseWriter, wrapping it first
// unless it is already wrapped.
func WrapResponseWriterIfNeeded(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	if wrw, ok := rw.(WrapResponseWriter); ok {
		return wrw
	}
	return NewWrapResponseWriter(rw, protoMajor)
}
