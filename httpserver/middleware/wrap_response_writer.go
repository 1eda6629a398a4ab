/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"bufio"
	"net"
	"net/http"
	"time"
)

// WrapResponseWriter is a proxy around an http.ResponseWriter that allows you to hook
// into various parts of the response process.
type WrapResponseWriter interface {
	http.ResponseWriter

	// Status returns the HTTP status of the request, or http.StatusOK if one has not been sent yet.
	Status() int

	// BytesWritten returns the total number of bytes sent to the client.
	BytesWritten() int

	// ElapsedTime returns the total time spent writing the response body.
	ElapsedTime() time.Duration

	// Unwrap returns the original proxied target.
	Unwrap() http.ResponseWriter
}

// NewWrapResponseWriter wraps an http.ResponseWriter, returning a proxy that allows you to
// hook into various parts of the response process.
func NewWrapResponseWriter(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	bw := basicWriter{ResponseWriter: rw}
	if protoMajor < 2 {
		if _, ok := rw.(http.Hijacker); ok {
			return &hijackWriter{bw}
		}
	}
	return &bw
}

type basicWriter struct {
	http.ResponseWriter
	wroteHeader  bool
	code         int
	bytesWritten int
	elapsed      time.Duration
}

func (b *basicWriter) WriteHeader(code int) {
	if !b.wroteHeader {
		b.code = code
		b.wroteHeader = true
	}
	b.ResponseWriter.WriteHeader(code)
}

func (b *basicWriter) Write(buf []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	start := time.Now()
	n, err := b.ResponseWriter.Write(buf)
	b.elapsed += time.Since(start)
	b.bytesWritten += n
	return n, err
}

func (b *basicWriter) Status() int {
	if !b.wroteHeader {
		return http.StatusOK
	}
	return b.code
}

func (b *basicWriter) BytesWritten() int {
	return b.bytesWritten
}

func (b *basicWriter) ElapsedTime() time.Duration {
	return b.elapsed
}

func (b *basicWriter) Unwrap() http.ResponseWriter {
	return b.ResponseWriter
}

func (b *basicWriter) Flush() {
	if f, ok := b.ResponseWriter.(http.Flusher); ok {
		if !b.wroteHeader {
			b.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

// hijackWriter additionally exposes http.Hijacker for HTTP/1.x connections.
type hijackWriter struct {
	basicWriter
}

func (h *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.ResponseWriter.(http.Hijacker).Hijack()
}
