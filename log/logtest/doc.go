/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides implementations of log.FieldLogger that allow writing tests for logging functionality.
// It was inspired by httptest (https://golang.org/pkg/net/http/httptest) from the Go standard library.
package logtest
