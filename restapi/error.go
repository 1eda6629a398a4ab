/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"strings"
	"unicode"
)

// Error is the error object carried in API responses.
type Error struct {
	Domain  string                 `json:"domain"`
	Code    string                 `json:"code"`
	Message string                 `json:"message,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
	Debug   map[string]interface{} `json:"debug,omitempty"`
}

// Error codes.
// Declared as "var" so that services may override them.
var (
	ErrCodeInternal         = "internalError"
	ErrCodeNotFound         = "notFound"
	ErrCodeMethodNotAllowed = "methodNotAllowed"
)

// Error messages.
// Declared as "var" so that services may override them.
var (
	ErrMessageInternal         = "Internal error."
	ErrMessageNotFound         = "Not found."
	ErrMessageMethodNotAllowed = "Method not allowed."
)

// NewError creates a new Error with the given domain, code and message.
func NewError(domain, code, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message}
}

// NewInternalError creates a new internal error within the given domain.
func NewInternalError(domain string) *Error {
	return NewError(domain, ErrCodeInternal, ErrMessageInternal)
}

// AddContext adds a value to the error context.
func (e *Error) AddContext(field string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[field] = value
	return e
}

// AddDebug adds a value to the debug info.
func (e *Error) AddDebug(field string, value interface{}) *Error {
	if e.Debug == nil {
		e.Debug = make(map[string]interface{})
	}
	e.Debug[field] = value
	return e
}

// httpCode2ErrorCode builds a camelCased error code from the standard status text,
// e.g. 405 -> "methodNotAllowed".
func httpCode2ErrorCode(httpCode int) string {
	if httpCode == http.StatusInternalServerError {
		return ErrCodeInternal
	}
	var b strings.Builder
	capitalizeNext := false
	for _, char := range http.StatusText(httpCode) {
		switch {
		case unicode.IsSpace(char):
			capitalizeNext = true
		case capitalizeNext:
			b.WriteRune(unicode.ToTitle(char))
			capitalizeNext = false
		default:
			b.WriteRune(unicode.ToLower(char))
		}
	}
	return b.String()
}
