/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"errors"
	"fmt"
	"net/url"
)

// ClientError describes a failed outbound HTTP request.
type ClientError struct {
	Message    string
	Method     string
	URL        *url.URL
	StatusCode int
	Err        error
}

func (e *ClientError) wrap(message string, err error) *ClientError {
	e.Message = message
	e.Err = err
	return e
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("method: [%s] url: [%s] status: [%d] message: %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("method: [%s] url: [%s] status: [%d] message: %s error: %s",
		e.Method, e.URL, e.StatusCode, e.Message, e.Err)
}

// Is reports whether the wrapped error matches target, for use with errors.Is.
func (e *ClientError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Unwrap returns the wrapped error.
func (e *ClientError) Unwrap() error {
	return e.Err
}
