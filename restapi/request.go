/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// RequestBodyTooLargeError occurs when the number of bytes read from
// an HTTP request body exceeds the configured limit.
type RequestBodyTooLargeError struct {
	MaxSizeBytes uint64
	Err          error
}

// Error returns a string representation of RequestBodyTooLargeError.
func (e *RequestBodyTooLargeError) Error() string {
	return e.Err.Error()
}

type maxBytesReader struct {
	io.ReadCloser
	n uint64
}

func (r *maxBytesReader) Read(p []byte) (n int, err error) {
	n, err = r.ReadCloser.Read(p)

	// http.maxBytesReader doesn't return a typed error when the limit is exceeded,
	// so the error message has to be matched directly.
	// See https://github.com/golang/go/issues/30715.
	if err != nil && err.Error() == "http: request body too large" {
		err = &RequestBodyTooLargeError{r.n, err}
	}

	return
}

// SetRequestMaxBodySize wraps the request body with a reader limiting the number of bytes to read.
// Reading past maxSizeBytes yields a RequestBodyTooLargeError.
func SetRequestMaxBodySize(w http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = &maxBytesReader{ReadCloser: http.MaxBytesReader(w, r.Body, int64(maxSizeBytes)), n: maxSizeBytes}
}

// MalformedRequestError is an error describing an incorrect request.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

// Error returns a string representation of MalformedRequestError.
func (e *MalformedRequestError) Error() string {
	return e.Message
}

func newBadRequestError(format string, args ...interface{}) *MalformedRequestError {
	return &MalformedRequestError{http.StatusBadRequest, fmt.Sprintf(format, args...)}
}

// NewTooLargeMalformedRequestError creates a new MalformedRequestError for a request body exceeding the limit.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// checkJSONContentType verifies that the request carries a JSON Content-Type header.
// A missing header is accepted.
func checkJSONContentType(r *http.Request) *MalformedRequestError {
	reqContentType := r.Header.Get("Content-Type")
	if reqContentType == "" {
		return nil
	}
	contentType, _, err := mime.ParseMediaType(reqContentType)
	if err != nil {
		return &MalformedRequestError{
			http.StatusUnsupportedMediaType,
			fmt.Sprintf("failed to parse Content-Type header for request: %s", err),
		}
	}
	if contentType != ContentTypeAppJSON {
		return &MalformedRequestError{
			http.StatusUnsupportedMediaType,
			fmt.Sprintf("Content-Type %q is not supported.", contentType),
		}
	}
	return nil
}

// DecodeRequestJSONStrict reads the request body and decodes it as JSON,
// optionally rejecting fields that are not present in dst.
func DecodeRequestJSONStrict(r *http.Request, dst interface{}, disallowUnknownFields bool) error {
	if ctErr := checkJSONContentType(r); ctErr != nil {
		return ctErr
	}

	decoder := json.NewDecoder(r.Body)
	if disallowUnknownFields {
		decoder.DisallowUnknownFields()
	}

	return decodeRequest(decoder, dst)
}

// DecodeRequestJSON reads the request body and decodes it as JSON.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	return DecodeRequestJSONStrict(r, dst, false)
}

func decodeRequest(decoder *json.Decoder, dst interface{}) error {
	if err := decoder.Decode(&dst); err != nil {
		return mapDecodeError(err)
	}

	// The decoder accepts streams of JSON objects, a single object is required here.
	if decoder.More() {
		return newBadRequestError("Request body must only contain a single JSON object.")
	}

	return nil
}

func mapDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var tooLargeErr *RequestBodyTooLargeError

	switch {
	case errors.Is(err, io.EOF):
		return newBadRequestError("Request body must not be empty.")

	case errors.Is(err, io.ErrUnexpectedEOF):
		return newBadRequestError("Request body contains badly-formed JSON.")

	case errors.As(err, &syntaxErr):
		return newBadRequestError("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset)

	case errors.As(err, &unmarshalTypeErr):
		if unmarshalTypeErr.Field != "" {
			return newBadRequestError("Request body contains an invalid value for the %q field (at position %d).",
				unmarshalTypeErr.Field, unmarshalTypeErr.Offset)
		}
		return newBadRequestError("Request body contains an invalid value of type %q for the field of type %s.",
			unmarshalTypeErr.Value, unmarshalTypeErr.Type.String())

	case errors.As(err, &tooLargeErr):
		return NewTooLargeMalformedRequestError(tooLargeErr.MaxSizeBytes)

	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return newBadRequestError("Payload does not match the scheme")

	default:
		return err
	}
}
