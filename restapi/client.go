/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
)

const (
	logKeyMethod = "method"
	logKeyURI    = "uri"
	logKeyStatus = "status"
)

func requestLogFields(req *http.Request) []log.Field {
	return []log.Field{
		log.String(logKeyMethod, req.Method),
		log.String(logKeyURI, req.URL.String()),
	}
}

// DoRequest performs an HTTP request logging its details.
func DoRequest(client *http.Client, req *http.Request, logger log.FieldLogger) (*http.Response, error) {
	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("sent request", requestLogFields(req)...)
	})

	resp, err := client.Do(req)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to do http request %s %s", req.Method, req.URL.String()),
			append(requestLogFields(req), log.Error(err))...)
		return nil, fmt.Errorf("do request: %w", err)
	}

	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("got response", append(requestLogFields(req), log.Int(logKeyStatus, resp.StatusCode))...)
	})
	return resp, nil
}

// DoRequestAndUnmarshalJSON performs an HTTP request and decodes the JSON response into result.
// Responses with 4xx and 5xx status codes are returned as *ClientError.
func DoRequestAndUnmarshalJSON(client *http.Client, req *http.Request, result interface{}, logger log.FieldLogger) error {
	resp, err := DoRequest(client, req, logger)
	if err != nil {
		// DoRequest has already logged the failure.
		return err
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close response body after doing http request",
				append(requestLogFields(req), log.Error(closeErr))...)
		}
	}()

	logger = logger.With(append(requestLogFields(req), log.Int(logKeyStatus, resp.StatusCode))...)

	clientErr := &ClientError{
		Method:     req.Method,
		URL:        req.URL,
		StatusCode: resp.StatusCode,
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 600:
		buf, readErr := readResponseBody(resp, logger, clientErr)
		if readErr != nil {
			return readErr
		}

		var apiErr ErrorResponseData
		contentType := resp.Header.Get("Content-Type")
		if !strings.Contains(contentType, "application/json") {
			bodySample := string(buf)
			if len(bodySample) > 255 {
				bodySample = bodySample[:255]
			}
			apiErr.Err = &Error{
				Code:    resp.Status,
				Message: fmt.Sprintf("%s received with unexpected Content-Type", http.StatusText(resp.StatusCode)),
				Debug: map[string]interface{}{
					"content-type": contentType,
					"body":         bodySample,
				},
			}
		} else if err = json.Unmarshal(buf, &apiErr); err != nil {
			logger.Error("error unmarshaling error response", log.Error(err))
			return clientErr.wrap("unmarshaling error response", err)
		}
		return clientErr.wrap("error response", &apiErr)

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if result == nil {
			return nil
		}
		buf, readErr := readResponseBody(resp, logger, clientErr)
		if readErr != nil {
			return readErr
		}
		if err = json.Unmarshal(buf, &result); err != nil {
			logger.Error("error unmarshaling response", log.Error(err))
			return clientErr.wrap("unmarshaling response", err)
		}
		return nil

	default:
		clientErr.Message = "unexpected status code"
		return clientErr
	}
}

func readResponseBody(resp *http.Response, logger log.FieldLogger, e *ClientError) ([]byte, error) {
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("error reading response body", log.Error(err))
		return nil, e.wrap("reading response body", err)
	}
	if len(buf) == 0 {
		logger.Error("empty error response")
		e.Message = "empty response"
		return nil, e
	}
	return buf, nil
}

// NewJSONRequest marshals data as JSON and creates a new http.Request carrying it.
func NewJSONRequest(method, url string, data interface{}) (*http.Request, error) {
	if data == nil {
		return nil, fmt.Errorf("data cannot be nil")
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, fmt.Errorf("method %s is not allowed for json request", method)
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentTypeAppJSON)
	return req, nil
}
