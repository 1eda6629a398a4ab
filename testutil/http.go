/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

type errorRespData struct {
	Domain string `json:"domain"`
	Code   string `json:"code"`
}

type wrappedErrorRespData struct {
	Error errorRespData `json:"error"`
}

var errorInResponseIsWrapped = true

// DisableWrappingErrorInResponse makes the error asserts expect a bare error
// object ({"domain": ..., "code": ...}) instead of the default wrapped form
// ({"error": {"domain": ..., "code": ...}}).
func DisableWrappingErrorInResponse() {
	errorInResponseIsWrapped = false
}

// EnableWrappingErrorInResponse restores expecting the wrapped error form.
func EnableWrappingErrorInResponse() {
	errorInResponseIsWrapped = true
}

// RequireErrorInRecorder asserts that the recorded response carries the given
// HTTP status and an error body with the given domain and code.
func RequireErrorInRecorder(
	t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorBody(t, resp.Code, resp.Header(), resp.Body, errorInResponseIsWrapped,
		wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireErrorInResponse is RequireErrorInRecorder for a live http.Response.
func RequireErrorInResponse(
	t require.TestingT, resp *http.Response, wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorBody(t, resp.StatusCode, resp.Header, resp.Body, errorInResponseIsWrapped,
		wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireWrappedErrorInRecorder asserts the wrapped error form regardless of
// the current package-level wrapping mode.
func RequireWrappedErrorInRecorder(
	t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorBody(t, resp.Code, resp.Header(), resp.Body, true, wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireNoWrappedErrorInRecorder asserts the bare error form regardless of
// the current package-level wrapping mode.
func RequireNoWrappedErrorInRecorder(
	t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorBody(t, resp.Code, resp.Header(), resp.Body, false, wantHTTPCode, wantErrDomain, wantErrCode)
}

func requireErrorBody(
	t require.TestingT, code int, header http.Header, body io.Reader, wrapped bool,
	wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, code)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	var errResp errorRespData
	if wrapped {
		var wrappedErrResp wrappedErrorRespData
		require.NoError(t, json.NewDecoder(body).Decode(&wrappedErrResp))
		errResp = wrappedErrResp.Error
	} else {
		require.NoError(t, json.NewDecoder(body).Decode(&errResp))
	}
	require.Equal(t, wantErrDomain, errResp.Domain)
	require.Equal(t, wantErrCode, errResp.Code)
}

// RequireEmptyBodyInRecorder asserts that the recorded response body is empty.
func RequireEmptyBodyInRecorder(t require.TestingT, resp *httptest.ResponseRecorder) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Empty(t, bodyBytes)
}

// RequireJSONInRecorder asserts that the recorded response is JSON decoding
// into dest equal to want. dest should be a pointer to a zero value of want's
// type.
func RequireJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, resp.Header().Get("Content-Type"))
	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(bodyBytes, dest))
	require.Equal(t, want, dest)
}

// RequireStringJSONInResponse asserts that the response is JSON and its body
// is byte-for-byte equal to want.
func RequireStringJSONInResponse(t require.TestingT, resp *http.Response, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, resp.Header.Get("Content-Type"))
	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, want, string(bodyBytes))
}
