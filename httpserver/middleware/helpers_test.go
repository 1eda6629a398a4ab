/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/restapi"
)

func requireErrorInRecorder(
	t *testing.T, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	t.Helper()
	require.Equal(t, wantHTTPCode, resp.Code)
	require.Equal(t, restapi.ContentTypeAppJSON, resp.Header().Get("Content-Type"))
	var respData restapi.ErrorResponseData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&respData))
	require.NotNil(t, respData.Err)
	require.Equal(t, wantErrDomain, respData.Err.Domain)
	require.Equal(t, wantErrCode, respData.Err.Code)
}

type nextCountingHandler struct {
	called  int
	request *http.Request
	status  int
}

func (h *nextCountingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	h.called++
	h.request = r
	if h.status != 0 {
		rw.WriteHeader(h.status)
		return
	}
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("ok"))
}
