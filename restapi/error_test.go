package restapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHttpCode2ErrorCode(t *testing.T) {
	tests := []struct {
		httpCode    int
		wantErrCode string
	}{
		{http.StatusInternalServerError, "internalError"},
		{http.StatusNotFound, "notFound"},
		{http.StatusBadRequest, "badRequest"},
		{http.StatusUnauthorized, "unauthorized"},
		{http.StatusForbidden, "forbidden"},
		{http.StatusMethodNotAllowed, "methodNotAllowed"},
		{http.StatusConflict, "conflict"},
		{http.StatusTooManyRequests, "tooManyRequests"},
		{http.StatusServiceUnavailable, "serviceUnavailable"},
		{http.StatusRequestEntityTooLarge, "requestEntityTooLarge"},
	}

	for _, tt := range tests {
		t.Run(tt.wantErrCode, func(t *testing.T) {
			assert.Equal(t, tt.wantErrCode, httpCode2ErrorCode(tt.httpCode))
		})
	}
}

func TestErrorAddContextAndDebug(t *testing.T) {
	apiErr := NewError("scheduler", "jobNotRemovable", "Job is still processing.")
	apiErr.AddContext("jobID", "j1").AddContext("status", "processing")
	apiErr.AddDebug("worker", 3)

	require.Equal(t, map[string]interface{}{"jobID": "j1", "status": "processing"}, apiErr.Context)
	require.Equal(t, map[string]interface{}{"worker": 3}, apiErr.Debug)
}
