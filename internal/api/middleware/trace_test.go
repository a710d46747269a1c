package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/jobpipe/internal/api/shared"
	"github.com/phrazzld/jobpipe/internal/platform/logger"
)

func TestTrace(t *testing.T) {
	log, buf := logger.GetTestLogger(t)

	var traceID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	Trace(log)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs", nil))

	assert.Len(t, traceID, 32)
	assert.Equal(t, traceID, rr.Header().Get(TraceHeader))
	assert.Equal(t, http.StatusTeapot, rr.Code)

	entries := buf.EntriesWithMessage("inside handler")
	if assert.Len(t, entries, 1) {
		assert.Equal(t, traceID, entries[0]["trace_id"])
	}
	completed := buf.EntriesWithMessage("request completed")
	if assert.Len(t, completed, 1) {
		assert.Equal(t, float64(http.StatusTeapot), completed[0]["status"])
	}
}
