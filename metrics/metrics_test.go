package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordVABRequest(t *testing.T) {
	before := testutil.ToFloat64(vabRequests.WithLabelValues("GET", "OK"))
	RecordVABRequest("GET", "OK", time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(vabRequests.WithLabelValues("GET", "OK")))
}

func TestRecordDispatch(t *testing.T) {
	before := testutil.ToFloat64(dispatched.WithLabelValues("S", OutcomeOK))
	RecordDispatch("S", OutcomeOK)
	RecordDispatch("S", OutcomeOK)
	assert.Equal(t, before+2, testutil.ToFloat64(dispatched.WithLabelValues("S", OutcomeOK)))

	RecordTransform("S", 3*time.Millisecond, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(averageLatency))
}

func TestHandler(t *testing.T) {
	RecordDispatch("T", OutcomeError)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "vab_bridge_dispatch_messages_total"))
}
