package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordVerification(t *testing.T) {
	before := testutil.ToFloat64(VerificationsTotal.WithLabelValues(OpVerify, OutcomeRejected, "nonce_expired"))
	RecordVerification(OpVerify, OutcomeRejected, "nonce_expired")
	after := testutil.ToFloat64(VerificationsTotal.WithLabelValues(OpVerify, OutcomeRejected, "nonce_expired"))
	assert.Equal(t, before+1, after)

	before = testutil.ToFloat64(VerificationsTotal.WithLabelValues(OpBind, OutcomeVerified, "none"))
	RecordVerification(OpBind, OutcomeVerified, "")
	after = testutil.ToFloat64(VerificationsTotal.WithLabelValues(OpBind, OutcomeVerified, "none"))
	assert.Equal(t, before+1, after)
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200"))
	RecordHTTPRequest("GET", "/healthz", "200", 3*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200")))
}
