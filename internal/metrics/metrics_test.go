package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/civicauth/domain"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "rate_limited", Outcome(domain.RateLimited(10)))
	assert.Equal(t, "otp_invalid", Outcome(domain.ErrOTPInvalid))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.OTPRequested(nil)
	m.OTPRequested(domain.RateLimited(30))
	m.OTPRequested(domain.RateLimited(10))
	m.OTPVerified(domain.ErrOTPExpired)
	m.Delivered("whatsapp", nil)
	m.SessionIssued(true)
	m.MagicLinkResolved(domain.ErrMagicLinkInvalid)
	m.Swept(3)
	m.Swept(0)
	m.RateLimited()
	m.ObserveRequest("POST", "/auth/otp/request", 201, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OTPRequests.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OTPRequests.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OTPVerifications.WithLabelValues("otp_expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("whatsapp", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsIssued.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MagicLinks.WithLabelValues("magic_link_invalid")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionsSwept))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitExceeded))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OTPRequested(nil)
		m.OTPVerified(nil)
		m.Delivered("sms", nil)
		m.SessionIssued(false)
		m.MagicLinkResolved(nil)
		m.Swept(1)
		m.RateLimited()
		m.ObserveRequest("GET", "/health", 200, time.Millisecond)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.OTPRequested(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `civicauth_otp_requests_total{outcome="ok"} 1`)
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RateLimited()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RateLimitExceeded))
}
