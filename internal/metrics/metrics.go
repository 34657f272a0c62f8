package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/you/civicauth/domain"
)

const namespace = "civicauth"

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	OTPRequests       *prometheus.CounterVec
	OTPVerifications  *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	SessionsIssued    *prometheus.CounterVec
	MagicLinks        *prometheus.CounterVec
	SessionsSwept     prometheus.Counter
	RateLimitExceeded prometheus.Counter
	RequestDuration   *prometheus.HistogramVec
}

// New registers every collector on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_requests_total",
			Help:      "OTP requests by outcome",
		}, []string{"outcome"}),
		OTPVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_verifications_total",
			Help:      "OTP verifications by outcome",
		}, []string{"outcome"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_deliveries_total",
			Help:      "OTP deliveries by channel and outcome",
		}, []string{"channel", "outcome"}),
		SessionsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_issued_total",
			Help:      "Auth sessions issued after OTP verification",
		}, []string{"new_user"}),
		MagicLinks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "magic_links_resolved_total",
			Help:      "Magic link resolutions by outcome",
		}, []string{"outcome"}),
		SessionsSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_sessions_swept_total",
			Help:      "OTP sessions removed by the sweeper",
		}),
		RateLimitExceeded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limit_exceeded_total",
			Help:      "Requests rejected by the IP rate limiter",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Outcome turns an operation result into a label value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if ae, ok := domain.AsAuthError(err); ok {
		return strings.ToLower(ae.Code)
	}
	return "error"
}

func (m *Metrics) OTPRequested(err error) {
	if m == nil {
		return
	}
	m.OTPRequests.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) OTPVerified(err error) {
	if m == nil {
		return
	}
	m.OTPVerifications.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) Delivered(channel string, err error) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(channel, Outcome(err)).Inc()
}

func (m *Metrics) SessionIssued(newUser bool) {
	if m == nil {
		return
	}
	m.SessionsIssued.WithLabelValues(strconv.FormatBool(newUser)).Inc()
}

func (m *Metrics) MagicLinkResolved(err error) {
	if m == nil {
		return
	}
	m.MagicLinks.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsSwept.Add(float64(n))
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Inc()
}

func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}
