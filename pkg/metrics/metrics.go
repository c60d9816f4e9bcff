package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Subscription metrics
	Subscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcci_subscriptions",
			Help: "Live subscriptions by bank",
		},
		[]string{"bank"},
	)

	SubscriptionKeys = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcci_subscription_keys",
			Help: "Distinct subscription keys by bank",
		},
		[]string{"bank"},
	)

	SubscriptionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mcci_subscriptions_expired_total",
			Help: "Total number of subscriptions dropped by the timeout sweep",
		},
	)

	// Request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcci_requests_total",
			Help: "Total number of subscription requests by outcome",
		},
		[]string{"outcome"},
	)

	RequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcci_request_duration_seconds",
			Help:    "Time taken to route a subscription request in seconds",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
	)

	// Data metrics
	ProductionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mcci_productions_total",
			Help: "Total number of values produced by local providers",
		},
	)

	DataTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcci_data_total",
			Help: "Total number of data packets routed by origin",
		},
		[]string{"origin"},
	)

	// Transport metrics
	EnvelopesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcci_envelopes_total",
			Help: "Total number of envelopes handed to sessions by kind and result",
		},
		[]string{"kind", "result"},
	)

	SessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcci_sessions_active",
			Help: "Attached sessions by role",
		},
		[]string{"role"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcci_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcci_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Sweep metrics
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcci_sweep_duration_seconds",
			Help:    "Time taken by one timeout sweep in seconds",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(Subscriptions)
	prometheus.MustRegister(SubscriptionKeys)
	prometheus.MustRegister(SubscriptionsExpired)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ProductionsTotal)
	prometheus.MustRegister(DataTotal)
	prometheus.MustRegister(EnvelopesTotal)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(SweepDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Mux returns a ServeMux with /metrics and the health endpoints mounted.
func Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.Handle("/health", HealthHandler())
	mux.Handle("/ready", ReadyHandler())
	mux.Handle("/live", LivenessHandler())
	return mux
}
