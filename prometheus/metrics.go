package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Protocol counters
var (
	// ActivationCounter counts activate calls by result ("activated", "reactivated", or a failure code)
	ActivationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_activations_total",
			Help: "Total number of activation attempts by result",
		},
		[]string{"result"},
	)

	// ValidationCounter counts validate calls by reported status
	ValidationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_validations_total",
			Help: "Total number of validation calls by reported status",
		},
		[]string{"status"},
	)

	DeactivationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_deactivations_total",
			Help: "Total number of deactivation attempts by result",
		},
		[]string{"result"},
	)

	// UsageCounter counts usage reports by result ("ok", "quota_exceeded", or a failure code)
	UsageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_usage_reports_total",
			Help: "Total number of usage reports by result",
		},
		[]string{"result"},
	)

	MeteredCallsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_metered_calls_total",
			Help: "Total number of metered API calls recorded by tier",
		},
		[]string{"tier"},
	)
)

// Administration counters
var (
	LicenseCreatedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_created_total",
			Help: "Total number of licenses issued by tier",
		},
		[]string{"tier"},
	)

	StatusChangeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_status_changes_total",
			Help: "Total number of administrative status changes by target status",
		},
		[]string{"status"},
	)

	ExpiredCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_expired_total",
			Help: "Total number of licenses moved to expired",
		},
		[]string{"source"}, // "sweep" or "validate"
	)

	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"},
	)

	RateLimitedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "license_rate_limited_total",
			Help: "Total number of protocol requests rejected by the rate limiter",
		},
	)
)

// Histogram metrics
var (
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "license_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Gauge metrics
var (
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "license_service_info",
			Help: "Information about the license service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(
		ActivationCounter,
		ValidationCounter,
		DeactivationCounter,
		UsageCounter,
		MeteredCallsCounter,
		LicenseCreatedCounter,
		StatusChangeCounter,
		ExpiredCounter,
		AuthErrorCounter,
		RateLimitedCounter,
		DBOperationDuration,
		InfoGauge,
	)

	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures a database operation. Use as
// defer prometheus.TrackDBOperation("upsert_activation")(time.Now()).
func TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		DBOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func RecordActivation(result string) {
	ActivationCounter.WithLabelValues(result).Inc()
}

func RecordValidation(status string) {
	ValidationCounter.WithLabelValues(status).Inc()
}

func RecordDeactivation(result string) {
	DeactivationCounter.WithLabelValues(result).Inc()
}

// RecordUsage records a usage report and the metered calls it carried
func RecordUsage(result, tier string, calls int64) {
	UsageCounter.WithLabelValues(result).Inc()
	if calls > 0 {
		MeteredCallsCounter.WithLabelValues(tier).Add(float64(calls))
	}
}

func RecordLicenseCreated(tier string) {
	LicenseCreatedCounter.WithLabelValues(tier).Inc()
}

func RecordStatusChange(status string) {
	StatusChangeCounter.WithLabelValues(status).Inc()
}

func RecordExpired(source string, n int) {
	if n > 0 {
		ExpiredCounter.WithLabelValues(source).Add(float64(n))
	}
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.WithLabelValues(errorType).Inc()
}

func RecordRateLimited() {
	RateLimitedCounter.Inc()
}
