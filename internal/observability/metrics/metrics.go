package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identityhub_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "identityhub_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	signupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identityhub_signups_total",
		Help: "Count of signup attempts by result",
	}, []string{"result"})

	signinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identityhub_signins_total",
		Help: "Count of signin attempts by result",
	}, []string{"result"})

	passwordChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identityhub_password_changes_total",
		Help: "Count of password change attempts by result",
	}, []string{"result"})

	tokenVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identityhub_token_verifications_total",
		Help: "Count of bearer token verifications by result",
	}, []string{"result"})

	registeredUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "identityhub_registered_users",
		Help: "Number of user records in the directory",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveSignup increments the signup counter for the given result.
func ObserveSignup(result string) {
	signupsTotal.WithLabelValues(result).Inc()
}

// ObserveSignin increments the signin counter for the given result.
func ObserveSignin(result string) {
	signinsTotal.WithLabelValues(result).Inc()
}

// ObservePasswordChange increments the password change counter for the given result.
func ObservePasswordChange(result string) {
	passwordChangesTotal.WithLabelValues(result).Inc()
}

// ObserveTokenVerification increments the verification counter for the given result.
func ObserveTokenVerification(result string) {
	tokenVerificationsTotal.WithLabelValues(result).Inc()
}

// SetRegisteredUsers sets the directory size gauge.
func SetRegisteredUsers(count int) {
	if count < 0 {
		count = 0
	}
	registeredUsers.Set(float64(count))
}
