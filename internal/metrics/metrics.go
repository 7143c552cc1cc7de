package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "attendance"

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total", Help: "Processed HTTP requests",
	}, []string{"method", "route", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	HandlerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "handler_errors_total", Help: "Handler errors by kind",
	}, []string{"kind"})
	AuditEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "audit_entries_total", Help: "Appended audit log entries",
	}, []string{"action"})
	Exports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "exports_total", Help: "Generated exports",
	}, []string{"format"})
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "login_attempts_total", Help: "Login attempts by result",
	}, []string{"result"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
	PendingUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "pending_users", Help: "Curators and leaders waiting for approval",
	})
	AbsencesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "absences_total", Help: "Absence records in the ledger",
	})

	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "job_runs_total", Help: "Background job runs",
	}, []string{"job"})
	JobErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "job_errors_total", Help: "Background job failures and panics",
	}, []string{"job"})
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "job_duration_seconds", Help: "Background job duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, HandlerErrors, AuditEntries,
		Exports, LoginAttempts, DBPing, PendingUsers, AbsencesTotal,
		JobRuns, JobErrors, JobDuration)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

func ObserveJob(name string, d time.Duration) {
	JobRuns.WithLabelValues(name).Inc()
	JobDuration.WithLabelValues(name).Observe(d.Seconds())
}

func ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
