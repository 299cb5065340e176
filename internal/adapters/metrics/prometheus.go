package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var HttpRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests received",
	},
	[]string{"endpoint", "status", "method"},
)

var HttpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"endpoint", "method"},
)

var HttpErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "Total number of failed HTTP requests (4xx/5xx)",
	},
	[]string{"endpoint", "status", "method"},
)

var JobRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "job_runs_total",
		Help: "Total number of batch job runs by result",
	},
	[]string{"job", "result"},
)

var JobDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of batch job runs in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	},
	[]string{"job"},
)

var RemindersProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reminders_processed_total",
		Help: "Total number of due reminders processed by outcome",
	},
	[]string{"outcome"},
)

var RetentionDeletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "retention_deleted_total",
		Help: "Total number of rows removed by the retention cleaner",
	},
	[]string{"category"},
)

var initOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(HttpRequestsTotal)
		prometheus.MustRegister(HttpRequestDuration)
		prometheus.MustRegister(HttpErrorsTotal)
		prometheus.MustRegister(JobRunsTotal)
		prometheus.MustRegister(JobDuration)
		prometheus.MustRegister(RemindersProcessedTotal)
		prometheus.MustRegister(RetentionDeletedTotal)
	})
}
