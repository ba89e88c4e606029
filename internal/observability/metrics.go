package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atbench",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served by the status server.",
		},
		[]string{"server", "method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "atbench",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server", "method", "route", "code"},
	)
	deviceQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atbench",
			Subsystem: "device",
			Name:      "queries_total",
			Help:      "Correlated device exchanges by terminal status.",
		},
		[]string{"name", "status"},
	)
	deviceQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "atbench",
			Subsystem: "device",
			Name:      "query_duration_seconds",
			Help:      "Time from command send to terminal status or timeout.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"name"},
	)
	testResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atbench",
			Subsystem: "report",
			Name:      "results_total",
			Help:      "Validated test results by verdict.",
		},
		[]string{"name", "passed"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, deviceQueries, deviceQueryDuration, testResults)
	})
}

func RecordHTTPRequest(server, method, route string, code int, duration time.Duration) {
	RegisterMetrics()
	codeLabel := strconv.Itoa(code)
	httpRequests.WithLabelValues(server, method, route, codeLabel).Inc()
	httpDuration.WithLabelValues(server, method, route, codeLabel).Observe(duration.Seconds())
}

// RecordQuery counts one exchange; status is "NONE" for a timeout.
func RecordQuery(name, status string, duration time.Duration) {
	RegisterMetrics()
	deviceQueries.WithLabelValues(name, status).Inc()
	deviceQueryDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func RecordResult(name string, passed bool) {
	RegisterMetrics()
	testResults.WithLabelValues(name, strconv.FormatBool(passed)).Inc()
}
