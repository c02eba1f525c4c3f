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
			Namespace: "matterctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matterctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	shellInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matterctl",
			Subsystem: "shell",
			Name:      "invocations_total",
			Help:      "Device shell lifecycles by outcome.",
		},
		[]string{"outcome"},
	)
	shellDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matterctl",
			Subsystem: "shell",
			Name:      "invocation_duration_seconds",
			Help:      "Device shell lifecycle duration in seconds, spawn to exit.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)
	deviceOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matterctl",
			Subsystem: "device",
			Name:      "operations_total",
			Help:      "Device operations by name and success.",
		},
		[]string{"operation", "success"},
	)
	publishDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matterctl",
			Subsystem: "publish",
			Name:      "dropped_total",
			Help:      "Results never delivered to the broker.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, shellInvocations, shellDuration, deviceOperations, publishDropped)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordShellInvocation(outcome string, duration time.Duration) {
	RegisterMetrics()
	shellInvocations.WithLabelValues(outcome).Inc()
	shellDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordOperation(operation string, success bool) {
	RegisterMetrics()
	deviceOperations.WithLabelValues(operation, strconv.FormatBool(success)).Inc()
}

func RecordPublishDropped() {
	RegisterMetrics()
	publishDropped.Inc()
}
