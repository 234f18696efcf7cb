package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	linkOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hxctl",
			Subsystem: "link",
			Name:      "operations_total",
			Help:      "Memory operations issued to a radio, by transport and outcome.",
		},
		[]string{"transport", "op", "outcome"},
	)
	linkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hxctl",
			Subsystem: "link",
			Name:      "operation_duration_seconds",
			Help:      "Memory operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"transport", "op"},
	)
	linkBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hxctl",
			Subsystem: "link",
			Name:      "bytes_total",
			Help:      "Memory bytes transferred, by direction.",
		},
		[]string{"transport", "direction"},
	)
	readyPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hxctl",
			Subsystem: "link",
			Name:      "ready_polls_total",
			Help:      "Status requests sent while waiting for the radio.",
		},
	)
	sessionCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hxctl",
			Subsystem: "session",
			Name:      "cycles_total",
			Help:      "Full read or write cycles, by outcome.",
		},
		[]string{"model", "cycle", "outcome"},
	)
	moduleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hxctl",
			Subsystem: "session",
			Name:      "module_errors_total",
			Help:      "Config module failures, by module and cycle.",
		},
		[]string{"module", "cycle"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hxctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hxctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			linkOperations, linkDuration, linkBytes, readyPolls,
			sessionCycles, moduleErrors,
			httpRequests, httpDuration,
		)
	})
}

func RecordLinkOperation(transport, op, outcome string, duration time.Duration) {
	RegisterMetrics()
	linkOperations.WithLabelValues(transport, op, outcome).Inc()
	linkDuration.WithLabelValues(transport, op).Observe(duration.Seconds())
}

func RecordLinkBytes(transport, direction string, n int) {
	RegisterMetrics()
	linkBytes.WithLabelValues(transport, direction).Add(float64(n))
}

func RecordReadyPoll() {
	RegisterMetrics()
	readyPolls.Inc()
}

func RecordCycle(model, cycle string, err error) {
	RegisterMetrics()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	sessionCycles.WithLabelValues(model, cycle, outcome).Inc()
}

func RecordModuleError(module, cycle string) {
	RegisterMetrics()
	moduleErrors.WithLabelValues(module, cycle).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
