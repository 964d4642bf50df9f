package client

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "asynchttp"

type metrics struct {
	requests      *prometheus.CounterVec
	durations     *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	captureErrors prometheus.Counter
}

// newMetrics registers the client metrics with reg. Clients sharing a
// registerer share its collectors. A nil reg yields unregistered
// collectors, which keeps the call path free of nil checks.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Count of completed calls by method and status code (0 when no response arrived)",
		}, []string{"method", "code"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Time spent per call, from building the request to decoding the response",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "in_flight_requests",
			Help:      "Calls currently awaiting a response",
		}),
		captureErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cookies",
			Name:      "capture_errors_total",
			Help:      "Count of cookie store failures while capturing response cookies",
		}),
	}

	if reg == nil {
		return &m, nil
	}

	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.durations, err = register(reg, m.durations); err != nil {
		return nil, err
	}
	if m.inFlight, err = register(reg, m.inFlight); err != nil {
		return nil, err
	}
	if m.captureErrors, err = register(reg, m.captureErrors); err != nil {
		return nil, err
	}

	return &m, nil
}

// register adds c to reg, returning the collector already registered
// under the same descriptor when there is one.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, fmt.Errorf("registering metrics: %w", err)
	}

	existing, ok := are.ExistingCollector.(C)
	if !ok {
		return c, fmt.Errorf("registering metrics: existing collector is %T", are.ExistingCollector)
	}

	return existing, nil
}

func (m *metrics) observe(method Method, status int, started time.Time) {
	m.requests.WithLabelValues(method.String(), strconv.Itoa(status)).Inc()
	m.durations.WithLabelValues(method.String()).Observe(time.Since(started).Seconds())
}
