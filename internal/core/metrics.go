package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives dispatch outcomes. Implementations must be safe
// for concurrent use.
type MetricsRecorder interface {
	// ObserveDispatch records one dispatch of (plugin, capability) with its
	// terminal status and wall-clock duration.
	ObserveDispatch(ctx context.Context, plugin, capability string, status ResultStatus, duration time.Duration)
}

// NoopMetricsRecorder discards all observations.
type NoopMetricsRecorder struct{}

// ObserveDispatch implements MetricsRecorder.
func (NoopMetricsRecorder) ObserveDispatch(context.Context, string, string, ResultStatus, time.Duration) {
}

// PrometheusMetricsRecorder publishes dispatch counters and durations to a
// Prometheus registerer.
type PrometheusMetricsRecorder struct {
	dispatches *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder constructs a recorder registered against reg.
// A nil registerer falls back to the default global registry.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labcore",
			Subsystem: "dispatcher",
			Name:      "dispatches_total",
			Help:      "Dispatch outcomes by plugin, capability, and status.",
		}, []string{"plugin", "capability", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labcore",
			Subsystem: "dispatcher",
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatch wall-clock duration by plugin and capability.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"plugin", "capability"}),
	}
	if err := reg.Register(r.dispatches); err != nil {
		return nil, err
	}
	if err := reg.Register(r.durations); err != nil {
		return nil, err
	}
	return r, nil
}

// ObserveDispatch implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) ObserveDispatch(_ context.Context, plugin, capability string, status ResultStatus, duration time.Duration) {
	r.dispatches.WithLabelValues(plugin, capability, string(status)).Inc()
	r.durations.WithLabelValues(plugin, capability).Observe(duration.Seconds())
}
