package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records store operation counts and latencies.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates collectors and registers them with reg. Collectors that
// are already registered are reused, so several services can share them.
func NewMetrics(reg prometheus.Registerer, labels prometheus.Labels) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "crmstore",
		Name:        "operations_total",
		Help:        "Records processed by store operations.",
		ConstLabels: labels,
	}, []string{"backend", "object", "operation", "outcome"})

	dur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "crmstore",
		Name:        "operation_duration_seconds",
		Help:        "Store operation latency in seconds.",
		ConstLabels: labels,
		Buckets:     prometheus.DefBuckets,
	}, []string{"backend", "object", "operation"})

	var err error
	if ops, err = registerOrReuse(reg, ops); err != nil {
		return nil, err
	}
	if dur, err = registerOrReuse(reg, dur); err != nil {
		return nil, err
	}

	return &Metrics{operations: ops, duration: dur}, nil
}

// NewMetricsFromConfig returns metrics when the config enables them, nil otherwise.
func NewMetricsFromConfig(cfg *Config) (*Metrics, error) {
	if !cfg.EnableMetrics {
		return nil, nil
	}
	return NewMetrics(cfg.MetricsRegisterer, cfg.MetricLabels)
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveBatch records the outcome of a batch call. Failures and latency are
// recorded at once. Saved records count once the unit of work in ctx
// settles, as "rolled_back" when it does not commit.
func (m *Metrics) ObserveBatch(ctx context.Context, backend string, res BatchResult, started time.Time) {
	if m == nil {
		return
	}
	object := res.Object.String()
	ok := len(res.Succeeded())
	m.operations.WithLabelValues(backend, object, res.Operation, "failure").Add(float64(len(res.Results) - ok))
	m.duration.WithLabelValues(backend, object, res.Operation).Observe(time.Since(started).Seconds())

	OnSettle(ctx, func(committed bool) {
		outcome := "success"
		if !committed {
			outcome = "rolled_back"
		}
		m.operations.WithLabelValues(backend, object, res.Operation, outcome).Add(float64(ok))
	})
}

// ObserveQuery records a read call.
func (m *Metrics) ObserveQuery(backend string, object ObjectType, operation string, err error, started time.Time) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.operations.WithLabelValues(backend, object.String(), operation, outcome).Inc()
	m.duration.WithLabelValues(backend, object.String(), operation).Observe(time.Since(started).Seconds())
}
