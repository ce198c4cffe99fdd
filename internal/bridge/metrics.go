package bridge

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/telestore/telestore/internal/bridge"

// callMetrics holds per-operation call instruments. Instruments that fail to
// initialize stay nil and are skipped.
type callMetrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

func newCallMetrics(m metric.Meter) *callMetrics {
	if m == nil {
		m = otel.Meter(meterName)
	}

	cm := &callMetrics{}

	if c, err := m.Int64Counter(
		"bridge_calls_total",
		metric.WithDescription("Total number of bridge calls"),
		metric.WithUnit("1"),
	); err == nil {
		cm.calls = c
	}

	if c, err := m.Int64Counter(
		"bridge_call_failures_total",
		metric.WithDescription("Total number of failed bridge calls"),
		metric.WithUnit("1"),
	); err == nil {
		cm.failures = c
	}

	if h, err := m.Float64Histogram(
		"bridge_call_duration_seconds",
		metric.WithDescription("Bridge call duration in seconds"),
		metric.WithUnit("s"),
	); err == nil {
		cm.duration = h
	}

	return cm
}

func (cm *callMetrics) record(ctx context.Context, op string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	)

	if cm.calls != nil {
		cm.calls.Add(ctx, 1, attrs)
	}
	if err != nil && cm.failures != nil {
		cm.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
	if cm.duration != nil {
		cm.duration.Record(ctx, d.Seconds(), attrs)
	}
}
