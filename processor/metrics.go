package processor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/poiesic/vectorit/processor"

const (
	CompletedCounterName = "vectorit.tasks.completed"
	FailedCounterName    = "vectorit.tasks.failed"
	CancelledCounterName = "vectorit.tasks.cancelled"
	ActiveGaugeName      = "vectorit.tasks.active"
	DurationName         = "vectorit.task.duration"
)

type metrics struct {
	completed metric.Int64Counter
	failed    metric.Int64Counter
	cancelled metric.Int64Counter
	active    metric.Int64UpDownCounter
	duration  metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(meterName)

	completed, err := meter.Int64Counter(CompletedCounterName,
		metric.WithDescription("Tasks that finished with embeddings"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter(FailedCounterName,
		metric.WithDescription("Tasks that failed or timed out"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}
	cancelled, err := meter.Int64Counter(CancelledCounterName,
		metric.WithDescription("Tasks cancelled while executing"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter(ActiveGaugeName,
		metric.WithDescription("Tasks currently executing"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(DurationName,
		metric.WithDescription("Task execution time in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 15, 20, 25, 30, 60))
	if err != nil {
		return nil, err
	}
	return &metrics{
		completed: completed,
		failed:    failed,
		cancelled: cancelled,
		active:    active,
		duration:  duration,
	}, nil
}

func (m *metrics) record(ctx context.Context, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	switch status {
	case "completed":
		m.completed.Add(ctx, 1)
	case "failed":
		m.failed.Add(ctx, 1)
	case "cancelled":
		m.cancelled.Add(ctx, 1)
	}
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
