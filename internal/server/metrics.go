package server

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

const meterName = "arc-framework/benchd/server"

// registerPoolMetrics reports the pool size and active worker count as
// observable gauges.
func registerPoolMetrics(mp metric.MeterProvider, p *Pool) (metric.Registration, error) {
	meter := mp.Meter(meterName)

	size, err := meter.Int64ObservableGauge("benchd.pool.size",
		metric.WithDescription("Configured worker pool size"),
		metric.WithUnit("{worker}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pool size gauge: %w", err)
	}
	active, err := meter.Int64ObservableGauge("benchd.pool.active_workers",
		metric.WithDescription("Pool workers currently running"),
		metric.WithUnit("{worker}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating active workers gauge: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(size, int64(p.Size()))
		o.ObserveInt64(active, int64(p.Active()))
		return nil
	}, size, active)
}
