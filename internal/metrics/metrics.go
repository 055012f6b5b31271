// Package metrics wires the subscription pipeline's volume and latency into
// otel: commits, updates applied, items broadcast. Grounded on the
// teacher's go.opentelemetry.io/otel/trace use in internal/hooks (tracer
// spans per hook invocation); this package's traffic is metric-shaped
// (counts and durations) rather than span-shaped, so it wires the metric
// SDK from the same otel stack instead of tracing.
package metrics

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	commits         metric.Int64Counter
	updatesApplied  metric.Int64Counter
	itemsPublished  metric.Int64Counter
	commitLatencyMs metric.Float64Histogram
)

// Init creates a stdout-exporting MeterProvider and this package's
// instruments. Call once at process startup; the returned func flushes and
// shuts the provider down and should run on exit. Safe to call more than
// once; later calls replace the instruments.
func Init(ctx context.Context) (func(context.Context) error, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("metrics: stdout exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	meter := provider.Meter("github.com/ankurah/ankurah")

	if commits, err = meter.Int64Counter("ankurah.commits"); err != nil {
		return nil, fmt.Errorf("metrics: commits counter: %w", err)
	}
	if updatesApplied, err = meter.Int64Counter("ankurah.updates_applied"); err != nil {
		return nil, fmt.Errorf("metrics: updates_applied counter: %w", err)
	}
	if itemsPublished, err = meter.Int64Counter("ankurah.items_published"); err != nil {
		return nil, fmt.Errorf("metrics: items_published counter: %w", err)
	}
	if commitLatencyMs, err = meter.Float64Histogram("ankurah.commit_latency_ms"); err != nil {
		return nil, fmt.Errorf("metrics: commit_latency_ms histogram: %w", err)
	}
	return provider.Shutdown, nil
}

// RecordCommit records one local entity commit and its wall-clock latency.
func RecordCommit(ctx context.Context, latencyMs float64) {
	if commits == nil {
		return
	}
	commits.Add(ctx, 1)
	commitLatencyMs.Record(ctx, latencyMs)
}

// RecordUpdateApplied records one inbound subscription update item that
// reached UpdateApplier.Apply.
func RecordUpdateApplied(ctx context.Context) {
	if updatesApplied == nil {
		return
	}
	updatesApplied.Add(ctx, 1)
}

// RecordItemPublished records one outbound update item handed to a
// PeerSender.
func RecordItemPublished(ctx context.Context) {
	if itemsPublished == nil {
		return
	}
	itemsPublished.Add(ctx, 1)
}
