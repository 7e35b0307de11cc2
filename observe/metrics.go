// Package observe provides the OpenTelemetry metrics of the capture pipeline.
//
// Instruments are created from a [metric.MeterProvider]; [InitProvider]
// registers an SDK provider backed by a Prometheus exporter so the counters can
// be scraped from /metrics. Tests should use [NewMetrics] with their own
// provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of all micunit metrics.
const meterName = "github.com/lisuiheng/micunit"

// Buffer outcomes recorded on the micunit.buffers counter.
const (
	ResultEmitted   = "emitted"   // unit delivered to a sink
	ResultSkipped   = "skipped"   // converter produced no packets
	ResultDiscarded = "discarded" // unit built but no sink registered
	ResultFailed    = "failed"    // conversion error
	ResultDropped   = "dropped"   // assembly refused the unit
)

// Metrics holds the pipeline instruments. All methods are safe for concurrent
// use and never block.
type Metrics struct {
	Buffers            metric.Int64Counter
	EncodedBytes       metric.Int64Counter
	ConversionDuration metric.Float64Histogram
	ObservationDropped metric.Int64Counter
	ActiveCaptures     metric.Int64UpDownCounter
	SinkQueueDropped   metric.Int64Counter

	// Pre-built attribute sets so the capture thread does not allocate.
	resultAttrs map[string]metric.MeasurementOption
}

// conversionBuckets are histogram boundaries in seconds, sized around a
// 100 ms capture period.
var conversionBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Buffers, err = m.Int64Counter("micunit.buffers",
		metric.WithDescription("Capture buffers processed, by result."),
	); err != nil {
		return nil, err
	}
	if met.EncodedBytes, err = m.Int64Counter("micunit.encoded.bytes",
		metric.WithDescription("Encoded bytes emitted in sample units."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ConversionDuration, err = m.Float64Histogram("micunit.conversion.duration",
		metric.WithDescription("Time spent converting one capture buffer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(conversionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ObservationDropped, err = m.Int64Counter("micunit.observation.dropped",
		metric.WithDescription("Conversion errors dropped because the observation channel was full."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCaptures, err = m.Int64UpDownCounter("micunit.capture.active",
		metric.WithDescription("Pipelines currently capturing."),
	); err != nil {
		return nil, err
	}
	if met.SinkQueueDropped, err = m.Int64Counter("micunit.sink.dropped",
		metric.WithDescription("Units dropped by a sink because its queue was full."),
	); err != nil {
		return nil, err
	}

	met.resultAttrs = make(map[string]metric.MeasurementOption)
	for _, r := range []string{ResultEmitted, ResultSkipped, ResultDiscarded, ResultFailed, ResultDropped} {
		met.resultAttrs[r] = metric.WithAttributeSet(attribute.NewSet(attribute.String("result", r)))
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level instance bound to the global meter
// provider. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordBuffer counts one processed buffer with its result.
func (m *Metrics) RecordBuffer(ctx context.Context, result string) {
	opt, ok := m.resultAttrs[result]
	if !ok {
		opt = metric.WithAttributes(attribute.String("result", result))
	}
	m.Buffers.Add(ctx, 1, opt)
}

// RecordEmitted counts an emitted unit and its size.
func (m *Metrics) RecordEmitted(ctx context.Context, bytes int) {
	m.RecordBuffer(ctx, ResultEmitted)
	m.EncodedBytes.Add(ctx, int64(bytes))
}

// RecordConversion records how long a conversion took, in seconds.
func (m *Metrics) RecordConversion(ctx context.Context, seconds float64) {
	m.ConversionDuration.Record(ctx, seconds)
}
