package pipeline

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "github.com/wike-chi/live-audio-pipeline"

// confidenceBuckets covers the full [0,1] confidence range returned by
// Recognizer implementations.
var confidenceBuckets = []float64{0.1, 0.3, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99}

// Metrics holds the OpenTelemetry instruments backing a Session's rolling
// Stats (§3, SUPPLEMENTED FEATURES). All fields are safe for concurrent use.
type Metrics struct {
	ChunksIn          metric.Int64Counter
	SegmentsEmitted   metric.Int64Counter
	TranscriptsOK     metric.Int64Counter
	TranscriptsFailed metric.Int64Counter
	DroppedFrames     metric.Int64Counter
	DroppedEvents     metric.Int64Counter
	Confidence        metric.Float64Histogram
	ActiveSessions    metric.Int64UpDownCounter
}

// NewMetrics builds a fully initialized Metrics using the given
// MeterProvider. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.ChunksIn, err = m.Int64Counter("liveaudio.chunks_in",
		metric.WithDescription("Total PCM frames consumed from the media stream.")); err != nil {
		return nil, err
	}
	if met.SegmentsEmitted, err = m.Int64Counter("liveaudio.segments_emitted",
		metric.WithDescription("Total segments released by the VAD gate.")); err != nil {
		return nil, err
	}
	if met.TranscriptsOK, err = m.Int64Counter("liveaudio.transcripts.success",
		metric.WithDescription("Total segments transcribed successfully.")); err != nil {
		return nil, err
	}
	if met.TranscriptsFailed, err = m.Int64Counter("liveaudio.transcripts.failed",
		metric.WithDescription("Total segments the Recognizer failed to transcribe.")); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("liveaudio.dropped_frames",
		metric.WithDescription("Total VAD segments dropped before transcription (buffer full, aged out, or not submitted).")); err != nil {
		return nil, err
	}
	if met.DroppedEvents, err = m.Int64Counter("liveaudio.dropped_events",
		metric.WithDescription("Total broadcaster events evicted by a slow-subscriber drop policy."),
		metric.WithUnit("{event}")); err != nil {
		return nil, err
	}
	if met.Confidence, err = m.Float64Histogram("liveaudio.transcript.confidence",
		metric.WithDescription("Recognizer confidence score of successful transcriptions."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...)); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("liveaudio.active_sessions",
		metric.WithDescription("Number of pipeline sessions currently running (0 or 1).")); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialized package-level Metrics instance,
// used when a PipelineSupervisor is built without an explicit Metrics.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics, created on first call
// from the global MeterProvider. Panics if instrument creation fails, which
// should not happen against a well-formed global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("pipeline: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// MetricsProviderConfig configures the OTel SDK meter provider whose
// Prometheus exporter registers with the default Prometheus registry. This
// module does not itself serve a /metrics scrape endpoint.
type MetricsProviderConfig struct {
	ServiceName    string
	ServiceVersion string
}

// InitMetricsProvider wires a Prometheus exporter into a global
// MeterProvider and registers it with otel.SetMeterProvider. The returned
// shutdown func should be deferred from main().
func InitMetricsProvider(ctx context.Context, cfg MetricsProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "live-audio-pipeline"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	exp, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// The record*/session* methods below are the call sites a
// PipelineSupervisor's goroutine group uses; they are no-ops when m is nil
// so callers needn't guard every call with a nil check.

func (m *Metrics) recordChunkIn(ctx context.Context) {
	if m == nil {
		return
	}
	m.ChunksIn.Add(ctx, 1)
}

func (m *Metrics) recordSegmentEmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.SegmentsEmitted.Add(ctx, 1)
}

func (m *Metrics) recordTranscript(ctx context.Context, confidence float64, ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.TranscriptsOK.Add(ctx, 1)
		m.Confidence.Record(ctx, confidence)
		return
	}
	m.TranscriptsFailed.Add(ctx, 1)
}

func (m *Metrics) recordDroppedFrames(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.DroppedFrames.Add(ctx, n)
}

func (m *Metrics) sessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) recordDroppedEvent(kind string) {
	if m == nil {
		return
	}
	m.DroppedEvents.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) sessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}
