// Package metrics exposes pipeline activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rbright/steno/internal/chunker"
	"github.com/rbright/steno/internal/pipeline"
)

const namespace = "steno"

// Recorder is a pipeline.Observer backed by its own registry.
type Recorder struct {
	registry *prometheus.Registry

	sampleRate int

	chunks        *prometheus.CounterVec
	chunkSeconds  prometheus.Histogram
	engineLatency prometheus.Histogram
	engineErrors  prometheus.Counter
	results       *prometheus.CounterVec
}

var _ pipeline.Observer = (*Recorder)(nil)

// New registers all collectors. backend labels the engine metrics; sampleRate
// converts chunk lengths to seconds.
func New(backend string, sampleRate int) *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	engineLabels := prometheus.Labels{"backend": backend}

	return &Recorder{
		registry:   reg,
		sampleRate: max(1, sampleRate),
		chunks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks cut by the chunker, by outcome (queued, dropped, skipped).",
		}, []string{"outcome"}),
		chunkSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Audio length of queued chunks.",
			Buckets:   []float64{0.5, 1, 2, 3, 4, 5, 6, 8, 10},
		}),
		engineLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "engine_latency_seconds",
			Help:        "Wall time of one recognition call.",
			Buckets:     prometheus.ExponentialBuckets(0.05, 2, 10),
			ConstLabels: engineLabels,
		}),
		engineErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "engine_errors_total",
			Help:        "Recognition calls that failed.",
			ConstLabels: engineLabels,
		}),
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Recognition results, by outcome (emitted, empty, short, repetitive).",
		}, []string{"outcome"}),
	}
}

// Registry returns the registry holding every collector.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Watch exports gauges read from stats at scrape time. Call it once.
func (r *Recorder) Watch(stats func() pipeline.Stats) {
	r.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Chunks waiting for recognition.",
		}, func() float64 { return float64(stats().QueueDepth) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      "1 while the pipeline is running.",
		}, func() float64 {
			if stats().State.Active() {
				return 1
			}
			return 0
		}),
	)
}

func (r *Recorder) ChunkQueued(chunk chunker.Chunk, _ int) {
	r.chunks.WithLabelValues("queued").Inc()
	r.chunkSeconds.Observe(float64(len(chunk.Samples)) / float64(r.sampleRate))
}

func (r *Recorder) ChunkDropped(chunker.Chunk) {
	r.chunks.WithLabelValues("dropped").Inc()
}

func (r *Recorder) ChunkSkipped(chunker.Chunk) {
	r.chunks.WithLabelValues("skipped").Inc()
}

func (r *Recorder) Recognized(_ chunker.Chunk, latency time.Duration, err error) {
	r.engineLatency.Observe(latency.Seconds())
	if err != nil {
		r.engineErrors.Inc()
	}
}

func (r *Recorder) ResultFiltered(reason string, _ string, _ float64) {
	r.results.WithLabelValues(reason).Inc()
}

func (r *Recorder) ResultEmitted(pipeline.Result) {
	r.results.WithLabelValues("emitted").Inc()
}
