// Package pipeline runs the streaming transcription core: an ingestion
// goroutine feeding the chunker and queue, and a recognition worker that
// primes the engine with context, filters results and hands them to a callback.
package pipeline

import (
	"errors"
	"time"

	"github.com/rbright/steno/internal/chunker"
	"github.com/rbright/steno/internal/fsm"
	"github.com/rbright/steno/internal/queue"
	"github.com/rbright/steno/internal/stitch"
)

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New("pipeline already running")

// Result is one accepted transcription.
type Result struct {
	Text string `json:"text"`
	// Timestamp is the chunk start in seconds since the stream began.
	Timestamp  float64 `json:"timestamp"`
	Confidence float64 `json:"confidence"`
	IsPartial  bool    `json:"is_partial"`
}

// Callback receives accepted results on the worker goroutine, in chunk order.
// It should return quickly; recognition of the next chunk waits for it.
type Callback func(Result)

// SampleSink receives every ingested sample batch, e.g. a WAV recorder.
type SampleSink interface {
	Write(samples []float32) error
}

// Options configures one Pipeline.
type Options struct {
	SampleRate    int
	Chunk         chunker.Options
	Context       stitch.Options
	QueueCapacity int
	// MinTextLength drops results shorter than this many bytes.
	MinTextLength int
	// RetryDelay is the pause after the source reports no data.
	RetryDelay time.Duration
	// EngineTimeout bounds one recognition call.
	EngineTimeout time.Duration
	Tap           SampleSink
}

// DefaultOptions returns the defaults for 16 kHz mono audio.
func DefaultOptions() Options {
	return Options{
		SampleRate:    16000,
		Chunk:         chunker.DefaultOptions(),
		Context:       stitch.DefaultOptions(),
		QueueCapacity: queue.DefaultCapacity,
		MinTextLength: 3,
		RetryDelay:    10 * time.Millisecond,
		EngineTimeout: 30 * time.Second,
	}
}

// Stats is a point-in-time view of pipeline counters.
type Stats struct {
	State           fsm.State     `json:"state"`
	StartedAt       time.Time     `json:"started_at"`
	Elapsed         time.Duration `json:"elapsed"`
	SamplesIngested int64         `json:"samples_ingested"`
	ChunksProduced  int64         `json:"chunks_produced"`
	ChunksSkipped   int64         `json:"chunks_skipped"`
	ChunksQueued    int64         `json:"chunks_queued"`
	ChunksDropped   int64         `json:"chunks_dropped"`
	QueueDepth      int           `json:"queue_depth"`
	Recognized      int64         `json:"recognized"`
	EngineErrors    int64         `json:"engine_errors"`
	Filtered        int64         `json:"filtered"`
	Emitted         int64         `json:"emitted"`
}

// Filter reasons passed to Observer.ResultFiltered.
const (
	FilterEmpty      = "empty"
	FilterShort      = "short"
	FilterRepetitive = "repetitive"
)
