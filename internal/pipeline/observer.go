package pipeline

import (
	"time"

	"github.com/rbright/steno/internal/chunker"
)

// Observer is notified of pipeline events. Chunk events arrive on the
// ingestion goroutine, the rest on the worker goroutine.
type Observer interface {
	ChunkQueued(chunk chunker.Chunk, queueDepth int)
	ChunkDropped(chunk chunker.Chunk)
	ChunkSkipped(chunk chunker.Chunk)
	Recognized(chunk chunker.Chunk, latency time.Duration, err error)
	ResultFiltered(reason string, text string, timestamp float64)
	ResultEmitted(result Result)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) ChunkQueued(chunker.Chunk, int)                 {}
func (NopObserver) ChunkDropped(chunker.Chunk)                     {}
func (NopObserver) ChunkSkipped(chunker.Chunk)                     {}
func (NopObserver) Recognized(chunker.Chunk, time.Duration, error) {}
func (NopObserver) ResultFiltered(string, string, float64)         {}
func (NopObserver) ResultEmitted(Result)                           {}

// MultiObserver fans events out in order.
type MultiObserver []Observer

func (m MultiObserver) ChunkQueued(chunk chunker.Chunk, depth int) {
	for _, o := range m {
		o.ChunkQueued(chunk, depth)
	}
}

func (m MultiObserver) ChunkDropped(chunk chunker.Chunk) {
	for _, o := range m {
		o.ChunkDropped(chunk)
	}
}

func (m MultiObserver) ChunkSkipped(chunk chunker.Chunk) {
	for _, o := range m {
		o.ChunkSkipped(chunk)
	}
}

func (m MultiObserver) Recognized(chunk chunker.Chunk, latency time.Duration, err error) {
	for _, o := range m {
		o.Recognized(chunk, latency, err)
	}
}

func (m MultiObserver) ResultFiltered(reason string, text string, timestamp float64) {
	for _, o := range m {
		o.ResultFiltered(reason, text, timestamp)
	}
}

func (m MultiObserver) ResultEmitted(result Result) {
	for _, o := range m {
		o.ResultEmitted(result)
	}
}
