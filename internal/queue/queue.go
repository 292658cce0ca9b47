// Package queue hands chunks from ingestion to recognition through a bounded,
// ordered buffer that never blocks the producer.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rbright/steno/internal/chunker"
)

// ErrClosed is returned by Pop once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// DefaultCapacity bounds how many chunks may wait for recognition.
const DefaultCapacity = 10

// Queue is a single-producer, single-consumer FIFO of chunks. When full, Push
// drops the incoming chunk instead of waiting.
type Queue struct {
	items   chan chunker.Chunk
	pushed  atomic.Int64
	dropped atomic.Int64
	once    sync.Once
}

// New returns a Queue. A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{items: make(chan chunker.Chunk, capacity)}
}

// Push enqueues chunk and reports whether it was accepted.
func (q *Queue) Push(chunk chunker.Chunk) bool {
	select {
	case q.items <- chunk:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop blocks until a chunk is available or ctx is done. Once ctx is done no
// further chunks are handed out, even if some are still buffered.
func (q *Queue) Pop(ctx context.Context) (chunker.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return chunker.Chunk{}, err
	}
	select {
	case <-ctx.Done():
		return chunker.Chunk{}, ctx.Err()
	case chunk, ok := <-q.items:
		if err := ctx.Err(); err != nil {
			return chunker.Chunk{}, err
		}
		if !ok {
			return chunker.Chunk{}, ErrClosed
		}
		return chunk, nil
	}
}

// Close marks the end of input. Buffered chunks are still handed out by Pop.
// The producer must not Push after Close.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.items) })
}

// Len returns the number of chunks waiting.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.items)
}

// Pushed returns how many chunks were accepted since construction.
func (q *Queue) Pushed() int64 {
	return q.pushed.Load()
}

// Dropped returns how many chunks were rejected because the queue was full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
