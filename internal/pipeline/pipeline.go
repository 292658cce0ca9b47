package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/steno/internal/audio"
	"github.com/rbright/steno/internal/chunker"
	"github.com/rbright/steno/internal/engine"
	"github.com/rbright/steno/internal/fsm"
	"github.com/rbright/steno/internal/queue"
	"github.com/rbright/steno/internal/stitch"
)

// Pipeline owns one ingestion goroutine and one recognition worker per run.
type Pipeline struct {
	opts     Options
	engine   engine.Engine
	logger   *slog.Logger
	observer Observer

	mu        sync.Mutex
	state     fsm.State
	cancel    context.CancelFunc
	done      chan struct{}
	runErr    error
	queue     *queue.Queue
	startedAt time.Time
	stoppedAt time.Time

	counters counters
}

type counters struct {
	samples    atomic.Int64
	produced   atomic.Int64
	skipped    atomic.Int64
	recognized atomic.Int64
	engineErrs atomic.Int64
	filtered   atomic.Int64
	emitted    atomic.Int64
}

func (c *counters) reset() {
	c.samples.Store(0)
	c.produced.Store(0)
	c.skipped.Store(0)
	c.recognized.Store(0)
	c.engineErrs.Store(0)
	c.filtered.Store(0)
	c.emitted.Store(0)
}

// run holds the per-stream state created at Start and dropped at Stop.
type run struct {
	chunker *chunker.Chunker
	queue   *queue.Queue
	context *stitch.Manager
}

// New validates opts and returns an idle Pipeline. A nil observer or logger is allowed.
func New(eng engine.Engine, opts Options, logger *slog.Logger, observer Observer) (*Pipeline, error) {
	if eng == nil {
		return nil, errors.New("pipeline engine is nil")
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be > 0, got %d", opts.SampleRate)
	}
	opts.Chunk.SampleRate = opts.SampleRate
	opts.Context.SampleRate = opts.SampleRate
	if err := opts.Chunk.Validate(); err != nil {
		return nil, fmt.Errorf("chunk options: %w", err)
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 10 * time.Millisecond
	}
	if opts.EngineTimeout <= 0 {
		opts.EngineTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if observer == nil {
		observer = NopObserver{}
	}

	return &Pipeline{
		opts:     opts,
		engine:   eng,
		logger:   logger,
		observer: observer,
		state:    fsm.StateIdle,
	}, nil
}

// Start begins reading src. Results are delivered to cb until Stop is called
// or the source reports ErrSourceClosed and the queue drains. Start returns
// ErrAlreadyRunning while a previous run is active.
func (p *Pipeline) Start(ctx context.Context, src audio.Source, cb Callback) error {
	if src == nil {
		return errors.New("pipeline source is nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := fsm.Transition(p.state, fsm.EventStart)
	if err != nil {
		if p.state.Active() {
			return ErrAlreadyRunning
		}
		return err
	}

	r := &run{
		chunker: chunker.New(p.opts.Chunk),
		queue:   queue.New(p.opts.QueueCapacity),
		context: stitch.NewManager(p.opts.Context),
	}
	p.counters.reset()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.state = next
	p.cancel = cancel
	p.done = done
	p.runErr = nil
	p.queue = r.queue
	p.startedAt = time.Now()
	p.stoppedAt = time.Time{}

	var g errgroup.Group
	g.Go(func() error { return p.ingest(runCtx, r, src) })
	g.Go(func() error { return p.work(runCtx, r, cb) })

	go func() {
		err := g.Wait()
		p.finish(err)
		close(done)
	}()

	p.logger.Info("pipeline started",
		"sample_rate", p.opts.SampleRate,
		"vad", p.opts.Chunk.VAD,
		"queue_capacity", r.queue.Cap(),
	)
	return nil
}

// finish records the end of a run, whether it was stopped or ran out of input.
func (p *Pipeline) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == fsm.StateRunning {
		p.state, _ = fsm.Transition(p.state, fsm.EventStop)
	}
	p.state, _ = fsm.Transition(p.state, fsm.EventHalted)
	p.cancel()
	p.runErr = err
	p.stoppedAt = time.Now()

	p.logger.Info("pipeline stopped",
		"emitted", p.counters.emitted.Load(),
		"dropped", p.queue.Dropped(),
		"elapsed_ms", p.stoppedAt.Sub(p.startedAt).Milliseconds(),
	)
}

// Stop cancels the run and waits for both goroutines to exit. An in-flight
// recognition call is allowed to finish. Stop is a no-op when not running.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	switch p.state {
	case fsm.StateRunning:
		p.state, _ = fsm.Transition(p.state, fsm.EventStop)
		p.cancel()
	case fsm.StateStopping:
	default:
		p.mu.Unlock()
		return nil
	}
	done := p.done
	p.mu.Unlock()

	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runErr
}

// Done is closed when the current run has fully stopped. It returns nil
// before the first Start.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// State returns the lifecycle state.
func (p *Pipeline) State() fsm.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns the counters of the current or last run.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	state := p.state
	q := p.queue
	startedAt := p.startedAt
	stoppedAt := p.stoppedAt
	p.mu.Unlock()

	s := Stats{
		State:           state,
		StartedAt:       startedAt,
		SamplesIngested: p.counters.samples.Load(),
		ChunksProduced:  p.counters.produced.Load(),
		ChunksSkipped:   p.counters.skipped.Load(),
		Recognized:      p.counters.recognized.Load(),
		EngineErrors:    p.counters.engineErrs.Load(),
		Filtered:        p.counters.filtered.Load(),
		Emitted:         p.counters.emitted.Load(),
	}
	if q != nil {
		s.ChunksQueued = q.Pushed()
		s.ChunksDropped = q.Dropped()
		s.QueueDepth = q.Len()
	}
	switch {
	case startedAt.IsZero():
	case stoppedAt.IsZero():
		s.Elapsed = time.Since(startedAt)
	default:
		s.Elapsed = stoppedAt.Sub(startedAt)
	}
	return s
}

// ingest reads the source, cuts chunks and queues them. It never waits on
// recognition: a full queue drops the chunk.
func (p *Pipeline) ingest(ctx context.Context, r *run, src audio.Source) error {
	defer r.queue.Close()

	tap := p.opts.Tap
	for {
		if ctx.Err() != nil {
			return nil
		}

		samples, err := src.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, audio.ErrSourceClosed):
				if chunk, ok := r.chunker.Flush(); ok {
					p.enqueue(r, chunk)
				}
				p.logger.Info("audio source closed")
				return nil
			case errors.Is(err, io.EOF), errors.Is(err, audio.ErrSourceUnavailable):
			default:
				p.logger.Warn("audio source read failed", "error", err)
			}
			if !sleepContext(ctx, p.opts.RetryDelay) {
				return nil
			}
			continue
		}
		if len(samples) == 0 {
			continue
		}

		p.counters.samples.Add(int64(len(samples)))
		if tap != nil {
			if err := tap.Write(samples); err != nil {
				p.logger.Warn("audio tap failed; disabling", "error", err)
				tap = nil
			}
		}

		for _, chunk := range r.chunker.Push(samples) {
			p.enqueue(r, chunk)
		}
	}
}

func (p *Pipeline) enqueue(r *run, chunk chunker.Chunk) {
	p.counters.produced.Add(1)

	if !chunk.Speech {
		p.counters.skipped.Add(1)
		p.observer.ChunkSkipped(chunk)
		p.logger.Debug("chunk skipped as silence", "chunk_ts", chunk.Timestamp, "samples", len(chunk.Samples))
		return
	}
	if !r.queue.Push(chunk) {
		p.observer.ChunkDropped(chunk)
		p.logger.Debug("queue full; chunk dropped", "chunk_ts", chunk.Timestamp, "queue_len", r.queue.Len())
		return
	}
	p.observer.ChunkQueued(chunk, r.queue.Len())
}

// work pops chunks until the run is cancelled or the queue is closed and empty.
func (p *Pipeline) work(ctx context.Context, r *run, cb Callback) error {
	for {
		chunk, err := r.queue.Pop(ctx)
		if err != nil {
			return nil
		}

		result, ok := p.process(ctx, r, chunk)
		if ok && cb != nil {
			cb(result)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
