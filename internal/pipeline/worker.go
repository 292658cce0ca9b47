package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rbright/steno/internal/chunker"
	"github.com/rbright/steno/internal/engine"
	"github.com/rbright/steno/internal/repetition"
)

// segmentConfidence is the fixed per-segment confidence; the engines expose
// no calibrated score.
const segmentConfidence = 0.8

// process recognizes one chunk and decides whether the result is emitted.
func (p *Pipeline) process(ctx context.Context, r *run, chunk chunker.Chunk) (Result, bool) {
	result := p.transcribeChunk(ctx, r, chunk)
	return p.accept(r, chunk, result)
}

// transcribeChunk runs the engine with the current context. Engine failures
// yield an empty result.
func (p *Pipeline) transcribeChunk(ctx context.Context, r *run, chunk chunker.Chunk) Result {
	req := engine.Request{
		Samples:    r.context.PrepareAudio(chunk.Samples),
		SampleRate: p.opts.SampleRate,
		Prompt:     r.context.Prompt(),
		Timestamp:  time.Duration(chunk.Timestamp * float64(time.Second)),
	}

	// The call is not cancelled by Stop; shutdown waits for it.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.EngineTimeout)
	defer cancel()

	started := time.Now()
	segments, err := p.engine.Transcribe(callCtx, req)
	latency := time.Since(started)

	p.counters.recognized.Add(1)
	p.observer.Recognized(chunk, latency, err)
	if err != nil {
		p.counters.engineErrs.Add(1)
		p.logger.Warn("recognition failed",
			"chunk_ts", chunk.Timestamp,
			"samples", len(req.Samples),
			"latency_ms", latency.Milliseconds(),
			"error", err,
		)
		return Result{Timestamp: chunk.Timestamp}
	}

	p.logger.Debug("chunk recognized",
		"chunk_ts", chunk.Timestamp,
		"samples", len(req.Samples),
		"segments", len(segments),
		"latency_ms", latency.Milliseconds(),
	)
	return assemble(segments, chunk.Timestamp)
}

// assemble joins trimmed non-empty segments with single spaces.
func assemble(segments []string, timestamp float64) Result {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg = strings.TrimSpace(seg); seg != "" {
			parts = append(parts, seg)
		}
	}

	result := Result{Text: strings.Join(parts, " "), Timestamp: timestamp}
	if len(segments) > 0 {
		var total float64
		for range segments {
			total += segmentConfidence
		}
		result.Confidence = total / float64(len(segments))
	}
	return result
}

// accept strips context overlap, updates the context window and applies the
// result filters. The window follows every non-empty recognition, filtered or
// not, so the next prompt always reflects what the engine last heard.
func (p *Pipeline) accept(r *run, chunk chunker.Chunk, result Result) (Result, bool) {
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return p.reject(FilterEmpty, text, result.Timestamp)
	}

	text = r.context.RemoveOverlap(text)
	r.context.Update(text, chunk.Samples, chunk.Timestamp)

	if len(text) < p.opts.MinTextLength {
		return p.reject(FilterShort, text, result.Timestamp)
	}
	if repetition.IsRepetitive(text) {
		return p.reject(FilterRepetitive, text, result.Timestamp)
	}

	result.Text = text
	p.counters.emitted.Add(1)
	p.observer.ResultEmitted(result)
	return result, true
}

func (p *Pipeline) reject(reason string, text string, timestamp float64) (Result, bool) {
	p.counters.filtered.Add(1)
	p.observer.ResultFiltered(reason, text, timestamp)
	if reason != FilterEmpty {
		p.logger.Debug("result filtered", "reason", reason, "chunk_ts", timestamp, "text", text)
	}
	return Result{}, false
}
