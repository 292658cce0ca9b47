// Package chunker cuts an unbounded sample stream into bounded chunks whose
// boundaries fall inside silence whenever the audio allows it.
package chunker

import (
	"errors"
	"fmt"
	"time"

	"github.com/rbright/steno/internal/vad"
)

// Chunk is one span of mono samples handed to the recognizer as a unit.
type Chunk struct {
	Samples []float32
	// Timestamp is the chunk start in seconds since the stream began.
	Timestamp float64
	IsFinal   bool
	// Speech is the internal detector's verdict; always true when VAD is off.
	Speech bool
}

// Duration returns the chunk length at the given sample rate.
func (c Chunk) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(sampleRate)
}

// Options controls boundary selection.
type Options struct {
	SampleRate       int
	MinDuration      time.Duration
	OptimalDuration  time.Duration
	MaxDuration      time.Duration
	SilenceThreshold float32
	MinSilence       time.Duration
	Overlap          time.Duration

	VAD          bool
	VADThreshold float64
}

// DefaultOptions returns the chunking policy used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		SampleRate:       16000,
		MinDuration:      time.Second,
		OptimalDuration:  3 * time.Second,
		MaxDuration:      6 * time.Second,
		SilenceThreshold: 0.01,
		MinSilence:       200 * time.Millisecond,
		Overlap:          500 * time.Millisecond,
		VAD:              true,
		VADThreshold:     vad.DefaultThreshold,
	}
}

// Validate checks the ordering constraints between durations.
func (o Options) Validate() error {
	switch {
	case o.SampleRate <= 0:
		return errors.New("sample rate must be > 0")
	case o.MinDuration <= 0:
		return errors.New("min chunk duration must be > 0")
	case o.OptimalDuration < o.MinDuration:
		return fmt.Errorf("optimal chunk duration %s is shorter than min %s", o.OptimalDuration, o.MinDuration)
	case o.MaxDuration < o.OptimalDuration:
		return fmt.Errorf("max chunk duration %s is shorter than optimal %s", o.MaxDuration, o.OptimalDuration)
	case o.MinSilence <= 0:
		return errors.New("min silence duration must be > 0")
	case o.SilenceThreshold <= 0:
		return errors.New("silence threshold must be > 0")
	case o.Overlap < 0:
		return errors.New("overlap must be >= 0")
	case o.Overlap >= o.MinDuration:
		return fmt.Errorf("overlap %s must be shorter than min chunk duration %s", o.Overlap, o.MinDuration)
	}
	return nil
}

// Chunker owns the unconsumed tail of one stream. It is not safe for
// concurrent use.
type Chunker struct {
	opts Options

	minSamples     int
	optimalSamples int
	maxSamples     int
	silenceSamples int
	overlapSamples int

	buf []float32
	// carried counts leading samples of buf already emitted in the previous chunk.
	carried int
	clock   float64

	detector *vad.Detector
}

// New builds a Chunker. Options are expected to have passed Validate.
func New(opts Options) *Chunker {
	c := &Chunker{
		opts:           opts,
		minSamples:     samplesFor(opts.MinDuration, opts.SampleRate),
		optimalSamples: samplesFor(opts.OptimalDuration, opts.SampleRate),
		maxSamples:     samplesFor(opts.MaxDuration, opts.SampleRate),
		silenceSamples: max(1, samplesFor(opts.MinSilence, opts.SampleRate)),
		overlapSamples: samplesFor(opts.Overlap, opts.SampleRate),
	}
	if opts.VAD {
		c.detector = vad.New(opts.VADThreshold)
	}
	return c
}

// Push appends samples and returns every chunk that can be cut from the buffer.
func (c *Chunker) Push(samples []float32) []Chunk {
	c.buf = append(c.buf, samples...)

	var out []Chunk
	for {
		k, ok := c.boundary()
		if !ok {
			return out
		}
		out = append(out, c.extract(k, false))
	}
}

// Flush emits whatever has not been emitted yet as a final chunk.
func (c *Chunker) Flush() (Chunk, bool) {
	if len(c.buf) <= c.carried {
		return Chunk{}, false
	}
	return c.extract(len(c.buf), true), true
}

// Reset drops the buffer, the detector state, and the speech clock.
func (c *Chunker) Reset() {
	c.buf = nil
	c.carried = 0
	c.clock = 0
	if c.detector != nil {
		c.detector.Reset()
	}
}

// Clock returns the stream position, in seconds, of the next chunk start.
func (c *Chunker) Clock() float64 {
	return c.clock
}

// Buffered returns the duration of audio waiting for a boundary decision.
func (c *Chunker) Buffered() time.Duration {
	return time.Duration(len(c.buf)) * time.Second / time.Duration(c.opts.SampleRate)
}

// boundary decides where to cut the buffer, if anywhere yet.
func (c *Chunker) boundary() (int, bool) {
	n := len(c.buf)
	if n < c.minSamples || n < c.optimalSamples {
		return 0, false
	}

	if k, ok := c.findSilence(); ok {
		return k, true
	}
	if n >= c.maxSamples {
		return c.maxSamples, true
	}
	return 0, false
}

// findSilence scans from the optimal offset for the first run of quiet samples
// at least MinSilence long ending no later than the max offset, and returns the
// middle of that run.
func (c *Chunker) findSilence() (int, bool) {
	limit := min(len(c.buf), c.maxSamples)
	threshold := c.opts.SilenceThreshold

	run := 0
	for i := c.optimalSamples; i < limit; i++ {
		s := c.buf[i]
		if s < 0 {
			s = -s
		}
		if s >= threshold {
			run = 0
			continue
		}
		run++
		if run == c.silenceSamples {
			start := i - c.silenceSamples + 1
			return start + c.silenceSamples/2, true
		}
	}
	return 0, false
}

// extract emits buf[:k] and keeps the trailing overlap of it as carry-over.
func (c *Chunker) extract(k int, final bool) Chunk {
	samples := make([]float32, k)
	copy(samples, c.buf[:k])

	chunk := Chunk{
		Samples:   samples,
		Timestamp: c.clock,
		IsFinal:   final,
		Speech:    true,
	}
	if c.detector != nil {
		chunk.Speech = c.detector.Classify(samples)
	}

	if final || k <= c.overlapSamples {
		c.clock += float64(k) / float64(c.opts.SampleRate)
		c.buf = nil
		c.carried = 0
		return chunk
	}

	start := k - c.overlapSamples
	rest := make([]float32, len(c.buf)-start)
	copy(rest, c.buf[start:])
	c.buf = rest
	c.carried = c.overlapSamples
	c.clock += float64(start) / float64(c.opts.SampleRate)
	return chunk
}

func samplesFor(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}
