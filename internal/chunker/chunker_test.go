package chunker

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		SampleRate:       1000,
		MinDuration:      time.Second,
		OptimalDuration:  2 * time.Second,
		MaxDuration:      4 * time.Second,
		SilenceThreshold: 0.01,
		MinSilence:       100 * time.Millisecond,
		Overlap:          500 * time.Millisecond,
	}
}

func tone(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = 0.5
		} else {
			out[i] = -0.5
		}
	}
	return out
}

func quiet(n int) []float32 {
	return make([]float32, n)
}

func concat(parts ...[]float32) []float32 {
	var out []float32
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestPushBelowMinimumEmitsNothing(t *testing.T) {
	c := New(testOptions())
	require.Empty(t, c.Push(tone(900)))
	require.Equal(t, 900*time.Millisecond, c.Buffered())
}

func TestPushWaitsBetweenOptimalAndMaxWithoutSilence(t *testing.T) {
	c := New(testOptions())
	require.Empty(t, c.Push(tone(3000)))
}

func TestPushCutsInMiddleOfSilence(t *testing.T) {
	c := New(testOptions())

	chunks := c.Push(concat(tone(2500), quiet(200), tone(500)))
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Samples, 2550)
	require.Zero(t, chunks[0].Timestamp)
	require.False(t, chunks[0].IsFinal)

	// 500 samples of carry-over plus the 650 not yet emitted.
	require.Equal(t, 1150*time.Millisecond, c.Buffered())
	require.InDelta(t, 2.05, c.Clock(), 1e-9)
}

func TestPushIgnoresSilenceBeforeOptimalOffset(t *testing.T) {
	c := New(testOptions())

	chunks := c.Push(concat(tone(1000), quiet(300), tone(700), tone(2000)))
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Samples, 4000)
}

func TestPushForcesCutAtMax(t *testing.T) {
	c := New(testOptions())

	chunks := c.Push(tone(5000))
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Samples, 4000)
	require.Equal(t, 1500*time.Millisecond, c.Buffered())
	require.InDelta(t, 3.5, c.Clock(), 1e-9)
}

func TestCarryOverStartsNextChunk(t *testing.T) {
	c := New(testOptions())

	input := tone(8000)
	for i := range input {
		input[i] = float32(i%1000)/2000 + 0.1
	}
	chunks := c.Push(input)
	require.Len(t, chunks, 2)
	require.Equal(t, chunks[0].Samples[3500:], chunks[1].Samples[:500])
	require.InDelta(t, 3.5, chunks[1].Timestamp, 1e-9)
}

func TestChunkLengthsStayWithinBounds(t *testing.T) {
	opts := testOptions()
	c := New(opts)

	var emitted []Chunk
	for i := 0; i < 200; i++ {
		batch := tone(160)
		if i%37 < 2 {
			batch = quiet(160)
		}
		emitted = append(emitted, c.Push(batch)...)
	}
	require.NotEmpty(t, emitted)

	for _, chunk := range emitted {
		d := chunk.Duration(opts.SampleRate)
		require.GreaterOrEqual(t, d, opts.MinDuration)
		require.LessOrEqual(t, d, opts.MaxDuration)
	}
	for i := 1; i < len(emitted); i++ {
		require.Greater(t, emitted[i].Timestamp, emitted[i-1].Timestamp)
	}
}

func TestFlushEmitsUnsentTailOnce(t *testing.T) {
	c := New(testOptions())
	c.Push(tone(5000))

	final, ok := c.Flush()
	require.True(t, ok)
	require.True(t, final.IsFinal)
	require.Len(t, final.Samples, 1500)
	require.InDelta(t, 3.5, final.Timestamp, 1e-9)

	_, ok = c.Flush()
	require.False(t, ok)
}

func TestFlushSkipsPureCarryOver(t *testing.T) {
	c := New(testOptions())
	c.Push(tone(4000))

	_, ok := c.Flush()
	require.False(t, ok)
}

func TestResetClearsBufferAndClock(t *testing.T) {
	opts := testOptions()
	opts.VAD = true
	c := New(opts)
	c.Push(tone(5000))

	c.Reset()
	require.Zero(t, c.Clock())
	require.Zero(t, c.Buffered())
	require.Zero(t, c.detector.Frames())
}

func TestSpeechFlagFromInternalDetector(t *testing.T) {
	opts := testOptions()
	opts.VAD = true
	opts.VADThreshold = 0.6
	c := New(opts)

	chunks := c.Push(quiet(4000))
	require.Len(t, chunks, 1)
	require.False(t, chunks[0].Speech)

	opts.VAD = false
	c = New(opts)
	chunks = c.Push(quiet(4000))
	require.Len(t, chunks, 1)
	require.True(t, chunks[0].Speech)
}

func TestDigitalSilenceLeadInKeepsSpeechGate(t *testing.T) {
	opts := testOptions()
	opts.VAD = true
	opts.VADThreshold = 0.6
	opts.Overlap = 0
	c := New(opts)

	lead := c.Push(quiet(4000))
	require.Len(t, lead, 1)
	require.False(t, lead[0].Speech)
	require.Zero(t, c.detector.Frames())

	loud := c.Push(tone(4000))
	require.Len(t, loud, 1)
	require.True(t, loud[0].Speech)
	require.Greater(t, c.detector.Background(), 0.1)

	noise := make([]float32, 4000)
	for i := range noise {
		if i%2 == 0 {
			noise[i] = 0.002
		} else {
			noise[i] = -0.002
		}
	}

	var verdicts []bool
	for range 10 {
		for _, chunk := range c.Push(noise) {
			if peak(chunk.Samples) <= 0.002 {
				verdicts = append(verdicts, chunk.Speech)
			}
		}
	}
	require.GreaterOrEqual(t, len(verdicts), 15)

	// The short-term energy decays over a few chunks after the tone, then the
	// gate must close and stay closed.
	closed := slices.Index(verdicts, false)
	require.NotEqual(t, -1, closed, "noise never classified as silence: %v", verdicts)
	for i, speech := range verdicts[closed:] {
		require.False(t, speech, "noise chunk %d reopened the gate", closed+i)
	}
	require.Greater(t, c.detector.Background(), 0.01)
}

func peak(samples []float32) float32 {
	var m float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		m = max(m, s)
	}
	return m
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())
	require.NoError(t, testOptions().Validate())

	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{name: "sample rate", mutate: func(o *Options) { o.SampleRate = 0 }, wantErr: "sample rate"},
		{name: "min", mutate: func(o *Options) { o.MinDuration = 0 }, wantErr: "min chunk"},
		{name: "optimal below min", mutate: func(o *Options) { o.OptimalDuration = 500 * time.Millisecond }, wantErr: "optimal"},
		{name: "max below optimal", mutate: func(o *Options) { o.MaxDuration = time.Second }, wantErr: "max chunk"},
		{name: "silence", mutate: func(o *Options) { o.MinSilence = 0 }, wantErr: "min silence"},
		{name: "threshold", mutate: func(o *Options) { o.SilenceThreshold = 0 }, wantErr: "silence threshold"},
		{name: "negative overlap", mutate: func(o *Options) { o.Overlap = -time.Second }, wantErr: "overlap"},
		{name: "overlap too long", mutate: func(o *Options) { o.Overlap = 2 * time.Second }, wantErr: "overlap"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := testOptions()
			tc.mutate(&opts)
			err := opts.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
