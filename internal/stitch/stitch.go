// Package stitch keeps the rolling context that makes consecutive recognition
// calls read as one transcript: a text prompt for priming, optional trailing
// audio, and removal of wording repeated across a chunk boundary.
package stitch

import (
	"strings"
	"sync"
	"time"
)

// maxOverlapWords caps how many words are compared on each side of a boundary.
const maxOverlapWords = 10

// Options controls priming and overlap handling.
type Options struct {
	Enabled         bool
	SampleRate      int
	Duration        time.Duration
	MaxPromptTokens int
	RemoveOverlap   bool
	PrependAudio    bool
}

// DefaultOptions returns the context policy used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Enabled:         true,
		SampleRate:      16000,
		Duration:        time.Second,
		MaxPromptTokens: 224,
		RemoveOverlap:   true,
		PrependAudio:    false,
	}
}

// Window is a point-in-time copy of the rolling context.
type Window struct {
	PreviousText  string
	PreviousAudio []float32
	Timestamp     float64
	WordCount     int
}

// Manager owns the context window. Every method takes the same lock, so at
// most one recognition reads or replaces the window at a time.
type Manager struct {
	opts         Options
	audioSamples int

	mu  sync.Mutex
	win Window
}

// NewManager returns an empty Manager.
func NewManager(opts Options) *Manager {
	m := &Manager{opts: opts}
	if opts.SampleRate > 0 && opts.Duration > 0 {
		m.audioSamples = int(int64(opts.Duration) * int64(opts.SampleRate) / int64(time.Second))
	}
	return m
}

// Prompt returns the priming text for the next recognition call; empty means
// no priming.
func (m *Manager) Prompt() string {
	if !m.opts.Enabled {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return TruncatePrompt(m.win.PreviousText, m.opts.MaxPromptTokens)
}

// PrepareAudio returns the samples to send to the engine. With audio prepend
// enabled, the previous chunk's trailing context audio is placed in front.
func (m *Manager) PrepareAudio(samples []float32) []float32 {
	if !m.opts.Enabled || !m.opts.PrependAudio {
		return samples
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.win.PreviousAudio) == 0 {
		return samples
	}
	out := make([]float32, 0, len(m.win.PreviousAudio)+len(samples))
	out = append(out, m.win.PreviousAudio...)
	return append(out, samples...)
}

// RemoveOverlap strips leading words of text that repeat the tail of the
// previous accepted text.
func (m *Manager) RemoveOverlap(text string) string {
	if !m.opts.Enabled || !m.opts.RemoveOverlap {
		return text
	}
	m.mu.Lock()
	previous := m.win.PreviousText
	m.mu.Unlock()

	prevWords := strings.Fields(previous)
	curWords := strings.Fields(text)
	overlap := OverlapLength(prevWords, curWords)
	if overlap <= 0 || overlap >= len(curWords) {
		return text
	}
	return strings.Join(curWords[overlap:], " ")
}

// Update replaces the window after a successful recognition. audio is the
// chunk that produced text; only its trailing context duration is kept.
func (m *Manager) Update(text string, audio []float32, timestamp float64) {
	if !m.opts.Enabled {
		return
	}

	tail := audio
	if len(tail) > m.audioSamples {
		tail = tail[len(tail)-m.audioSamples:]
	}
	kept := make([]float32, len(tail))
	copy(kept, tail)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.win = Window{
		PreviousText:  text,
		PreviousAudio: kept,
		Timestamp:     timestamp,
		WordCount:     len(strings.Fields(text)),
	}
}

// Snapshot returns a copy of the current window.
func (m *Manager) Snapshot() Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.win
	out.PreviousAudio = append([]float32(nil), m.win.PreviousAudio...)
	return out
}

// Reset clears the window.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.win = Window{}
}

// TruncatePrompt keeps the last maxTokens/2 words of text, joined by single
// spaces.
func TruncatePrompt(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	keep := maxTokens / 2
	if keep <= 0 {
		return ""
	}
	if len(words) > keep {
		words = words[len(words)-keep:]
	}
	return strings.Join(words, " ")
}

// OverlapLength returns how many leading words of cur repeat the trailing words
// of prev. Every length from 1 to the cap is tried without stopping at the
// first hit; the last match of the ascending scan is kept.
func OverlapLength(prev, cur []string) int {
	limit := min(maxOverlapWords, len(prev), len(cur))

	overlap := 0
	for i := 1; i <= limit; i++ {
		if equalWords(prev[len(prev)-i:], cur[:i]) {
			overlap = i
		}
	}
	return overlap
}

func equalWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
