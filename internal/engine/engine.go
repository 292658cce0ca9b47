// Package engine talks to the external speech recognition server. Every
// backend turns one chunk of mono float32 audio into text segments.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by Open.
const (
	BackendHTTP = "http"
	BackendGRPC = "grpc"
	BackendTCP  = "tcp"
)

// Request is one recognition call.
type Request struct {
	Samples    []float32
	SampleRate int
	// Prompt is prior transcript text used as decoder context. May be empty.
	Prompt string
	// Timestamp is the chunk's stream offset, used for error reporting only.
	Timestamp time.Duration
}

// Engine recognizes speech in a chunk of audio.
type Engine interface {
	Transcribe(ctx context.Context, req Request) ([]string, error)
	Close() error
}

// Readier is implemented by engines that can probe their server.
type Readier interface {
	Ready(ctx context.Context) error
}

// Func adapts a plain function to Engine.
type Func func(ctx context.Context, req Request) ([]string, error)

// Transcribe calls f.
func (f Func) Transcribe(ctx context.Context, req Request) ([]string, error) {
	return f(ctx, req)
}

// Close is a no-op.
func (f Func) Close() error { return nil }

// Config selects and parameterizes a backend.
type Config struct {
	Backend     string
	Address     string
	HealthPath  string
	Model       string
	LoadModel   bool
	Language    string
	Translate   bool
	Threads     int
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 3 * time.Second
	}
	if strings.TrimSpace(c.Language) == "" {
		c.Language = "en"
	}
	if c.HealthPath == "" {
		c.HealthPath = "/health"
	}
	return c
}

// Open builds the engine named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendHTTP, "":
		return NewHTTP(ctx, cfg)
	case BackendGRPC:
		return NewGRPC(ctx, cfg)
	case BackendTCP:
		return NewTCP(cfg)
	default:
		return nil, fmt.Errorf("unsupported engine backend %q", cfg.Backend)
	}
}

// cleanSegment trims surrounding whitespace from one recognized segment. Inner
// spacing is left as the engine produced it.
func cleanSegment(raw string) string {
	return strings.TrimSpace(raw)
}

// appendClean appends raw when it is non-empty after cleaning.
func appendClean(segments []string, raw string) []string {
	if seg := cleanSegment(raw); seg != "" {
		return append(segments, seg)
	}
	return segments
}
