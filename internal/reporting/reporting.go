// Package reporting sends engine failures and fatal errors to Sentry.
package reporting

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/rbright/steno/internal/chunker"
	"github.com/rbright/steno/internal/pipeline"
	"github.com/rbright/steno/internal/version"
)

const flushTimeout = 2 * time.Second

// Options configures the Sentry client.
type Options struct {
	DSN         string
	Environment string
	SampleRate  float64
}

// Init configures the global Sentry hub. It reports false without error when
// no DSN is set.
func Init(opts Options) (bool, error) {
	if opts.DSN == "" {
		return false, nil
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 1
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          version.Short(),
		SampleRate:       opts.SampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Flush waits for queued events to be delivered.
func Flush() {
	sentry.Flush(flushTimeout)
}

// CaptureFatal reports an error that ends the process and flushes.
func CaptureFatal(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
	sentry.Flush(flushTimeout)
}

// EngineReporter is a pipeline.Observer that reports failed recognition calls.
type EngineReporter struct {
	pipeline.NopObserver

	hub     *sentry.Hub
	backend string
	session string
}

// NewEngineReporter reports through hub; a nil hub uses the current global hub.
func NewEngineReporter(hub *sentry.Hub, backend string, session string) *EngineReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &EngineReporter{hub: hub, backend: backend, session: session}
}

func (r *EngineReporter) Recognized(chunk chunker.Chunk, latency time.Duration, err error) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("engine.backend", r.backend)
		scope.SetTag("session", r.session)
		scope.SetExtra("chunk_ts", chunk.Timestamp)
		scope.SetExtra("samples", len(chunk.Samples))
		scope.SetExtra("latency_ms", latency.Milliseconds())
		r.hub.CaptureException(err)
	})
}
