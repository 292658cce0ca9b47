// Package audio provides the sample sources feeding the pipeline (named pipe,
// PulseAudio capture), the capture helper process, and WAV encoding.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrSourceClosed means the source has ended for good.
	ErrSourceClosed = errors.New("audio source closed")
	// ErrSourceUnavailable means the source cannot be read yet; callers retry.
	ErrSourceUnavailable = errors.New("audio source unavailable")
)

// Source delivers mono float32 samples at a fixed rate.
//
// Read returns io.EOF or ErrSourceUnavailable when no data is available right
// now, and ErrSourceClosed once the source has ended.
type Source interface {
	Read(ctx context.Context) ([]float32, error)
	Close() error
}
