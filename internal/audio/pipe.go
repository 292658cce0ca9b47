package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

const (
	defaultBlockSamples = 1600
	pipeReadTimeout     = 100 * time.Millisecond
)

// PipeOptions controls the named pipe source.
type PipeOptions struct {
	Path string
	// Create makes the FIFO at Path, replacing any stale file, and removes it on Close.
	Create       bool
	BlockSamples int
}

// PipeSource reads raw float32 little-endian samples from a named pipe written
// by an external capture process.
type PipeSource struct {
	opts PipeOptions

	mu      sync.Mutex
	file    *os.File
	pending []byte
	buf     []byte
	created bool
	closed  bool
}

// NewPipeSource prepares a pipe source. The FIFO is opened lazily on first Read.
func NewPipeSource(opts PipeOptions) (*PipeSource, error) {
	if opts.Path == "" {
		return nil, errors.New("pipe path is empty")
	}
	if opts.BlockSamples <= 0 {
		opts.BlockSamples = defaultBlockSamples
	}

	p := &PipeSource{
		opts: opts,
		buf:  make([]byte, opts.BlockSamples*4),
	}
	if opts.Create {
		if err := createFIFO(opts.Path); err != nil {
			return nil, err
		}
		p.created = true
	}
	return p, nil
}

// Path returns the FIFO location.
func (p *PipeSource) Path() string {
	return p.opts.Path
}

// Read returns the next block of samples. It never blocks longer than a short
// read timeout, so callers can observe ctx between calls.
func (p *PipeSource) Read(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrSourceClosed
	}

	if p.file == nil {
		file, err := os.OpenFile(p.opts.Path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrSourceUnavailable, p.opts.Path, err)
		}
		p.file = file
	}

	_ = p.file.SetReadDeadline(time.Now().Add(pipeReadTimeout))
	n, err := p.file.Read(p.buf)
	if n > 0 {
		p.pending = append(p.pending, p.buf[:n]...)
	}
	if err != nil && n == 0 {
		if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, syscall.EAGAIN) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read pipe %s: %w", p.opts.Path, err)
	}

	samples := decodeFloat32LE(p.pending)
	p.pending = p.pending[len(samples)*4:]
	if len(samples) == 0 {
		return nil, io.EOF
	}
	return samples, nil
}

// Close releases the pipe and removes it when this source created it.
func (p *PipeSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var result error
	if p.file != nil {
		if err := p.file.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close pipe: %w", err))
		}
	}
	if p.created {
		if err := os.Remove(p.opts.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, fmt.Errorf("remove pipe: %w", err))
		}
	}
	return result
}

// createFIFO replaces whatever sits at path with a fresh FIFO.
func createFIFO(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale pipe %s: %w", path, err)
	}
	if err := unix.Mkfifo(path, 0o600); err != nil {
		return fmt.Errorf("create named pipe %s: %w", path, err)
	}
	return nil
}

// decodeFloat32LE converts every complete 4-byte group of b.
func decodeFloat32LE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
