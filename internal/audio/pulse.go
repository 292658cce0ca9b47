package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// blockMillis is the audio length of one delivered block.
const blockMillis = 20

// PulseSource records mono float32 samples from one PulseAudio source.
type PulseSource struct {
	device    Device
	blockSize int
	client    *pulse.Client
	stream    *pulse.RecordStream
	blocks    chan []float32
	stopCh    chan struct{}
	mu        sync.Mutex
	pending   []byte
	stopped   bool
	inflight  sync.WaitGroup
	samples   atomic.Int64
}

// OpenPulse starts recording from device at sampleRate.
func OpenPulse(ctx context.Context, device Device, sampleRate int) (*PulseSource, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", device.ID, err)
	}

	p := newPulseSource(device, sampleRate)
	p.client = client

	writer := pulse.NewWriter(writerFunc(p.onFrames), pulseproto.FormatFloat32LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordBufferFragmentSize(uint32(p.blockSize*4)),
		pulse.RecordMediaName("steno transcription"),
	)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	p.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = p.Close()
		case <-p.stopCh:
		}
	}()
	return p, nil
}

func newPulseSource(device Device, sampleRate int) *PulseSource {
	block := sampleRate * blockMillis / 1000
	if block <= 0 {
		block = 1
	}
	return &PulseSource{
		device:    device,
		blockSize: block,
		blocks:    make(chan []float32, 256),
		stopCh:    make(chan struct{}),
	}
}

// Device returns the device being recorded.
func (p *PulseSource) Device() Device {
	return p.device
}

// SamplesCaptured reports how many samples Pulse delivered.
func (p *PulseSource) SamplesCaptured() int64 {
	return p.samples.Load()
}

// Read waits for the next block. It returns ErrSourceClosed after Close once
// every buffered block has been delivered.
func (p *PulseSource) Read(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case block, ok := <-p.blocks:
		if !ok {
			return nil, ErrSourceClosed
		}
		return block, nil
	}
}

// Close stops the stream, emits any partial block, and closes the block channel once.
func (p *PulseSource) Close() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	if p.stream != nil {
		p.stream.Stop()
		p.stream.Close()
	}
	if p.client != nil {
		p.client.Close()
	}

	p.inflight.Wait()

	p.mu.Lock()
	tail := decodeFloat32LE(p.pending)
	p.pending = nil
	p.mu.Unlock()

	if len(tail) > 0 {
		select {
		case p.blocks <- tail:
		default:
		}
	}
	close(p.blocks)
	return nil
}

// onFrames receives raw float32 frames from Pulse and slices them into blocks.
func (p *PulseSource) onFrames(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same lock as stopped so Close's Wait cannot race it.
	p.inflight.Add(1)
	defer p.inflight.Done()

	p.pending = append(p.pending, buffer...)
	blockBytes := p.blockSize * 4
	var ready [][]float32
	for len(p.pending) >= blockBytes {
		ready = append(ready, decodeFloat32LE(p.pending[:blockBytes]))
		p.pending = p.pending[blockBytes:]
	}
	p.mu.Unlock()

	p.samples.Add(int64(len(buffer) / 4))

	for _, block := range ready {
		select {
		case <-p.stopCh:
			return 0, io.EOF
		case p.blocks <- block:
		}
	}
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
