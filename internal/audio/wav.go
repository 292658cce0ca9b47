package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	wavHeaderSize = 44
	bitsPerSample = 16
)

// PCM16 converts float samples in [-1, 1] to little-endian signed 16-bit PCM.
// Out-of-range samples are clipped.
func PCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	switch {
	case s != s: // NaN
		return 0
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return -math.MaxInt16
	default:
		return int16(s * math.MaxInt16)
	}
}

// EncodeWAV writes samples as a mono PCM16 WAV stream.
func EncodeWAV(w io.Writer, samples []float32, sampleRate int) error {
	pcm := PCM16(samples)
	if _, err := w.Write(wavHeader(sampleRate, 1, uint32(len(pcm)))); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// wavHeader builds the canonical 44-byte RIFF/WAVE header for PCM16 data.
func wavHeader(sampleRate int, channels int, dataSize uint32) []byte {
	if channels <= 0 {
		channels = 1
	}
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)
	return header
}

// Recorder streams every ingested sample into a WAV file and patches the header
// sizes on Close.
type Recorder struct {
	mu         sync.Mutex
	file       *os.File
	sampleRate int
	dataBytes  int64
	closed     bool
}

// CreateRecorder opens dir/audio-<timestamp>.wav for writing.
func CreateRecorder(dir string, sampleRate int) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}

	name := fmt.Sprintf("audio-%s.wav", time.Now().Format("20060102-150405.000"))
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open recording %q: %w", path, err)
	}
	if _, err := file.Write(wavHeader(sampleRate, 1, 0)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("write recording header: %w", err)
	}
	return &Recorder{file: file, sampleRate: sampleRate}, nil
}

// Path returns the recording file path.
func (r *Recorder) Path() string {
	return r.file.Name()
}

// Write appends samples to the recording.
func (r *Recorder) Write(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return os.ErrClosed
	}
	n, err := r.file.Write(PCM16(samples))
	r.dataBytes += int64(n)
	return err
}

// Close finalizes the header and closes the file. It is safe to call twice.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if _, err := r.file.WriteAt(wavHeader(r.sampleRate, 1, uint32(r.dataBytes)), 0); err != nil {
		_ = r.file.Close()
		return fmt.Errorf("finalize recording header: %w", err)
	}
	return r.file.Close()
}
