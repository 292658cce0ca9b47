package audio

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipeSourceCreatesReadsAndRemovesFIFO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.pipe")
	src, err := NewPipeSource(PipeOptions{Path: path, Create: true, BlockSamples: 64})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&os.ModeNamedPipe)

	ctx := context.Background()
	_, err = src.Read(ctx)
	require.ErrorIs(t, err, io.EOF, "no writer yet")

	writer, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer writer.Close()

	payload := float32Bytes([]float32{0.25, -0.5, 1})
	_, err = writer.Write(payload[:10])
	require.NoError(t, err)

	got, err := src.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, []float32{0.25, -0.5}, got)

	_, err = writer.Write(payload[10:])
	require.NoError(t, err)

	got, err = src.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, []float32{1}, got)

	_, err = src.Read(ctx)
	require.ErrorIs(t, err, io.EOF, "writer idle")

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = src.Read(ctx)
	require.ErrorIs(t, err, ErrSourceClosed)
}

func TestPipeSourceReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.pipe")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	src, err := NewPipeSource(PipeOptions{Path: path, Create: true})
	require.NoError(t, err)
	defer src.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&os.ModeNamedPipe)
}

func TestPipeSourceMissingPathIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pipe")
	src, err := NewPipeSource(PipeOptions{Path: path})
	require.NoError(t, err)
	require.Equal(t, path, src.Path())

	_, err = src.Read(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
	require.NoError(t, src.Close())
}

func TestPipeSourceHonorsCanceledContext(t *testing.T) {
	src, err := NewPipeSource(PipeOptions{Path: filepath.Join(t.TempDir(), "p")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Read(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewPipeSourceRequiresPath(t *testing.T) {
	_, err := NewPipeSource(PipeOptions{})
	require.Error(t, err)
}

func TestDecodeFloat32LEIgnoresPartialSample(t *testing.T) {
	b := float32Bytes([]float32{0.5, 0.75})
	require.Equal(t, []float32{0.5}, decodeFloat32LE(b[:7]))
	require.Empty(t, decodeFloat32LE(nil))
}
