package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbright/steno/internal/chunker"
	"github.com/stretchr/testify/require"
)

func chunkAt(ts float64) chunker.Chunk {
	return chunker.Chunk{Samples: []float32{float32(ts)}, Timestamp: ts}
}

func TestPopPreservesPushOrder(t *testing.T) {
	q := New(DefaultCapacity)
	for i := 0; i < DefaultCapacity; i++ {
		require.True(t, q.Push(chunkAt(float64(i))))
	}

	ctx := context.Background()
	for i := 0; i < DefaultCapacity; i++ {
		chunk, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, float64(i), chunk.Timestamp)
	}
	require.Zero(t, q.Len())
}

func TestPushDropsNewestWhenFull(t *testing.T) {
	q := New(10)
	for i := 0; i < 10; i++ {
		require.True(t, q.Push(chunkAt(float64(i))))
	}

	done := make(chan bool, 1)
	go func() { done <- q.Push(chunkAt(10)) }()

	select {
	case accepted := <-done:
		require.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("push blocked on a full queue")
	}

	require.Equal(t, 10, q.Len())
	require.Equal(t, int64(1), q.Dropped())
	require.Equal(t, int64(10), q.Pushed())

	// The oldest chunk is still first; the eleventh never made it in.
	first, err := q.Pop(context.Background())
	require.NoError(t, err)
	require.Zero(t, first.Timestamp)
}

func TestPopUnblocksOnCancel(t *testing.T) {
	q := New(2)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("pop did not return after cancel")
	}
}

func TestPopDoesNotDrainAfterCancel(t *testing.T) {
	q := New(2)
	require.True(t, q.Push(chunkAt(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, q.Len())
}

func TestPopWakesOnPush(t *testing.T) {
	q := New(1)
	got := make(chan chunker.Chunk, 1)
	go func() {
		chunk, err := q.Pop(context.Background())
		if err == nil {
			got <- chunk
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.True(t, q.Push(chunkAt(7)))

	select {
	case chunk := <-got:
		require.Equal(t, float64(7), chunk.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake on push")
	}
}

func TestNewDefaultsCapacity(t *testing.T) {
	require.Equal(t, DefaultCapacity, New(0).Cap())
	require.Equal(t, 3, New(3).Cap())
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	q := New(4)
	require.True(t, q.Push(chunkAt(1)))
	require.True(t, q.Push(chunkAt(2)))
	q.Close()
	q.Close()

	ctx := context.Background()
	for _, want := range []float64{1, 2} {
		chunk, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, want, chunk.Timestamp)
	}

	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, ErrClosed)
}
