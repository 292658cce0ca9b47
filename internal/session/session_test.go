package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/steno/internal/audio"
	"github.com/rbright/steno/internal/fsm"
	"github.com/rbright/steno/internal/ipc"
	"github.com/rbright/steno/internal/pipeline"
)

type fakeRunner struct {
	mu       sync.Mutex
	state    fsm.State
	done     chan struct{}
	startErr error
	stopErr  error
	starts   int
	stops    int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{state: fsm.StateIdle}
}

func (f *fakeRunner) Start(context.Context, audio.Source, pipeline.Callback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.state = fsm.StateRunning
	f.done = make(chan struct{})
	return nil
}

func (f *fakeRunner) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.state == fsm.StateRunning {
		close(f.done)
	}
	f.state = fsm.StateStopped
	return f.stopErr
}

// finish simulates the pipeline ending on its own.
func (f *fakeRunner) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = fsm.StateStopped
	close(f.done)
}

func (f *fakeRunner) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *fakeRunner) State() fsm.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeRunner) Stats() pipeline.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pipeline.Stats{State: f.state, Emitted: 2, ChunksDropped: 1}
}

type nopSource struct{}

func (nopSource) Read(context.Context) ([]float32, error) { return nil, audio.ErrSourceClosed }
func (nopSource) Close() error                            { return nil }

func runAsync(ctrl *Controller, ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	go func() { out <- ctrl.Run(ctx, nopSource{}, func(pipeline.Result) {}) }()
	return out
}

func waitRunning(t *testing.T, ctrl *Controller) {
	t.Helper()
	require.Eventually(t, func() bool { return ctrl.State() == fsm.StateRunning }, time.Second, 5*time.Millisecond)
}

func TestRunWithoutRunner(t *testing.T) {
	ctrl := NewController(nil, nil, "s", nil)

	result := ctrl.Run(context.Background(), nopSource{}, nil)
	require.ErrorIs(t, result.Err, ErrPipelineUnavailable)
	require.Equal(t, fsm.StateIdle, result.State)
	require.Equal(t, fsm.StateIdle, ctrl.State())
}

func TestRunStartFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.startErr = pipeline.ErrAlreadyRunning
	ctrl := NewController(nil, runner, "s", nil)

	result := ctrl.Run(context.Background(), nopSource{}, nil)
	require.ErrorIs(t, result.Err, pipeline.ErrAlreadyRunning)
	require.Contains(t, result.Err.Error(), "start pipeline")
	require.NotZero(t, result.FinishedAt)
	require.Equal(t, 0, runner.stops)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	runner := newFakeRunner()
	ctrl := NewController(nil, runner, "s-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	results := runAsync(ctrl, ctx)
	waitRunning(t, ctrl)
	cancel()

	result := <-results
	require.NoError(t, result.Err)
	require.Equal(t, ReasonSignal, result.Reason)
	require.Equal(t, "s-1", result.Session)
	require.Equal(t, fsm.StateStopped, result.State)
	require.Equal(t, int64(2), result.Stats.Emitted)
	require.Equal(t, 1, runner.stops)
}

func TestRunStopsOnIPCRequest(t *testing.T) {
	runner := newFakeRunner()
	var transcriptions int64 = 5
	ctrl := NewController(nil, runner, "s-2", func() int64 { return transcriptions })

	results := runAsync(ctrl, context.Background())
	waitRunning(t, ctrl)

	resp := ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	require.True(t, resp.OK)
	require.Contains(t, []string{"stop requested", "stop already requested"}, resp.Message)
	require.Equal(t, int64(5), resp.Transcriptions)

	result := <-results
	require.Equal(t, ReasonRequest, result.Reason)
	require.NoError(t, result.Err)
}

func TestRunReturnsWhenPipelineFinishes(t *testing.T) {
	runner := newFakeRunner()
	runner.stopErr = errors.New("engine went away")
	ctrl := NewController(nil, runner, "s", nil)

	results := runAsync(ctrl, context.Background())
	waitRunning(t, ctrl)
	runner.finish()

	result := <-results
	require.Equal(t, ReasonFinished, result.Reason)
	require.Error(t, result.Err)
	require.Contains(t, result.Err.Error(), "stop pipeline")
}

func TestHandleStatusAndUnknownCommand(t *testing.T) {
	ctrl := NewController(nil, newFakeRunner(), "s-3", nil)

	status := ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateIdle), status.State)
	require.Equal(t, "s-3", status.Session)
	require.NotNil(t, status.Stats)

	unknown := ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.False(t, unknown.OK)
	require.Contains(t, unknown.Error, "unknown command")
}

func TestStopGuardsAndDeduplicates(t *testing.T) {
	runner := newFakeRunner()
	ctrl := NewController(nil, runner, "s", nil)

	fromIdle := ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	require.False(t, fromIdle.OK)
	require.Contains(t, fromIdle.Error, "cannot stop from state idle")

	runner.state = fsm.StateRunning
	first := ctrl.requestStop()
	require.True(t, first.OK)
	require.Equal(t, "stop requested", first.Message)

	second := ctrl.requestStop()
	require.True(t, second.OK)
	require.Equal(t, "stop already requested", second.Message)
}
