// Package session drives one pipeline run and answers control requests
// while it is live.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbright/steno/internal/audio"
	"github.com/rbright/steno/internal/fsm"
	"github.com/rbright/steno/internal/ipc"
	"github.com/rbright/steno/internal/pipeline"
)

// ErrPipelineUnavailable indicates the controller has no pipeline wired.
var ErrPipelineUnavailable = errors.New("transcription pipeline not configured")

// Why a run ended.
const (
	ReasonSignal   = "signal"
	ReasonRequest  = "request"
	ReasonFinished = "finished"
)

// Runner is the pipeline surface the controller drives.
type Runner interface {
	Start(context.Context, audio.Source, pipeline.Callback) error
	Stop() error
	Done() <-chan struct{}
	State() fsm.State
	Stats() pipeline.Stats
}

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	Session    string
	State      fsm.State
	Reason     string
	Stats      pipeline.Stats
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Controller owns the run loop and serves IPC commands for it.
type Controller struct {
	logger         *slog.Logger
	runner         Runner
	session        string
	transcriptions func() int64

	stopRequests chan struct{}
}

// NewController constructs a session controller. transcriptions may be nil.
func NewController(logger *slog.Logger, runner Runner, session string, transcriptions func() int64) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if transcriptions == nil {
		transcriptions = func() int64 { return 0 }
	}
	return &Controller{
		logger:         logger,
		runner:         runner,
		session:        session,
		transcriptions: transcriptions,
		stopRequests:   make(chan struct{}, 1),
	}
}

// State returns the pipeline lifecycle state.
func (c *Controller) State() fsm.State {
	if c.runner == nil {
		return fsm.StateIdle
	}
	return c.runner.State()
}

// Run starts the pipeline on src and blocks until ctx is cancelled, a stop
// is requested over IPC, or the pipeline finishes on its own. The pipeline is
// always stopped before Run returns.
func (c *Controller) Run(ctx context.Context, src audio.Source, cb pipeline.Callback) Result {
	result := Result{Session: c.session, StartedAt: time.Now()}
	if c.runner == nil {
		result.State = fsm.StateIdle
		result.Err = ErrPipelineUnavailable
		result.FinishedAt = time.Now()
		return result
	}

	if err := c.runner.Start(ctx, src, cb); err != nil {
		result.State = c.runner.State()
		result.Err = fmt.Errorf("start pipeline: %w", err)
		result.FinishedAt = time.Now()
		return result
	}
	c.logger.Info("session running", "session", c.session)

	select {
	case <-ctx.Done():
		result.Reason = ReasonSignal
	case <-c.stopRequests:
		result.Reason = ReasonRequest
	case <-c.runner.Done():
		result.Reason = ReasonFinished
	}

	if err := c.runner.Stop(); err != nil {
		result.Err = fmt.Errorf("stop pipeline: %w", err)
	}

	result.State = c.runner.State()
	result.Stats = c.runner.Stats()
	result.FinishedAt = time.Now()
	c.logger.Info("session finished",
		"session", c.session,
		"reason", result.Reason,
		"emitted", result.Stats.Emitted,
		"dropped", result.Stats.ChunksDropped,
	)
	return result
}

// Handle serves IPC commands for the active session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return c.statusResponse("status")
	case ipc.CommandStop:
		return c.requestStop()
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) statusResponse(message string) ipc.Response {
	resp := ipc.Response{
		OK:             true,
		State:          string(c.State()),
		Session:        c.session,
		Message:        message,
		Transcriptions: c.transcriptions(),
	}
	if c.runner != nil {
		stats := c.runner.Stats()
		resp.Stats = &stats
	}
	return resp
}

// requestStop enqueues a stop when the pipeline is running.
func (c *Controller) requestStop() ipc.Response {
	state := c.State()
	if state != fsm.StateRunning {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot stop from state %s", state)}
	}

	select {
	case c.stopRequests <- struct{}{}:
		return c.statusResponse("stop requested")
	default:
		return c.statusResponse("stop already requested")
	}
}
