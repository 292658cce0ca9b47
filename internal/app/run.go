package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/steno/internal/audio"
	"github.com/rbright/steno/internal/broadcast"
	"github.com/rbright/steno/internal/config"
	"github.com/rbright/steno/internal/engine"
	"github.com/rbright/steno/internal/httpapi"
	"github.com/rbright/steno/internal/ipc"
	"github.com/rbright/steno/internal/logging"
	"github.com/rbright/steno/internal/metrics"
	"github.com/rbright/steno/internal/output"
	"github.com/rbright/steno/internal/pipeline"
	"github.com/rbright/steno/internal/reporting"
	"github.com/rbright/steno/internal/session"
)

const (
	engineReadyTimeout = 5 * time.Second
	helperStopTimeout  = 2 * time.Second
)

// capture is the opened audio input plus the helper feeding it, if any.
type capture struct {
	source audio.Source
	helper *audio.Helper
}

func (c capture) close() error {
	var result *multierror.Error
	if c.helper != nil {
		if err := c.helper.Stop(helperStopTimeout); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.source != nil {
		if err := c.source.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close audio source: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func (r Runner) fail(logger *slog.Logger, msg string, err error) int {
	fmt.Fprintf(r.Stderr, "error: %v\n", err)
	logger.Error(msg, "error", err.Error())
	return 1
}

// commandRun owns the control socket and runs one transcription session until
// ctx is cancelled, a stop request arrives, or the source ends.
func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return r.fail(logger, "resolve socket failed", err)
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			err = fmt.Errorf("%w; use `%s stop` first", err, binaryName)
		}
		return r.fail(logger, "acquire socket failed", err)
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	sessionID := uuid.NewString()
	started := time.Now()
	logger = logger.With("session", sessionID)

	sentryOn, err := reporting.Init(reporting.Options{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		SampleRate:  cfg.Sentry.SampleRate,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "warning: error reporting disabled: %v\n", err)
		logger.Warn("sentry init failed", "error", err.Error())
	}
	if sentryOn {
		defer reporting.Flush()
	}
	fatal := func(msg string, err error) int {
		if sentryOn {
			reporting.CaptureFatal(err)
		}
		return r.fail(logger, msg, err)
	}

	eng, err := openEngine(ctx, engineConfig(cfg))
	if err != nil {
		return fatal("engine unavailable", err)
	}
	defer func() { _ = eng.Close() }()

	var command *output.CommandSink
	if len(cfg.Output.Command.Argv) > 0 {
		command, err = output.NewCommandSink(cfg.Output.Command.Argv, ms(cfg.Output.CommandTimeoutMS), logger)
		if err != nil {
			return fatal("output command invalid", err)
		}
	}

	var console io.Writer
	if cfg.Output.Console {
		console = r.Stdout
	}
	writer, err := output.Open(cfg.Output.File, sessionHeader(cfg, sessionID, started), writerOptions(cfg), console, command, logger)
	if err != nil {
		if command != nil {
			command.Close()
		}
		return fatal("open transcript failed", err)
	}
	defer func() { _ = writer.Close(time.Now()) }()

	recorder := metrics.New(cfg.Engine.Backend, cfg.Audio.SampleRate)
	hub := broadcast.NewHub(sessionID, logger)
	defer hub.Close()

	observers := pipeline.MultiObserver{recorder, hub, writer}
	if sentryOn {
		observers = append(observers, reporting.NewEngineReporter(nil, cfg.Engine.Backend, sessionID))
	}

	opts := pipelineOptions(cfg)
	var wav *audio.Recorder
	if cfg.Audio.SaveAudio {
		wav, err = openRecording(cfg.Audio.SampleRate)
		if err != nil {
			return fatal("open recording failed", err)
		}
		opts.Tap = wav
		fmt.Fprintf(r.Stderr, "recording audio to %s\n", wav.Path())
	}

	pipe, err := pipeline.New(eng, opts, logger, observers)
	if err != nil {
		if wav != nil {
			_ = wav.Close()
		}
		return fatal("build pipeline failed", err)
	}
	recorder.Watch(pipe.Stats)

	input, err := r.openCapture(ctx, cfg, logger)
	if err != nil {
		if wav != nil {
			_ = wav.Close()
		}
		return fatal("open audio failed", err)
	}

	controller := session.NewController(logger, pipe, sessionID, func() int64 {
		return writer.Stats().Transcriptions
	})

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error { return ipc.Serve(gctx, listener, controller) })

	if cfg.Server.Listen != "" {
		srv := httpapi.New(cfg.Server.Listen, httpapi.Routes{
			Metrics: recorder.Handler(),
			Feed:    hub,
			Healthy: func() bool { return pipe.State().Active() },
			Stats: func() any {
				return statsSnapshot{Session: sessionID, Pipeline: pipe.Stats(), Output: writer.Stats()}
			},
		}, logger)
		ln, err := srv.Listen()
		if err != nil {
			stopServing()
			_ = g.Wait()
			_ = input.close()
			if wav != nil {
				_ = wav.Close()
			}
			return fatal("http server failed", err)
		}
		if cfg.Output.Verbose {
			fmt.Fprintf(r.Stderr, "serving metrics and live feed on http://%s\n", ln.Addr())
		}
		g.Go(func() error { return srv.Serve(gctx, ln) })
	}

	if cfg.Output.Verbose && cfg.Output.StatsIntervalMS > 0 {
		g.Go(func() error {
			printStatsEvery(gctx, writer, ms(cfg.Output.StatsIntervalMS), started)
			return nil
		})
	}

	result := controller.Run(gctx, input.source, writer.Handle)

	stopServing()
	serveErr := g.Wait()

	var teardown *multierror.Error
	if err := input.close(); err != nil {
		teardown = multierror.Append(teardown, err)
	}
	if wav != nil {
		if err := wav.Close(); err != nil {
			teardown = multierror.Append(teardown, fmt.Errorf("close recording: %w", err))
		}
	}
	hub.Close()

	writer.PrintStats(time.Since(started))
	if err := writer.Close(time.Now()); err != nil {
		teardown = multierror.Append(teardown, err)
	}

	logSessionResult(logger, result, writer.Stats())

	if err := teardown.ErrorOrNil(); err != nil {
		fmt.Fprintf(r.Stderr, "warning: %v\n", err)
		logger.Warn("session teardown incomplete", "error", err.Error())
	}
	if serveErr != nil {
		return r.fail(logger, "control server failed", serveErr)
	}
	if result.Err != nil {
		if sentryOn {
			reporting.CaptureFatal(result.Err)
		}
		return r.fail(logger, "session failed", result.Err)
	}
	return 0
}

// statsSnapshot is the /stats payload.
type statsSnapshot struct {
	Session  string         `json:"session"`
	Pipeline pipeline.Stats `json:"pipeline"`
	Output   output.Stats   `json:"output"`
}

// openEngine connects to the recognition server and waits until it answers.
func openEngine(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
	eng, err := engine.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	readier, ok := eng.(engine.Readier)
	if !ok {
		return eng, nil
	}

	readyCtx, cancel := context.WithTimeout(ctx, engineReadyTimeout)
	defer cancel()
	if err := readier.Ready(readyCtx); err != nil {
		_ = eng.Close()
		return nil, fmt.Errorf("engine %s at %s not ready: %w", cfg.Backend, cfg.Address, err)
	}
	return eng, nil
}

// openCapture opens the configured audio source. For the pipe source the
// optional capture command is started once the FIFO exists.
func (r Runner) openCapture(ctx context.Context, cfg config.Config, logger *slog.Logger) (capture, error) {
	switch cfg.Audio.Source {
	case "pipe":
		path := pipePath(cfg)
		src, err := audio.NewPipeSource(audio.PipeOptions{
			Path:         path,
			Create:       cfg.Audio.CreatePipe,
			BlockSamples: cfg.Audio.BlockSamples,
		})
		if err != nil {
			return capture{}, err
		}
		logger.Info("audio pipe ready", "path", path)
		if len(cfg.Audio.CaptureCmd.Argv) == 0 {
			if cfg.Output.Verbose {
				fmt.Fprintf(r.Stderr, "waiting for audio on %s\n", path)
			}
			return capture{source: src}, nil
		}

		var helperStderr io.Writer
		if cfg.Output.Verbose {
			helperStderr = r.Stderr
		}
		helper, err := audio.StartHelper(ctx, cfg.Audio.CaptureCmd.Argv, path, helperStderr, ms(cfg.Audio.StartupGraceMS))
		if err != nil {
			_ = src.Close()
			return capture{}, err
		}
		logger.Info("capture command started", "pid", helper.PID())
		return capture{source: src, helper: helper}, nil
	default:
		selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
		if err != nil {
			return capture{}, err
		}
		if selection.Warning != "" {
			fmt.Fprintf(r.Stderr, "warning: %s\n", selection.Warning)
			logger.Warn("audio device fallback", "message", selection.Warning)
		}
		src, err := audio.OpenPulse(ctx, selection.Device, cfg.Audio.SampleRate)
		if err != nil {
			return capture{}, err
		}
		logger.Info("audio device selected", "device", selection.Device.ID, "fallback", selection.Fallback)
		return capture{source: src}, nil
	}
}

// openRecording creates a WAV file under the state directory.
func openRecording(sampleRate int) (*audio.Recorder, error) {
	dir, err := logging.StateDir()
	if err != nil {
		return nil, err
	}
	return audio.CreateRecorder(filepath.Join(dir, "recordings"), sampleRate)
}

func printStatsEvery(ctx context.Context, writer *output.Writer, interval time.Duration, started time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writer.PrintStats(time.Since(started))
		}
	}
}
