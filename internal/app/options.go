package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/steno/internal/chunker"
	"github.com/rbright/steno/internal/config"
	"github.com/rbright/steno/internal/engine"
	"github.com/rbright/steno/internal/output"
	"github.com/rbright/steno/internal/pipeline"
	"github.com/rbright/steno/internal/stitch"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// engineConfig maps the engine section onto the backend config.
func engineConfig(cfg config.Config) engine.Config {
	return engine.Config{
		Backend:     cfg.Engine.Backend,
		Address:     cfg.Engine.Address,
		HealthPath:  cfg.Engine.HealthPath,
		Model:       cfg.Engine.Model,
		LoadModel:   cfg.Engine.LoadModel,
		Language:    cfg.Engine.Language,
		Translate:   cfg.Engine.Translate,
		Threads:     cfg.Engine.Threads,
		Temperature: cfg.Engine.Temperature,
		MaxTokens:   cfg.Engine.MaxTokens,
		Timeout:     ms(cfg.Engine.TimeoutMS),
		DialTimeout: ms(cfg.Engine.DialTimeoutMS),
	}
}

// pipelineOptions maps the audio, vad, chunk, context, queue, and output
// sections onto the pipeline.
func pipelineOptions(cfg config.Config) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.SampleRate = cfg.Audio.SampleRate
	opts.Chunk = chunker.Options{
		SampleRate:       cfg.Audio.SampleRate,
		MinDuration:      ms(cfg.Chunk.MinMS),
		OptimalDuration:  ms(cfg.Chunk.OptimalMS),
		MaxDuration:      ms(cfg.Chunk.MaxMS),
		SilenceThreshold: float32(cfg.Chunk.SilenceThreshold),
		MinSilence:       ms(cfg.Chunk.MinSilenceMS),
		Overlap:          ms(cfg.Chunk.OverlapMS),
		VAD:              cfg.VAD.Enable,
		VADThreshold:     cfg.VAD.Threshold,
	}
	opts.Context = stitch.Options{
		Enabled:         cfg.Context.Enable,
		SampleRate:      cfg.Audio.SampleRate,
		Duration:        ms(cfg.Context.DurationMS),
		MaxPromptTokens: cfg.Context.MaxPromptTokens,
		RemoveOverlap:   cfg.Context.RemoveOverlap,
		PrependAudio:    cfg.Context.PrependAudio,
	}
	opts.QueueCapacity = cfg.Queue.Capacity
	opts.MinTextLength = cfg.Output.MinTextLength
	if cfg.Audio.RetryMS > 0 {
		opts.RetryDelay = ms(cfg.Audio.RetryMS)
	}
	if cfg.Engine.TimeoutMS > 0 {
		opts.EngineTimeout = ms(cfg.Engine.TimeoutMS)
	}
	return opts
}

func writerOptions(cfg config.Config) output.Options {
	return output.Options{
		Timestamps: cfg.Output.Timestamps,
		Verbose:    cfg.Output.Verbose,
		Console:    cfg.Output.Console,
	}
}

func sessionHeader(cfg config.Config, session string, started time.Time) output.Header {
	return output.Header{
		SessionID:    session,
		Started:      started,
		Model:        cfg.Engine.Model,
		Language:     cfg.Engine.Language,
		SampleRate:   cfg.Audio.SampleRate,
		VAD:          cfg.VAD.Enable,
		VADThreshold: cfg.VAD.Threshold,
	}
}

// pipePath returns the configured FIFO or a per-process default.
func pipePath(cfg config.Config) string {
	if cfg.Audio.Pipe != "" {
		return cfg.Audio.Pipe
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("steno_%d", os.Getpid()))
}
