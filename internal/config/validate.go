package config

import (
	"fmt"
	"strings"

	"github.com/rbright/steno/internal/logging"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch cfg.Engine.Backend {
	case "http", "grpc", "tcp":
	default:
		return nil, fmt.Errorf("engine.backend must be one of: http, grpc, tcp")
	}
	if strings.TrimSpace(cfg.Engine.Address) == "" {
		return nil, fmt.Errorf("engine.address must not be empty")
	}
	if cfg.Engine.Backend == "http" && !strings.HasPrefix(cfg.Engine.HealthPath, "/") {
		return nil, fmt.Errorf("engine.health_path must start with '/'")
	}
	if strings.TrimSpace(cfg.Engine.Language) == "" {
		return nil, fmt.Errorf("engine.language must not be empty")
	}
	if cfg.Engine.Threads < 0 {
		return nil, fmt.Errorf("engine.threads must be >= 0")
	}
	if cfg.Engine.Temperature < 0 || cfg.Engine.Temperature > 1 {
		return nil, fmt.Errorf("engine.temperature must be within [0, 1]")
	}
	if cfg.Engine.TimeoutMS <= 0 {
		return nil, fmt.Errorf("engine.timeout_ms must be > 0")
	}
	if cfg.Engine.DialTimeoutMS <= 0 {
		return nil, fmt.Errorf("engine.dial_timeout_ms must be > 0")
	}
	if cfg.Engine.LoadModel && cfg.Engine.Backend != "http" {
		warnings = append(warnings, Warning{Message: "engine.load_model only applies to the http backend; ignoring"})
	}
	if cfg.Engine.Backend == "tcp" && cfg.Context.Enable {
		warnings = append(warnings, Warning{Message: "engine.backend=tcp carries audio only; context.enable keeps overlap removal but cannot prime the engine with text"})
	}

	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}
	switch cfg.Audio.Source {
	case "pulse":
		if len(cfg.Audio.CaptureCmd.Argv) > 0 {
			warnings = append(warnings, Warning{Message: "audio.capture_cmd only applies when audio.source=pipe; ignoring"})
		}
	case "pipe":
	default:
		return nil, fmt.Errorf("audio.source must be one of: pulse, pipe")
	}
	if cfg.Audio.BlockSamples <= 0 {
		return nil, fmt.Errorf("audio.block_samples must be > 0")
	}
	if cfg.Audio.StartupGraceMS < 0 {
		return nil, fmt.Errorf("audio.startup_grace_ms must be >= 0")
	}
	if cfg.Audio.RetryMS <= 0 {
		return nil, fmt.Errorf("audio.retry_ms must be > 0")
	}
	if strings.TrimSpace(cfg.Audio.CaptureCmd.Raw) != "" && len(cfg.Audio.CaptureCmd.Argv) == 0 {
		return nil, fmt.Errorf("audio.capture_cmd is configured but empty")
	}

	if cfg.VAD.Threshold < 0 || cfg.VAD.Threshold > 1 {
		return nil, fmt.Errorf("vad.threshold must be within [0, 1]")
	}

	if cfg.Chunk.MinMS <= 0 {
		return nil, fmt.Errorf("chunk.min_ms must be > 0")
	}
	if cfg.Chunk.OptimalMS < cfg.Chunk.MinMS {
		return nil, fmt.Errorf("chunk.optimal_ms must be >= chunk.min_ms")
	}
	if cfg.Chunk.MaxMS < cfg.Chunk.OptimalMS {
		return nil, fmt.Errorf("chunk.max_ms must be >= chunk.optimal_ms")
	}
	if cfg.Chunk.SilenceThreshold <= 0 || cfg.Chunk.SilenceThreshold > 1 {
		return nil, fmt.Errorf("chunk.silence_threshold must be within (0, 1]")
	}
	if cfg.Chunk.MinSilenceMS <= 0 {
		return nil, fmt.Errorf("chunk.min_silence_ms must be > 0")
	}
	if cfg.Chunk.OverlapMS < 0 {
		return nil, fmt.Errorf("chunk.overlap_ms must be >= 0")
	}
	if cfg.Chunk.OverlapMS >= cfg.Chunk.MinMS {
		return nil, fmt.Errorf("chunk.overlap_ms must be shorter than chunk.min_ms")
	}
	if cfg.Context.PrependAudio && cfg.Context.DurationMS > cfg.Chunk.OverlapMS {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("context.prepend_audio with duration_ms=%d > chunk.overlap_ms=%d feeds audio the engine already heard", cfg.Context.DurationMS, cfg.Chunk.OverlapMS)})
	}

	if cfg.Context.DurationMS < 0 {
		return nil, fmt.Errorf("context.duration_ms must be >= 0")
	}
	if cfg.Context.MaxPromptTokens < 0 {
		return nil, fmt.Errorf("context.max_prompt_tokens must be >= 0")
	}

	if cfg.Queue.Capacity <= 0 {
		return nil, fmt.Errorf("queue.capacity must be > 0")
	}

	if strings.TrimSpace(cfg.Output.Command.Raw) != "" && len(cfg.Output.Command.Argv) == 0 {
		return nil, fmt.Errorf("output.command is configured but empty")
	}
	if cfg.Output.CommandTimeoutMS <= 0 {
		return nil, fmt.Errorf("output.command_timeout_ms must be > 0")
	}
	if cfg.Output.MinTextLength < 0 {
		return nil, fmt.Errorf("output.min_text_length must be >= 0")
	}
	if cfg.Output.StatsIntervalMS < 0 {
		return nil, fmt.Errorf("output.stats_interval_ms must be >= 0")
	}
	if cfg.Output.File == "" && !cfg.Output.Console {
		warnings = append(warnings, Warning{Message: "output.file is empty and output.console is off; results are only visible over the server feed"})
	}

	if cfg.Sentry.SampleRate < 0 || cfg.Sentry.SampleRate > 1 {
		return nil, fmt.Errorf("sentry.sample_rate must be within [0, 1]")
	}

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}

	return warnings, nil
}
