// Package config resolves, parses, validates, and defaults steno configuration.
package config

// Config is the fully materialized runtime configuration used by steno.
type Config struct {
	Engine  EngineConfig
	Audio   AudioConfig
	VAD     VADConfig
	Chunk   ChunkConfig
	Context ContextConfig
	Queue   QueueConfig
	Output  OutputConfig
	Server  ServerConfig
	Sentry  SentryConfig
	Logging LoggingConfig
}

// EngineConfig selects and parameterizes the recognition backend.
type EngineConfig struct {
	Backend       string
	Address       string
	HealthPath    string
	Model         string
	LoadModel     bool
	Language      string
	Translate     bool
	Threads       int
	Temperature   float64
	MaxTokens     int
	TimeoutMS     int
	DialTimeoutMS int
}

// AudioConfig controls where samples come from.
type AudioConfig struct {
	SampleRate int
	// Source is "pulse" or "pipe".
	Source   string
	Input    string
	Fallback string
	// Pipe is the FIFO path; empty picks a per-process path under /tmp.
	Pipe           string
	CreatePipe     bool
	BlockSamples   int
	CaptureCmd     CommandConfig
	StartupGraceMS int
	RetryMS        int
	SaveAudio      bool
}

// VADConfig controls the speech gate.
type VADConfig struct {
	Enable    bool
	Threshold float64
}

// ChunkConfig controls chunk boundaries.
type ChunkConfig struct {
	MinMS            int
	OptimalMS        int
	MaxMS            int
	SilenceThreshold float64
	MinSilenceMS     int
	OverlapMS        int
}

// ContextConfig controls prompt priming and overlap removal.
type ContextConfig struct {
	Enable          bool
	DurationMS      int
	MaxPromptTokens int
	RemoveOverlap   bool
	PrependAudio    bool
}

// QueueConfig bounds pending chunks.
type QueueConfig struct {
	Capacity int
}

// OutputConfig controls how accepted results are presented.
type OutputConfig struct {
	File             string
	Timestamps       bool
	Verbose          bool
	Console          bool
	Command          CommandConfig
	CommandTimeoutMS int
	MinTextLength    int
	StatsIntervalMS  int
}

// ServerConfig controls the optional HTTP listener. Empty Listen disables it.
type ServerConfig struct {
	Listen string
}

// SentryConfig controls error reporting. Empty DSN disables it.
type SentryConfig struct {
	DSN         string
	Environment string
	SampleRate  float64
}

// LoggingConfig controls the JSONL runtime log.
type LoggingConfig struct {
	Level string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
