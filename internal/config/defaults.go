package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Backend:       "http",
			Address:       "127.0.0.1:8080",
			HealthPath:    "/health",
			Model:         "models/ggml-base.en.bin",
			Language:      "en",
			Threads:       4,
			TimeoutMS:     30000,
			DialTimeoutMS: 3000,
		},
		Audio: AudioConfig{
			SampleRate:     16000,
			Source:         "pulse",
			Input:          "default",
			Fallback:       "default",
			CreatePipe:     true,
			BlockSamples:   1600,
			StartupGraceMS: 500,
			RetryMS:        10,
		},
		VAD: VADConfig{Enable: true, Threshold: 0.6},
		Chunk: ChunkConfig{
			MinMS:            1000,
			OptimalMS:        3000,
			MaxMS:            6000,
			SilenceThreshold: 0.01,
			MinSilenceMS:     200,
			OverlapMS:        500,
		},
		Context: ContextConfig{
			Enable:          true,
			DurationMS:      1000,
			MaxPromptTokens: 224,
			RemoveOverlap:   true,
		},
		Queue: QueueConfig{Capacity: 10},
		Output: OutputConfig{
			File:             "transcript.txt",
			Timestamps:       true,
			Console:          true,
			CommandTimeoutMS: 2000,
			MinTextLength:    3,
			StatsIntervalMS:  10000,
		},
		Sentry:  SentryConfig{SampleRate: 1},
		Logging: LoggingConfig{Level: "info"},
	}
}
