package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Engine  *jsoncEngine  `json:"engine"`
	Audio   *jsoncAudio   `json:"audio"`
	VAD     *jsoncVAD     `json:"vad"`
	Chunk   *jsoncChunk   `json:"chunk"`
	Context *jsoncContext `json:"context"`
	Queue   *jsoncQueue   `json:"queue"`
	Output  *jsoncOutput  `json:"output"`
	Server  *jsoncServer  `json:"server"`
	Sentry  *jsoncSentry  `json:"sentry"`
	Logging *jsoncLogging `json:"logging"`
}

type jsoncEngine struct {
	Backend       *string  `json:"backend"`
	Address       *string  `json:"address"`
	HealthPath    *string  `json:"health_path"`
	Model         *string  `json:"model"`
	LoadModel     *bool    `json:"load_model"`
	Language      *string  `json:"language"`
	Translate     *bool    `json:"translate"`
	Threads       *int     `json:"threads"`
	Temperature   *float64 `json:"temperature"`
	MaxTokens     *int     `json:"max_tokens"`
	TimeoutMS     *int     `json:"timeout_ms"`
	DialTimeoutMS *int     `json:"dial_timeout_ms"`
}

type jsoncAudio struct {
	SampleRate     *int    `json:"sample_rate"`
	Source         *string `json:"source"`
	Input          *string `json:"input"`
	Fallback       *string `json:"fallback"`
	Pipe           *string `json:"pipe"`
	CreatePipe     *bool   `json:"create_pipe"`
	BlockSamples   *int    `json:"block_samples"`
	CaptureCmd     *string `json:"capture_cmd"`
	StartupGraceMS *int    `json:"startup_grace_ms"`
	RetryMS        *int    `json:"retry_ms"`
	SaveAudio      *bool   `json:"save_audio"`
}

type jsoncVAD struct {
	Enable    *bool    `json:"enable"`
	Threshold *float64 `json:"threshold"`
}

type jsoncChunk struct {
	MinMS            *int     `json:"min_ms"`
	OptimalMS        *int     `json:"optimal_ms"`
	MaxMS            *int     `json:"max_ms"`
	SilenceThreshold *float64 `json:"silence_threshold"`
	MinSilenceMS     *int     `json:"min_silence_ms"`
	OverlapMS        *int     `json:"overlap_ms"`
}

type jsoncContext struct {
	Enable          *bool `json:"enable"`
	DurationMS      *int  `json:"duration_ms"`
	MaxPromptTokens *int  `json:"max_prompt_tokens"`
	RemoveOverlap   *bool `json:"remove_overlap"`
	PrependAudio    *bool `json:"prepend_audio"`
}

type jsoncQueue struct {
	Capacity *int `json:"capacity"`
}

type jsoncOutput struct {
	File             *string `json:"file"`
	Timestamps       *bool   `json:"timestamps"`
	Verbose          *bool   `json:"verbose"`
	Console          *bool   `json:"console"`
	Command          *string `json:"command"`
	CommandTimeoutMS *int    `json:"command_timeout_ms"`
	MinTextLength    *int    `json:"min_text_length"`
	StatsIntervalMS  *int    `json:"stats_interval_ms"`
}

type jsoncServer struct {
	Listen *string `json:"listen"`
}

type jsoncSentry struct {
	DSN         *string  `json:"dsn"`
	Environment *string  `json:"environment"`
	SampleRate  *float64 `json:"sample_rate"`
}

type jsoncLogging struct {
	Level *string `json:"level"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setValue[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setCommand(dst *CommandConfig, src *string, key string) error {
	if src == nil {
		return nil
	}
	argv, err := parseArgv(*src)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = CommandConfig{Raw: *src, Argv: argv}
	return nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if e := payload.Engine; e != nil {
		setString(&cfg.Engine.Backend, e.Backend)
		setString(&cfg.Engine.Address, e.Address)
		setString(&cfg.Engine.HealthPath, e.HealthPath)
		setString(&cfg.Engine.Model, e.Model)
		setValue(&cfg.Engine.LoadModel, e.LoadModel)
		setString(&cfg.Engine.Language, e.Language)
		setValue(&cfg.Engine.Translate, e.Translate)
		setValue(&cfg.Engine.Threads, e.Threads)
		setValue(&cfg.Engine.Temperature, e.Temperature)
		setValue(&cfg.Engine.MaxTokens, e.MaxTokens)
		setValue(&cfg.Engine.TimeoutMS, e.TimeoutMS)
		setValue(&cfg.Engine.DialTimeoutMS, e.DialTimeoutMS)
		cfg.Engine.Backend = strings.ToLower(cfg.Engine.Backend)
	}

	if a := payload.Audio; a != nil {
		setValue(&cfg.Audio.SampleRate, a.SampleRate)
		setString(&cfg.Audio.Source, a.Source)
		setValue(&cfg.Audio.Input, a.Input)
		setValue(&cfg.Audio.Fallback, a.Fallback)
		setString(&cfg.Audio.Pipe, a.Pipe)
		setValue(&cfg.Audio.CreatePipe, a.CreatePipe)
		setValue(&cfg.Audio.BlockSamples, a.BlockSamples)
		if err := setCommand(&cfg.Audio.CaptureCmd, a.CaptureCmd, "audio.capture_cmd"); err != nil {
			return err
		}
		setValue(&cfg.Audio.StartupGraceMS, a.StartupGraceMS)
		setValue(&cfg.Audio.RetryMS, a.RetryMS)
		setValue(&cfg.Audio.SaveAudio, a.SaveAudio)
		cfg.Audio.Source = strings.ToLower(cfg.Audio.Source)
	}

	if v := payload.VAD; v != nil {
		setValue(&cfg.VAD.Enable, v.Enable)
		setValue(&cfg.VAD.Threshold, v.Threshold)
	}

	if c := payload.Chunk; c != nil {
		setValue(&cfg.Chunk.MinMS, c.MinMS)
		setValue(&cfg.Chunk.OptimalMS, c.OptimalMS)
		setValue(&cfg.Chunk.MaxMS, c.MaxMS)
		setValue(&cfg.Chunk.SilenceThreshold, c.SilenceThreshold)
		setValue(&cfg.Chunk.MinSilenceMS, c.MinSilenceMS)
		setValue(&cfg.Chunk.OverlapMS, c.OverlapMS)
	}

	if c := payload.Context; c != nil {
		setValue(&cfg.Context.Enable, c.Enable)
		setValue(&cfg.Context.DurationMS, c.DurationMS)
		setValue(&cfg.Context.MaxPromptTokens, c.MaxPromptTokens)
		setValue(&cfg.Context.RemoveOverlap, c.RemoveOverlap)
		setValue(&cfg.Context.PrependAudio, c.PrependAudio)
	}

	if q := payload.Queue; q != nil {
		setValue(&cfg.Queue.Capacity, q.Capacity)
	}

	if o := payload.Output; o != nil {
		setString(&cfg.Output.File, o.File)
		setValue(&cfg.Output.Timestamps, o.Timestamps)
		setValue(&cfg.Output.Verbose, o.Verbose)
		setValue(&cfg.Output.Console, o.Console)
		if err := setCommand(&cfg.Output.Command, o.Command, "output.command"); err != nil {
			return err
		}
		setValue(&cfg.Output.CommandTimeoutMS, o.CommandTimeoutMS)
		setValue(&cfg.Output.MinTextLength, o.MinTextLength)
		setValue(&cfg.Output.StatsIntervalMS, o.StatsIntervalMS)
	}

	if s := payload.Server; s != nil {
		setString(&cfg.Server.Listen, s.Listen)
	}

	if s := payload.Sentry; s != nil {
		setString(&cfg.Sentry.DSN, s.DSN)
		setString(&cfg.Sentry.Environment, s.Environment)
		setValue(&cfg.Sentry.SampleRate, s.SampleRate)
	}

	if l := payload.Logging; l != nil {
		setString(&cfg.Logging.Level, l.Level)
	}

	return nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
