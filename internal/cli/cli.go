// Package cli parses steno's command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/rbright/steno/internal/config"
)

// Command is one steno subcommand.
type Command string

const (
	CommandRun     Command = "run"
	CommandStatus  Command = "status"
	CommandStop    Command = "stop"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:     {},
	CommandStatus:  {},
	CommandStop:    {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

// runFlags only make sense for a transcription session.
var runFlags = []string{
	"output", "model", "language", "translate", "save-audio", "no-timestamps",
	"no-vad", "vad-threshold", "threads", "verbose", "pipe", "source",
}

// Overrides holds run flags that were explicitly set. Nil means "use config".
type Overrides struct {
	Output       *string
	Model        *string
	Language     *string
	Translate    *bool
	SaveAudio    *bool
	NoTimestamps *bool
	NoVAD        *bool
	VADThreshold *float64
	Threads      *int
	Verbose      *bool
	Pipe         *string
	Source       *string
}

// Parsed is the result of Parse.
type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	Overrides  Overrides
}

type flagValues struct {
	help         bool
	version      bool
	configPath   string
	output       string
	model        string
	language     string
	translate    bool
	saveAudio    bool
	noTimestamps bool
	noVAD        bool
	vadThreshold float64
	threads      int
	verbose      bool
	pipe         string
	source       string
}

func newFlagSet(v *flagValues) *pflag.FlagSet {
	fs := pflag.NewFlagSet("steno", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.StringVarP(&v.output, "output", "o", "", "transcript file (default: transcript.txt)")
	fs.StringVarP(&v.model, "model", "m", "", "model path passed to the engine")
	fs.StringVarP(&v.language, "language", "l", "", "language code (default: en)")
	fs.BoolVarP(&v.translate, "translate", "t", false, "translate to English")
	fs.BoolVar(&v.saveAudio, "save-audio", false, "record captured audio to a WAV file")
	fs.BoolVar(&v.noTimestamps, "no-timestamps", false, "omit [HH:MM:SS] prefixes")
	fs.BoolVar(&v.noVAD, "no-vad", false, "disable voice activity detection")
	fs.Float64Var(&v.vadThreshold, "vad-threshold", 0, "VAD threshold 0.0-1.0 (default: 0.6)")
	fs.IntVar(&v.threads, "threads", 0, "engine threads (default: 4)")
	fs.BoolVarP(&v.verbose, "verbose", "v", false, "print confidence, skipped results and periodic stats")
	fs.StringVar(&v.pipe, "pipe", "", "read float32 samples from this FIFO (implies --source pipe)")
	fs.StringVar(&v.source, "source", "", "audio source: pulse or pipe")
	fs.StringVar(&v.configPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/steno/config.jsonc)")
	fs.BoolVarP(&v.help, "help", "h", false, "show help")
	fs.BoolVar(&v.version, "version", false, "show version")
	return fs
}

// Parse reads args (without the program name). No command means run.
func Parse(args []string) (Parsed, error) {
	var v flagValues
	fs := newFlagSet(&v)
	if err := fs.Parse(args); err != nil {
		return Parsed{}, err
	}

	parsed := Parsed{Command: CommandRun, ConfigPath: v.configPath}

	positional := fs.Args()
	if len(positional) > 1 {
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", positional[0])
	}
	if len(positional) == 1 {
		cmd := Command(positional[0])
		if _, ok := validCommands[cmd]; !ok {
			return Parsed{}, fmt.Errorf("unknown command: %s", positional[0])
		}
		parsed.Command = cmd
	}

	switch {
	case v.help:
		parsed.Command = CommandHelp
	case v.version:
		parsed.Command = CommandVersion
	}
	parsed.ShowHelp = parsed.Command == CommandHelp

	if parsed.Command != CommandRun && parsed.Command != CommandHelp {
		for _, name := range runFlags {
			if fs.Changed(name) {
				return Parsed{}, fmt.Errorf("flag --%s only applies to run", name)
			}
		}
	}

	if fs.Changed("vad-threshold") && (v.vadThreshold < 0 || v.vadThreshold > 1) {
		return Parsed{}, errors.New("--vad-threshold must be within [0, 1]")
	}
	if fs.Changed("threads") && v.threads < 0 {
		return Parsed{}, errors.New("--threads must be >= 0")
	}

	o := &parsed.Overrides
	changedString(fs, "output", v.output, &o.Output)
	changedString(fs, "model", v.model, &o.Model)
	changedString(fs, "language", v.language, &o.Language)
	changedString(fs, "pipe", v.pipe, &o.Pipe)
	changedString(fs, "source", v.source, &o.Source)
	changedValue(fs, "translate", v.translate, &o.Translate)
	changedValue(fs, "save-audio", v.saveAudio, &o.SaveAudio)
	changedValue(fs, "no-timestamps", v.noTimestamps, &o.NoTimestamps)
	changedValue(fs, "no-vad", v.noVAD, &o.NoVAD)
	changedValue(fs, "vad-threshold", v.vadThreshold, &o.VADThreshold)
	changedValue(fs, "threads", v.threads, &o.Threads)
	changedValue(fs, "verbose", v.verbose, &o.Verbose)

	return parsed, nil
}

func changedString(fs *pflag.FlagSet, name string, value string, dst **string) {
	if fs.Changed(name) {
		trimmed := strings.TrimSpace(value)
		*dst = &trimmed
	}
}

func changedValue[T any](fs *pflag.FlagSet, name string, value T, dst **T) {
	if fs.Changed(name) {
		*dst = &value
	}
}

// Apply overlays the explicitly set flags onto cfg.
func (o Overrides) Apply(cfg *config.Config) {
	if o.Output != nil {
		cfg.Output.File = *o.Output
	}
	if o.Model != nil {
		cfg.Engine.Model = *o.Model
	}
	if o.Language != nil {
		cfg.Engine.Language = *o.Language
	}
	if o.Translate != nil {
		cfg.Engine.Translate = *o.Translate
	}
	if o.SaveAudio != nil {
		cfg.Audio.SaveAudio = *o.SaveAudio
	}
	if o.NoTimestamps != nil {
		cfg.Output.Timestamps = !*o.NoTimestamps
	}
	if o.NoVAD != nil {
		cfg.VAD.Enable = !*o.NoVAD
	}
	if o.VADThreshold != nil {
		cfg.VAD.Threshold = *o.VADThreshold
	}
	if o.Threads != nil {
		cfg.Engine.Threads = *o.Threads
	}
	if o.Verbose != nil {
		cfg.Output.Verbose = *o.Verbose
	}
	if o.Source != nil {
		cfg.Audio.Source = strings.ToLower(*o.Source)
	}
	if o.Pipe != nil {
		cfg.Audio.Pipe = *o.Pipe
		if o.Source == nil {
			cfg.Audio.Source = "pipe"
		}
	}
}

// HelpText renders usage for binaryName.
func HelpText(binaryName string) string {
	var v flagValues
	fs := newFlagSet(&v)
	return fmt.Sprintf(`Usage:
  %[1]s [flags] [command]

Commands:
  run       Transcribe live audio until interrupted (default)
  status    Print the running session's state and counters
  stop      Ask the running session to stop
  devices   List available input devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
%[2]s
Examples:
  %[1]s -o meeting.txt
  %[1]s -m models/ggml-small.en.bin --save-audio
  %[1]s -l es --translate --vad-threshold 0.7
`, binaryName, fs.FlagUsages())
}
