// Package doctor runs runtime readiness diagnostics for config, engine, audio, and tools.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/steno/internal/audio"
	"github.com/rbright/steno/internal/config"
	"github.com/rbright/steno/internal/engine"
	"github.com/rbright/steno/internal/logging"
)

const engineProbeTimeout = 3 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
// engineCfg is the engine configuration derived from it.
func Run(ctx context.Context, loaded config.Loaded, engineCfg engine.Config) Report {
	cfg := loaded.Config
	checks := []Check{}

	configMessage := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		configMessage = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMessage})

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "control socket directory is set", "XDG_RUNTIME_DIR is empty; status/stop will not work"))

	checks = append(checks, checkStateDir())
	checks = append(checks, checkEngineReady(ctx, engineCfg))
	checks = append(checks, checkModelFile(cfg.Engine.Model))

	switch cfg.Audio.Source {
	case "pipe":
		checks = append(checks, checkPipeDir(cfg.Audio.Pipe))
		if len(cfg.Audio.CaptureCmd.Argv) > 0 {
			checks = append(checks, checkCommand(cfg.Audio.CaptureCmd.Argv, "audio.capture_cmd"))
		}
	default:
		checks = append(checks, checkAudioSelection(ctx, cfg))
	}

	if len(cfg.Output.Command.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Output.Command.Argv, "output.command"))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkStateDir ensures the log and recordings directory can be created.
func checkStateDir() Check {
	dir, err := logging.StateDir()
	if err != nil {
		return Check{Name: "state.dir", Pass: false, Message: err.Error()}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Check{Name: "state.dir", Pass: false, Message: fmt.Sprintf("create %s: %v", dir, err)}
	}
	return Check{Name: "state.dir", Pass: true, Message: dir}
}

// checkEngineReady connects to the engine and probes its health endpoint.
func checkEngineReady(ctx context.Context, cfg engine.Config) Check {
	name := "engine.ready"
	ctx, cancel := context.WithTimeout(ctx, engineProbeTimeout)
	defer cancel()

	eng, err := engine.Open(ctx, cfg)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	defer eng.Close()

	readier, ok := eng.(engine.Readier)
	if !ok {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s backend at %s has no readiness probe", cfg.Backend, cfg.Address)}
	}
	if err := readier.Ready(ctx); err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s backend ready at %s", cfg.Backend, cfg.Address)}
}

// checkModelFile reports whether the configured model exists on this host.
func checkModelFile(path string) Check {
	name := "engine.model"
	if strings.TrimSpace(path) == "" {
		return Check{Name: name, Pass: true, Message: "no model configured; engine uses its default"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Check{Name: name, Pass: false, Message: fmt.Sprintf("model not found: %s", path)}
		}
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if info.IsDir() {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("model path is a directory: %s", path)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s (%d MiB)", path, info.Size()>>20)}
}

// checkPipeDir validates that the FIFO's parent directory exists.
func checkPipeDir(pipe string) Check {
	dir := os.TempDir()
	if strings.TrimSpace(pipe) != "" {
		dir = filepath.Dir(pipe)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return Check{Name: "audio.pipe", Pass: false, Message: err.Error()}
	}
	if !info.IsDir() {
		return Check{Name: "audio.pipe", Pass: false, Message: fmt.Sprintf("%s is not a directory", dir)}
	}
	return Check{Name: "audio.pipe", Pass: true, Message: fmt.Sprintf("pipe directory %s exists", dir)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}
