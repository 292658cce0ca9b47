package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// PipePlaceholder in a capture command is replaced with the FIFO path.
const PipePlaceholder = "{pipe}"

// Helper is an external capture process writing samples into the pipe.
type Helper struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	waitErr error
}

// StartHelper launches argv with every {pipe} replaced by pipePath, then
// waits grace for the process to prove it stays up.
func StartHelper(ctx context.Context, argv []string, pipePath string, stderr io.Writer, grace time.Duration) (*Helper, error) {
	if len(argv) == 0 {
		return nil, errors.New("capture command is empty")
	}

	args := make([]string, len(argv))
	for i, arg := range argv {
		args[i] = strings.ReplaceAll(arg, PipePlaceholder, pipePath)
	}
	if stderr == nil {
		stderr = io.Discard
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture command %q: %w", args[0], err)
	}

	h := &Helper{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.mu.Unlock()
		close(h.done)
	}()

	if grace <= 0 {
		return h, nil
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil, fmt.Errorf("capture command %q exited during startup: %v", args[0], h.err())
	case <-ctx.Done():
		_ = h.Stop(grace)
		return nil, ctx.Err()
	case <-timer.C:
		return h, nil
	}
}

// PID returns the helper's process id.
func (h *Helper) PID() int {
	return h.cmd.Process.Pid
}

// Exited reports whether the helper has terminated.
func (h *Helper) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Helper) err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// Stop sends SIGTERM and waits up to timeout before killing the process.
func (h *Helper) Stop(timeout time.Duration) error {
	if h.Exited() {
		return nil
	}
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-h.done
			return nil
		}
		return fmt.Errorf("signal capture command: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
		if err := h.cmd.Process.Kill(); err != nil && !h.Exited() {
			return fmt.Errorf("kill capture command: %w", err)
		}
		<-h.done
		return nil
	}
}
