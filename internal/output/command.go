package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

const commandQueueSize = 32

// CommandSink pipes every result's text into an external command's stdin
// (e.g. wl-copy). Commands run one at a time on a background goroutine;
// failures are logged and never reach the pipeline.
type CommandSink struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger

	queue chan string
	wg    sync.WaitGroup
	once  sync.Once
}

// NewCommandSink starts the delivery goroutine.
func NewCommandSink(argv []string, timeout time.Duration, logger *slog.Logger) (*CommandSink, error) {
	if len(argv) == 0 {
		return nil, errors.New("command argv cannot be empty")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &CommandSink{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		logger:  logger,
		queue:   make(chan string, commandQueueSize),
	}
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

// Send queues text for delivery, dropping it when the queue is full.
func (s *CommandSink) Send(text string) {
	if text == "" {
		return
	}
	select {
	case s.queue <- text:
	default:
		s.logger.Warn("output command backlog full; result dropped", "command", s.argv[0])
	}
}

// Close delivers what is queued and waits for the goroutine to exit.
func (s *CommandSink) Close() {
	s.once.Do(func() { close(s.queue) })
	s.wg.Wait()
}

func (s *CommandSink) loop() {
	defer s.wg.Done()
	for text := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := runCommandWithInput(ctx, s.argv, text); err != nil {
			s.logger.Error("output command failed", "command", s.argv[0], "error", err.Error())
		}
		cancel()
	}
}

// runCommandWithInput executes argv and writes input to its stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
