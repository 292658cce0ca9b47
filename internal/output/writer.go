package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/rbright/steno/internal/pipeline"
)

const (
	ruleWidth  = 50
	dateLayout = "2006-01-02 15:04:05"
)

// Header describes the session at the top of the transcript file.
type Header struct {
	SessionID    string
	Started      time.Time
	Model        string
	Language     string
	SampleRate   int
	VAD          bool
	VADThreshold float64
}

// Options controls presentation.
type Options struct {
	Timestamps bool
	Verbose    bool
	Console    bool
}

// Stats counts results seen by the writer. Total includes results dropped as
// too short or repetitive.
type Stats struct {
	Total          int64 `json:"total"`
	Transcriptions int64 `json:"transcriptions"`
}

// Writer is the result consumer. Handle is the pipeline callback; the
// embedded observer hooks count and report filtered results.
type Writer struct {
	pipeline.NopObserver

	opts    Options
	header  Header
	file    *os.File
	console io.Writer
	command *CommandSink
	logger  *slog.Logger

	mu     sync.Mutex
	stats  Stats
	closed bool
}

// Open creates or appends to the transcript at path and writes the session
// header. An empty path disables the file. command may be nil.
func Open(path string, header Header, opts Options, console io.Writer, command *CommandSink, logger *slog.Logger) (*Writer, error) {
	if console == nil {
		console = io.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Writer{
		opts:    opts,
		header:  header,
		console: console,
		command: command,
		logger:  logger,
	}

	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create transcript dir: %w", err)
			}
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open transcript %q: %w", path, err)
		}
		w.file = file
		if _, err := io.WriteString(file, sessionHeader(header)); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("write transcript header: %w", err)
		}
	}

	if opts.Console {
		fmt.Fprintln(console, "Real-time audio transcription")
		if path != "" {
			fmt.Fprintf(console, "Output: %s\n", path)
		}
		fmt.Fprintf(console, "Model: %s\n", filepath.Base(header.Model))
		fmt.Fprintf(console, "Language: %s\n", header.Language)
		if header.VAD {
			fmt.Fprintf(console, "VAD: enabled (threshold: %g)\n", header.VADThreshold)
		}
		fmt.Fprintln(console, strings.Repeat("-", ruleWidth))
		fmt.Fprintln(console, "Press Ctrl+C to stop")
		fmt.Fprintln(console, strings.Repeat("-", ruleWidth))
	}
	return w, nil
}

func sessionHeader(h Header) string {
	rule := strings.Repeat("=", ruleWidth)
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\nTRANSCRIPTION SESSION\n%s\n", rule, rule)
	if h.SessionID != "" {
		fmt.Fprintf(&b, "Session: %s\n", h.SessionID)
	}
	fmt.Fprintf(&b, "Started: %s\n", h.Started.Format(dateLayout))
	fmt.Fprintf(&b, "Model: %s\n", h.Model)
	fmt.Fprintf(&b, "Language: %s\n", h.Language)
	fmt.Fprintf(&b, "Sample Rate: %dHz\n", h.SampleRate)
	if h.VAD {
		b.WriteString("VAD: Enabled\n")
		fmt.Fprintf(&b, "VAD Threshold: %g\n", h.VADThreshold)
	} else {
		b.WriteString("VAD: Disabled\n")
	}
	fmt.Fprintf(&b, "%s\n\n", rule)
	return b.String()
}

func sessionFooter(ended time.Time, transcriptions int64) string {
	rule := strings.Repeat("=", ruleWidth)
	return fmt.Sprintf("\n%s\nSession ended: %s\nTotal transcriptions: %d\n%s\n",
		rule, ended.Format(dateLayout), transcriptions, rule)
}

// Handle writes one accepted result. It is a pipeline.Callback.
func (w *Writer) Handle(r pipeline.Result) {
	if strings.TrimSpace(r.Text) == "" {
		return
	}

	line := FormatLine(r, w.opts.Timestamps, w.opts.Verbose)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.stats.Total++
	w.stats.Transcriptions++
	if w.opts.Console {
		fmt.Fprintln(w.console, line)
	}
	if w.file != nil {
		if _, err := io.WriteString(w.file, line+"\n"); err != nil {
			w.logger.Error("write transcript line", "error", err)
		}
	}
	w.mu.Unlock()

	if w.command != nil {
		w.command.Send(r.Text)
	}
}

// ResultFiltered counts results dropped as too short or repetitive.
func (w *Writer) ResultFiltered(reason string, text string, _ float64) {
	if reason == pipeline.FilterEmpty {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Total++
	if w.opts.Verbose && w.opts.Console {
		fmt.Fprintf(w.console, "Skipped: %q (too short/repetitive)\n", text)
	}
}

// Stats returns the running totals.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// PrintStats writes the totals line to the console.
func (w *Writer) PrintStats(elapsed time.Duration) {
	stats := w.Stats()
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.console, FormatStats(stats, elapsed))
}

// Close writes the footer, flushes the command sink and closes the file.
func (w *Writer) Close(ended time.Time) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	stats := w.stats
	w.mu.Unlock()

	if w.command != nil {
		w.command.Close()
	}

	var result *multierror.Error
	if w.file != nil {
		if _, err := io.WriteString(w.file, sessionFooter(ended, stats.Transcriptions)); err != nil {
			result = multierror.Append(result, fmt.Errorf("write transcript footer: %w", err))
		}
		if err := w.file.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close transcript: %w", err))
		}
	}

	if w.opts.Console {
		fmt.Fprintln(w.console)
		fmt.Fprintln(w.console, "Transcription session completed")
		fmt.Fprintf(w.console, "Total transcriptions: %d\n", stats.Transcriptions)
		if w.file != nil {
			fmt.Fprintf(w.console, "Output saved to: %s\n", w.file.Name())
		}
	}
	return result.ErrorOrNil()
}
