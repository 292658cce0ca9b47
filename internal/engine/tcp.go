package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/rbright/steno/internal/audio"
)

// maxReplyBytes bounds one TCP reply.
const maxReplyBytes = 1 << 20

var lineParseRegexp = regexp.MustCompile(`^(-?[0-9]+) ([0-9]+) (.*)$`)

// TCP speaks the whisper stream server line protocol: the client writes PCM16
// audio and half-closes, the server answers with "<startms> <endms> <text>"
// lines and closes. One connection per chunk.
type TCP struct {
	cfg    Config
	dialer net.Dialer
}

// NewTCP validates the address.
func NewTCP(cfg Config) (*TCP, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, errors.New("engine address is empty")
	}
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		return nil, fmt.Errorf("parse engine address %q: %w", cfg.Address, err)
	}
	return &TCP{cfg: cfg, dialer: net.Dialer{Timeout: cfg.DialTimeout}}, nil
}

// Transcribe sends one chunk and collects the reply lines.
func (t *TCP) Transcribe(ctx context.Context, req Request) (_ []string, _err error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", t.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dial engine %s: %w", t.cfg.Address, err)
	}
	defer func() {
		if err := conn.Close(); err != nil && _err != nil {
			_err = multierror.Append(_err, fmt.Errorf("close engine connection: %w", err))
		}
	}()

	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set engine deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	pcm := audio.PCM16(req.Samples)
	n, err := conn.Write(pcm)
	if err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	if n != len(pcm) {
		return nil, fmt.Errorf("short audio write: %d < %d", n, len(pcm))
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return nil, fmt.Errorf("half-close engine connection: %w", err)
		}
	}

	reply, err := io.ReadAll(io.LimitReader(conn, maxReplyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read engine reply: %w", err)
	}
	return parseReply(string(reply))
}

// Close is a no-op; connections live for one call.
func (t *TCP) Close() error { return nil }

// Ready checks that the server accepts connections.
func (t *TCP) Ready(ctx context.Context) error {
	conn, err := t.dialer.DialContext(ctx, "tcp", t.cfg.Address)
	if err != nil {
		return fmt.Errorf("dial engine %s: %w", t.cfg.Address, err)
	}
	return conn.Close()
}

// parseReply extracts the text of every non-empty line.
func parseReply(reply string) ([]string, error) {
	var segments []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		text, _, _, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		segments = appendClean(segments, text)
	}
	return segments, nil
}

func parseLine(line string) (string, time.Duration, time.Duration, error) {
	m := lineParseRegexp.FindStringSubmatch(line)
	if len(m) != 4 {
		return "", 0, 0, fmt.Errorf("unexpected engine line %q", line)
	}
	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid start %q: %w", m[1], err)
	}
	end, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid end %q: %w", m[2], err)
	}
	return m[3], time.Duration(start) * time.Millisecond, time.Duration(end) * time.Millisecond, nil
}
