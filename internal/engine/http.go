package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rbright/steno/internal/audio"
)

const maxErrorBody = 512

// HTTP is a whisper.cpp server client (POST /inference, POST /load).
type HTTP struct {
	cfg    Config
	base   *url.URL
	client *http.Client
}

// NewHTTP validates the server address and, when configured, asks the server
// to load cfg.Model.
func NewHTTP(ctx context.Context, cfg Config) (*HTTP, error) {
	cfg = cfg.withDefaults()
	base, err := parseBaseURL(cfg.Address)
	if err != nil {
		return nil, err
	}

	h := &HTTP{
		cfg:    cfg,
		base:   base,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.LoadModel && strings.TrimSpace(cfg.Model) != "" {
		if err := h.LoadModel(ctx, cfg.Model); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func parseBaseURL(address string) (*url.URL, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("engine address is empty")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse engine address: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("engine address scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("engine address %q has no host", address)
	}
	return u, nil
}

func (h *HTTP) endpoint(path string) string {
	return h.base.JoinPath(path).String()
}

type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text string `json:"text"`
	} `json:"segments"`
	Error string `json:"error"`
}

// Transcribe uploads the chunk as a WAV file and returns the server's segments.
func (h *HTTP) Transcribe(ctx context.Context, req Request) ([]string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	file, err := form.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := audio.EncodeWAV(file, req.Samples, req.SampleRate); err != nil {
		return nil, err
	}

	fields := [][2]string{
		{"response_format", "verbose_json"},
		{"temperature", strconv.FormatFloat(h.cfg.Temperature, 'f', -1, 64)},
		{"language", h.cfg.Language},
		{"translate", strconv.FormatBool(h.cfg.Translate)},
	}
	if req.Prompt != "" {
		fields = append(fields, [2]string{"prompt", req.Prompt})
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", f[0], err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint("/inference"), &body)
	if err != nil {
		return nil, fmt.Errorf("build inference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post inference: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	var decoded inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("inference: %s", decoded.Error)
	}

	var segments []string
	for _, seg := range decoded.Segments {
		segments = appendClean(segments, seg.Text)
	}
	if len(decoded.Segments) == 0 {
		segments = appendClean(segments, decoded.Text)
	}
	return segments, nil
}

// LoadModel asks the server to switch to the model at path.
func (h *HTTP) LoadModel(ctx context.Context, path string) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("model", path); err != nil {
		return fmt.Errorf("write model field: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint("/load"), &body)
	if err != nil {
		return fmt.Errorf("build load request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("load model %q: %w", path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("load model %q: %w", path, err)
	}
	return nil
}

// Ready probes the configured health path.
func (h *HTTP) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint(h.cfg.HealthPath), nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("engine health: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Close releases idle connections.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return fmt.Errorf("unexpected status %s: %s", resp.Status, msg)
}
