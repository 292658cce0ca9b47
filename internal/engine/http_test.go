package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPTranscribePostsMultipartWAV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/inference", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		require.Equal(t, "verbose_json", r.FormValue("response_format"))
		require.Equal(t, "de", r.FormValue("language"))
		require.Equal(t, "true", r.FormValue("translate"))
		require.Equal(t, "0.2", r.FormValue("temperature"))
		require.Equal(t, "earlier words", r.FormValue("prompt"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "chunk.wav", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "RIFF", string(data[:4]))
		require.Len(t, data, 44+4*2)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"text": "ignored when segments exist",
			"segments": []map[string]any{
				{"text": "  hello "},
				{"text": ""},
				{"text": "world  again"},
			},
		})
	}))
	defer srv.Close()

	eng, err := NewHTTP(context.Background(), Config{Address: srv.URL, Language: "de", Translate: true, Temperature: 0.2})
	require.NoError(t, err)
	defer eng.Close()

	segments, err := eng.Transcribe(context.Background(), Request{
		Samples:    []float32{0.1, 0.2, 0.3, 0.4},
		SampleRate: 16000,
		Prompt:     "earlier words",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"hello", "world  again"}, segments)
}

func TestHTTPTranscribeFallsBackToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Empty(t, r.FormValue("prompt"))
		_, _ = io.WriteString(w, `{"text":" just text "}`)
	}))
	defer srv.Close()

	eng, err := NewHTTP(context.Background(), Config{Address: srv.URL})
	require.NoError(t, err)

	segments, err := eng.Transcribe(context.Background(), Request{Samples: []float32{0}, SampleRate: 16000})
	require.NoError(t, err)
	require.Equal(t, []string{"just text"}, segments)
}

func TestHTTPTranscribeErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model not loaded", http.StatusServiceUnavailable)
			},
			want: "model not loaded",
		},
		{
			name: "error body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"error":"bad audio"}`)
			},
			want: "bad audio",
		},
		{
			name: "malformed",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `not json`)
			},
			want: "decode inference response",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			eng, err := NewHTTP(context.Background(), Config{Address: srv.URL})
			require.NoError(t, err)

			_, err = eng.Transcribe(context.Background(), Request{Samples: []float32{0}, SampleRate: 16000})
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestNewHTTPLoadsModel(t *testing.T) {
	var loaded string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/load", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		loaded = r.FormValue("model")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewHTTP(context.Background(), Config{Address: srv.URL, Model: "models/ggml-base.en.bin", LoadModel: true})
	require.NoError(t, err)
	require.Equal(t, "models/ggml-base.en.bin", loaded)
}

func TestNewHTTPLoadModelFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTP(context.Background(), Config{Address: srv.URL, Model: "m.bin", LoadModel: true})
	require.Error(t, err)
	require.Contains(t, err.Error(), "load model")
}

func TestHTTPReady(t *testing.T) {
	var unhealthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	eng, err := NewHTTP(context.Background(), Config{Address: srv.URL, HealthPath: "/healthz"})
	require.NoError(t, err)
	require.NoError(t, eng.Ready(context.Background()))

	unhealthy.Store(true)
	require.Error(t, eng.Ready(context.Background()))
}

func TestParseBaseURL(t *testing.T) {
	u, err := parseBaseURL("127.0.0.1:8080")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8080", u.String())

	_, err = parseBaseURL("")
	require.Error(t, err)

	_, err = parseBaseURL("ftp://host")
	require.Error(t, err)

	_, err = parseBaseURL("http://")
	require.Error(t, err)
}
