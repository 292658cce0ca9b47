package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/steno/internal/pipeline"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHandlerRoutes(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	server := httptest.NewServer(Handler(Routes{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("steno_chunks_total 1\n"))
		}),
		Healthy: healthy.Load,
		Stats: func() any {
			return pipeline.Stats{Emitted: 7, ChunksDropped: 2}
		},
	}))
	t.Cleanup(server.Close)

	status, body := get(t, server.URL+"/metrics")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "steno_chunks_total")

	status, body = get(t, server.URL+"/healthz")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok\n", body)

	healthy.Store(false)
	status, _ = get(t, server.URL+"/healthz")
	require.Equal(t, http.StatusServiceUnavailable, status)

	status, body = get(t, server.URL+"/stats")
	require.Equal(t, http.StatusOK, status)
	var stats pipeline.Stats
	require.NoError(t, json.Unmarshal([]byte(body), &stats))
	require.Equal(t, int64(7), stats.Emitted)
	require.Equal(t, int64(2), stats.ChunksDropped)

	status, _ = get(t, server.URL+"/ws")
	require.Equal(t, http.StatusNotFound, status)
}

func TestHandlerWithoutStats(t *testing.T) {
	server := httptest.NewServer(Handler(Routes{}))
	t.Cleanup(server.Close)

	status, _ := get(t, server.URL+"/stats")
	require.Equal(t, http.StatusNotFound, status)

	status, _ = get(t, server.URL+"/healthz")
	require.Equal(t, http.StatusOK, status)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", Routes{}, nil)
	ln, err := s.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenReportsBindErrors(t *testing.T) {
	s := New("127.0.0.1:0", Routes{}, nil)
	ln, err := s.Listen()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	taken := New(ln.Addr().String(), Routes{}, nil)
	_, err = taken.Listen()
	require.Error(t, err)
	require.Contains(t, err.Error(), "listen")
}
