package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AdrienChampion/sat-micro-rust/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledTelemetryIsNoop(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, tel.Enabled())

	boom := errors.New("boom")
	called := 0

	err = tel.InstrumentFetch(context.Background(), "https://example.org/x", func(context.Context) error {
		called++

		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, called)

	require.NoError(t, tel.InstrumentDBOperation(context.Background(), "track", func(context.Context) error { return nil }))

	base := http.DefaultTransport
	assert.Same(t, base, tel.Transport(base))

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNilTelemetryIsNoop(t *testing.T) {
	var tel *Telemetry

	err := tel.InstrumentRun(context.Background(), 3, func(context.Context) error { return nil })
	require.NoError(t, err)

	tel.RecordFetch("success", 0)
	tel.RecordBytesWritten(10)
	tel.RecordDBOperation("track", "success", 0)
	tel.IncrementHTTPInFlight()
	tel.DecrementHTTPInFlight()

	assert.False(t, tel.Enabled())
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestEnabledTelemetry(t *testing.T) {
	ctx := context.Background()

	tel, err := New(ctx, Config{Enabled: true, ServiceName: "manage-test"})
	require.NoError(t, err)

	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	require.True(t, tel.Enabled())

	boom := errors.New("boom")
	require.NoError(t, tel.InstrumentFetch(ctx, "https://example.org/ok", func(context.Context) error { return nil }))
	require.ErrorIs(t, tel.InstrumentFetch(ctx, "https://example.org/ko", func(context.Context) error { return boom }), boom)
	tel.RecordBytesWritten(42)

	var sawValidSpan bool

	require.NoError(t, tel.InstrumentRun(ctx, 2, func(ctx context.Context) error {
		var buf bytes.Buffer
		logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(&buf, nil)))
		logger.InfoContext(ctx, "inside run")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		_, sawValidSpan = entry["trace_id"]

		return nil
	}))
	assert.True(t, sawValidSpan, "run span should be valid and show up in logs")

	srv := httptest.NewServer(tel.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "benchmark_fetches")
	assert.Contains(t, string(body), "benchmark_bytes_written")

	assert.NotSame(t, http.DefaultTransport, tel.Transport(http.DefaultTransport))
}

func TestRequestIDAndLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen string

	h := RequestID(HTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())

		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req = req.WithContext(logctx.WithLogger(req.Context(), logger))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, seen, entry["request_id"])
}

func TestRequestIDPropagatesUpstreamHeader(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "upstream-id", GetRequestID(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-id", rec.Header().Get(RequestIDHeader))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusOK))
	assert.Equal(t, "3xx", statusClass(http.StatusFound))
	assert.Equal(t, "4xx", statusClass(http.StatusNotFound))
	assert.Equal(t, "5xx", statusClass(http.StatusBadGateway))
	assert.Equal(t, "unknown", statusClass(http.StatusContinue))
}
