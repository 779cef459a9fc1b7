package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var got map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &DiscordNotifier{WebhookURL: srv.URL}
	require.NoError(t, n.Notify(context.Background(), "hello"))
	assert.Equal(t, "hello", got["content"])
}

func TestDiscordNotifier_Errors(t *testing.T) {
	err := (&DiscordNotifier{}).Notify(context.Background(), "hello")
	require.EqualError(t, err, "webhook URL is not set")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err = (&DiscordNotifier{WebhookURL: srv.URL}).Notify(context.Background(), "hello")
	require.EqualError(t, err, "webhook failed with status 429")
}

func TestRunSummary(t *testing.T) {
	assert.Equal(t, "✅ Retrieved 3 benchmarks into ./rsc", RunSummary("./rsc", 3, 0))
	assert.Equal(t, "❌ Benchmark retrieval into ./rsc: 2 retrieved, 1 failed", RunSummary("./rsc", 2, 1))
}
