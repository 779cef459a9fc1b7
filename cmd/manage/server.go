package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/AdrienChampion/sat-micro-rust/internal/config"
	"github.com/AdrienChampion/sat-micro-rust/internal/logctx"
	"github.com/AdrienChampion/sat-micro-rust/internal/telemetry"
	"github.com/go-chi/chi/v5"
)

// setupServer builds the metrics server that runs alongside a retrieval.
func setupServer(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) *http.Server {
	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      routes(tel),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func routes(tel *telemetry.Telemetry) http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID, telemetry.HTTPLogging, tel.Middleware)

	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

func shutdownServer(ctx context.Context, server *http.Server, timeout time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	// Give outstanding requests a deadline for completion.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("failed to gracefully shutdown the server", "err", err)

		if err = server.Close(); err != nil {
			logger.Error("could not stop server", "err", err)
		}
	}
}
