package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/AdrienChampion/sat-micro-rust/internal/benchmarks"
	"github.com/AdrienChampion/sat-micro-rust/internal/config"
	"github.com/AdrienChampion/sat-micro-rust/internal/fetch"
	"github.com/AdrienChampion/sat-micro-rust/internal/logctx"
	"github.com/AdrienChampion/sat-micro-rust/internal/notifier"
	"github.com/AdrienChampion/sat-micro-rust/internal/storage"
	"github.com/AdrienChampion/sat-micro-rust/internal/storage/sqlite"
	"github.com/AdrienChampion/sat-micro-rust/internal/telemetry"
	"github.com/spf13/cobra"
)

const defaultTargetDir = "./rsc"

func newRetrieveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "retrieve [TARGET_DIR]",
		Short: "retrieves the benchmarks from SAT-COMP 2020",
		Long: `Downloads every SAT-COMP 2020 benchmark into TARGET_DIR.

TARGET_DIR will be created if necessary and defaults to ` + defaultTargetDir + `.
A benchmark that cannot be downloaded does not stop the others; the command
fails once all have been attempted if any of them failed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetrieve(cmd.Context(), cfg, targetDir(args))
		},
	}
}

func targetDir(args []string) string {
	if len(args) == 1 && args[0] != "" {
		return args[0]
	}

	return defaultTargetDir
}

func runRetrieve(ctx context.Context, cfg *config.Config, target string) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Journal
	var journal storage.RetrievalWriteRepository

	if cfg.DBPath != "" {
		database, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			logger.Error("DB error", "err", err)

			return err
		}
		defer database.Close()

		journal = sqlite.NewInstrumentedRetrievalRepository(database, tel)
	}

	// =========================================================================
	// Start Metrics Server
	if cfg.Web.BindAddress != "" {
		server := setupServer(ctx, cfg, tel)

		go func() {
			logger.Info("serving metrics", "host", cfg.Web.BindAddress)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "err", err)
			}
		}()

		defer shutdownServer(ctx, server, cfg.Web.ShutdownTimeout)
	}

	// =========================================================================
	// Start Fetcher
	client := &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: tel.Transport(http.DefaultTransport),
	}

	fetcher, err := fetch.NewFetcher(target, cfg.MaxParallel, client, tel, journal)
	if err != nil {
		return err
	}

	uris := benchmarks.URIs()

	retrieved, runErr := fetcher.Run(ctx, uris)

	var targetErr *fetch.TargetError
	if errors.As(runErr, &targetErr) {
		return runErr
	}

	failures := fetch.Failures(runErr)
	for _, failure := range failures {
		logger.Error("benchmark retrieval failed", "uri", failure.URI, "err", failure.Err)
	}

	notify(ctx, cfg, notifier.RunSummary(target, retrieved, len(failures)))

	if runErr != nil {
		return fmt.Errorf("%d of %d benchmarks could not be retrieved", len(failures), len(uris))
	}

	return nil
}

func notify(ctx context.Context, cfg *config.Config, content string) {
	if cfg.DiscordWebhookURL == "" {
		return
	}

	notif := &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}

	if err := notif.Notify(context.WithoutCancel(ctx), content); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to send notification", "err", err)
	}
}
