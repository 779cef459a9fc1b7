package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdrienChampion/sat-micro-rust/internal/config"
	"github.com/AdrienChampion/sat-micro-rust/internal/logctx"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)

	stop()

	if err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	// Filled in by PersistentPreRunE, so help and usage never depend on the
	// environment being valid.
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "manage",
		Short:         "Manages the SAT benchmarks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			*cfg = *loaded

			logger := slog.New(logctx.NewTraceHandler(
				slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
			))
			slog.SetDefault(logger)

			cmd.SetContext(logctx.WithLogger(cmd.Context(), logger))

			return nil
		},
	}

	root.AddCommand(newRetrieveCmd(cfg))
	root.AddCommand(newHistoryCmd(cfg))

	return root
}
