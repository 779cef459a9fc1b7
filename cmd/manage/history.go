package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/AdrienChampion/sat-micro-rust/internal/config"
	"github.com/AdrienChampion/sat-micro-rust/internal/storage"
	"github.com/AdrienChampion/sat-micro-rust/internal/storage/sqlite"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCmd(cfg *config.Config) *cobra.Command {
	var (
		limit  int
		status string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "shows the most recent benchmark retrievals recorded in DB_PATH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd.Context(), cmd.OutOrStdout(), cfg, status, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records to show")
	cmd.Flags().StringVar(&status, "status", "", "only show records with this status ("+storage.StatusRetrieved+" or "+storage.StatusFailed+")")

	return cmd
}

func runHistory(ctx context.Context, w io.Writer, cfg *config.Config, status string, limit int) error {
	if cfg.DBPath == "" {
		return errors.New("DB_PATH is not set, there is no retrieval journal")
	}

	if status != "" && status != storage.StatusRetrieved && status != storage.StatusFailed {
		return fmt.Errorf("invalid status %q", status)
	}

	if limit < 1 {
		return fmt.Errorf("limit must be at least 1, got %d", limit)
	}

	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedRetrievalRepository(database, nil)

	var records []storage.RetrievalRecord
	if status == "" {
		records, err = repo.GetRetrievals(ctx, limit)
	} else {
		records, err = repo.GetRetrievalsByStatus(ctx, status, limit)
	}

	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	return printRecords(w, records)
}

func printRecords(w io.Writer, records []storage.RetrievalRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "RETRIEVED AT\tSTATUS\tSIZE\tURI\tDETAIL")

	for _, rec := range records {
		detail := rec.FilePath
		if rec.Status == storage.StatusFailed {
			detail = rec.Error
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.RetrievedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Status,
			humanize.Bytes(uint64(rec.Size)),
			rec.URI,
			detail,
		)
	}

	return tw.Flush()
}
