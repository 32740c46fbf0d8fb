package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/asride/kessler/internal/events"
)

func feedCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "Show the highest-risk recorded events",
		Long: `Print the top events in the event store by probability. A store that
cannot be read yields an empty feed.

Examples:
  kesslerctl feed --store redis --redis-addr cache:6379
  kesslerctl feed --store mysql --mysql-dsn 'kessler:secret@tcp(db:3306)/kessler' -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := opts.logger(cmd.ErrOrStderr())
			store, err := opts.openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			evs := events.Feed(ctx, store, logger)
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{"events": evs})
			}
			rows := make([][]string, 0, len(evs))
			for _, e := range evs {
				rows = append(rows, []string{
					e.Primary, e.Secondary, km(e.MissDistanceKm), km(e.Probability),
					strconv.FormatFloat(e.TimeToImpactSeconds, 'f', 0, 64),
					e.CreatedAt.Format(time.RFC3339),
				})
			}
			return printTable(cmd.OutOrStdout(), []string{"PRIMARY", "SECONDARY", "MISS_KM", "SCORE", "TCA_S", "CREATED"}, rows)
		},
	}
}

func historyCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent recorded analyses",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := opts.logger(cmd.ErrOrStderr())
			store, err := opts.openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.RecentAudits(ctx, limit)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{"records": records})
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.Timestamp.Format(time.RFC3339), r.ObjectA, r.ObjectB,
					km(r.DistanceKm), km(r.RiskScore), r.Decision,
				})
			}
			return printTable(cmd.OutOrStdout(), []string{"TIME", "OBJECT_A", "OBJECT_B", "MISS_KM", "SCORE", "DECISION"}, rows)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", events.FeedPageSize, "Maximum records")
	return cmd
}

// ignoreCancel treats interruption of a long-running command as success.
func ignoreCancel(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
