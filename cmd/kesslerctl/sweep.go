package main

import (
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/asride/kessler/internal/propagation"
	"github.com/asride/kessler/internal/sweep"
)

func sweepCmd(opts *globalOptions) *cobra.Command {
	cfg := sweep.DefaultConfig()
	var (
		loop    bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Screen primaries against a set of secondaries",
		Long: `Assess every primary against each object matching --secondary and
write results scoring above --threshold to the event store.

By default a single pass runs and its summary is printed. With --loop the
sweep repeats every --interval until interrupted.

Examples:
  kesslerctl sweep -s stations.txt -s debris.txt --secondary DEB
  kesslerctl sweep -s all.txt --primary "ISS (ZARYA)" --primary "CSS (TIANHE)" \
      --store redis --loop --interval 10m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := opts.logger(cmd.ErrOrStderr())
			cat, err := opts.loadCatalog(ctx, cmd, logger)
			if err != nil {
				return err
			}
			engine, err := opts.engine(cat, logger)
			if err != nil {
				return err
			}
			store, err := opts.openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			sweeper := sweep.New(engine, cat, store, propagation.NewWorkerPool(workers, logger), cfg, logger)
			if loop {
				return ignoreCancel(ctx, sweeper.Run(ctx))
			}

			ref, err := opts.referenceTime()
			if err != nil {
				return err
			}
			report, err := sweeper.RunOnce(ctx, ref)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), report)
			}
			return printTable(cmd.OutOrStdout(),
				[]string{"PAIRS", "EVALUATED", "FAILED", "ALERTS", "STORE_FAILURES", "DURATION"},
				[][]string{{
					strconv.Itoa(report.Pairs),
					strconv.Itoa(report.Evaluated),
					strconv.Itoa(report.Failed),
					strconv.Itoa(report.Alerts),
					strconv.Itoa(report.StoreFailures),
					report.Duration.Round(time.Millisecond).String(),
				}})
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&cfg.Primaries, "primary", cfg.Primaries, "Primary object name (repeatable)")
	f.StringVar(&cfg.SecondaryTerm, "secondary", cfg.SecondaryTerm, "Name fragment selecting secondaries")
	f.IntVar(&cfg.MaxPairs, "max-pairs", cfg.MaxPairs, "Maximum pairs per pass")
	f.Float64Var(&cfg.Threshold, "threshold", cfg.Threshold, "Minimum risk score (exclusive) to record an event")
	f.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Pass interval with --loop")
	f.BoolVar(&loop, "loop", false, "Repeat passes until interrupted")
	f.IntVar(&workers, "workers", runtime.NumCPU(), "Concurrent pair assessments")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if cfg.Threshold < 0 || cfg.Threshold > 100 {
			return fmt.Errorf("--threshold must be between 0 and 100")
		}
		return nil
	}
	return cmd
}
