package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/asride/kessler/internal/conjunction"
	"github.com/asride/kessler/internal/events"
)

func analyzeCmd(opts *globalOptions) *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "analyze OBJECT_A OBJECT_B",
		Short: "Assess the collision risk between two objects",
		Long: `Find the closest approach between two catalogued objects over the
search window and score it.

Names are matched with --match: an exact name wins,
otherwise the first or best substring match is used.

Examples:
  kesslerctl analyze ISS "COSMOS 2251 DEB" -s stations.txt -s debris.txt
  kesslerctl analyze ISS HST -s stations.txt -o json --at 2024-04-10T12:00:00Z
  kesslerctl analyze ISS DEB -s all.txt --record --store redis`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := opts.logger(cmd.ErrOrStderr())
			ref, err := opts.referenceTime()
			if err != nil {
				return err
			}
			cat, err := opts.loadCatalog(ctx, cmd, logger)
			if err != nil {
				return err
			}

			var extra []conjunction.Option
			var store events.Store
			if record {
				store, err = opts.openStore(ctx, logger)
				if err != nil {
					return err
				}
				defer store.Close()
				extra = append(extra, conjunction.WithAuditSink(events.NewRecorder(store, events.DefaultWriteTimeout, logger)))
			}
			engine, err := opts.engine(cat, logger, append(extra, conjunction.WithClock(func() time.Time { return ref }))...)
			if err != nil {
				return err
			}

			a, err := engine.Analyze(ctx, conjunction.Query{ObjectA: args[0], ObjectB: args[1]})
			if err != nil {
				return err
			}
			if err := <-a.Persisted; err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: result not recorded: %v\n", err)
			}

			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), a.Result)
			}
			return printResult(cmd, a.Result)
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "Record the result in the event store")
	return cmd
}

func printResult(cmd *cobra.Command, r conjunction.Result) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s vs %s at %s\n\n", r.ObjectA.Name, r.ObjectB.Name, r.ReferenceTime.Format(time.RFC3339))
	if err := printTable(w, []string{"OBJECT", "NORAD", "LAT", "LON", "ALT_KM", "SPEED_KM_S"}, [][]string{
		objectRow(r.ObjectA),
		objectRow(r.ObjectB),
	}); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return printTable(w, []string{"MISS_KM", "TCA_S", "REL_KM_S", "SCORE", "TIER"}, [][]string{{
		km(r.MissDistanceKm),
		strconv.FormatFloat(r.TimeToClosestApproachS, 'f', 0, 64),
		kmps(r.RelativeVelocityKmS),
		km(r.RiskScore),
		r.DecisionTier.String(),
	}})
}

func objectRow(o conjunction.ObjectReport) []string {
	return []string{o.Name, strconv.Itoa(o.NORADID), deg(o.Lat), deg(o.Lon), km(o.Alt), kmps(o.VelocityKmS)}
}
