package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/asride/kessler/internal/catalog"
)

func constellationCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "constellation TERM",
		Short: "Position every object matching a constellation term",
		Long: `List the subpoints of catalogued objects whose names contain TERM.

The terms GPS and NAVSTAR are equivalent. Objects that cannot be propagated
are reported as skipped.

Examples:
  kesslerctl constellation starlink --limit 50 -s starlink.txt
  kesslerctl constellation gps -s gps-ops.txt -o json`,
		Args: cobra.ExactArgs(1),
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
			engine, err := opts.engine(cat, logger)
			if err != nil {
				return err
			}

			listing := engine.FilterCatalog(ctx, args[0], ref, limit)
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), listing)
			}

			rows := make([][]string, 0, len(listing.Satellites)+len(listing.Skipped))
			for _, p := range listing.Satellites {
				rows = append(rows, []string{p.Name, deg(p.Lat), deg(p.Lon), km(p.Alt), ""})
			}
			for _, s := range listing.Skipped {
				rows = append(rows, []string{s.Name, "-", "-", "-", s.Reason})
			}
			return printTable(cmd.OutOrStdout(), []string{"NAME", "LAT", "LON", "ALT_KM", "SKIPPED"}, rows)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", catalog.DefaultListLimit, "Maximum matches ("+strconv.Itoa(catalog.DefaultListLimit)+" max)")
	return cmd
}
