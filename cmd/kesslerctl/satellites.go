package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func satellitesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "satellites [FRAGMENT]",
		Short: "List catalogued object names",
		Long: `List the names of all loaded objects, sorted, optionally restricted to
names containing FRAGMENT (case-insensitive).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			logger := opts.logger(cmd.ErrOrStderr())
			cat, err := opts.loadCatalog(cmd.Context(), cmd, logger)
			if err != nil {
				return err
			}
			var fragment string
			if len(args) == 1 {
				fragment = args[0]
			}
			names := cat.Names(fragment)
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{"satellites": names, "count": len(names)})
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
