// kesslerctl runs conjunction assessments from the command line against
// element sets loaded from files, URLs or stdin.
//
// Usage:
//
//	kesslerctl analyze "ISS" "COSMOS 2251 DEB" -s stations.txt -s debris.txt
//	kesslerctl constellation starlink --limit 20 -s https://celestrak.org/...
//	kesslerctl satellites DEB -s - < catalog.tle
//	kesslerctl sweep --primary "ISS (ZARYA)" --secondary DEB --store redis
//	kesslerctl feed --store mysql --mysql-dsn 'user:pass@tcp(db:3306)/kessler'
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "kesslerctl",
		Short: "Assess conjunction risk between catalogued objects",
		Long: `kesslerctl loads two-line element sets, propagates them with SGP4 and
scores the closest approach between pairs of objects.

Sources are URLs, file paths or "-" for stdin and may be repeated.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts.bind(rootCmd)

	rootCmd.AddCommand(analyzeCmd(opts))
	rootCmd.AddCommand(constellationCmd(opts))
	rootCmd.AddCommand(satellitesCmd(opts))
	rootCmd.AddCommand(sweepCmd(opts))
	rootCmd.AddCommand(feedCmd(opts))
	rootCmd.AddCommand(historyCmd(opts))

	return rootCmd
}
