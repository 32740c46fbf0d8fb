package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/asride/kessler/internal/catalog"
	"github.com/asride/kessler/internal/conjunction"
	"github.com/asride/kessler/internal/events"
	"github.com/asride/kessler/internal/propagation"
	"github.com/asride/kessler/internal/tle"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	sources  []string
	match    string
	logLevel string
	output   string
	at       string
	window   float64
	samples  int

	store     string
	mysqlDSN  string
	redisAddr string
	redisDB   int
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringArrayVarP(&o.sources, "source", "s", nil, "Element-set source: URL, file path or - for stdin (repeatable)")
	f.StringVar(&o.match, "match", "first", "Name match strategy: first, best")
	f.StringVar(&o.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	f.StringVarP(&o.output, "output", "o", "table", "Output format: table, json")
	f.StringVar(&o.at, "at", "", "Reference instant (RFC 3339); defaults to now")
	f.Float64Var(&o.window, "window", conjunction.DefaultWindowMinutes, "Closest-approach search window in minutes")
	f.IntVar(&o.samples, "samples", conjunction.DefaultSamples, "Closest-approach search samples")

	defaults := events.DefaultConfig()
	f.StringVar(&o.store, "store", defaults.Backend, "Event store backend: memory, mysql, redis")
	f.StringVar(&o.mysqlDSN, "mysql-dsn", "", "MySQL DSN for --store mysql")
	f.StringVar(&o.redisAddr, "redis-addr", defaults.RedisAddr, "Redis address for --store redis")
	f.IntVar(&o.redisDB, "redis-db", 0, "Redis database for --store redis")
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *globalOptions) referenceTime() (time.Time, error) {
	if o.at == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, o.at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at value %q: %w", o.at, err)
	}
	return t.UTC(), nil
}

// loadCatalog ingests every --source into a fresh catalog. It fails only when
// nothing at all could be loaded.
func (o *globalOptions) loadCatalog(ctx context.Context, cmd *cobra.Command, logger *slog.Logger) (*catalog.Catalog, error) {
	if len(o.sources) == 0 {
		return nil, fmt.Errorf("at least one --source is required")
	}
	match, err := catalog.ParseMatchStrategy(o.match)
	if err != nil {
		return nil, err
	}

	sources := make([]tle.Source, 0, len(o.sources))
	for _, loc := range o.sources {
		if loc == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			sources = append(sources, tle.NewStaticSource("stdin", data))
			continue
		}
		sources = append(sources, tle.NewSource(loc, logger))
	}

	cat := catalog.New(logger, catalog.WithMatchStrategy(match))
	report := cat.Ingest(ctx, sources)
	for _, f := range report.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", f)
	}
	if report.Loaded == 0 {
		return nil, fmt.Errorf("no objects loaded from %d source(s)", report.Sources)
	}
	return cat, nil
}

func (o *globalOptions) engine(cat *catalog.Catalog, logger *slog.Logger, extra ...conjunction.Option) (*conjunction.Engine, error) {
	if !(o.window > 0) || math.IsInf(o.window, 1) || o.samples < 1 {
		return nil, fmt.Errorf("--window and --samples must be positive")
	}
	opts := append([]conjunction.Option{
		conjunction.WithSearch(conjunction.UniformGrid{WindowMinutes: o.window, Samples: o.samples}),
	}, extra...)
	return conjunction.NewEngine(cat, propagation.NewSGP4Adapter(logger), logger, opts...), nil
}

func (o *globalOptions) openStore(ctx context.Context, logger *slog.Logger) (events.Store, error) {
	cfg := events.DefaultConfig()
	cfg.Backend = strings.ToLower(o.store)
	cfg.MySQLDSN = o.mysqlDSN
	cfg.RedisAddr = o.redisAddr
	cfg.RedisDB = o.redisDB
	return events.Open(ctx, cfg, logger)
}
