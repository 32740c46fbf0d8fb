// Package catalog holds the tracked objects the conjunction engine can name.
//
// A Catalog is loaded exactly once from a list of element-set sources and is
// read-only afterwards. Reads go through an atomically published snapshot
// and take no locks.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asride/kessler/internal/metrics"
	"github.com/asride/kessler/internal/propagation"
	"github.com/asride/kessler/internal/tle"
)

// DefaultListLimit caps ListMatching results when no positive limit is given.
const DefaultListLimit = 500

var (
	// ErrObjectNotFound is returned when a name resolves to no object.
	ErrObjectNotFound = errors.New("object not found")
	// ErrCatalogNotLoaded is returned by reads issued before Ingest completes.
	ErrCatalogNotLoaded = errors.New("catalog not loaded")
)

// TrackedObject is one catalogued object. Values are immutable after ingestion.
type TrackedObject struct {
	Name     string
	NORADID  int
	Epoch    time.Time
	Elements propagation.ElementSet
}

// SourceFailure records one element-set source that could not be ingested.
type SourceFailure struct {
	Locator string
	Err     error
}

func (f SourceFailure) Error() string {
	return fmt.Sprintf("source %s: %v", f.Locator, f.Err)
}

func (f SourceFailure) Unwrap() error { return f.Err }

// IngestReport summarises the one-time load.
type IngestReport struct {
	Loaded   int
	Sources  int
	Failures []SourceFailure
	Epochs   tle.EpochRange // over every parsed entry, superseded ones included
}

type snapshot struct {
	objects []TrackedObject
	index   map[string]int
	report  IngestReport
}

// Catalog is an insertion-ordered name to object mapping.
type Catalog struct {
	strategy MatchStrategy
	logger   *slog.Logger

	once sync.Once
	snap atomic.Pointer[snapshot]
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithMatchStrategy sets the strategy used when a name has no exact key.
func WithMatchStrategy(s MatchStrategy) Option {
	return func(c *Catalog) {
		if s != nil {
			c.strategy = s
		}
	}
}

// New returns an empty, unloaded catalog using FirstSubstringMatch.
func New(logger *slog.Logger, opts ...Option) *Catalog {
	c := &Catalog{strategy: FirstSubstringMatch{}, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ingest loads every source independently. A failing source is logged and
// recorded in the report while the rest continue. Only the first call does
// any work; later calls return the first report. The catalog is marked
// loaded even when every source fails.
func (c *Catalog) Ingest(ctx context.Context, sources []tle.Source) IngestReport {
	c.once.Do(func() { c.load(ctx, sources) })
	return c.Report()
}

// load builds the snapshot and publishes it, report included, in one store.
func (c *Catalog) load(ctx context.Context, sources []tle.Source) {
	start := time.Now()
	report := IngestReport{Sources: len(sources)}
	snap := &snapshot{index: make(map[string]int)}
	var parsed []tle.TLEEntry

	for _, src := range sources {
		entries, err := c.loadSource(ctx, src)
		if err != nil {
			report.Failures = append(report.Failures, SourceFailure{Locator: src.Locator(), Err: err})
			metrics.RecordIngestSource("failed")
			c.logger.Warn("element-set source failed",
				"component", "catalog",
				"source", src.Locator(),
				"error", err,
			)
			continue
		}
		metrics.RecordIngestSource("ok")
		parsed = append(parsed, entries...)

		for _, e := range entries {
			obj := TrackedObject{
				Name:    e.Name,
				NORADID: e.NORADID,
				Epoch:   e.Epoch,
				Elements: propagation.ElementSet{
					NORADID: e.NORADID,
					Line1:   e.Line1,
					Line2:   e.Line2,
				},
			}
			if i, ok := snap.index[obj.Name]; ok {
				snap.objects[i] = obj
				continue
			}
			snap.index[obj.Name] = len(snap.objects)
			snap.objects = append(snap.objects, obj)
		}
		c.logger.Info("element-set source loaded",
			"component", "catalog",
			"source", src.Locator(),
			"entries", len(entries),
		)
	}

	report.Loaded = len(snap.objects)
	report.Epochs = tle.EpochSpan(parsed)
	snap.report = report
	c.snap.Store(snap)
	metrics.SetCatalogObjects(report.Loaded)

	level := slog.LevelInfo
	if len(sources) > 0 && len(report.Failures) == len(sources) {
		level = slog.LevelError
	}
	c.logger.Log(ctx, level, "catalog loaded",
		"component", "catalog",
		"objects", report.Loaded,
		"sources", report.Sources,
		"failed_sources", len(report.Failures),
		"oldest_epoch", report.Epochs.Oldest,
		"newest_epoch", report.Epochs.Newest,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (c *Catalog) loadSource(ctx context.Context, src tle.Source) ([]tle.TLEEntry, error) {
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := tle.Parse(bytes.NewReader(data), c.logger)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("no parsable element sets")
	}
	return entries, nil
}

// Loaded reports whether Ingest has completed.
func (c *Catalog) Loaded() bool {
	return c.snap.Load() != nil
}

// Report returns the ingestion report, or the zero report before load.
func (c *Catalog) Report() IngestReport {
	s := c.snap.Load()
	if s == nil {
		return IngestReport{}
	}
	return s.report
}

// Strategy returns the configured fuzzy match strategy.
func (c *Catalog) Strategy() MatchStrategy {
	return c.strategy
}

// Len returns the number of tracked objects.
func (c *Catalog) Len() int {
	s := c.snap.Load()
	if s == nil {
		return 0
	}
	return len(s.objects)
}

// Resolve finds the object for name: an exact, case-sensitive key first,
// then the configured match strategy.
func (c *Catalog) Resolve(name string) (TrackedObject, error) {
	s := c.snap.Load()
	if s == nil {
		return TrackedObject{}, ErrCatalogNotLoaded
	}
	if i, ok := s.index[name]; ok {
		return s.objects[i], nil
	}
	if strings.TrimSpace(name) != "" {
		if i, ok := c.strategy.Match(s.objects, name); ok {
			return s.objects[i], nil
		}
	}
	return TrackedObject{}, fmt.Errorf("%w: %q", ErrObjectNotFound, name)
}

// NormalizeConstellation upper-cases term and folds the upstream naming
// quirks: anything mentioning STARLINK is STARLINK and GPS satellites are
// catalogued as NAVSTAR.
func NormalizeConstellation(term string) string {
	t := strings.ToUpper(strings.TrimSpace(term))
	switch {
	case strings.Contains(t, "STARLINK"):
		return "STARLINK"
	case strings.Contains(t, "GPS"):
		return "NAVSTAR"
	}
	return t
}

// ListMatching returns, in catalog order, up to limit objects whose name
// contains the normalized term. A non-positive limit means DefaultListLimit.
func (c *Catalog) ListMatching(term string, limit int) []TrackedObject {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var out []TrackedObject
	for obj := range c.Matching(term) {
		out = append(out, obj)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Matching yields, in catalog order, every object whose name contains the
// normalized term. Callers that cap on something other than the match count
// stop the iteration themselves.
func (c *Catalog) Matching(term string) iter.Seq[TrackedObject] {
	return func(yield func(TrackedObject) bool) {
		s := c.snap.Load()
		if s == nil {
			return
		}
		norm := NormalizeConstellation(term)
		for _, obj := range s.objects {
			if strings.Contains(strings.ToUpper(obj.Name), norm) && !yield(obj) {
				return
			}
		}
	}
}

// Names returns the sorted names containing fragment, case-insensitively.
// An empty fragment lists every name.
func (c *Catalog) Names(fragment string) []string {
	s := c.snap.Load()
	if s == nil {
		return []string{}
	}
	f := strings.ToUpper(strings.TrimSpace(fragment))
	names := make([]string, 0, len(s.objects))
	for _, obj := range s.objects {
		if f == "" || strings.Contains(strings.ToUpper(obj.Name), f) {
			names = append(names, obj.Name)
		}
	}
	sort.Strings(names)
	return names
}

// All returns a copy of every object in catalog order.
func (c *Catalog) All() []TrackedObject {
	s := c.snap.Load()
	if s == nil {
		return nil
	}
	return slices.Clone(s.objects)
}
