package tle

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	snapshotExt     = ".tle"
	defaultMaxFiles = 5
)

// ErrNoSnapshot is returned when a source has nothing cached.
var ErrNoSnapshot = errors.New("no cached snapshot")

// Cache keeps the last few raw downloads of each source on disk so a
// restart during an upstream outage can still build a catalog. Every source
// gets its own subdirectory; snapshots are named by their fetch time.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache returns a cache rooted at dir keeping maxFiles snapshots per
// source.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	return &Cache{dir: dir, maxFiles: maxFiles}
}

// Write stores data as the snapshot of source fetched at ts, then drops the
// source's oldest snapshots beyond the limit. The file appears atomically.
func (c *Cache) Write(source string, data []byte, ts time.Time) error {
	dir := c.sourceDir(source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "partial-*")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache file: %w", err)
	}

	name := strconv.FormatInt(ts.Unix(), 10) + snapshotExt
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("committing cache file: %w", err)
	}
	return c.prune(source)
}

// LoadLatest returns the newest snapshot of source and its fetch time.
func (c *Cache) LoadLatest(source string) ([]byte, time.Time, error) {
	snaps, err := c.listFiles(source)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(snaps) == 0 {
		return nil, time.Time{}, fmt.Errorf("%s: %w", source, ErrNoSnapshot)
	}

	newest := snaps[0]
	data, err := os.ReadFile(newest.path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
	}
	return data, newest.ts, nil
}

func (c *Cache) sourceDir(source string) string {
	h := fnv.New64a()
	h.Write([]byte(source))
	return filepath.Join(c.dir, fmt.Sprintf("%016x", h.Sum64()))
}

type snapshot struct {
	path string
	ts   time.Time
}

// listFiles returns the snapshots of source, newest first. Leftover
// partial writes and foreign files are ignored.
func (c *Cache) listFiles(source string) ([]snapshot, error) {
	dir := c.sourceDir(source)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var snaps []snapshot
	for _, e := range entries {
		stem, ok := strings.CutSuffix(e.Name(), snapshotExt)
		if !ok || e.IsDir() {
			continue
		}
		unix, err := strconv.ParseInt(stem, 10, 64)
		if err != nil {
			continue
		}
		snaps = append(snaps, snapshot{path: filepath.Join(dir, e.Name()), ts: time.Unix(unix, 0)})
	}
	slices.SortFunc(snaps, func(a, b snapshot) int { return b.ts.Compare(a.ts) })
	return snaps, nil
}

func (c *Cache) prune(source string) error {
	snaps, err := c.listFiles(source)
	if err != nil || len(snaps) <= c.maxFiles {
		return err
	}
	var errs []error
	for _, s := range snaps[c.maxFiles:] {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pruning cache: %w", err)
	}
	return nil
}
