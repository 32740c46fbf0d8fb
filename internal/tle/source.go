package tle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Source produces raw element-set text from one locator.
type Source interface {
	Locator() string
	Fetch(ctx context.Context) ([]byte, error)
}

// NewSource returns the Source for a locator: http(s) URLs are fetched
// remotely, file:// URLs and bare paths are read from disk.
func NewSource(locator string, logger *slog.Logger) Source {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return NewFetcher(locator, logger)
	}
	return fileSource{path: strings.TrimPrefix(locator, "file://"), locator: locator}
}

type fileSource struct {
	path    string
	locator string
}

func (s fileSource) Locator() string { return s.locator }

func (s fileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading TLE file: %w", err)
	}
	return data, nil
}

// CachedSource writes every successful fetch to a disk cache and falls back
// to the newest cached copy when the underlying source fails.
type CachedSource struct {
	Source
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// WithCache wraps src with a disk cache. A nil cache returns src unchanged.
func WithCache(src Source, cache *Cache, logger *slog.Logger) Source {
	if cache == nil {
		return src
	}
	return &CachedSource{Source: src, cache: cache, logger: logger, now: time.Now}
}

// Fetch fetches from the wrapped source, falling back to the cache on error.
func (c *CachedSource) Fetch(ctx context.Context) ([]byte, error) {
	key := c.Locator()
	data, err := c.Source.Fetch(ctx)
	if err == nil {
		if werr := c.cache.Write(key, data, c.now()); werr != nil {
			c.logger.Warn("failed to write TLE cache", "component", "tle", "source", key, "error", werr)
		}
		return data, nil
	}

	cached, ts, cerr := c.cache.LoadLatest(key)
	if cerr != nil {
		return nil, err
	}
	c.logger.Warn("TLE source unavailable, using cached copy",
		"component", "tle",
		"source", key,
		"cached_at", ts.UTC().Format(time.RFC3339),
		"error", err,
	)
	return cached, nil
}

type staticSource struct {
	locator string
	data    []byte
}

// NewStaticSource returns a Source that serves data already in memory, such
// as element sets piped on stdin.
func NewStaticSource(locator string, data []byte) Source {
	return staticSource{locator: locator, data: data}
}

func (s staticSource) Locator() string { return s.locator }

func (s staticSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.data, nil
}
