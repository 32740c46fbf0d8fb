// Package events persists conjunction records: risk events raised by the
// sweep job and the audit trail of on-demand analyses.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/asride/kessler/internal/conjunction"
)

// FeedPageSize is the number of events returned by a feed read.
const FeedPageSize = 20

// ErrStoreUnavailable wraps every backend failure.
var ErrStoreUnavailable = errors.New("event store unavailable")

// RiskEvent is a conjunction worth surfacing on the feed.
type RiskEvent struct {
	ID                  int64     `json:"id"`
	Primary             string    `json:"primary"`
	Secondary           string    `json:"secondary"`
	Lat                 float64   `json:"lat"`
	Lon                 float64   `json:"lon"`
	MissDistanceKm      float64   `json:"miss_distance_km"`
	Probability         float64   `json:"probability"`
	TimeToImpactSeconds float64   `json:"time_to_impact_s"`
	CreatedAt           time.Time `json:"created_at"`
}

// AuditRecord is one completed on-demand analysis.
type AuditRecord struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	ObjectA     string    `json:"object_a"`
	ObjectB     string    `json:"object_b"`
	DistanceKm  float64   `json:"distance_km"`
	VelocityKmS float64   `json:"velocity_km_s"`
	RiskScore   float64   `json:"risk_score"`
	Decision    string    `json:"decision"`
}

// Store is an event store. Implementations are safe for concurrent use.
type Store interface {
	AppendEvent(ctx context.Context, e RiskEvent) error
	// TopEvents returns up to n events by descending probability.
	TopEvents(ctx context.Context, n int) ([]RiskEvent, error)
	AppendAudit(ctx context.Context, r AuditRecord) error
	// RecentAudits returns up to n audit records, newest first.
	RecentAudits(ctx context.Context, n int) ([]AuditRecord, error)
	Close() error
}

// EventFromResult converts an analysis into a feed event positioned at the
// primary object's subpoint.
func EventFromResult(r conjunction.Result) RiskEvent {
	return RiskEvent{
		Primary:             r.ObjectA.Name,
		Secondary:           r.ObjectB.Name,
		Lat:                 r.ObjectA.Lat,
		Lon:                 r.ObjectA.Lon,
		MissDistanceKm:      r.MissDistanceKm,
		Probability:         r.RiskScore,
		TimeToImpactSeconds: r.TimeToClosestApproachS,
		CreatedAt:           r.ReferenceTime,
	}
}

// AuditFromResult converts an analysis into an audit record.
func AuditFromResult(r conjunction.Result) AuditRecord {
	return AuditRecord{
		Timestamp:   r.ReferenceTime,
		ObjectA:     r.ObjectA.Name,
		ObjectB:     r.ObjectB.Name,
		DistanceKm:  r.MissDistanceKm,
		VelocityKmS: r.RelativeVelocityKmS,
		RiskScore:   r.RiskScore,
		Decision:    r.Decision,
	}
}

// Config selects and configures a backend.
type Config struct {
	Backend   string // memory | mysql | redis
	MySQLDSN  string
	RedisAddr string
	RedisDB   int
	KeyPrefix string
	MaxEvents int
	MaxAudits int
}

// DefaultConfig returns an in-memory store configuration.
func DefaultConfig() Config {
	return Config{
		Backend:   "memory",
		RedisAddr: "localhost:6379",
		KeyPrefix: "kessler",
		MaxEvents: 10000,
		MaxAudits: 10000,
	}
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		s = NewMemoryStore(cfg.MaxEvents, cfg.MaxAudits)
	case "mysql":
		s, err = OpenSQL(ctx, cfg.MySQLDSN)
	case "redis":
		s, err = OpenRedis(ctx, RedisOptions{
			Addr:      cfg.RedisAddr,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
			MaxEvents: cfg.MaxEvents,
			MaxAudits: cfg.MaxAudits,
		})
	default:
		return nil, fmt.Errorf("unknown event store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("event store opened", "component", "events", "backend", cfg.Backend)
	return s, nil
}

// Feed reads the top FeedPageSize events. It never fails: a nil store or a
// backend error yields an empty slice.
func Feed(ctx context.Context, s Store, logger *slog.Logger) []RiskEvent {
	if s == nil {
		return []RiskEvent{}
	}
	evs, err := s.TopEvents(ctx, FeedPageSize)
	if err != nil {
		logger.Warn("feed read failed", "component", "events", "error", err)
		return []RiskEvent{}
	}
	if evs == nil {
		return []RiskEvent{}
	}
	return evs
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
