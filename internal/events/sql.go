package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS risk_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		primary_name VARCHAR(128) NOT NULL,
		secondary_name VARCHAR(128) NOT NULL,
		lat DOUBLE NOT NULL,
		lon DOUBLE NOT NULL,
		miss_distance_km DOUBLE NOT NULL,
		probability DOUBLE NOT NULL,
		time_to_impact_s DOUBLE NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_risk_events_probability (probability)
	)`,
	`CREATE TABLE IF NOT EXISTS risk_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		ts DATETIME(6) NOT NULL,
		object_a VARCHAR(128) NOT NULL,
		object_b VARCHAR(128) NOT NULL,
		distance_km DOUBLE NOT NULL,
		velocity_km_s DOUBLE NOT NULL,
		risk_score DOUBLE NOT NULL,
		decision VARCHAR(64) NOT NULL,
		INDEX idx_risk_logs_ts (ts)
	)`,
}

const (
	insertEventSQL = "INSERT INTO risk_events (primary_name, secondary_name, lat, lon, miss_distance_km, probability, time_to_impact_s, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	topEventsSQL   = "SELECT id, primary_name, secondary_name, lat, lon, miss_distance_km, probability, time_to_impact_s, created_at FROM risk_events ORDER BY probability DESC, id DESC LIMIT ?"
	insertAuditSQL = "INSERT INTO risk_logs (ts, object_a, object_b, distance_km, velocity_km_s, risk_score, decision) VALUES (?, ?, ?, ?, ?, ?, ?)"
	recentAuditSQL = "SELECT id, ts, object_a, object_b, distance_km, velocity_km_s, risk_score, decision FROM risk_logs ORDER BY id DESC LIMIT ?"
)

// SQLStore keeps events in MySQL.
type SQLStore struct {
	db *sql.DB
}

// OpenSQL connects to MySQL using dsn and creates the tables if needed.
// Timestamps are always parsed and stored in UTC.
func OpenSQL(ctx context.Context, dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("ping", err)
	}
	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database. Call Migrate before first use on a
// fresh database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the event tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return unavailable("migrate", err)
		}
	}
	return nil
}

func (s *SQLStore) AppendEvent(ctx context.Context, e RiskEvent) error {
	_, err := s.db.ExecContext(ctx, insertEventSQL,
		e.Primary, e.Secondary, e.Lat, e.Lon, e.MissDistanceKm, e.Probability, e.TimeToImpactSeconds, e.CreatedAt.UTC())
	if err != nil {
		return unavailable("append event", err)
	}
	return nil
}

func (s *SQLStore) TopEvents(ctx context.Context, n int) ([]RiskEvent, error) {
	if n <= 0 {
		return []RiskEvent{}, nil
	}
	rows, err := s.db.QueryContext(ctx, topEventsSQL, n)
	if err != nil {
		return nil, unavailable("top events", err)
	}
	defer rows.Close()

	out := []RiskEvent{}
	for rows.Next() {
		var e RiskEvent
		if err := rows.Scan(&e.ID, &e.Primary, &e.Secondary, &e.Lat, &e.Lon,
			&e.MissDistanceKm, &e.Probability, &e.TimeToImpactSeconds, &e.CreatedAt); err != nil {
			return nil, unavailable("scan event", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("top events", err)
	}
	return out, nil
}

func (s *SQLStore) AppendAudit(ctx context.Context, r AuditRecord) error {
	_, err := s.db.ExecContext(ctx, insertAuditSQL,
		r.Timestamp.UTC(), r.ObjectA, r.ObjectB, r.DistanceKm, r.VelocityKmS, r.RiskScore, r.Decision)
	if err != nil {
		return unavailable("append audit", err)
	}
	return nil
}

func (s *SQLStore) RecentAudits(ctx context.Context, n int) ([]AuditRecord, error) {
	if n <= 0 {
		return []AuditRecord{}, nil
	}
	rows, err := s.db.QueryContext(ctx, recentAuditSQL, n)
	if err != nil {
		return nil, unavailable("recent audits", err)
	}
	defer rows.Close()

	out := []AuditRecord{}
	for rows.Next() {
		var r AuditRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.ObjectA, &r.ObjectB,
			&r.DistanceKm, &r.VelocityKmS, &r.RiskScore, &r.Decision); err != nil {
			return nil, unavailable("scan audit", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("recent audits", err)
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
