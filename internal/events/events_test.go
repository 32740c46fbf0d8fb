package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asride/kessler/internal/conjunction"
	"github.com/asride/kessler/internal/risk"
)

var (
	testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	created    = time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
)

func event(primary string, prob float64) RiskEvent {
	return RiskEvent{
		Primary:             primary,
		Secondary:           "COSMOS 2251 DEB",
		Lat:                 12.5,
		Lon:                 -40,
		MissDistanceKm:      8.2,
		Probability:         prob,
		TimeToImpactSeconds: 600,
		CreatedAt:           created,
	}
}

func audit(a string, ts time.Time) AuditRecord {
	return AuditRecord{
		Timestamp:   ts,
		ObjectA:     a,
		ObjectB:     "ISS (ZARYA)",
		DistanceKm:  512,
		VelocityKmS: 7.1,
		RiskScore:   35.9,
		Decision:    "CAUTION: MONITORING",
	}
}

// exerciseStore runs the Store contract against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	for _, e := range []RiskEvent{event("A", 81), event("B", 99.9), event("C", 85), event("D", 90)} {
		require.NoError(t, s.AppendEvent(ctx, e))
	}
	top, err := s.TopEvents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"B", "D", "C"}, []string{top[0].Primary, top[1].Primary, top[2].Primary})
	assert.NotZero(t, top[0].ID)
	assert.True(t, created.Equal(top[0].CreatedAt))

	empty, err := s.TopEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i, name := range []string{"first", "second", "third"} {
		require.NoError(t, s.AppendAudit(ctx, audit(name, created.Add(time.Duration(i)*time.Minute))))
	}
	recent, err := s.RecentAudits(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].ObjectA)
	assert.Equal(t, "second", recent[1].ObjectA)
	assert.Equal(t, "CAUTION: MONITORING", recent[0].Decision)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(0, 0))
}

func TestMemoryStoreCaps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2, 2)
	for _, e := range []RiskEvent{event("A", 99), event("B", 81), event("C", 82)} {
		require.NoError(t, s.AppendEvent(ctx, e))
	}
	top, err := s.TopEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2, "oldest event dropped")
	assert.Equal(t, "C", top[0].Primary)

	for _, name := range []string{"x", "y", "z"} {
		require.NoError(t, s.AppendAudit(ctx, audit(name, created)))
	}
	recent, err := s.RecentAudits(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestMemoryStoreTiesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, 0)
	require.NoError(t, s.AppendEvent(ctx, event("old", 90)))
	require.NoError(t, s.AppendEvent(ctx, event("new", 90)))

	top, err := s.TopEvents(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", top[0].Primary)
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore(0, 0)
	require.NoError(t, s.Close())

	err := s.AppendEvent(context.Background(), event("A", 90))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = s.TopEvents(context.Background(), 5)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := OpenRedis(context.Background(), RedisOptions{Addr: mr.Addr(), KeyPrefix: "test"})
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
	assert.True(t, mr.Exists("test:events"))
	assert.True(t, mr.Exists("test:audits"))
}

func TestRedisStoreCaps(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, RedisOptions{MaxEvents: 2, MaxAudits: 1})
	defer s.Close()
	ctx := context.Background()

	for _, e := range []RiskEvent{event("A", 95), event("B", 81), event("C", 99)} {
		require.NoError(t, s.AppendEvent(ctx, e))
	}
	top, err := s.TopEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2, "lowest scored event trimmed")
	assert.Equal(t, "C", top[0].Primary)
	assert.Equal(t, "A", top[1].Primary)

	require.NoError(t, s.AppendAudit(ctx, audit("x", created)))
	require.NoError(t, s.AppendAudit(ctx, audit("y", created)))
	recent, err := s.RecentAudits(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "y", recent[0].ObjectA)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	s := NewRedisStore(client, RedisOptions{})
	defer s.Close()
	mr.Close()

	err := s.AppendEvent(context.Background(), event("A", 90))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Empty(t, Feed(context.Background(), s, testLogger))
}

func TestOpenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedis(context.Background(), RedisOptions{Addr: addr})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db), mock
}

func TestSQLStoreMigrate(t *testing.T) {
	s, mock := newMockStore(t)
	for _, stmt := range schema {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreAppendEvent(t *testing.T) {
	s, mock := newMockStore(t)
	e := event("ISS (ZARYA)", 92.5)
	mock.ExpectExec(insertEventSQL).
		WithArgs(e.Primary, e.Secondary, e.Lat, e.Lon, e.MissDistanceKm, e.Probability, e.TimeToImpactSeconds, e.CreatedAt).
		WillReturnResult(sqlmock.NewResult(7, 1))

	require.NoError(t, s.AppendEvent(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreTopEvents(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "primary_name", "secondary_name", "lat", "lon", "miss_distance_km", "probability", "time_to_impact_s", "created_at"}).
		AddRow(int64(4), "B", "X", 1.0, 2.0, 3.0, 99.9, 60.0, created).
		AddRow(int64(2), "A", "Y", 1.5, 2.5, 9.0, 85.0, 120.0, created)
	mock.ExpectQuery(topEventsSQL).WithArgs(FeedPageSize).WillReturnRows(rows)

	evs := Feed(context.Background(), s, testLogger)
	require.Len(t, evs, 2)
	assert.Equal(t, int64(4), evs[0].ID)
	assert.Equal(t, 99.9, evs[0].Probability)
	assert.Equal(t, "A", evs[1].Primary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreAuditRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)
	r := audit("NOAA 19", created)
	mock.ExpectExec(insertAuditSQL).
		WithArgs(r.Timestamp, r.ObjectA, r.ObjectB, r.DistanceKm, r.VelocityKmS, r.RiskScore, r.Decision).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(recentAuditSQL).WithArgs(20).WillReturnRows(
		sqlmock.NewRows([]string{"id", "ts", "object_a", "object_b", "distance_km", "velocity_km_s", "risk_score", "decision"}).
			AddRow(int64(1), created, r.ObjectA, r.ObjectB, r.DistanceKm, r.VelocityKmS, r.RiskScore, r.Decision))

	require.NoError(t, s.AppendAudit(context.Background(), r))
	got, err := s.RecentAudits(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NOAA 19", got[0].ObjectA)
	assert.Equal(t, int64(1), got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreErrors(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(insertEventSQL).WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery(topEventsSQL).WithArgs(FeedPageSize).WillReturnError(errors.New("connection reset"))

	err := s.AppendEvent(context.Background(), event("A", 90))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorContains(t, err, "connection reset")

	evs := Feed(context.Background(), s, testLogger)
	assert.NotNil(t, evs)
	assert.Empty(t, evs)
}

func TestFeedNilStore(t *testing.T) {
	evs := Feed(context.Background(), nil, testLogger)
	assert.NotNil(t, evs)
	assert.Empty(t, evs)
}

func TestFeedPageSize(t *testing.T) {
	s := NewMemoryStore(0, 0)
	for i := 0; i < 30; i++ {
		require.NoError(t, s.AppendEvent(context.Background(), event("A", float64(50+i))))
	}
	evs := Feed(context.Background(), s, testLogger)
	require.Len(t, evs, FeedPageSize)
	assert.Equal(t, 79.0, evs[0].Probability)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), DefaultConfig(), testLogger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(context.Background(), Config{Backend: "cassandra"}, testLogger)
	assert.ErrorContains(t, err, "unknown event store backend")

	_, err = Open(context.Background(), Config{Backend: "mysql", MySQLDSN: "::not a dsn::"}, testLogger)
	assert.Error(t, err)
}

func result() conjunction.Result {
	return conjunction.Result{
		ReferenceTime:          created,
		MissDistanceKm:         7.5,
		TimeToClosestApproachS: 1230,
		RelativeVelocityKmS:    11.2,
		RiskScore:              99.9,
		DecisionTier:           risk.Critical,
		Decision:               risk.Critical.Advisory(),
		ObjectA:                conjunction.ObjectReport{Name: "ISS (ZARYA)", Lat: 10, Lon: 20},
		ObjectB:                conjunction.ObjectReport{Name: "FENGYUN 1C DEB"},
	}
}

func TestFromResult(t *testing.T) {
	res := result()

	e := EventFromResult(res)
	assert.Equal(t, "ISS (ZARYA)", e.Primary)
	assert.Equal(t, "FENGYUN 1C DEB", e.Secondary)
	assert.Equal(t, 99.9, e.Probability)
	assert.Equal(t, 1230.0, e.TimeToImpactSeconds)
	assert.Equal(t, 10.0, e.Lat)
	assert.Equal(t, 20.0, e.Lon)

	a := AuditFromResult(res)
	assert.Equal(t, 11.2, a.VelocityKmS)
	assert.Equal(t, "CRITICAL: COLLISION IMMINENT", a.Decision)
	assert.Equal(t, created, a.Timestamp)
}

// failingStore fails every write.
type failingStore struct{ *MemoryStore }

func (failingStore) AppendAudit(ctx context.Context, r AuditRecord) error {
	return unavailable("append audit", errors.New("disk full"))
}

// slowStore blocks audit writes until the context ends.
type slowStore struct{ *MemoryStore }

func (slowStore) AppendAudit(ctx context.Context, r AuditRecord) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRecorder(t *testing.T) {
	s := NewMemoryStore(0, 0)
	rec := NewRecorder(s, 0, testLogger)

	require.NoError(t, <-rec.Record(context.Background(), result()))
	rec.Wait()

	got, err := s.RecentAudits(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ISS (ZARYA)", got[0].ObjectA)
}

func TestRecorderFailure(t *testing.T) {
	rec := NewRecorder(failingStore{NewMemoryStore(0, 0)}, time.Second, testLogger)
	err := <-rec.Record(context.Background(), result())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRecorderTimeout(t *testing.T) {
	rec := NewRecorder(slowStore{NewMemoryStore(0, 0)}, 20*time.Millisecond, testLogger)

	start := time.Now()
	ch := rec.Record(context.Background(), result())
	assert.Less(t, time.Since(start), 10*time.Millisecond, "Record returns before the write")

	select {
	case err := <-ch:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("write was not bounded by the timeout")
	}
}

func TestRecorderSurvivesCallerCancellation(t *testing.T) {
	s := NewMemoryStore(0, 0)
	rec := NewRecorder(s, time.Second, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	ch := rec.Record(context.WithoutCancel(ctx), result())
	cancel()

	assert.NoError(t, <-ch)
}
