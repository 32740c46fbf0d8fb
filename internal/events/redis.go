package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	MaxEvents int
	MaxAudits int
}

// RedisStore keeps events in a sorted set scored by probability and audits
// in a capped list, newest at the head.
type RedisStore struct {
	client    *redis.Client
	seqKey    string
	eventsKey string
	auditsKey string
	maxEvents int
	maxAudits int
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, unavailable("ping", err)
	}
	return NewRedisStore(client, opts), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, opts RedisOptions) *RedisStore {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "kessler"
	}
	return &RedisStore{
		client:    client,
		seqKey:    prefix + ":seq",
		eventsKey: prefix + ":events",
		auditsKey: prefix + ":audits",
		maxEvents: opts.MaxEvents,
		maxAudits: opts.MaxAudits,
	}
}

func (s *RedisStore) nextID(ctx context.Context) (int64, error) {
	return s.client.Incr(ctx, s.seqKey).Result()
}

func (s *RedisStore) AppendEvent(ctx context.Context, e RiskEvent) error {
	id, err := s.nextID(ctx)
	if err != nil {
		return unavailable("append event", err)
	}
	e.ID = id
	member, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, s.eventsKey, redis.Z{Score: e.Probability, Member: member})
		if s.maxEvents > 0 {
			// Keep the highest scored maxEvents members.
			p.ZRemRangeByRank(ctx, s.eventsKey, 0, int64(-s.maxEvents-1))
		}
		return nil
	})
	if err != nil {
		return unavailable("append event", err)
	}
	return nil
}

func (s *RedisStore) TopEvents(ctx context.Context, n int) ([]RiskEvent, error) {
	if n <= 0 {
		return []RiskEvent{}, nil
	}
	members, err := s.client.ZRevRange(ctx, s.eventsKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, unavailable("top events", err)
	}
	out := make([]RiskEvent, 0, len(members))
	for _, m := range members {
		var e RiskEvent
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) AppendAudit(ctx context.Context, r AuditRecord) error {
	id, err := s.nextID(ctx)
	if err != nil {
		return unavailable("append audit", err)
	}
	r.ID = id
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode audit: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, s.auditsKey, b)
		if s.maxAudits > 0 {
			p.LTrim(ctx, s.auditsKey, 0, int64(s.maxAudits-1))
		}
		return nil
	})
	if err != nil {
		return unavailable("append audit", err)
	}
	return nil
}

func (s *RedisStore) RecentAudits(ctx context.Context, n int) ([]AuditRecord, error) {
	if n <= 0 {
		return []AuditRecord{}, nil
	}
	items, err := s.client.LRange(ctx, s.auditsKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, unavailable("recent audits", err)
	}
	out := make([]AuditRecord, 0, len(items))
	for _, item := range items {
		var r AuditRecord
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("decode audit: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
