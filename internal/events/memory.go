package events

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryStore keeps events and audits in process memory, dropping the
// oldest entries past its caps.
type MemoryStore struct {
	mu        sync.RWMutex
	events    []RiskEvent
	audits    []AuditRecord
	nextID    int64
	maxEvents int
	maxAudits int
	closed    bool
}

// NewMemoryStore returns an empty store. Non-positive caps mean unbounded.
func NewMemoryStore(maxEvents, maxAudits int) *MemoryStore {
	return &MemoryStore{maxEvents: maxEvents, maxAudits: maxAudits}
}

var errClosed = errors.New("store closed")

func (m *MemoryStore) AppendEvent(ctx context.Context, e RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return unavailable("append event", errClosed)
	}
	m.nextID++
	e.ID = m.nextID
	m.events = append(m.events, e)
	if m.maxEvents > 0 && len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
	return nil
}

func (m *MemoryStore) TopEvents(ctx context.Context, n int) ([]RiskEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, unavailable("top events", errClosed)
	}
	out := make([]RiskEvent, len(m.events))
	copy(out, m.events)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].ID > out[j].ID
	})
	if n < 0 {
		n = 0
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryStore) AppendAudit(ctx context.Context, r AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return unavailable("append audit", errClosed)
	}
	m.nextID++
	r.ID = m.nextID
	m.audits = append(m.audits, r)
	if m.maxAudits > 0 && len(m.audits) > m.maxAudits {
		m.audits = m.audits[len(m.audits)-m.maxAudits:]
	}
	return nil
}

func (m *MemoryStore) RecentAudits(ctx context.Context, n int) ([]AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, unavailable("recent audits", errClosed)
	}
	n = max(0, min(n, len(m.audits)))
	out := make([]AuditRecord, 0, n)
	for i := len(m.audits) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.audits[i])
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
