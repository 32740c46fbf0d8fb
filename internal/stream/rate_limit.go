package stream

import (
	"errors"
	"sync"
)

var (
	errPerIPLimit  = errors.New("too many concurrent streams")
	errServerFull  = errors.New("stream capacity reached")
	defaultPerIP   = 10
	defaultMaxOpen = 1000
)

// streamSlots hands out stream slots, bounded per client address and in total.
type streamSlots struct {
	mu       sync.Mutex
	perIP    map[string]int
	open     int
	maxPerIP int
	maxOpen  int
}

func newStreamSlots(maxPerIP, maxOpen int) *streamSlots {
	if maxPerIP <= 0 {
		maxPerIP = defaultPerIP
	}
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpen
	}
	return &streamSlots{perIP: make(map[string]int), maxPerIP: maxPerIP, maxOpen: maxOpen}
}

// acquire claims a slot for ip. The returned release is safe to call more
// than once; only the first call frees the slot.
func (s *streamSlots) acquire(ip string) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.open >= s.maxOpen:
		return nil, errServerFull
	case s.perIP[ip] >= s.maxPerIP:
		return nil, errPerIPLimit
	}
	s.perIP[ip]++
	s.open++

	var once sync.Once
	return func() { once.Do(func() { s.free(ip) }) }, nil
}

func (s *streamSlots) free(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open--
	if n := s.perIP[ip] - 1; n > 0 {
		s.perIP[ip] = n
	} else {
		delete(s.perIP, ip)
	}
}

func (s *streamSlots) count(ip string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perIP[ip]
}

func (s *streamSlots) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}
