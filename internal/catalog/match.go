package catalog

import (
	"fmt"
	"strings"
)

// MatchStrategy picks the object for a name that has no exact catalog key.
// Match returns the index into objects, or false when nothing matches.
type MatchStrategy interface {
	Name() string
	Match(objects []TrackedObject, query string) (int, bool)
}

// FirstSubstringMatch returns the first object, in catalog order, whose
// upper-cased name contains the upper-cased query. The answer depends on
// ingestion order.
type FirstSubstringMatch struct{}

func (FirstSubstringMatch) Name() string { return "first" }

func (FirstSubstringMatch) Match(objects []TrackedObject, query string) (int, bool) {
	q := strings.ToUpper(query)
	for i, obj := range objects {
		if strings.Contains(strings.ToUpper(obj.Name), q) {
			return i, true
		}
	}
	return 0, false
}

// BestSubstringMatch prefers a case-insensitive exact name, then the shortest
// name containing the query, breaking ties lexicographically. The answer does
// not depend on ingestion order.
type BestSubstringMatch struct{}

func (BestSubstringMatch) Name() string { return "best" }

func (BestSubstringMatch) Match(objects []TrackedObject, query string) (int, bool) {
	q := strings.ToUpper(query)
	best := -1
	for i, obj := range objects {
		upper := strings.ToUpper(obj.Name)
		if upper == q {
			return i, true
		}
		if !strings.Contains(upper, q) {
			continue
		}
		if best < 0 || better(obj.Name, objects[best].Name) {
			best = i
		}
	}
	return best, best >= 0
}

func better(candidate, current string) bool {
	if len(candidate) != len(current) {
		return len(candidate) < len(current)
	}
	return candidate < current
}

// ParseMatchStrategy maps a configuration value ("first" or "best") to a strategy.
func ParseMatchStrategy(name string) (MatchStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "first":
		return FirstSubstringMatch{}, nil
	case "best":
		return BestSubstringMatch{}, nil
	default:
		return nil, fmt.Errorf("unknown match strategy %q", name)
	}
}
