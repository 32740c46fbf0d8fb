// Package risk maps a closest approach to a bounded heuristic risk score and
// a decision tier. The score is an explainable proxy, not a calibrated
// probability of collision.
package risk

import (
	"fmt"
	"math"
	"strings"
)

// Model constants. Downstream consumers threshold on the resulting tiers, so
// these must not drift.
const (
	CeilingDistanceKm  = 10.0
	CeilingScore       = 99.9
	DecayScaleKm       = 500.0
	FastRelativeKmS    = 10.0
	FastMultiplier     = 1.2
	MaxScore           = 100.0
	criticalAboveScore = 80.0
	warningAboveScore  = 50.0
	cautionAboveScore  = 20.0
)

// Tier is the discrete decision derived from a score.
type Tier int

const (
	Safe Tier = iota
	Caution
	Warning
	Critical
)

var tierNames = [...]string{"SAFE", "CAUTION", "WARNING", "CRITICAL"}

var advisories = [...]string{
	"SAFE",
	"CAUTION: MONITORING",
	"WARNING: MANEUVER ADVISED",
	"CRITICAL: COLLISION IMMINENT",
}

func (t Tier) String() string {
	if t < Safe || t > Critical {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// Advisory returns the operator-facing decision text for the tier.
func (t Tier) Advisory() string {
	if t < Safe || t > Critical {
		return t.String()
	}
	return advisories[t]
}

// MarshalText encodes the tier as its name.
func (t Tier) MarshalText() ([]byte, error) {
	if t < Safe || t > Critical {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(tierNames[t]), nil
}

// UnmarshalText accepts a tier name, case-insensitively.
func (t *Tier) UnmarshalText(b []byte) error {
	s := strings.ToUpper(string(b))
	for i, name := range tierNames {
		if s == name {
			*t = Tier(i)
			return nil
		}
	}
	return fmt.Errorf("unknown tier %q", string(b))
}

// Score returns the risk score in [0, 100] and its tier for a miss distance
// in km and a relative speed in km/s.
//
// Inside CeilingDistanceKm the score is flat at CeilingScore regardless of
// speed. Beyond it the score decays exponentially with distance and is
// boosted by FastMultiplier when the relative speed exceeds FastRelativeKmS.
func Score(missKm, relKmS float64) (float64, Tier) {
	var score float64
	if missKm <= CeilingDistanceKm {
		score = CeilingScore
	} else {
		score = 100 * math.Exp(-missKm/DecayScaleKm)
		if relKmS > FastRelativeKmS {
			score *= FastMultiplier
		}
		score = math.Min(score, MaxScore)
	}
	return score, TierFor(score)
}

// TierFor maps a score to its tier. Thresholds are exclusive lower bounds
// evaluated from the top.
func TierFor(score float64) Tier {
	switch {
	case score > criticalAboveScore:
		return Critical
	case score > warningAboveScore:
		return Warning
	case score > cautionAboveScore:
		return Caution
	default:
		return Safe
	}
}
