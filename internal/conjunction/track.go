package conjunction

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/asride/kessler/internal/propagation"
)

// TrackPoint is one ground-track sample, longitude first. It encodes as the
// JSON array [lon, lat] expected by map renderers.
type TrackPoint [2]float64

func (p TrackPoint) Lon() float64 { return p[0] }
func (p TrackPoint) Lat() float64 { return p[1] }

// GroundTrack is a temporally ordered sequence of subpoints.
type GroundTrack []TrackPoint

// MarshalJSON encodes a nil track as an empty array.
func (g GroundTrack) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]TrackPoint(g))
}

// TrackConfig sets the ground-track window.
type TrackConfig struct {
	DurationMinutes float64
	Steps           int
}

// DefaultTrackConfig returns the 90 minute, 30 step track.
func DefaultTrackConfig() TrackConfig {
	return TrackConfig{DurationMinutes: 90, Steps: 30}
}

// SampleGroundTrack returns exactly cfg.Steps subpoints of es. Sample i is
// taken at ref + i*DurationMinutes/Steps, so sample 0 is the subpoint at ref.
// Any propagation failure aborts the track.
func SampleGroundTrack(adapter propagation.Adapter, es propagation.ElementSet, ref time.Time, cfg TrackConfig) (GroundTrack, error) {
	if cfg.Steps <= 0 || cfg.DurationMinutes <= 0 {
		return nil, fmt.Errorf("invalid ground track: duration=%v min steps=%d", cfg.DurationMinutes, cfg.Steps)
	}

	step := cfg.DurationMinutes / float64(cfg.Steps)
	track := make(GroundTrack, 0, cfg.Steps)
	for i := 0; i < cfg.Steps; i++ {
		t := ref.Add(time.Duration(float64(i) * step * float64(time.Minute)))
		sv, err := adapter.StateAt(es, t)
		if err != nil {
			return nil, err
		}
		track = append(track, TrackPoint{sv.Subpoint.LonDeg, sv.Subpoint.LatDeg})
	}
	return track, nil
}
