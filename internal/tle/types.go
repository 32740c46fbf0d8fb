package tle

import "time"

// TLEEntry is one parsed element set. Line1 and Line2 are kept verbatim for
// the propagator.
type TLEEntry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// EpochRange is the oldest and newest epoch seen in one load. Both are zero
// for an empty load.
type EpochRange struct {
	Oldest time.Time
	Newest time.Time
}

// EpochSpan returns the epoch range covered by entries.
func EpochSpan(entries []TLEEntry) EpochRange {
	var r EpochRange
	for i, e := range entries {
		if i == 0 || e.Epoch.Before(r.Oldest) {
			r.Oldest = e.Epoch
		}
		if i == 0 || e.Epoch.After(r.Newest) {
			r.Newest = e.Epoch
		}
	}
	return r
}
