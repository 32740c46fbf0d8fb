package conjunction

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/asride/kessler/internal/catalog"
)

// FleetPosition is one object's subpoint in a constellation listing.
type FleetPosition struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Alt  float64 `json:"alt"`
}

// SkippedObject is a listing match whose position could not be computed.
type SkippedObject struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Listing is the result of a constellation filter. Objects that failed to
// propagate are reported in Skipped instead of failing the listing.
type Listing struct {
	Term       string          `json:"constellation"`
	Satellites []FleetPosition `json:"satellites"`
	Skipped    []SkippedObject `json:"skipped"`
}

// FilterCatalog positions, at ref, up to limit catalog objects matching the
// normalized term, in catalog order. Objects that fail to propagate are
// skipped and do not count toward limit; the scan continues past them. A
// non-positive limit means catalog.DefaultListLimit.
func (e *Engine) FilterCatalog(ctx context.Context, term string, ref time.Time, limit int) Listing {
	norm := catalog.NormalizeConstellation(term)
	_, span := e.tracer.Start(ctx, "conjunction.filter", trace.WithAttributes(
		attribute.String("constellation", norm),
	))
	defer span.End()

	ref = ref.UTC()
	if limit <= 0 {
		limit = catalog.DefaultListLimit
	}
	listing := Listing{
		Term:       norm,
		Satellites: []FleetPosition{},
		Skipped:    []SkippedObject{},
	}
	matched := 0
	for obj := range e.catalog.Matching(norm) {
		if len(listing.Satellites) >= limit {
			break
		}
		matched++
		sv, err := e.adapter.StateAt(obj.Elements, ref)
		if err != nil {
			listing.Skipped = append(listing.Skipped, SkippedObject{Name: obj.Name, Reason: err.Error()})
			continue
		}
		listing.Satellites = append(listing.Satellites, FleetPosition{
			Name: obj.Name,
			Lat:  sv.Subpoint.LatDeg,
			Lon:  sv.Subpoint.LonDeg,
			Alt:  sv.Subpoint.ElevationKm,
		})
	}

	span.SetAttributes(
		attribute.Int("matched", matched),
		attribute.Int("skipped", len(listing.Skipped)),
	)
	if len(listing.Skipped) > 0 {
		e.logger.Warn("constellation objects skipped",
			"component", "conjunction",
			"constellation", norm,
			"skipped", len(listing.Skipped),
		)
	}
	return listing
}

// Now returns the engine clock's current instant.
func (e *Engine) Now() time.Time {
	return e.now()
}
