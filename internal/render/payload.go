// Package render turns filtered crash records into the marker payload the
// map page consumes, and renders that payload as an HTML document or
// GeoJSON.
package render

import (
	"encoding/json"
	"fmt"
	"strconv"

	"crashmap/internal/types"
)

// Tier is the clustering aggressiveness bucket chosen from the record count.
type Tier int

const (
	TierFine Tier = iota
	TierMedium
	TierCoarse
)

var tierNames = [...]string{"fine", "medium", "coarse"}

func (t Tier) String() string {
	if t < TierFine || t > TierCoarse {
		return "tier(" + strconv.Itoa(int(t)) + ")"
	}
	return tierNames[t]
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Thresholds are the record counts at which the tier becomes coarser.
type Thresholds struct {
	Coarse int
	Medium int
}

// DefaultThresholds move to medium clustering at a thousand records and to
// coarse at fifty thousand.
var DefaultThresholds = Thresholds{Coarse: 50_000, Medium: 1_000}

// Tier picks the tier for n records. It never gets finer as n grows.
func (t Thresholds) Tier(n int) Tier {
	switch {
	case n >= t.Coarse:
		return TierCoarse
	case n >= t.Medium:
		return TierMedium
	}
	return TierFine
}

// Hint is the rendering hint passed to the clustering library.
type Hint struct {
	// DisableClusteringAtZoom is the zoom level from which markers are
	// drawn individually.
	DisableClusteringAtZoom int `json:"disableClusteringAtZoom"`
	MaxClusterRadius        int `json:"maxClusterRadius"`
	// CellLevel is the S2 level used to bucket records.
	CellLevel int `json:"cellLevel"`
}

var tierHints = map[Tier]Hint{
	TierFine:   {DisableClusteringAtZoom: 12, MaxClusterRadius: 40, CellLevel: 14},
	TierMedium: {DisableClusteringAtZoom: 15, MaxClusterRadius: 60, CellLevel: 11},
	TierCoarse: {DisableClusteringAtZoom: 18, MaxClusterRadius: 80, CellLevel: 8},
}

// HintFor returns the hint for a tier.
func HintFor(t Tier) Hint {
	return tierHints[t]
}

// PopupColumns names the tuple fields after the four fixed ones.
var PopupColumns = []string{
	"Date", "Day", "Road surface", "Lighting",
	"Fatalities", "Hospitalised", "Medically treated", "Minor injuries",
}

// Tuple is one marker. It marshals to the fixed-width array
// [lat, lon, severity, casualties, date, day, road surface, lighting,
// fatalities, hospitalised, medically treated, minor injuries].
type Tuple struct {
	Lat        float64
	Lon        float64
	Severity   types.Severity
	Casualties int

	Date             string
	DayOfWeek        string
	RoadSurface      string
	Lighting         string
	Fatalities       int
	Hospitalised     int
	MedicallyTreated int
	MinorInjuries    int
}

func (t Tuple) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{
		t.Lat, t.Lon, t.Severity.String(), t.Casualties,
		t.Date, t.DayOfWeek, t.RoadSurface, t.Lighting,
		t.Fatalities, t.Hospitalised, t.MedicallyTreated, t.MinorInjuries,
	})
}

// TupleFor maps a record onto its marker tuple.
func TupleFor(r types.CrashRecord) Tuple {
	return Tuple{
		Lat:              r.Latitude,
		Lon:              r.Longitude,
		Severity:         r.Severity,
		Casualties:       r.Casualties,
		Date:             fmt.Sprintf("%s %d", r.Month, r.Year),
		DayOfWeek:        r.DayOfWeek,
		RoadSurface:      r.RoadSurface,
		Lighting:         r.Lighting,
		Fatalities:       r.Fatalities,
		Hospitalised:     r.Hospitalised,
		MedicallyTreated: r.MedicallyTreated,
		MinorInjuries:    r.MinorInjuries,
	}
}

// Payload is everything the map page needs for one render.
type Payload struct {
	Style   StylePolicy `json:"style"`
	Tier    Tier        `json:"tier"`
	Hint    Hint        `json:"hint"`
	Columns []string    `json:"columns"`
	Tuples  []Tuple     `json:"tuples"`
	Buckets []Bucket    `json:"buckets"`
}

// Len is the number of markers.
func (p Payload) Len() int { return len(p.Tuples) }

// Builder builds payloads with fixed thresholds and styling.
type Builder struct {
	Thresholds Thresholds
	Style      StylePolicy
}

// NewBuilder returns a Builder with the default style policy.
func NewBuilder(t Thresholds) Builder {
	return Builder{Thresholds: t, Style: DefaultStyle()}
}

// Build maps recs to tuples in input order and derives the tier, hint and
// buckets from the record count. The same input always gives the same
// payload.
func (b Builder) Build(recs []types.CrashRecord) Payload {
	tier := b.Thresholds.Tier(len(recs))
	hint := HintFor(tier)

	tuples := make([]Tuple, len(recs))
	for i, r := range recs {
		tuples[i] = TupleFor(r)
	}

	return Payload{
		Style:   b.Style,
		Tier:    tier,
		Hint:    hint,
		Columns: PopupColumns,
		Tuples:  tuples,
		Buckets: bucketize(recs, hint.CellLevel),
	}
}
