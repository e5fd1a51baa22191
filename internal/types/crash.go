package types

import (
	"strconv"
	"strings"
)

// Severity is the categorical outcome of a crash.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMinorInjury
	SeverityMedicalTreatment
	SeverityHospitalisation
	SeverityFatal
)

var severityLabels = map[Severity]string{
	SeverityFatal:            "Fatal",
	SeverityHospitalisation:  "Hospitalisation",
	SeverityMedicalTreatment: "Medical treatment",
	SeverityMinorInjury:      "Minor injury",
	SeverityNone:             "None",
}

// String returns the dataset label for the severity.
func (s Severity) String() string {
	if l, ok := severityLabels[s]; ok {
		return l
	}
	return severityLabels[SeverityNone]
}

// ParseSeverity maps a dataset label onto a Severity. Unknown labels,
// including "Property damage only", are SeverityNone.
func ParseSeverity(label string) Severity {
	norm := strings.Join(strings.Fields(strings.ToLower(label)), " ")
	for s, l := range severityLabels {
		if strings.ToLower(l) == norm {
			return s
		}
	}
	return SeverityNone
}

// Attribute identifies a filterable column.
type Attribute string

const (
	AttrYear        Attribute = "year"
	AttrMonth       Attribute = "month"
	AttrSeverity    Attribute = "severity"
	AttrRoadSurface Attribute = "road_surface"
	AttrLighting    Attribute = "lighting"
	AttrRegion      Attribute = "region"
)

// BaseAttributes lists the filterable attributes every dataset carries, in
// panel order. AttrRegion is appended when a regions layer is configured.
var BaseAttributes = []Attribute{AttrYear, AttrMonth, AttrSeverity, AttrRoadSurface, AttrLighting}

var attributeTitles = map[Attribute]string{
	AttrYear:        "Year",
	AttrMonth:       "Month",
	AttrSeverity:    "Severity",
	AttrRoadSurface: "Road surface",
	AttrLighting:    "Lighting",
	AttrRegion:      "Region",
}

// Title is the heading shown for the attribute's filter group.
func (a Attribute) Title() string {
	if t, ok := attributeTitles[a]; ok {
		return t
	}
	return string(a)
}

// CrashRecord is one row of the crash dataset. Only the columns used for
// filtering and rendering are kept.
type CrashRecord struct {
	Ref string

	Latitude  float64
	Longitude float64

	Severity   Severity
	Casualties int

	RoadSurface string
	Lighting    string
	DayOfWeek   string
	Month       string
	Year        int

	Fatalities       int
	Hospitalised     int
	MedicallyTreated int
	MinorInjuries    int

	// Region is filled from the regions layer, never from a column.
	Region string
}

// Value returns the record's value for a filterable attribute.
func (r CrashRecord) Value(attr Attribute) (string, bool) {
	switch attr {
	case AttrYear:
		return strconv.Itoa(r.Year), true
	case AttrMonth:
		return r.Month, true
	case AttrSeverity:
		return r.Severity.String(), true
	case AttrRoadSurface:
		return r.RoadSurface, true
	case AttrLighting:
		return r.Lighting, true
	case AttrRegion:
		return r.Region, true
	}
	return "", false
}
