package render

import "crashmap/internal/types"

// StyleVersion changes whenever the severity table below changes meaning.
const StyleVersion = "1"

// MarkerStyle is the color class and base radius of a marker.
type MarkerStyle struct {
	Color  string `json:"color"`
	Radius int    `json:"radius"`
}

// StylePolicy maps a severity label to its marker style. The page adds
// min(casualties, MaxExtraRadius) to the base radius.
type StylePolicy struct {
	Version        string                 `json:"version"`
	Severity       map[string]MarkerStyle `json:"severity"`
	MaxExtraRadius int                    `json:"maxExtraRadius"`
}

// DefaultStyle is version 1 of the policy.
func DefaultStyle() StylePolicy {
	return StylePolicy{
		Version: StyleVersion,
		Severity: map[string]MarkerStyle{
			types.SeverityFatal.String():            {Color: "red", Radius: 8},
			types.SeverityHospitalisation.String():  {Color: "orange", Radius: 7},
			types.SeverityMedicalTreatment.String(): {Color: "orange", Radius: 6},
			types.SeverityMinorInjury.String():      {Color: "yellow", Radius: 5},
			types.SeverityNone.String():             {Color: "green", Radius: 4},
		},
		MaxExtraRadius: 5,
	}
}

// For returns the style of a marker with the given severity and casualty
// count.
func (p StylePolicy) For(sev types.Severity, casualties int) MarkerStyle {
	s, ok := p.Severity[sev.String()]
	if !ok {
		s = p.Severity[types.SeverityNone.String()]
	}
	s.Radius += min(max(casualties, 0), p.MaxExtraRadius)
	return s
}
