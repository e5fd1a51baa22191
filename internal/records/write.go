package records

import (
	"encoding/csv"
	"io"
	"strconv"

	"crashmap/internal/types"
)

// WriteCSV writes recs with a header row in the canonical column order.
// The output loads back with Load.
func WriteCSV(w io.Writer, recs []types.CrashRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	itoa := strconv.Itoa
	ftoa := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	for _, r := range recs {
		row := []string{
			r.Ref, r.Severity.String(), itoa(r.Year), r.Month, r.DayOfWeek,
			ftoa(r.Longitude), ftoa(r.Latitude), r.RoadSurface, r.Lighting,
			itoa(r.Fatalities), itoa(r.Hospitalised), itoa(r.MedicallyTreated), itoa(r.MinorInjuries), itoa(r.Casualties),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
