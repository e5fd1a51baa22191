package records

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"crashmap/internal/types"
)

// Source column names, shared by the CSV header, JSON object keys and the
// Oracle mirror table.
const (
	ColRef              = "Crash_Ref_Number"
	ColSeverity         = "Crash_Severity"
	ColYear             = "Crash_Year"
	ColMonth            = "Crash_Month"
	ColDayOfWeek        = "Crash_Day_Of_Week"
	ColLongitude        = "Crash_Longitude"
	ColLatitude         = "Crash_Latitude"
	ColRoadSurface      = "Crash_Road_Surface_Condition"
	ColLighting         = "Crash_Lighting_Condition"
	ColFatalities       = "Count_Casualty_Fatality"
	ColHospitalised     = "Count_Casualty_Hospitalised"
	ColMedicallyTreated = "Count_Casualty_MedicallyTreated"
	ColMinorInjuries    = "Count_Casualty_MinorInjury"
	ColCasualties       = "Count_Casualty_Total"
)

// Columns is the canonical column order used when writing records.
var Columns = []string{
	ColRef, ColSeverity, ColYear, ColMonth, ColDayOfWeek,
	ColLongitude, ColLatitude, ColRoadSurface, ColLighting,
	ColFatalities, ColHospitalised, ColMedicallyTreated, ColMinorInjuries, ColCasualties,
}

// requiredColumns must be present in every source.
var requiredColumns = []string{
	ColSeverity, ColYear, ColMonth, ColLongitude, ColLatitude, ColRoadSurface, ColLighting,
}

// getter returns a column's raw text for one row and whether the column
// exists at all.
type getter func(col string) (string, bool)

func checkColumns(has func(col string) bool) error {
	var missing []string
	for _, c := range requiredColumns {
		if !has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// parseRecord converts one row into a CrashRecord. Range checks happen later
// in the store's cleaning pass so the sentinel row is never rejected here.
func parseRecord(get getter) (types.CrashRecord, error) {
	text := func(col string) string {
		v, _ := get(col)
		return strings.TrimSpace(v)
	}

	var (
		rec types.CrashRecord
		err error
	)
	rec.Ref = text(ColRef)
	rec.Severity = types.ParseSeverity(text(ColSeverity))
	rec.Month = text(ColMonth)
	rec.DayOfWeek = text(ColDayOfWeek)
	rec.RoadSurface = text(ColRoadSurface)
	rec.Lighting = text(ColLighting)

	if rec.Latitude, err = parseCoord(ColLatitude, text(ColLatitude)); err != nil {
		return rec, err
	}
	if rec.Longitude, err = parseCoord(ColLongitude, text(ColLongitude)); err != nil {
		return rec, err
	}
	if rec.Year, err = parseCount(ColYear, text(ColYear), false); err != nil {
		return rec, err
	}

	counts := []struct {
		col string
		dst *int
	}{
		{ColFatalities, &rec.Fatalities},
		{ColHospitalised, &rec.Hospitalised},
		{ColMedicallyTreated, &rec.MedicallyTreated},
		{ColMinorInjuries, &rec.MinorInjuries},
	}
	for _, c := range counts {
		if *c.dst, err = parseCount(c.col, text(c.col), true); err != nil {
			return rec, err
		}
	}

	if _, ok := get(ColCasualties); ok {
		if rec.Casualties, err = parseCount(ColCasualties, text(ColCasualties), true); err != nil {
			return rec, err
		}
	} else {
		rec.Casualties = rec.Fatalities + rec.Hospitalised + rec.MedicallyTreated + rec.MinorInjuries
	}
	return rec, nil
}

func parseCoord(col, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", col, s)
	}
	return v, nil
}

// parseCount reads a non-negative integer. Integral floats such as "3.0"
// are accepted since some exports write every number as a float.
func parseCount(col, s string, emptyIsZero bool) (int, error) {
	if s == "" {
		if emptyIsZero {
			return 0, nil
		}
		return 0, fmt.Errorf("%s: empty", col)
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%s: negative value %d", col, n)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%s: %q is not a count", col, s)
	}
	return int(f), nil
}

// ParseRow converts a row keyed by column name, as read from a database, into
// a CrashRecord. Missing optional columns behave as they do in files.
func ParseRow(row map[string]string) (types.CrashRecord, error) {
	if err := checkColumns(func(col string) bool { _, ok := row[col]; return ok }); err != nil {
		return types.CrashRecord{}, err
	}
	return parseRecord(func(col string) (string, bool) {
		v, ok := row[col]
		return v, ok
	})
}
