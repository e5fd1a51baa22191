package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"Fatal":                 SeverityFatal,
		"fatal":                 SeverityFatal,
		"Hospitalisation":       SeverityHospitalisation,
		"Medical treatment":     SeverityMedicalTreatment,
		"  medical   TREATMENT": SeverityMedicalTreatment,
		"Minor injury":          SeverityMinorInjury,
		"Property damage only":  SeverityNone,
		"":                      SeverityNone,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseSeverity(in), "input %q", in)
	}
}

func TestSeverityStringRoundTrip(t *testing.T) {
	for _, s := range []Severity{SeverityFatal, SeverityHospitalisation, SeverityMedicalTreatment, SeverityMinorInjury, SeverityNone} {
		assert.Equal(t, s, ParseSeverity(s.String()))
	}
	assert.Equal(t, "None", Severity(42).String())
}

func TestCrashRecordValue(t *testing.T) {
	r := CrashRecord{
		Year:        2020,
		Month:       "March",
		Severity:    SeverityFatal,
		RoadSurface: "Wet",
		Lighting:    "Darkness - Lighted",
		Region:      "Brisbane",
	}

	want := map[Attribute]string{
		AttrYear:        "2020",
		AttrMonth:       "March",
		AttrSeverity:    "Fatal",
		AttrRoadSurface: "Wet",
		AttrLighting:    "Darkness - Lighted",
		AttrRegion:      "Brisbane",
	}
	for attr, v := range want {
		got, ok := r.Value(attr)
		assert.True(t, ok, attr)
		assert.Equal(t, v, got, attr)
	}

	_, ok := r.Value(Attribute("speed_limit"))
	assert.False(t, ok)
}

func TestErrorsMatchSentinels(t *testing.T) {
	loadErr := fmt.Errorf("startup: %w", &DataLoadError{Kind: LoadEmpty, Path: "x.csv"})
	assert.True(t, errors.Is(loadErr, ErrDataLoad))
	assert.False(t, errors.Is(loadErr, ErrAcquisition))

	var dle *DataLoadError
	assert.True(t, errors.As(loadErr, &dle))
	assert.Equal(t, LoadEmpty, dle.Kind)

	assert.True(t, errors.Is(&InvalidFilterValueError{Attribute: AttrYear, Value: "1999"}, ErrInvalidFilterValue))
	assert.True(t, errors.Is(&SchemaMismatchError{Attribute: AttrRegion}, ErrSchemaMismatch))

	acqErr := &AcquisitionError{URL: "http://example.invalid", Err: context.Canceled}
	assert.True(t, errors.Is(acqErr, ErrAcquisition))
	assert.True(t, errors.Is(acqErr, context.Canceled))
	assert.Contains(t, (&AcquisitionError{URL: "u", StatusCode: 503}).Error(), "503")
}
