package records

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crashmap/internal/types"
)

const fixtureCSV = `Crash_Ref_Number,Crash_Severity,Crash_Year,Crash_Month,Crash_Day_Of_Week,Crash_Longitude,Crash_Latitude,Crash_Road_Surface_Condition,Crash_Lighting_Condition,Count_Casualty_Fatality,Count_Casualty_Hospitalised,Count_Casualty_MedicallyTreated,Count_Casualty_MinorInjury,Count_Casualty_Total
1,Fatal,2019,January,Monday,153.0251,-27.4698,Sealed - Dry,Daylight,1,0,0,0,1
2,Minor injury,2020,January,Tuesday,153.0301,-27.4712,Sealed - Wet,Daylight,0,0,0,2,2
3,Fatal,2020,March,Friday,152.9912,-27.5012,Sealed - Dry,Darkness - Lighted,2,1,0,0,3
99,Property damage only,2020,March,Friday,0.0,-0.0000095141966955,Sealed - Dry,Daylight,,,,,0
4,Minor injury,2019,March,Sunday,153.1102,-27.3921,Sealed - Dry,Daylight,0,0,0,1,1
5,Fatal,2020,June,Saturday,153.4011,-28.0167,Unsealed - Dry,Dawn/Dusk,1,0,1,0,2
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func refs(s *Store) []string {
	out := make([]string, 0, s.Len())
	for _, r := range s.Records() {
		out = append(out, r.Ref)
	}
	return out
}

func TestLoadCSV(t *testing.T) {
	s, err := Load(writeFile(t, "crashes.csv", fixtureCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, refs(s))
	assert.Equal(t, 1, s.Dropped())

	first := s.Record(0)
	assert.Equal(t, types.SeverityFatal, first.Severity)
	assert.InDelta(t, -27.4698, first.Latitude, 1e-9)
	assert.InDelta(t, 153.0251, first.Longitude, 1e-9)
	assert.Equal(t, 2019, first.Year)
	assert.Equal(t, "Monday", first.DayOfWeek)
	assert.Equal(t, 1, first.Fatalities)
	assert.Equal(t, 1, first.Casualties)

	assert.Equal(t, types.BaseAttributes, s.Schema())
	assert.False(t, s.HasAttribute(types.AttrRegion))
}

func TestLoadDropsSentinelBeforeDomains(t *testing.T) {
	csv := strings.Replace(fixtureCSV, "99,Property damage only,2020,March", "99,Property damage only,2011,Smarch", 1)
	s, err := Load(writeFile(t, "crashes.csv", csv))
	require.NoError(t, err)

	for _, r := range s.Records() {
		assert.False(t, isSentinel(r.Latitude))
	}
	assert.Equal(t, []string{"2019", "2020"}, s.Domain(types.AttrYear))
	assert.Equal(t, []string{"January", "March", "June"}, s.Domain(types.AttrMonth))
	assert.Equal(t, []string{"Fatal", "Minor injury"}, s.Domain(types.AttrSeverity))
}

func TestLoadPipeDelimited(t *testing.T) {
	piped := strings.ReplaceAll(fixtureCSV, ",", "|")
	s, err := Load(writeFile(t, "crashes.txt", piped), WithDelimiter('|'))
	require.NoError(t, err)
	assert.Equal(t, 5, s.Len())
}

func TestLoadCasualtiesDerivedWithoutTotalColumn(t *testing.T) {
	csv := "Crash_Severity,Crash_Year,Crash_Month,Crash_Longitude,Crash_Latitude,Crash_Road_Surface_Condition,Crash_Lighting_Condition,Count_Casualty_Fatality,Count_Casualty_MinorInjury\n" +
		"Fatal,2021,May,153.0,-27.0,Sealed - Dry,Daylight,1,3\n"
	s, err := Load(writeFile(t, "crashes.csv", csv))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Record(0).Casualties)
}

func TestLoadJSONMatchesCSV(t *testing.T) {
	fromCSV, err := Load(writeFile(t, "crashes.csv", fixtureCSV))
	require.NoError(t, err)

	json := `[
	{"Crash_Ref_Number":"1","Crash_Severity":"Fatal","Crash_Year":2019,"Crash_Month":"January","Crash_Day_Of_Week":"Monday","Crash_Longitude":153.0251,"Crash_Latitude":-27.4698,"Crash_Road_Surface_Condition":"Sealed - Dry","Crash_Lighting_Condition":"Daylight","Count_Casualty_Fatality":1,"Count_Casualty_Hospitalised":0,"Count_Casualty_MedicallyTreated":0,"Count_Casualty_MinorInjury":0,"Count_Casualty_Total":1},
	{"Crash_Ref_Number":"2","Crash_Severity":"Minor injury","Crash_Year":"2020","Crash_Month":"January","Crash_Day_Of_Week":"Tuesday","Crash_Longitude":"153.0301","Crash_Latitude":"-27.4712","Crash_Road_Surface_Condition":"Sealed - Wet","Crash_Lighting_Condition":"Daylight","Count_Casualty_Fatality":"0","Count_Casualty_Hospitalised":"0","Count_Casualty_MedicallyTreated":"0","Count_Casualty_MinorInjury":"2","Count_Casualty_Total":"2"},
	{"Crash_Ref_Number":"3","Crash_Severity":"Fatal","Crash_Year":2020,"Crash_Month":"March","Crash_Day_Of_Week":"Friday","Crash_Longitude":152.9912,"Crash_Latitude":-27.5012,"Crash_Road_Surface_Condition":"Sealed - Dry","Crash_Lighting_Condition":"Darkness - Lighted","Count_Casualty_Fatality":2,"Count_Casualty_Hospitalised":1,"Count_Casualty_MedicallyTreated":0,"Count_Casualty_MinorInjury":0,"Count_Casualty_Total":3},
	{"Crash_Ref_Number":"99","Crash_Severity":"Property damage only","Crash_Year":2020,"Crash_Month":"March","Crash_Day_Of_Week":"Friday","Crash_Longitude":0,"Crash_Latitude":-0.0000095141966955,"Crash_Road_Surface_Condition":"Sealed - Dry","Crash_Lighting_Condition":"Daylight","Count_Casualty_Fatality":null,"Count_Casualty_Hospitalised":null,"Count_Casualty_MedicallyTreated":null,"Count_Casualty_MinorInjury":null,"Count_Casualty_Total":0},
	{"Crash_Ref_Number":"4","Crash_Severity":"Minor injury","Crash_Year":2019,"Crash_Month":"March","Crash_Day_Of_Week":"Sunday","Crash_Longitude":153.1102,"Crash_Latitude":-27.3921,"Crash_Road_Surface_Condition":"Sealed - Dry","Crash_Lighting_Condition":"Daylight","Count_Casualty_Fatality":0,"Count_Casualty_Hospitalised":0,"Count_Casualty_MedicallyTreated":0,"Count_Casualty_MinorInjury":1,"Count_Casualty_Total":1},
	{"Crash_Ref_Number":"5","Crash_Severity":"Fatal","Crash_Year":2020,"Crash_Month":"June","Crash_Day_Of_Week":"Saturday","Crash_Longitude":153.4011,"Crash_Latitude":-28.0167,"Crash_Road_Surface_Condition":"Unsealed - Dry","Crash_Lighting_Condition":"Dawn/Dusk","Count_Casualty_Fatality":1,"Count_Casualty_Hospitalised":0,"Count_Casualty_MedicallyTreated":1,"Count_Casualty_MinorInjury":0,"Count_Casualty_Total":2.0}
]`
	fromJSON, err := Load(writeFile(t, "crashes.json", json))
	require.NoError(t, err)

	assert.Equal(t, fromCSV.Records(), fromJSON.Records())
	assert.Equal(t, fromCSV.Domains(), fromJSON.Domains())
	assert.Equal(t, 1, fromJSON.Dropped())
}

func TestLoadZstd(t *testing.T) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte(fixtureCSV))
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	plain, err := Load(writeFile(t, "crashes.csv", fixtureCSV))
	require.NoError(t, err)
	packed, err := Load(writeFile(t, "crashes.csv.zst", buf.String()))
	require.NoError(t, err)

	assert.Equal(t, plain.Records(), packed.Records())
}

func TestLoadErrors(t *testing.T) {
	header := strings.SplitN(fixtureCSV, "\n", 2)[0] + "\n"
	row := "1,Fatal,2019,January,Monday,%s,%s,Sealed - Dry,Daylight,1,0,0,0,%s\n"

	cases := []struct {
		name string
		file string
		body string
		kind types.LoadErrorKind
		line int
	}{
		{name: "empty file", file: "a.csv", body: "", kind: types.LoadEmpty},
		{name: "header only", file: "a.csv", body: header, kind: types.LoadEmpty},
		{name: "only sentinel", file: "a.csv", body: header + "99,Fatal,2020,March,Friday,0,-0.0000095141966955,Dry,Daylight,0,0,0,0,0\n", kind: types.LoadEmpty},
		{name: "missing column", file: "a.csv", body: "Crash_Severity,Crash_Year\nFatal,2019\n", kind: types.LoadMalformed},
		{name: "bad latitude", file: "a.csv", body: header + fmt.Sprintf(row, "153.0", "north", "1"), kind: types.LoadMalformed, line: 1},
		{name: "latitude out of range", file: "a.csv", body: header + fmt.Sprintf(row, "153.0", "-27.0", "1") + fmt.Sprintf(row, "153.0", "-127.0", "1"), kind: types.LoadMalformed, line: 2},
		{name: "negative count", file: "a.csv", body: header + fmt.Sprintf(row, "153.0", "-27.0", "-1"), kind: types.LoadMalformed, line: 1},
		{name: "ragged row", file: "a.csv", body: header + "1,Fatal\n", kind: types.LoadMalformed, line: 1},
		{name: "json object", file: "a.json", body: `{"Crash_Year":2019}`, kind: types.LoadMalformed},
		{name: "json empty array", file: "a.json", body: `[]`, kind: types.LoadEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.file, tc.body))
			require.ErrorIs(t, err, types.ErrDataLoad)
			var dle *types.DataLoadError
			require.ErrorAs(t, err, &dle)
			assert.Equal(t, tc.kind, dle.Kind)
			assert.Equal(t, tc.line, dle.Line)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"))
	var dle *types.DataLoadError
	require.ErrorAs(t, err, &dle)
	assert.Equal(t, types.LoadMissing, dle.Kind)
}

type boxTagger struct{}

func (boxTagger) Lookup(lat, lon float64) (string, bool) {
	if lat > -27.8 && lat < -27.2 && lon > 152.8 && lon < 153.2 {
		return "Brisbane", true
	}
	return "", false
}

func TestLoadWithRegions(t *testing.T) {
	s, err := Load(writeFile(t, "crashes.csv", fixtureCSV), WithRegions(boxTagger{}))
	require.NoError(t, err)

	assert.True(t, s.HasAttribute(types.AttrRegion))
	assert.Equal(t, []string{"Brisbane", "Unknown"}, s.Domain(types.AttrRegion))
	assert.Equal(t, "Unknown", s.Record(4).Region)
}

func TestFromRecordsLeavesInputAlone(t *testing.T) {
	in := []types.CrashRecord{
		{Ref: "x", Latitude: sentinelLatitude, Longitude: 0, Year: 2020},
		{Ref: "y", Latitude: -27.1, Longitude: 153.1, Year: 2021, Month: "May"},
	}
	s, err := FromRecords("oracle", in)
	require.NoError(t, err)

	assert.Equal(t, []string{"y"}, refs(s))
	assert.Equal(t, "x", in[0].Ref)
	assert.Equal(t, "oracle", s.Source())
}

func TestWriteCSVLoadsBack(t *testing.T) {
	orig, err := Load(writeFile(t, "crashes.csv", fixtureCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, orig.Records()))

	again, err := Load(writeFile(t, "export.csv", buf.String()))
	require.NoError(t, err)
	assert.Equal(t, orig.Records(), again.Records())
}

func TestParseParallelReportsEarliestBadRow(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(fixtureCSV), "\n")
	header := strings.Split(lines[0], ",")
	good := make(map[string]string, len(header))
	for i, v := range strings.Split(lines[1], ",") {
		good[header[i]] = v
	}

	const n = 2000
	bad := map[int]bool{7: true, n - 3: true}
	_, err := parseParallel(n, func(i int) getter {
		return func(col string) (string, bool) {
			if bad[i] && col == ColLatitude {
				return "north", true
			}
			v, ok := good[col]
			return v, ok
		}
	})

	var re *rowError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 8, re.record)
}
