package render

import (
	"encoding/json"

	"github.com/golang/geo/s2"

	"crashmap/internal/types"
)

// Bucket summarises the records falling in one S2 cell.
type Bucket struct {
	Cell       s2.CellID
	Lat        float64
	Lon        float64
	Count      int
	Casualties int
	Worst      types.Severity
}

func (b Bucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Cell       string  `json:"cell"`
		Lat        float64 `json:"lat"`
		Lon        float64 `json:"lon"`
		Count      int     `json:"count"`
		Casualties int     `json:"casualties"`
		Worst      string  `json:"worst"`
	}{b.Cell.ToToken(), b.Lat, b.Lon, b.Count, b.Casualties, b.Worst.String()})
}

// bucketize groups records by their S2 cell at level. Buckets come out in
// order of each cell's first record; Lat/Lon is the mean position.
func bucketize(recs []types.CrashRecord, level int) []Bucket {
	out := []Bucket{}
	index := make(map[s2.CellID]int)
	for _, r := range recs {
		cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(r.Latitude, r.Longitude)).Parent(level)
		i, ok := index[cell]
		if !ok {
			i = len(out)
			index[cell] = i
			out = append(out, Bucket{Cell: cell})
		}
		b := &out[i]
		b.Count++
		b.Lat += r.Latitude
		b.Lon += r.Longitude
		b.Casualties += r.Casualties
		if r.Severity > b.Worst {
			b.Worst = r.Severity
		}
	}
	for i := range out {
		out[i].Lat /= float64(out[i].Count)
		out[i].Lon /= float64(out[i].Count)
	}
	return out
}
