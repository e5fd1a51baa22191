package render

import (
	geojson "github.com/paulmach/go.geojson"
)

// GeoJSON returns one point feature per tuple, in payload order. Popup
// fields become properties named after PopupColumns.
func GeoJSON(p Payload) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, t := range p.Tuples {
		f := geojson.NewPointFeature([]float64{t.Lon, t.Lat})
		style := p.Style.For(t.Severity, t.Casualties)
		f.SetProperty("severity", t.Severity.String())
		f.SetProperty("casualties", t.Casualties)
		f.SetProperty("color", style.Color)
		f.SetProperty("radius", style.Radius)
		popup := []any{
			t.Date, t.DayOfWeek, t.RoadSurface, t.Lighting,
			t.Fatalities, t.Hospitalised, t.MedicallyTreated, t.MinorInjuries,
		}
		for i, col := range p.Columns {
			f.SetProperty(col, popup[i])
		}
		fc.AddFeature(f)
	}
	return fc
}

// BucketsGeoJSON returns one point feature per bucket at its mean position.
func BucketsGeoJSON(p Payload) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, b := range p.Buckets {
		f := geojson.NewPointFeature([]float64{b.Lon, b.Lat})
		f.SetProperty("cell", b.Cell.ToToken())
		f.SetProperty("count", b.Count)
		f.SetProperty("casualties", b.Casualties)
		f.SetProperty("worst", b.Worst.String())
		f.SetProperty("color", p.Style.For(b.Worst, 0).Color)
		fc.AddFeature(f)
	}
	return fc
}
