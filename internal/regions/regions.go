// Package regions labels crash locations with the name of the boundary
// polygon (local government area, police district, ...) that contains them.
package regions

import (
	"fmt"
	"math"
	"strings"

	shp "github.com/jonas-p/go-shp"
)

// Unknown labels points outside every polygon.
const Unknown = "Unknown"

// Tagger names the region containing a point.
type Tagger interface {
	Lookup(lat, lon float64) (string, bool)
}

// feature is one polygon (possibly multi-part) with its name.
type feature struct {
	Name   string
	Parts  [][][2]float64 // each part is a closed ring of [lat, lon] points
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Layer is an in-memory polygon layer loaded from a shapefile whose
// coordinates are WGS-84 longitude/latitude.
type Layer struct {
	features []feature
}

// Load reads the shapefile at path and names each polygon by the DBF field
// nameField.
func Load(path, nameField string) (*Layer, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open regions shapefile %s: %w", path, err)
	}
	defer r.Close()

	nameIdx := -1
	for i, f := range r.Fields() {
		if strings.EqualFold(strings.TrimSpace(f.String()), nameField) {
			nameIdx = i
			break
		}
	}
	if nameIdx < 0 {
		return nil, fmt.Errorf("regions shapefile %s has no %q field", path, nameField)
	}

	layer := &Layer{}
	for r.Next() {
		idx, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		layer.features = append(layer.features, toFeature(poly, attrText(r.ReadAttribute(idx, nameIdx))))
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read regions shapefile %s: %w", path, err)
	}
	return layer, nil
}

// attrText strips DBF padding, which is spaces in most files and NULs in
// files whose writer left short values unpadded.
func attrText(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

func toFeature(poly *shp.Polygon, name string) feature {
	f := feature{
		Name:   name,
		Parts:  make([][][2]float64, len(poly.Parts)),
		MinLat: math.MaxFloat64,
		MinLon: math.MaxFloat64,
		MaxLat: -math.MaxFloat64,
		MaxLon: -math.MaxFloat64,
	}
	for p := range poly.Parts {
		start := poly.Parts[p]
		end := int32(len(poly.Points))
		if p+1 < len(poly.Parts) {
			end = poly.Parts[p+1]
		}
		ring := make([][2]float64, 0, end-start)
		for _, pt := range poly.Points[start:end] {
			ring = append(ring, [2]float64{pt.Y, pt.X})
			f.MinLat = math.Min(f.MinLat, pt.Y)
			f.MaxLat = math.Max(f.MaxLat, pt.Y)
			f.MinLon = math.Min(f.MinLon, pt.X)
			f.MaxLon = math.Max(f.MaxLon, pt.X)
		}
		f.Parts[p] = ring
	}
	return f
}

// Lookup returns the name of the first polygon containing the point.
func (l *Layer) Lookup(lat, lon float64) (string, bool) {
	for _, f := range l.features {
		if lat < f.MinLat || lat > f.MaxLat || lon < f.MinLon || lon > f.MaxLon {
			continue
		}
		for _, ring := range f.Parts {
			if pointInRing(lat, lon, ring) {
				return f.Name, true
			}
		}
	}
	return "", false
}

// Len is the number of polygons in the layer.
func (l *Layer) Len() int {
	return len(l.features)
}

// pointInRing is the even-odd ray casting test.
func pointInRing(lat, lon float64, ring [][2]float64) bool {
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		yi, xi := ring[i][0], ring[i][1]
		yj, xj := ring[j][0], ring[j][1]
		if (yi > lat) != (yj > lat) && lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}
