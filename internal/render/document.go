package render

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/map.html
var templates embed.FS

var mapTemplate = template.Must(template.ParseFS(templates, "templates/map.html"))

// View is the initial map position.
type View struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom int     `json:"zoom"`
}

// DefaultView is centred on Brisbane.
var DefaultView = View{Lat: -27.470457, Lon: 153.025974, Zoom: 7}

// DocumentOptions carries page metadata that is not part of the payload.
type DocumentOptions struct {
	Title string
	View  View
	// Generation identifies the render; PollURL, when set, is polled and
	// the page reloads once it reports another generation.
	Generation uint64
	PollURL    string
	// FiltersURL and ApplyURL, when set, add a checkbox sidebar that
	// toggles values and applies them through the viewport API.
	FiltersURL string
	ApplyURL   string
}

// Document writes a self-contained HTML page drawing p as clustered
// markers.
func Document(w io.Writer, p Payload, opts DocumentOptions) error {
	if opts.Title == "" {
		opts.Title = "Road crashes"
	}
	return mapTemplate.Execute(w, struct {
		Title      string
		Records    int
		Tier       Tier
		Payload    Payload
		View       View
		Generation uint64
		PollURL    string
		FiltersURL string
		ApplyURL   string
	}{
		Title:      opts.Title,
		Records:    p.Len(),
		Tier:       p.Tier,
		Payload:    p,
		View:       opts.View,
		Generation: opts.Generation,
		PollURL:    opts.PollURL,
		FiltersURL: opts.FiltersURL,
		ApplyURL:   opts.ApplyURL,
	})
}
