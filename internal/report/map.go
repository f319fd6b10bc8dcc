package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var mapPage = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>html, body, #map { height: 100%; margin: 0; background: #f7f3ec; }</style>
</head>
<body>
<div id="map"></div>
<script>
const region = {{.GeoJSON}};
const map = L.map("map");
L.tileLayer("https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", {
  maxZoom: 19,
  attribution: "&copy; OpenStreetMap contributors"
}).addTo(map);
const layer = L.geoJSON(region, {
  style: { color: "#3b6cff", weight: 2, fillColor: "#6bc6ff", fillOpacity: 0.25 },
  onEachFeature: (f, l) => l.bindTooltip(
    "{{.AreaLabel}}: " + f.properties.area_km2 + " km²<br>{{.PerimeterLabel}}: " + f.properties.perim_km + " km"
  )
}).addTo(map);
map.fitBounds(layer.getBounds());
</script>
</body>
</html>
`))

type mapData struct {
	Lang           string
	Title          string
	AreaLabel      string
	PerimeterLabel string
	GeoJSON        template.JS
}

// measure returns area in km² and perimeter in km of geometries in a
// metric projection, rounded to two decimals.
func measure(geoms []orb.Geometry) (area, perimeter float64) {
	for _, g := range geoms {
		area += math.Abs(planar.Area(g))
		perimeter += planar.Length(g)
	}
	return round2(area / 1e6), round2(perimeter / 1e3)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// writeMap renders an interactive page showing the WGS84 region outline.
func writeMap(path, name, lang string, wgs84 []orb.Geometry, area, perimeter float64) error {
	fc := geojson.NewFeatureCollection()
	for _, g := range wgs84 {
		f := geojson.NewFeature(g)
		f.Properties["name"] = name
		f.Properties["area_km2"] = area
		f.Properties["perim_km"] = perimeter
		fc.Append(f)
	}
	raw, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encode region: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create map: %w", err)
	}
	defer f.Close()

	data := mapData{
		Lang:           lang,
		Title:          fmt.Sprintf("%s: %s", Label("map", lang), name),
		AreaLabel:      text{"Fläche", "Area"}.in(lang),
		PerimeterLabel: text{"Umfang", "Perimeter"}.in(lang),
		GeoJSON:        template.JS(raw), //nolint:gosec // marshalled by encoding/json
	}
	if err := mapPage.Execute(f, data); err != nil {
		return fmt.Errorf("render map: %w", err)
	}
	return f.Close()
}
