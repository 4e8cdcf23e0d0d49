package trafficengine

import (
	"math"
	"testing"

	geojson "github.com/paulmach/go.geojson"
)

func TestProjectViewerWindow(t *testing.T) {
	g := newProjection(1280, 720)

	tests := []struct {
		name         string
		lat, lng     float64
		wantX, wantY float64
	}{
		{"origin", 0, 0, 640, 360},
		{"antimeridian east", 0, 180, 1408, 360},
		{"antimeridian west", 0, -180, -128, 360},
		{"quarter east", 0, 90, 1024, 360},
	}
	for _, tt := range tests {
		x, y := g.Project(tt.lat, tt.lng)
		if math.Abs(x-tt.wantX) > 0.5 || math.Abs(y-tt.wantY) > 0.5 {
			t.Errorf("%s: expected (%.1f, %.1f), got (%.1f, %.1f)", tt.name, tt.wantX, tt.wantY, x, y)
		}
	}
}

func TestProjectSymmetry(t *testing.T) {
	g := newProjection(1280, 720)
	prevY := math.Inf(1)
	for lat := -80.0; lat <= 80; lat += 20 {
		_, north := g.Project(lat, 30)
		_, south := g.Project(-lat, 30)
		if math.Abs(north+south-720) > 1e-6 {
			t.Errorf("Latitude %v: expected y mirrored around 360, got %v and %v", lat, north, south)
		}
		if north >= prevY {
			t.Errorf("Latitude %v: expected y to shrink going north, got %v after %v", lat, north, prevY)
		}
		prevY = north
	}

	// Latitudes past the pole clamp instead of wrapping.
	_, pole := g.Project(90, 0)
	_, beyond := g.Project(120, 0)
	if pole != beyond {
		t.Errorf("Expected clamped pole, got %v and %v", pole, beyond)
	}
}

func TestRasterizeFillsLand(t *testing.T) {
	g := newProjection(400, 200)
	fc, err := geojson.UnmarshalFeatureCollection([]byte(`{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {},
			"geometry": {"type": "Polygon", "coordinates": [[[-20, -20], [20, -20], [20, 20], [-20, 20], [-20, -20]]]}
		}]
	}`))
	if err != nil {
		t.Fatalf("Failed to parse feature collection: %v", err)
	}

	img := g.rasterize(fc)
	if got := img.RGBAAt(200, 100); got != colorLand {
		t.Errorf("Expected land colour at the centre, got %v", got)
	}
	if got := img.RGBAAt(5, 5); got != ColorBackground {
		t.Errorf("Expected background colour in the corner, got %v", got)
	}
}
