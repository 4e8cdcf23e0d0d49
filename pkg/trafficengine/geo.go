package trafficengine

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"math"
	"os"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"
	geojson "github.com/paulmach/go.geojson"
)

// projection maps latitude/longitude onto the screen with a Mollweide projection.
type projection struct {
	width, height int
	scale         float64
}

func newProjection(width, height int) projection {
	return projection{width: width, height: height, scale: float64(width) / (2 * math.Sqrt(8)) * 1.2}
}

func (g projection) Project(lat, lng float64) (x, y float64) {
	if lat > 89.5 {
		lat = 89.5
	}
	if lat < -89.5 {
		lat = -89.5
	}

	latRad, lngRad := lat*math.Pi/180, lng*math.Pi/180
	theta := latRad
	for i := 0; i < 10; i++ {
		denom := 2 + 2*math.Cos(2*theta)
		if math.Abs(denom) < 1e-9 {
			break
		}
		delta := (2*theta + math.Sin(2*theta) - math.Pi*math.Sin(latRad)) / denom
		theta -= delta
		if math.Abs(delta) < 1e-7 {
			break
		}
	}
	r := g.scale
	x = (float64(g.width) / 2) + r*(2*math.Sqrt(2)/math.Pi)*lngRad*math.Cos(theta)
	y = (float64(g.height) / 2) - r*math.Sqrt(2)*math.Sin(theta)
	return x, y
}

// LoadWorldMap rasterizes a GeoJSON world outline into the geo layout background.
func (e *Engine) LoadWorldMap(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read world map: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("parse world map: %w", err)
	}
	e.bgImage = ebiten.NewImageFromImage(e.proj.rasterize(fc))
	log.Printf("[GEO] Loaded world map with %d features from %s", len(fc.Features), path)
	return nil
}

var (
	colorLand  = color.RGBA{26, 29, 35, 255}
	colorCoast = color.RGBA{36, 42, 53, 255}
)

func (g projection) rasterize(fc *geojson.FeatureCollection) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	draw.Draw(img, img.Bounds(), &image.Uniform{ColorBackground}, image.Point{}, draw.Src)
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if f.Geometry.IsPolygon() {
			g.fillPolygon(img, f.Geometry.Polygon, colorLand)
			for _, ring := range f.Geometry.Polygon {
				g.drawRing(img, ring, colorCoast)
			}
		} else if f.Geometry.IsMultiPolygon() {
			for _, poly := range f.Geometry.MultiPolygon {
				g.fillPolygon(img, poly, colorLand)
				for _, ring := range poly {
					g.drawRing(img, ring, colorCoast)
				}
			}
		}
	}
	return img
}

// fillPolygon is a scanline fill using the even-odd rule across all rings.
func (g projection) fillPolygon(img *image.RGBA, rings [][][]float64, c color.RGBA) {
	if len(rings) == 0 {
		return
	}
	type point struct{ x, y float64 }
	projected := make([][]point, len(rings))
	minY, maxY := float64(g.height), 0.0
	for i, ring := range rings {
		projected[i] = make([]point, len(ring))
		for j, p := range ring {
			x, y := g.Project(p[1], p[0])
			projected[i][j] = point{x, y}
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		}
	}
	for y := int(minY); y <= int(maxY); y++ {
		if y < 0 || y >= g.height {
			continue
		}
		var nodes []int
		fy := float64(y)
		for _, ring := range projected {
			for i := range ring {
				j := (i + 1) % len(ring)
				if (ring[i].y < fy && ring[j].y >= fy) || (ring[j].y < fy && ring[i].y >= fy) {
					nodes = append(nodes, int(ring[i].x+(fy-ring[i].y)/(ring[j].y-ring[i].y)*(ring[j].x-ring[i].x)))
				}
			}
		}
		sort.Ints(nodes)
		for i := 0; i < len(nodes)-1; i += 2 {
			xs, xe := max(nodes[i], 0), min(nodes[i+1], g.width-1)
			for x := xs; x < xe; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

func (g projection) drawRing(img *image.RGBA, coords [][]float64, c color.RGBA) {
	for i := 0; i < len(coords)-1; i++ {
		x1, y1 := g.Project(coords[i][1], coords[i][0])
		x2, y2 := g.Project(coords[i+1][1], coords[i+1][0])
		drawLine(img, int(x1), int(y1), int(x2), int(y2), c)
	}
}

// drawLine is Bresenham; points outside img are skipped.
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx, dy := abs(x2-x1), abs(y2-y1)
	sx, sy := -1, -1
	if x1 < x2 {
		sx = 1
	}
	if y1 < y2 {
		sy = 1
	}
	err := dx - dy
	for {
		if image.Pt(x1, y1).In(img.Rect) {
			img.SetRGBA(x1, y1, c)
		}
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
