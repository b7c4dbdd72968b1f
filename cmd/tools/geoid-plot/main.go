// Command geoid-plot renders a geoid grid as a PNG heat map, optionally with
// the captured points from a geomeasure database drawn on top.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/geomeasure/internal/db"
	"github.com/banshee-data/geomeasure/internal/geoid"
	"github.com/banshee-data/geomeasure/internal/measure"
)

var (
	gridPath = flag.String("grid", "data/eht2014.f32", "Raw float32 geoid grid")
	metaPath = flag.String("meta", "", "JSON sidecar (EHT2014 layout when empty)")
	dbPath   = flag.String("db", "", "Optional geomeasure database whose points are overlaid")
	out      = flag.String("out", "geoid.png", "Output PNG path")
	colors   = flag.Int("colors", 24, "Palette size")
)

// grid adapts a loaded model to plotter.GridXYZ. Columns run west to east,
// rows south to north; no-data nodes are NaN.
type grid struct {
	m *geoid.Model
}

func (g grid) Dims() (c, r int) { return g.m.Size() }

func (g grid) Z(c, r int) float64 {
	v, ok := g.m.Node(c, r)
	if !ok || v == g.m.NoData() {
		return math.NaN()
	}
	return float64(v)
}

func (g grid) X(c int) float64 {
	w, _ := g.m.Size()
	b := g.m.Bounds()
	return axis(b.MinLon, b.MaxLon, w, c)
}

func (g grid) Y(r int) float64 {
	_, h := g.m.Size()
	b := g.m.Bounds()
	return axis(b.MinLat, b.MaxLat, h, r)
}

func axis(lo, hi float64, n, i int) float64 {
	if n <= 1 {
		return lo
	}
	return lo + float64(i)*(hi-lo)/float64(n-1)
}

func pointsXY(points []measure.Point) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, p := range points {
		xys[i] = plotter.XY{X: p.Longitude, Y: p.Latitude}
	}
	return xys
}

func render(m *geoid.Model, points []measure.Point, path string, n int) error {
	p := plot.New()
	p.Title.Text = "Geoid undulation (m)"
	p.X.Label.Text = "longitude"
	p.Y.Label.Text = "latitude"

	hm := plotter.NewHeatMap(grid{m}, palette.Heat(n, 1))
	hm.NaN = color.Transparent
	p.Add(hm)

	if len(points) > 0 {
		sc, err := plotter.NewScatter(pointsXY(points))
		if err != nil {
			return fmt.Errorf("failed to plot points: %w", err)
		}
		sc.GlyphStyle.Color = color.Black
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add("points", sc)
	}

	return p.Save(10*vg.Inch, 8*vg.Inch, path)
}

func main() {
	flag.Parse()

	md := geoid.EHT2014Metadata()
	if *metaPath != "" {
		var err error
		if md, err = geoid.ReadMetadata(*metaPath); err != nil {
			log.Fatalf("failed to read metadata: %v", err)
		}
	}
	m, err := geoid.LoadFile(*gridPath, md)
	if err != nil {
		log.Fatalf("failed to load grid: %v", err)
	}

	var points []measure.Point
	if *dbPath != "" {
		store, err := db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		points, err = store.ListPoints()
		store.Close()
		if err != nil {
			log.Fatalf("failed to list points: %v", err)
		}
	}

	if err := render(m, points, *out, *colors); err != nil {
		log.Fatalf("failed to render: %v", err)
	}
	log.Printf("wrote %s (%d points)", *out, len(points))
}
