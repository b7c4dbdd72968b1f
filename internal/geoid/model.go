// Package geoid converts satellite (ellipsoidal) heights into orthometric
// heights using a raster of geoid undulations.
//
// Lookups never fail. Coordinates outside the grid, cells touching a no-data
// node, and models whose grid could not be loaded all yield FallbackUndulation
// so that capture keeps working in degraded mode.
package geoid

import (
	"errors"
	"fmt"
	"math"
)

// FallbackUndulation is the undulation in metres returned when the grid
// cannot answer a lookup.
const FallbackUndulation = 48.3

// DefaultNoData is the no-data sentinel of the EHT2014 grid.
const DefaultNoData float32 = -88.8888

var (
	// ErrGridSize is returned when the value count does not match width*height.
	ErrGridSize = errors.New("geoid grid size mismatch")
	// ErrBounds is returned for an empty or inverted bounding box.
	ErrBounds = errors.New("invalid geoid grid bounds")
)

// Bounds is the geographic extent of the grid in degrees (EPSG:4326). Node
// (0,0) sits at (MinLat, MinLon) and node (width-1, height-1) at
// (MaxLat, MaxLon).
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether lat/lon lies inside the bounds, edges included.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

func (b Bounds) validate() error {
	for _, v := range []float64{b.MinLat, b.MaxLat, b.MinLon, b.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite edge in %+v", ErrBounds, b)
		}
	}
	if b.MaxLat <= b.MinLat || b.MaxLon <= b.MinLon {
		return fmt.Errorf("%w: %+v", ErrBounds, b)
	}
	return nil
}

// EHT2014Bounds is the extent of the bundled Hungarian EHT2014 geoid grid.
var EHT2014Bounds = Bounds{MinLat: 45.551, MaxLat: 48.899, MinLon: 16.087, MaxLon: 23.055}

// Model answers undulation lookups over an immutable grid. A Model is safe for
// concurrent use by any number of readers.
type Model struct {
	values   []float32
	width    int
	height   int
	bounds   Bounds
	noData   float32
	fallback float64
}

// Unloaded returns a model that always answers with the fallback.
func Unloaded() *Model {
	return &Model{fallback: FallbackUndulation}
}

// Load builds a model from row-major values, row 0 being the MinLat edge.
// The values slice is copied. On error the returned model is unloaded and
// still usable.
func Load(values []float32, width, height int, bounds Bounds, noData float32) (*Model, error) {
	if width < 1 || height < 1 || len(values) != width*height {
		return Unloaded(), fmt.Errorf("%w: %d values for %dx%d", ErrGridSize, len(values), width, height)
	}
	if err := bounds.validate(); err != nil {
		return Unloaded(), err
	}
	grid := make([]float32, len(values))
	copy(grid, values)
	return &Model{
		values:   grid,
		width:    width,
		height:   height,
		bounds:   bounds,
		noData:   noData,
		fallback: FallbackUndulation,
	}, nil
}

// Loaded reports whether the model holds a usable grid.
func (m *Model) Loaded() bool {
	return m != nil && len(m.values) > 0
}

// Bounds returns the grid extent.
func (m *Model) Bounds() Bounds { return m.bounds }

// Size returns the grid width and height in nodes.
func (m *Model) Size() (width, height int) { return m.width, m.height }

// Node returns the raw value stored at column x, row y.
func (m *Model) Node(x, y int) (float32, bool) {
	if !m.Loaded() || x < 0 || y < 0 || x >= m.width || y >= m.height {
		return 0, false
	}
	return m.values[y*m.width+x], true
}

// NoData returns the sentinel marking missing nodes.
func (m *Model) NoData() float32 { return m.noData }

// Lookup returns the geoid undulation N in metres at lat/lon.
func (m *Model) Lookup(lat, lon float64) float64 {
	n, _ := m.Interpolate(lat, lon)
	return n
}

// Interpolate is Lookup that also reports whether the grid answered, as
// opposed to the fallback being used.
func (m *Model) Interpolate(lat, lon float64) (float64, bool) {
	if !m.Loaded() {
		return m.fallbackValue(), false
	}

	x := fraction(lon, m.bounds.MinLon, m.bounds.MaxLon, m.width)
	y := fraction(lat, m.bounds.MinLat, m.bounds.MaxLat, m.height)
	if math.IsNaN(x) || math.IsNaN(y) || x < 0 || y < 0 || x > float64(m.width-1) || y > float64(m.height-1) {
		return m.fallbackValue(), false
	}

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := min(x0+1, m.width-1)
	y1 := min(y0+1, m.height-1)

	q00 := m.values[y0*m.width+x0]
	q01 := m.values[y0*m.width+x1]
	q10 := m.values[y1*m.width+x0]
	q11 := m.values[y1*m.width+x1]
	if q00 == m.noData || q01 == m.noData || q10 == m.noData || q11 == m.noData {
		return m.fallbackValue(), false
	}

	tx := x - float64(x0)
	ty := y - float64(y0)
	n := float64(q00)*(1-tx)*(1-ty) +
		float64(q01)*tx*(1-ty) +
		float64(q10)*(1-tx)*ty +
		float64(q11)*tx*ty
	return n, true
}

// OrthometricHeight converts an ellipsoidal height to a height above the geoid.
func (m *Model) OrthometricHeight(ellipsoidalHeight, lat, lon float64) float64 {
	return ellipsoidalHeight - m.Lookup(lat, lon)
}

func (m *Model) fallbackValue() float64 {
	if m == nil {
		return FallbackUndulation
	}
	return m.fallback
}

// fraction maps v in [lo, hi] to a fractional node index in [0, n-1]. A single
// node axis always maps to index 0 when v is in range.
func fraction(v, lo, hi float64, n int) float64 {
	if n == 1 {
		if !(v >= lo && v <= hi) {
			return -1
		}
		return 0
	}
	return (v - lo) / (hi - lo) * float64(n-1)
}
