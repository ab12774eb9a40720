package raster

import (
	"encoding/json"
	"fmt"
	"math"

	geo "github.com/nci/geometry"
)

// ring is one closed boundary of a polygon as (x, y) map coordinates.
type ring [][2]float64

// polygon is an exterior ring followed by any interior (hole) rings.
type polygon []ring

// decodedGeometry is the coordinate-level view of a GeoJSON geometry.
// The geometry package's types marshal to standard GeoJSON, so coordinates
// are recovered by round-tripping through JSON rather than poking at the
// concrete types.
type decodedGeometry struct {
	kind     string
	points   [][2]float64
	polygons []polygon
}

func decodeGeometry(g geo.Geometry) (*decodedGeometry, error) {
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshalling geometry: %w", err)
	}
	var env struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding geometry: %w", err)
	}
	dg := &decodedGeometry{kind: env.Type}
	switch env.Type {
	case "Point":
		var c [2]float64
		if err := json.Unmarshal(env.Coordinates, &c); err != nil {
			return nil, fmt.Errorf("decoding Point coordinates: %w", err)
		}
		dg.points = [][2]float64{c}
	case "MultiPoint":
		if err := json.Unmarshal(env.Coordinates, &dg.points); err != nil {
			return nil, fmt.Errorf("decoding MultiPoint coordinates: %w", err)
		}
	case "Polygon":
		var p polygon
		if err := json.Unmarshal(env.Coordinates, &p); err != nil {
			return nil, fmt.Errorf("decoding Polygon coordinates: %w", err)
		}
		dg.polygons = []polygon{p}
	case "MultiPolygon":
		if err := json.Unmarshal(env.Coordinates, &dg.polygons); err != nil {
			return nil, fmt.Errorf("decoding MultiPolygon coordinates: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", env.Type)
	}
	return dg, nil
}

// bounds returns the coordinate extent of the geometry.
func (dg *decodedGeometry) bounds() Bounds {
	b := Bounds{XMin: math.Inf(1), YMin: math.Inf(1), XMax: math.Inf(-1), YMax: math.Inf(-1)}
	visit := func(x, y float64) {
		b.XMin = math.Min(b.XMin, x)
		b.YMin = math.Min(b.YMin, y)
		b.XMax = math.Max(b.XMax, x)
		b.YMax = math.Max(b.YMax, y)
	}
	for _, p := range dg.points {
		visit(p[0], p[1])
	}
	for _, poly := range dg.polygons {
		for _, r := range poly {
			for _, v := range r {
				visit(v[0], v[1])
			}
		}
	}
	return b
}

// centroid returns the area-weighted centroid of the geometry's polygons,
// or the mean of its points for point geometries.
func (dg *decodedGeometry) centroid() (x, y float64) {
	if len(dg.points) > 0 {
		for _, p := range dg.points {
			x += p[0]
			y += p[1]
		}
		n := float64(len(dg.points))
		return x / n, y / n
	}
	var areaSum, cxSum, cySum float64
	for _, poly := range dg.polygons {
		for ri, r := range poly {
			a, cx, cy := ringCentroid(r)
			if ri > 0 {
				a = -a // holes subtract
			}
			areaSum += a
			cxSum += cx * a
			cySum += cy * a
		}
	}
	if areaSum == 0 {
		// degenerate polygon; fall back to vertex mean
		n := 0
		for _, poly := range dg.polygons {
			for _, r := range poly {
				for _, v := range r {
					x += v[0]
					y += v[1]
					n++
				}
			}
		}
		if n == 0 {
			return math.NaN(), math.NaN()
		}
		return x / float64(n), y / float64(n)
	}
	return cxSum / areaSum, cySum / areaSum
}

func ringCentroid(r ring) (area, cx, cy float64) {
	n := len(r)
	if n < 3 {
		return 0, 0, 0
	}
	var a, sx, sy float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := r[i][0]*r[j][1] - r[j][0]*r[i][1]
		a += cross
		sx += (r[i][0] + r[j][0]) * cross
		sy += (r[i][1] + r[j][1]) * cross
	}
	a /= 2
	if a == 0 {
		return 0, 0, 0
	}
	return math.Abs(a), sx / (6 * a), sy / (6 * a)
}

// contains reports whether (x, y) lies inside the geometry's polygons using
// the even-odd rule, so holes behave correctly.
func (dg *decodedGeometry) contains(x, y float64) bool {
	inside := false
	for _, poly := range dg.polygons {
		for _, r := range poly {
			if ringCrossings(r, x, y)%2 == 1 {
				inside = !inside
			}
		}
	}
	return inside
}

func ringCrossings(r ring, x, y float64) int {
	n := len(r)
	crossings := 0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		yi, yj := r[i][1], r[j][1]
		if (yi > y) == (yj > y) {
			continue
		}
		xi, xj := r[i][0], r[j][0]
		xCross := xi + (y-yi)/(yj-yi)*(xj-xi)
		if x < xCross {
			crossings++
		}
	}
	return crossings
}

// rasterize burns the geometry onto a rows x cols grid anchored at gi,
// returning true for every cell either containing the geometry (cell-center
// inside test) or touched by its boundary, matching an all-touched burn.
func (dg *decodedGeometry) rasterize(gi GeoInfo, rows, cols int) []bool {
	hit := make([]bool, rows*cols)
	mark := func(row, col int) {
		if row >= 0 && row < rows && col >= 0 && col < cols {
			hit[row*cols+col] = true
		}
	}
	af := gi.Affine()

	// boundary pass: walk every segment in pixel space, marking each cell
	// the segment passes through
	walk := func(x0, y0, x1, y1 float64) {
		c0, r0 := af.Invert(x0, y0)
		c1, r1 := af.Invert(x1, y1)
		steps := int(math.Ceil(math.Max(math.Abs(c1-c0), math.Abs(r1-r0))*4)) + 1
		for s := 0; s <= steps; s++ {
			t := float64(s) / float64(steps)
			mark(int(math.Floor(r0+(r1-r0)*t)), int(math.Floor(c0+(c1-c0)*t)))
		}
	}
	for _, poly := range dg.polygons {
		for _, r := range poly {
			for i := 0; i < len(r); i++ {
				j := (i + 1) % len(r)
				walk(r[i][0], r[i][1], r[j][0], r[j][1])
			}
		}
	}
	for _, p := range dg.points {
		c, r := af.Invert(p[0], p[1])
		mark(int(math.Floor(r)), int(math.Floor(c)))
	}

	// interior pass: cell centers inside the polygons
	if len(dg.polygons) > 0 {
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				if hit[row*cols+col] {
					continue
				}
				x, y := gi.CellCenter(row, col)
				if dg.contains(x, y) {
					hit[row*cols+col] = true
				}
			}
		}
	}
	return hit
}

// decodeFeatures decodes every feature geometry in one pass.
func decodeFeatures(features []geo.Feature) ([]*decodedGeometry, error) {
	out := make([]*decodedGeometry, 0, len(features))
	for i, f := range features {
		dg, err := decodeGeometry(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		out = append(out, dg)
	}
	return out, nil
}
