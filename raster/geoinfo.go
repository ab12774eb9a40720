package raster

import (
	"fmt"
	"math"
)

// Affine holds the six coefficients of a pixel-to-map transform in the
// order (a, b, c, d, e, f):
//
//	x = a*col + b*row + c
//	y = d*col + e*row + f
//
// For north-up imagery b and d are zero, c/f are the coordinates of the
// upper-left corner of the upper-left pixel and a/e are the signed pixel
// sizes (e conventionally negative).
type Affine struct {
	A, B, C, D, E, F float64
}

// Apply maps fractional pixel indices to map coordinates.
func (af Affine) Apply(col, row float64) (x, y float64) {
	return af.A*col + af.B*row + af.C, af.D*col + af.E*row + af.F
}

// Invert maps map coordinates to fractional pixel indices. Only valid for
// unrotated transforms.
func (af Affine) Invert(x, y float64) (col, row float64) {
	return (x - af.C) / af.A, (y - af.F) / af.E
}

// Bounds is a spatial bounding box in map coordinates.
type Bounds struct {
	XMin, YMin, XMax, YMax float64
}

func (b Bounds) Width() float64  { return b.XMax - b.XMin }
func (b Bounds) Height() float64 { return b.YMax - b.YMin }

// Intersects reports whether two boxes share any area.
func (b Bounds) Intersects(o Bounds) bool {
	return b.XMin < o.XMax && o.XMin < b.XMax && b.YMin < o.YMax && o.YMin < b.YMax
}

// Union returns the smallest box covering both inputs.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{
		XMin: math.Min(b.XMin, o.XMin),
		YMin: math.Min(b.YMin, o.YMin),
		XMax: math.Max(b.XMax, o.XMax),
		YMax: math.Max(b.YMax, o.YMax),
	}
}

// EPSG codes live in the registry's reserved numeric range.
const (
	epsgMin = 1024
	epsgMax = 32767
)

// GeoInfo describes the geo-referencing of a grid: the CRS as an EPSG code,
// the map coordinates of the upper-left corner of the upper-left pixel, and
// the signed pixel sizes. It is a value type and is never mutated after
// construction; operations that change geo-referencing produce a new one.
type GeoInfo struct {
	EPSG    int
	ULX     float64
	ULY     float64
	PixResX float64
	PixResY float64
}

// NewGeoInfo validates and builds a GeoInfo. The EPSG code must fall in
// the registry range and both pixel sizes must be finite and nonzero.
func NewGeoInfo(epsg int, ulx, uly, pixResX, pixResY float64) (GeoInfo, error) {
	if epsg < epsgMin || epsg > epsgMax {
		return GeoInfo{}, fmt.Errorf("%w: EPSG %d", ErrInvalidCRS, epsg)
	}
	for _, v := range []float64{ulx, uly, pixResX, pixResY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return GeoInfo{}, fmt.Errorf("%w: non-finite geotransform value", ErrInvalidCRS)
		}
	}
	if pixResX == 0 || pixResY == 0 {
		return GeoInfo{}, fmt.Errorf("%w: zero pixel size", ErrInvalidCRS)
	}
	return GeoInfo{EPSG: epsg, ULX: ulx, ULY: uly, PixResX: pixResX, PixResY: pixResY}, nil
}

// Affine returns the equivalent unrotated affine transform.
func (g GeoInfo) Affine() Affine {
	return Affine{A: g.PixResX, B: 0, C: g.ULX, D: 0, E: g.PixResY, F: g.ULY}
}

// GeoInfoFromAffine is the inverse of Affine. It refuses rotated or sheared
// transforms and round-trips exactly for finite inputs.
func GeoInfoFromAffine(af Affine, epsg int) (GeoInfo, error) {
	if af.B != 0 || af.D != 0 {
		return GeoInfo{}, fmt.Errorf("%w: rotated transforms are not supported", ErrInvalidCRS)
	}
	return NewGeoInfo(epsg, af.C, af.F, af.A, af.E)
}

// XY returns the map coordinates of the upper-left corner of pixel
// (row, col).
func (g GeoInfo) XY(row, col int) (x, y float64) {
	return g.Affine().Apply(float64(col), float64(row))
}

// CellCenter returns the map coordinates of the center of pixel (row, col).
func (g GeoInfo) CellCenter(row, col int) (x, y float64) {
	return g.Affine().Apply(float64(col)+0.5, float64(row)+0.5)
}

// Cell returns the fractional pixel indices containing the map point (x, y).
func (g GeoInfo) Cell(x, y float64) (row, col float64) {
	c, r := g.Affine().Invert(x, y)
	return r, c
}

// Extent returns the bounding box of a rows x cols grid anchored at g.
func (g GeoInfo) Extent(rows, cols int) Bounds {
	x0, y0 := g.ULX, g.ULY
	x1 := g.ULX + float64(cols)*g.PixResX
	y1 := g.ULY + float64(rows)*g.PixResY
	return Bounds{
		XMin: math.Min(x0, x1),
		YMin: math.Min(y0, y1),
		XMax: math.Max(x0, x1),
		YMax: math.Max(y0, y1),
	}
}

func (g GeoInfo) String() string {
	return fmt.Sprintf("EPSG:%d ul=(%.6f,%.6f) res=(%g,%g)", g.EPSG, g.ULX, g.ULY, g.PixResX, g.PixResY)
}
