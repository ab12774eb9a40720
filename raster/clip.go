package raster

import (
	"fmt"
	"math"

	geo "github.com/nci/geometry"
)

// PixelWindow converts a spatial bounding box to the half-open pixel window
// [rowStart,rowStop) x [colStart,colStop) that fully covers it: the near
// (upper-left) corner is floored and the far (lower-right) corner is
// ceiled, then the window is clipped to the grid.
func (b *Band) PixelWindow(bounds Bounds) (rowStart, rowStop, colStart, colStop int) {
	af := b.GeoInfo.Affine()
	// with pixres_y < 0 the box's YMax maps to the smallest row
	cMin, rMin := af.Invert(bounds.XMin, bounds.YMax)
	cMax, rMax := af.Invert(bounds.XMax, bounds.YMin)
	if rMin > rMax {
		rMin, rMax = rMax, rMin
	}
	if cMin > cMax {
		cMin, cMax = cMax, cMin
	}
	rowStart = int(math.Floor(rMin))
	colStart = int(math.Floor(cMin))
	rowStop = int(math.Ceil(rMax))
	colStop = int(math.Ceil(cMax))

	rowStart = clampInt(rowStart, 0, b.Rows())
	rowStop = clampInt(rowStop, 0, b.Rows())
	colStart = clampInt(colStart, 0, b.Cols())
	colStop = clampInt(colStop, 0, b.Cols())
	return rowStart, rowStop, colStart, colStop
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clip cuts the band to the pixel window covering bounds. The clip box must
// have positive extent and overlap the band's bounds. The result's origin
// is recomputed from the window's upper-left pixel; pixel size is unchanged.
func (b *Band) Clip(bounds Bounds) (*Band, error) {
	if bounds.Width() <= 0 || bounds.Height() <= 0 {
		return nil, fmt.Errorf("%w: clip box has zero extent", ErrOutOfBounds)
	}
	if !bounds.Intersects(b.Bounds()) {
		return nil, fmt.Errorf("%w: clip box %+v outside band bounds %+v", ErrOutOfBounds, bounds, b.Bounds())
	}
	r0, r1, c0, c1 := b.PixelWindow(bounds)
	if r0 >= r1 || c0 >= c1 {
		return nil, fmt.Errorf("%w: clip window is empty", ErrOutOfBounds)
	}
	vals, err := b.Values.Slice(r0, r1, c0, c1)
	if err != nil {
		return nil, err
	}
	nb := b.Copy()
	nb.Values = vals
	if b.Mask != nil {
		m := make([]bool, vals.Len())
		for r := r0; r < r1; r++ {
			for c := c0; c < c1; c++ {
				m[(r-r0)*(c1-c0)+(c-c0)] = b.Mask[r*b.Cols()+c]
			}
		}
		nb.Mask = m
	}
	ulx, uly := b.GeoInfo.XY(r0, c0)
	gi := b.GeoInfo
	gi.ULX, gi.ULY = ulx, uly
	nb.GeoInfo = gi
	return nb, nil
}

// ClipFeatures cuts the band to the bounding box of the features and, unless
// fullBBoxOnly is set, masks every pixel outside the geometries themselves
// (all-touched burn). The features' CRS must match the band's.
func (b *Band) ClipFeatures(features []geo.Feature, featureEPSG int, fullBBoxOnly bool) (*Band, error) {
	if featureEPSG != b.GeoInfo.EPSG {
		return nil, fmt.Errorf("%w: features are EPSG:%d, band is EPSG:%d", ErrInvalidCRS, featureEPSG, b.GeoInfo.EPSG)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no features to clip to", ErrOutOfBounds)
	}
	geoms, err := decodeFeatures(features)
	if err != nil {
		return nil, err
	}
	box := geoms[0].bounds()
	for _, dg := range geoms[1:] {
		box = box.Union(dg.bounds())
	}
	nb, err := b.Clip(box)
	if err != nil {
		return nil, err
	}
	nb.Features = append([]geo.Feature(nil), features...)
	if fullBBoxOnly {
		return nb, nil
	}
	inside := make([]bool, nb.Values.Len())
	for _, dg := range geoms {
		for i, v := range dg.rasterize(nb.GeoInfo, nb.Rows(), nb.Cols()) {
			if v {
				inside[i] = true
			}
		}
	}
	outside := make([]bool, len(inside))
	for i, v := range inside {
		outside[i] = !v
	}
	if err := nb.ApplyMask(outside); err != nil {
		return nil, err
	}
	return nb, nil
}

// PixelSample is the value of one grid cell extracted for a vector feature.
// Polygons sample at their centroid; points at the nearest cell. Valid is
// false when the location falls outside the grid or on an invalid pixel.
type PixelSample struct {
	Row, Col int
	X, Y     float64
	Value    float64
	Valid    bool
}

// GetPixels samples the band at each feature location. The features' CRS
// must match the band's.
func (b *Band) GetPixels(features []geo.Feature, featureEPSG int) ([]PixelSample, error) {
	if featureEPSG != b.GeoInfo.EPSG {
		return nil, fmt.Errorf("%w: features are EPSG:%d, band is EPSG:%d", ErrInvalidCRS, featureEPSG, b.GeoInfo.EPSG)
	}
	geoms, err := decodeFeatures(features)
	if err != nil {
		return nil, err
	}
	samples := make([]PixelSample, len(geoms))
	for i, dg := range geoms {
		x, y := dg.centroid()
		colF, rowF := b.GeoInfo.Affine().Invert(x, y)
		row, col := int(math.Floor(rowF)), int(math.Floor(colF))
		s := PixelSample{Row: row, Col: col, X: x, Y: y}
		if row >= 0 && row < b.Rows() && col >= 0 && col < b.Cols() {
			idx := row*b.Cols() + col
			s.Value = b.Values.ValueAt(idx)
			s.Valid = !b.invalidAt(idx)
		}
		samples[i] = s
	}
	return samples, nil
}
