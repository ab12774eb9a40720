package raster

import (
	"fmt"
	"math"
)

// WarpGrid pins down a destination grid for a warp: geo-referencing plus
// shape.
type WarpGrid struct {
	GeoInfo GeoInfo
	Rows    int
	Cols    int
}

// WarpResult is a warped grid with the geo-referencing it landed on.
type WarpResult struct {
	Data []float64
	Grid WarpGrid
}

// Warper is the external primitive that reprojects a 2-D grid between two
// coordinate reference systems. The data model delegates all projection
// mathematics to it. Implementations must fill destination cells that fall
// outside the source footprint with fill, and must fail rather than return
// a partially valid grid.
type Warper interface {
	Warp(src []float64, srcRows, srcCols int, srcGI GeoInfo, dstEPSG int, dst *WarpGrid, interp Interpolation, fill float64) (*WarpResult, error)
}

// ReprojectOptions controls Band.Reproject. DstGrid forces an exact output
// grid; when nil the warper derives one from the source footprint.
type ReprojectOptions struct {
	DstGrid       *WarpGrid
	Interpolation Interpolation
}

// Reproject transforms the band to targetEPSG using w. The grid is promoted
// to floating point for the warp and cast back afterwards. For masked bands
// the mask travels through the same transform as 0/1 values and the result
// mask is the warped mask OR-ed with output cells equal to nodata, so
// pixels that fell outside the source footprint stay invalid. Reprojecting
// to the band's own CRS returns a plain copy.
func (b *Band) Reproject(w Warper, targetEPSG int, opts ReprojectOptions) (*Band, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: no warper", ErrReprojectionError)
	}
	if targetEPSG == b.GeoInfo.EPSG && opts.DstGrid == nil {
		return b.Copy(), nil
	}

	fill := b.Nodata
	if math.IsNaN(fill) && !b.Values.DType().IsFloat() {
		fill = b.Values.DType().DefaultNodata()
	}
	src := b.Values.Float64s()
	res, err := w.Warp(src, b.Rows(), b.Cols(), b.GeoInfo, targetEPSG, opts.DstGrid, opts.Interpolation, fill)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReprojectionError, err)
	}
	if len(res.Data) != res.Grid.Rows*res.Grid.Cols || res.Grid.Rows <= 0 || res.Grid.Cols <= 0 {
		return nil, fmt.Errorf("%w: warper returned %d values for %dx%d grid",
			ErrReprojectionError, len(res.Data), res.Grid.Rows, res.Grid.Cols)
	}

	var warpedMask []bool
	if b.Mask != nil {
		maskSrc := make([]float64, len(b.Mask))
		for i, m := range b.Mask {
			if m {
				maskSrc[i] = 1
			}
		}
		dstGrid := res.Grid
		maskRes, err := w.Warp(maskSrc, b.Rows(), b.Cols(), b.GeoInfo, targetEPSG, &dstGrid, InterpNearest, 1)
		if err != nil {
			return nil, fmt.Errorf("%w: warping mask: %v", ErrReprojectionError, err)
		}
		warpedMask = make([]bool, len(maskRes.Data))
		for i, v := range maskRes.Data {
			warpedMask[i] = v >= 0.5
		}
	}

	outVals, err := NewFloat64Array(res.Data, res.Grid.Rows, res.Grid.Cols)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReprojectionError, err)
	}
	if b.Values.DType() != DTFloat64 {
		outVals, err = outVals.CastTo(b.Values.DType())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReprojectionError, err)
		}
	}

	nb := b.Copy()
	nb.Values = outVals
	nb.GeoInfo = res.Grid.GeoInfo
	nb.Mask = nil
	if warpedMask != nil {
		for i := range warpedMask {
			if isNodata(outVals.ValueAt(i), fill) {
				warpedMask[i] = true
			}
		}
		nb.Mask = warpedMask
	}
	return nb, nil
}

// ReprojectAligned warps the band to targetEPSG onto a grid that shares
// ref's pixel lattice and pixel size, so the result can be composited
// against bands already in the target CRS. The warper is first asked for
// the band's footprint in the target CRS, then the destination grid is
// re-anchored to ref and the final warp runs on it.
func (b *Band) ReprojectAligned(w Warper, targetEPSG int, ref GeoInfo, interp Interpolation) (*Band, error) {
	if ref.PixResX == 0 || ref.PixResY == 0 {
		return nil, fmt.Errorf("%w: reference grid has zero pixel size", ErrReprojectionError)
	}
	first, err := b.Reproject(w, targetEPSG, ReprojectOptions{Interpolation: interp})
	if err != nil {
		return nil, err
	}
	g := first.GeoInfo
	resX, resY := ref.PixResX, ref.PixResY
	fc := (g.ULX - ref.ULX) / resX
	fr := (g.ULY - ref.ULY) / resY
	if g.PixResX == resX && g.PixResY == resY &&
		math.Abs(fc-math.Round(fc)) <= mergeAlignTol && math.Abs(fr-math.Round(fr)) <= mergeAlignTol {
		return first, nil
	}

	// snap the origin outward onto ref's lattice and grow the shape so
	// the re-anchored grid still covers the warped footprint
	ext := g.Extent(first.Rows(), first.Cols())
	ulx := ref.ULX + math.Floor((ext.XMin-ref.ULX)/resX)*resX
	uly := ref.ULY + math.Floor((ext.YMax-ref.ULY)/resY)*resY
	cols := int(math.Ceil((ext.XMax - ulx) / resX))
	rows := int(math.Ceil((uly - ext.YMin) / math.Abs(resY)))
	gi, err := NewGeoInfo(targetEPSG, ulx, uly, resX, resY)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReprojectionError, err)
	}
	return b.Reproject(w, targetEPSG, ReprojectOptions{
		DstGrid:       &WarpGrid{GeoInfo: gi, Rows: rows, Cols: cols},
		Interpolation: interp,
	})
}
