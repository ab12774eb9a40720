package raster

import (
	"fmt"
	"math"
)

// Interpolation selects the resampling kernel.
type Interpolation int

const (
	InterpNearest Interpolation = iota
	InterpBilinear
)

func (ip Interpolation) String() string {
	switch ip {
	case InterpNearest:
		return "nearest"
	case InterpBilinear:
		return "bilinear"
	}
	return fmt.Sprintf("Interpolation(%d)", int(ip))
}

// ResampleOptions controls Band.Resample. TargetResolution is the desired
// absolute pixel size in map units and is required. TargetRows/TargetCols
// override the output shape; when zero the shape derives from the band's
// extent divided by the target resolution, rounded up.
type ResampleOptions struct {
	TargetResolution float64
	Interpolation    Interpolation
	TargetRows       int
	TargetCols       int
}

// Resample changes the band's pixel size while preserving nodata regions
// exactly. Resampling to the current resolution returns a plain copy.
//
// When nodata pixels are present the grid is promoted to floating point
// with nodata as NaN before interpolation. Interpolation near a nodata
// boundary propagates NaN into neighbouring output cells, so for exact
// integer upsampling ratios a pixel-replication pass fills those cells
// back in from the source; NaN cells that remain afterwards become nodata.
// The validity mask, when present, is resampled with nearest-neighbor.
func (b *Band) Resample(opts ResampleOptions) (*Band, error) {
	res := opts.TargetResolution
	if res <= 0 || math.IsNaN(res) || math.IsInf(res, 0) {
		return nil, fmt.Errorf("%w: target resolution %v", ErrResamplingFailed, res)
	}
	srcResX, srcResY := math.Abs(b.GeoInfo.PixResX), math.Abs(b.GeoInfo.PixResY)
	if srcResX != srcResY {
		return nil, fmt.Errorf("%w: pixels are not square (%g x %g)", ErrResamplingFailed, srcResX, srcResY)
	}
	srcRes := srcResX

	dstRows, dstCols := opts.TargetRows, opts.TargetCols
	if (dstRows == 0) != (dstCols == 0) {
		return nil, fmt.Errorf("%w: target shape must set both rows and cols", ErrResamplingFailed)
	}
	explicitShape := dstRows != 0
	if !explicitShape {
		ext := b.Bounds()
		dstRows = int(math.Ceil(ext.Height() / res))
		dstCols = int(math.Ceil(ext.Width() / res))
	}
	if srcRes == res && (!explicitShape || (dstRows == b.Rows() && dstCols == b.Cols())) {
		return b.Copy(), nil
	}
	if dstRows <= 0 || dstCols <= 0 {
		return nil, fmt.Errorf("%w: derived target shape %dx%d", ErrResamplingFailed, dstRows, dstCols)
	}

	src := b.Values.Float64s()
	hasNodata := false
	for i := range src {
		if isNodata(src[i], b.Nodata) {
			src[i] = math.NaN()
			hasNodata = true
		}
	}

	dst := interpolateGrid(src, b.Rows(), b.Cols(), dstRows, dstCols, opts.Interpolation)

	if hasNodata {
		// fill interpolation artifacts from a pixel-replication upsample
		// when the ratio is an exact positive integer
		if factor, ok := integerRatio(srcRes, res); ok {
			rep := replicateGrid(src, b.Rows(), b.Cols(), factor, dstRows, dstCols)
			for i := range dst {
				if math.IsNaN(dst[i]) {
					dst[i] = rep[i]
				}
			}
		}
		for i := range dst {
			if math.IsNaN(dst[i]) {
				dst[i] = b.Nodata
			}
		}
	}

	outVals, err := NewFloat64Array(dst, dstRows, dstCols)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResamplingFailed, err)
	}
	if b.Values.DType() != DTFloat64 {
		outVals, err = outVals.CastTo(b.Values.DType())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResamplingFailed, err)
		}
	}

	nb := b.Copy()
	nb.Values = outVals
	nb.Mask = nil
	if b.Mask != nil {
		nb.Mask = resampleMask(b.Mask, b.Rows(), b.Cols(), dstRows, dstCols)
	}

	gi := b.GeoInfo
	gi.PixResX = math.Copysign(res, b.GeoInfo.PixResX)
	gi.PixResY = math.Copysign(res, b.GeoInfo.PixResY)
	if b.AreaOrPoint == PixelIsPoint {
		// point semantics anchor the first pixel's center, not its corner
		gi.ULX += 0.5 * (b.GeoInfo.PixResX - gi.PixResX)
		gi.ULY += 0.5 * (b.GeoInfo.PixResY - gi.PixResY)
	}
	nb.GeoInfo = gi
	return nb, nil
}

// integerRatio reports whether src/dst is an exact positive integer.
func integerRatio(srcRes, dstRes float64) (int, bool) {
	ratio := srcRes / dstRes
	rounded := math.Round(ratio)
	if rounded < 1 || math.Abs(ratio-rounded) > 1e-9 {
		return 0, false
	}
	return int(rounded), true
}

// interpolateGrid resamples a row-major float64 grid to a new shape. Source
// positions are computed by center-of-cell mapping; NaN inputs propagate
// through bilinear weights untouched.
func interpolateGrid(src []float64, srcRows, srcCols, dstRows, dstCols int, interp Interpolation) []float64 {
	dst := make([]float64, dstRows*dstCols)
	rScale := float64(srcRows) / float64(dstRows)
	cScale := float64(srcCols) / float64(dstCols)
	for r := 0; r < dstRows; r++ {
		srcRf := (float64(r)+0.5)*rScale - 0.5
		for c := 0; c < dstCols; c++ {
			srcCf := (float64(c)+0.5)*cScale - 0.5
			var v float64
			if interp == InterpNearest {
				rr := clampInt(int(math.Round(srcRf)), 0, srcRows-1)
				cc := clampInt(int(math.Round(srcCf)), 0, srcCols-1)
				v = src[rr*srcCols+cc]
			} else {
				v = bilinearAt(src, srcRows, srcCols, srcRf, srcCf)
			}
			dst[r*dstCols+c] = v
		}
	}
	return dst
}

func bilinearAt(src []float64, rows, cols int, rf, cf float64) float64 {
	r0 := clampInt(int(math.Floor(rf)), 0, rows-1)
	c0 := clampInt(int(math.Floor(cf)), 0, cols-1)
	r1 := clampInt(r0+1, 0, rows-1)
	c1 := clampInt(c0+1, 0, cols-1)
	fr := rf - float64(r0)
	fc := cf - float64(c0)
	if fr < 0 {
		fr = 0
	}
	if fc < 0 {
		fc = 0
	}
	v00 := src[r0*cols+c0]
	v01 := src[r0*cols+c1]
	v10 := src[r1*cols+c0]
	v11 := src[r1*cols+c1]
	return v00*(1-fr)*(1-fc) + v01*(1-fr)*fc + v10*fr*(1-fc) + v11*fr*fc
}

// replicateGrid upsamples by repeating every source pixel factor x factor
// times, then pads by edge-clamping if the requested shape overshoots the
// exact multiple.
func replicateGrid(src []float64, srcRows, srcCols, factor, dstRows, dstCols int) []float64 {
	dst := make([]float64, dstRows*dstCols)
	for r := 0; r < dstRows; r++ {
		sr := clampInt(r/factor, 0, srcRows-1)
		for c := 0; c < dstCols; c++ {
			sc := clampInt(c/factor, 0, srcCols-1)
			dst[r*dstCols+c] = src[sr*srcCols+sc]
		}
	}
	return dst
}

// resampleMask nearest-neighbor resamples a boolean mask; masks are
// categorical so no other kernel applies.
func resampleMask(mask []bool, srcRows, srcCols, dstRows, dstCols int) []bool {
	out := make([]bool, dstRows*dstCols)
	rScale := float64(srcRows) / float64(dstRows)
	cScale := float64(srcCols) / float64(dstCols)
	for r := 0; r < dstRows; r++ {
		sr := clampInt(int(math.Round((float64(r)+0.5)*rScale-0.5)), 0, srcRows-1)
		for c := 0; c < dstCols; c++ {
			sc := clampInt(int(math.Round((float64(c)+0.5)*cScale-0.5)), 0, srcCols-1)
			out[r*dstCols+c] = mask[sr*srcCols+sc]
		}
	}
	return out
}
