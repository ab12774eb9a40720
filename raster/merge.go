package raster

import (
	"fmt"
	"math"
)

// mergeAlignTol is the fraction of a pixel by which source grids may be
// off the merge canvas before they count as unaligned.
const mergeAlignTol = 1e-6

// MergeBands paints the given bands onto one canvas covering the union of
// their extents. Earlier bands win: a pixel is written only while the
// canvas is still empty there, so overlaps keep the first valid value.
// All bands must share CRS, pixel size, dtype, and pixel-aligned origins.
func MergeBands(bands ...*Band) (*Band, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w: no bands to merge", ErrMergeFailed)
	}
	if len(bands) == 1 {
		return bands[0].Copy(), nil
	}

	first := bands[0]
	union := first.Bounds()
	for _, b := range bands[1:] {
		if b.GeoInfo.EPSG != first.GeoInfo.EPSG {
			return nil, fmt.Errorf("%w: EPSG %d vs %d", ErrMergeFailed, b.GeoInfo.EPSG, first.GeoInfo.EPSG)
		}
		if b.GeoInfo.PixResX != first.GeoInfo.PixResX || b.GeoInfo.PixResY != first.GeoInfo.PixResY {
			return nil, fmt.Errorf("%w: pixel sizes differ", ErrMergeFailed)
		}
		if b.Values.DType() != first.Values.DType() {
			return nil, fmt.Errorf("%w: dtype %s vs %s", ErrMergeFailed, b.Values.DType(), first.Values.DType())
		}
		union = union.Union(b.Bounds())
	}

	resX := first.GeoInfo.PixResX
	resY := first.GeoInfo.PixResY
	outGI := GeoInfo{
		EPSG:    first.GeoInfo.EPSG,
		ULX:     union.XMin,
		ULY:     union.YMax,
		PixResX: resX,
		PixResY: resY,
	}
	rows := int(math.Round(union.Height() / math.Abs(resY)))
	cols := int(math.Round(union.Width() / math.Abs(resX)))
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: empty union extent", ErrMergeFailed)
	}

	canvas, err := NewArray(first.Values.DType(), rows, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}
	canvas.Fill(first.Nodata)
	empty := make([]bool, rows*cols)
	for i := range empty {
		empty[i] = true
	}

	for _, b := range bands {
		offCol, offRow, err := canvasOffset(b.GeoInfo, outGI)
		if err != nil {
			return nil, err
		}
		srcRows, srcCols := b.Rows(), b.Cols()
		for r := 0; r < srcRows; r++ {
			tr := r + offRow
			if tr < 0 || tr >= rows {
				continue
			}
			for c := 0; c < srcCols; c++ {
				tc := c + offCol
				if tc < 0 || tc >= cols {
					continue
				}
				i := r*srcCols + c
				if b.invalidAt(i) {
					continue
				}
				t := tr*cols + tc
				if !empty[t] {
					continue
				}
				canvas.SetValueAt(t, b.Values.ValueAt(i))
				empty[t] = false
			}
		}
	}

	opts := []BandOption{WithNodata(first.Nodata), WithMask(empty), WithAreaOrPoint(first.AreaOrPoint)}
	if first.Alias != "" {
		opts = append(opts, WithAlias(first.Alias))
	}
	if first.Wavelength != nil {
		opts = append(opts, WithWavelength(*first.Wavelength))
	}
	if first.Unit != "" {
		opts = append(opts, WithUnit(first.Unit))
	}
	out, err := NewBand(first.Name, canvas, outGI, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}
	out.Scale, out.Offset = first.Scale, first.Offset
	return out, nil
}

// canvasOffset converts a source origin to the (col, row) offset of its
// upper-left pixel on the canvas grid. Fractional offsets mean the grids
// do not line up.
func canvasOffset(src, dst GeoInfo) (int, int, error) {
	fc := (src.ULX - dst.ULX) / dst.PixResX
	fr := (src.ULY - dst.ULY) / dst.PixResY
	col := math.Round(fc)
	row := math.Round(fr)
	if math.Abs(fc-col) > mergeAlignTol || math.Abs(fr-row) > mergeAlignTol {
		return 0, 0, fmt.Errorf("%w: source grid is not pixel-aligned with merge canvas", ErrMergeFailed)
	}
	return int(col), int(row), nil
}

// MergeScenes merges any number of scenes band by band. Every scene must
// carry exactly the band names of the first one; classification layers
// follow the same first-valid-wins rule as reflectance bands. Scene
// metadata is taken from the first scene.
func MergeScenes(scenes ...*RasterCollection) (*RasterCollection, error) {
	if len(scenes) == 0 {
		return nil, fmt.Errorf("%w: no scenes to merge", ErrMergeFailed)
	}
	if len(scenes) == 1 {
		return scenes[0].Copy(), nil
	}

	first := scenes[0]
	for si, sc := range scenes[1:] {
		if sc.Len() != first.Len() {
			return nil, fmt.Errorf("%w: scene %d carries %d bands, scene 0 carries %d",
				ErrMergeFailed, si+1, sc.Len(), first.Len())
		}
	}
	out := &RasterCollection{SceneProperties: first.SceneProperties, bands: map[string]*Band{}}
	for _, name := range first.order {
		stack := make([]*Band, 0, len(scenes))
		for si, sc := range scenes {
			b, err := sc.Get(name)
			if err != nil {
				return nil, fmt.Errorf("%w: scene %d has no band %q", ErrMergeFailed, si, name)
			}
			stack = append(stack, b)
		}
		merged, err := MergeBands(stack...)
		if err != nil {
			return nil, fmt.Errorf("band %q: %w", name, err)
		}
		if err := out.AddBand(merged); err != nil {
			return nil, err
		}
	}
	return out, nil
}
