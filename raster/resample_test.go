package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleIdentity(t *testing.T) {
	b := f64Band(t, "b", []float64{1, 2, 3, 4}, 2, 2, WithMask([]bool{true, false, false, false}))
	out, err := b.Resample(ResampleOptions{TargetResolution: 10})
	require.NoError(t, err)

	assert.True(t, b.Values.Equal(out.Values))
	assert.Equal(t, b.Mask, out.Mask)
	assert.Equal(t, b.GeoInfo, out.GeoInfo)

	// identity must still be a copy, not an alias
	out.Values.SetValueAt(0, 99)
	assert.Equal(t, 1.0, b.Values.ValueAt(0))
}

func TestResampleNearestUpsample(t *testing.T) {
	b := i16Band(t, "b", []int16{1, 2, 3, 4}, 2, 2,
		WithNodata(0), WithMask([]bool{true, false, false, false}))

	out, err := b.Resample(ResampleOptions{TargetResolution: 5, Interpolation: InterpNearest})
	require.NoError(t, err)

	assert.Equal(t, 4, out.Rows())
	assert.Equal(t, 4, out.Cols())
	assert.Equal(t, DTInt16, out.Values.DType())
	assert.Equal(t, []float64{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, out.Values.Float64s(), "each source pixel replicates into a 2x2 block")
	assert.Equal(t, []bool{
		true, true, false, false,
		true, true, false, false,
		false, false, false, false,
		false, false, false, false,
	}, out.Mask, "mask replicates with its source pixel")

	assert.Equal(t, 5.0, out.GeoInfo.PixResX)
	assert.Equal(t, -5.0, out.GeoInfo.PixResY)
	assert.Equal(t, b.GeoInfo.ULX, out.GeoInfo.ULX)
	assert.Equal(t, b.GeoInfo.ULY, out.GeoInfo.ULY)
	assert.Equal(t, b.Bounds(), out.Bounds(), "extent is preserved")
}

func TestResampleKeepsNodataRegions(t *testing.T) {
	b := i16Band(t, "b", []int16{0, 2, 3, 4}, 2, 2, WithNodata(0))

	out, err := b.Resample(ResampleOptions{TargetResolution: 5, Interpolation: InterpNearest})
	require.NoError(t, err)

	vals := out.Values.Float64s()
	for _, i := range []int{0, 1, 4, 5} {
		assert.Equal(t, 0.0, vals[i], "nodata quadrant at %d", i)
	}
	for _, i := range []int{2, 3, 6, 7} {
		assert.Equal(t, 2.0, vals[i])
	}
}

func TestResampleBilinearDownsample(t *testing.T) {
	data := make([]float64, 16)
	for i := range data {
		data[i] = 8
	}
	b := f64Band(t, "b", data, 4, 4)

	out, err := b.Resample(ResampleOptions{TargetResolution: 20, Interpolation: InterpBilinear})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Rows())
	assert.Equal(t, 2, out.Cols())
	for i := 0; i < 4; i++ {
		assert.Equal(t, 8.0, out.Values.ValueAt(i))
	}
}

func TestResampleExplicitShape(t *testing.T) {
	b := f64Band(t, "b", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, 4, 4)
	out, err := b.Resample(ResampleOptions{TargetResolution: 20, TargetRows: 3, TargetCols: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Rows())
	assert.Equal(t, 3, out.Cols())
	assert.Equal(t, 20.0, out.GeoInfo.PixResX)
}

func TestResamplePointAnchorsCellCenter(t *testing.T) {
	b := f64Band(t, "b", []float64{1, 2, 3, 4}, 2, 2, WithAreaOrPoint(PixelIsPoint))
	out, err := b.Resample(ResampleOptions{TargetResolution: 5})
	require.NoError(t, err)

	assert.Equal(t, b.GeoInfo.ULX+2.5, out.GeoInfo.ULX)
	assert.Equal(t, b.GeoInfo.ULY-2.5, out.GeoInfo.ULY)
}

func TestResampleRejections(t *testing.T) {
	b := f64Band(t, "b", []float64{1, 2, 3, 4}, 2, 2)

	_, err := b.Resample(ResampleOptions{TargetResolution: 0})
	assert.ErrorIs(t, err, ErrResamplingFailed)

	_, err = b.Resample(ResampleOptions{TargetResolution: -5})
	assert.ErrorIs(t, err, ErrResamplingFailed)

	_, err = b.Resample(ResampleOptions{TargetResolution: 5, TargetRows: 4})
	assert.ErrorIs(t, err, ErrResamplingFailed, "rows without cols")

	rect, err := NewGeoInfo(32632, 0, 100, 10, -20)
	require.NoError(t, err)
	nb := f64BandAt(t, "b", []float64{1, 2, 3, 4}, 2, 2, rect)
	_, err = nb.Resample(ResampleOptions{TargetResolution: 5})
	assert.ErrorIs(t, err, ErrResamplingFailed, "non-square pixels")
}
