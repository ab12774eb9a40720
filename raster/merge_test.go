package raster

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeComplementaryMasks(t *testing.T) {
	a := f64Band(t, "b", []float64{1, 9, 1, 9}, 2, 2, WithMask([]bool{false, true, false, true}))
	b := f64Band(t, "b", []float64{9, 2, 9, 2}, 2, 2, WithMask([]bool{true, false, true, false}))

	out, err := MergeBands(a, b)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 2, 1, 2}, out.Values.Float64s())
	assert.Equal(t, 4, out.ValidCount(), "complementary coverage leaves no holes")
	assert.Equal(t, []bool{false, false, false, false}, out.Mask)
}

func TestMergePrefersFirstOnOverlap(t *testing.T) {
	a := f64Band(t, "b", []float64{1, 1, 1, 1}, 2, 2)
	b := f64Band(t, "b", []float64{2, 2, 2, 2}, 2, 2)

	out, err := MergeBands(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1}, out.Values.Float64s())

	out, err = MergeBands(b, a)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 2, 2}, out.Values.Float64s())
}

func TestMergeUnionExtent(t *testing.T) {
	east, err := NewGeoInfo(32632, 399990, 5600040, 10, -10)
	require.NoError(t, err)

	a := f64Band(t, "b", []float64{1, 2, 3, 4}, 2, 2)
	b := f64BandAt(t, "b", []float64{5, 6, 7, 8}, 2, 2, east)

	out, err := MergeBands(a, b)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Rows())
	assert.Equal(t, 5, out.Cols())
	assert.Equal(t, a.GeoInfo.ULX, out.GeoInfo.ULX)
	assert.Equal(t, a.GeoInfo.ULY, out.GeoInfo.ULY)

	vals := out.Values.Float64s()
	assert.Equal(t, 1.0, vals[0])
	assert.Equal(t, 2.0, vals[1])
	assert.True(t, math.IsNaN(vals[2]), "gap between footprints is nodata")
	assert.Equal(t, 5.0, vals[3])
	assert.Equal(t, 6.0, vals[4])
	assert.True(t, out.Mask[2])
	assert.False(t, out.Mask[0])
	assert.False(t, out.Mask[3])
}

func TestMergeRejections(t *testing.T) {
	a := f64Band(t, "b", []float64{1, 2, 3, 4}, 2, 2)

	otherCRS, err := NewGeoInfo(32633, 399960, 5600040, 10, -10)
	require.NoError(t, err)
	_, err = MergeBands(a, f64BandAt(t, "b", []float64{1, 2, 3, 4}, 2, 2, otherCRS))
	assert.ErrorIs(t, err, ErrMergeFailed, "CRS mismatch")

	coarse, err := NewGeoInfo(32632, 399960, 5600040, 20, -20)
	require.NoError(t, err)
	_, err = MergeBands(a, f64BandAt(t, "b", []float64{1, 2, 3, 4}, 2, 2, coarse))
	assert.ErrorIs(t, err, ErrMergeFailed, "resolution mismatch")

	_, err = MergeBands(a, i16Band(t, "b", []int16{1, 2, 3, 4}, 2, 2))
	assert.ErrorIs(t, err, ErrMergeFailed, "dtype mismatch")

	halfPixel, err := NewGeoInfo(32632, 399965, 5600040, 10, -10)
	require.NoError(t, err)
	_, err = MergeBands(a, f64BandAt(t, "b", []float64{1, 2, 3, 4}, 2, 2, halfPixel))
	assert.ErrorIs(t, err, ErrMergeFailed, "unaligned grids")

	_, err = MergeBands()
	assert.ErrorIs(t, err, ErrMergeFailed)
}

func TestMergeSingleBandCopies(t *testing.T) {
	a := f64Band(t, "b", []float64{1, 2, 3, 4}, 2, 2)
	out, err := MergeBands(a)
	require.NoError(t, err)
	out.Values.SetValueAt(0, 99)
	assert.Equal(t, 1.0, a.Values.ValueAt(0))
}

func TestMergeScenes(t *testing.T) {
	ts := time.Date(2023, 6, 1, 10, 30, 0, 0, time.UTC)

	s1, err := NewRasterCollection(
		f64Band(t, "B02", []float64{1, 9, 1, 9}, 2, 2, WithMask([]bool{false, true, false, true})),
		f64Band(t, "SCL", []float64{4, 9, 4, 9}, 2, 2, WithMask([]bool{false, true, false, true})),
	)
	require.NoError(t, err)
	s1.SceneProperties = SceneProperties{AcquisitionTime: ts, Platform: "S2A"}

	s2, err := NewRasterCollection(
		f64Band(t, "B02", []float64{9, 2, 9, 2}, 2, 2, WithMask([]bool{true, false, true, false})),
		f64Band(t, "SCL", []float64{9, 5, 9, 5}, 2, 2, WithMask([]bool{true, false, true, false})),
	)
	require.NoError(t, err)

	merged, err := MergeScenes(s1, s2)
	require.NoError(t, err)

	assert.Equal(t, ts, merged.SceneProperties.AcquisitionTime)
	assert.Equal(t, "S2A", merged.SceneProperties.Platform)

	b02, err := merged.Get("B02")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 1, 2}, b02.Values.Float64s())

	scl, err := merged.Get("SCL")
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 4, 5}, scl.Values.Float64s(), "classification merges under the same rule")

	incomplete, err := NewRasterCollection(f64Band(t, "B02", []float64{1, 2, 3, 4}, 2, 2))
	require.NoError(t, err)
	_, err = MergeScenes(s1, incomplete)
	assert.ErrorIs(t, err, ErrMergeFailed, "missing band in second scene")

	extra, err := NewRasterCollection(
		f64Band(t, "B02", []float64{1, 2, 3, 4}, 2, 2),
		f64Band(t, "SCL", []float64{4, 4, 4, 4}, 2, 2),
		f64Band(t, "B08", []float64{5, 5, 5, 5}, 2, 2),
	)
	require.NoError(t, err)
	_, err = MergeScenes(s1, extra)
	assert.ErrorIs(t, err, ErrMergeFailed, "surplus band in second scene")
}
