package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGI(t *testing.T) GeoInfo {
	t.Helper()
	gi, err := NewGeoInfo(32632, 399960, 5600040, 10, -10)
	require.NoError(t, err)
	return gi
}

func f64Band(t *testing.T, name string, data []float64, rows, cols int, opts ...BandOption) *Band {
	t.Helper()
	return f64BandAt(t, name, data, rows, cols, testGI(t), opts...)
}

func f64BandAt(t *testing.T, name string, data []float64, rows, cols int, gi GeoInfo, opts ...BandOption) *Band {
	t.Helper()
	arr, err := NewFloat64Array(data, rows, cols)
	require.NoError(t, err)
	b, err := NewBand(name, arr, gi, opts...)
	require.NoError(t, err)
	return b
}

func i16Band(t *testing.T, name string, data []int16, rows, cols int, opts ...BandOption) *Band {
	t.Helper()
	arr, err := NewInt16Array(data, rows, cols)
	require.NoError(t, err)
	b, err := NewBand(name, arr, testGI(t), opts...)
	require.NoError(t, err)
	return b
}

func TestNodataDefaults(t *testing.T) {
	gi := testGI(t)
	for _, tc := range []struct {
		dtype  DType
		nodata float64
	}{
		{DTByte, 0},
		{DTUInt16, 0},
		{DTUInt32, 0},
		{DTInt16, -999},
		{DTInt32, -999},
	} {
		arr, err := NewArray(tc.dtype, 2, 2)
		require.NoError(t, err)
		b, err := NewBand("b", arr, gi)
		require.NoError(t, err)
		assert.Equal(t, tc.nodata, b.Nodata, "dtype %s", tc.dtype)
	}
	for _, dtype := range []DType{DTFloat32, DTFloat64} {
		arr, err := NewArray(dtype, 2, 2)
		require.NoError(t, err)
		b, err := NewBand("b", arr, gi)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(b.Nodata), "dtype %s", dtype)
	}
}

func TestNodataOverride(t *testing.T) {
	b := i16Band(t, "scl", []int16{1, 2, 3, 4}, 2, 2, WithNodata(0))
	assert.Equal(t, 0.0, b.Nodata)
}

func TestNewBandValidation(t *testing.T) {
	gi := testGI(t)
	arr, err := NewFloat64Array([]float64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)

	_, err = NewBand("", arr, gi)
	assert.Error(t, err)

	_, err = NewBand("b", nil, gi)
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = NewBand("b", arr, gi, WithMask([]bool{true}))
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = NewBand("b", arr, gi, WithAreaOrPoint("Corner"))
	assert.Error(t, err)

	_, err = NewFloat64Array([]float64{1, 2, 3}, 2, 2)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestApplyMaskMonotonic(t *testing.T) {
	b := f64Band(t, "b", []float64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, b.ApplyMask([]bool{true, false, false, false}))
	require.NoError(t, b.ApplyMask([]bool{false, true, false, false}))
	assert.Equal(t, []bool{true, true, false, false}, b.Mask)

	// a second application of an all-false mask must not clear anything
	require.NoError(t, b.ApplyMask(make([]bool, 4)))
	assert.Equal(t, []bool{true, true, false, false}, b.Mask)

	err := b.ApplyMask([]bool{true})
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestMaskNodata(t *testing.T) {
	b := i16Band(t, "b", []int16{1, 0, 3, 0}, 2, 2, WithNodata(0))
	b.MaskNodata()
	assert.Equal(t, []bool{false, true, false, true}, b.Mask)
	assert.Equal(t, 2, b.ValidCount())
}

func TestCopyIndependence(t *testing.T) {
	b := f64Band(t, "b", []float64{1, 2, 3, 4}, 2, 2, WithMask([]bool{true, false, false, false}),
		WithWavelength(WavelengthInfo{CentralWavelength: 490, Unit: "nm"}))
	c := b.Copy()
	c.Values.SetValueAt(0, 99)
	c.Mask[1] = true
	c.Wavelength.CentralWavelength = 0

	assert.Equal(t, 1.0, b.Values.ValueAt(0))
	assert.False(t, b.Mask[1])
	assert.Equal(t, 490.0, b.Wavelength.CentralWavelength)
}

func TestScaleData(t *testing.T) {
	b := i16Band(t, "b", []int16{100, 200, -999, 50}, 2, 2, WithScaleOffset(0.01, 1000))
	out, err := b.ScaleData(50)
	require.NoError(t, err)

	assert.Equal(t, DTFloat64, out.Values.DType())
	assert.InDelta(t, 11.0, out.Values.ValueAt(0), 1e-12)
	assert.InDelta(t, 12.0, out.Values.ValueAt(1), 1e-12)
	assert.Equal(t, -999.0, out.Values.ValueAt(2), "nodata passes through unscaled")
	assert.Equal(t, 50.0, out.Values.ValueAt(3), "ignored value passes through unscaled")
	assert.Equal(t, 1.0, out.Scale)
	assert.Equal(t, 0.0, out.Offset)

	// source band untouched
	assert.Equal(t, 100.0, b.Values.ValueAt(0))
}

func TestSummary(t *testing.T) {
	b := f64Band(t, "b", []float64{1, 2, 3, 4}, 2, 2)
	s := b.Summary()
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), s.StdDev, 1e-12)

	require.NoError(t, b.ApplyMask([]bool{true, false, false, false}))
	s = b.Summary()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 2.0, s.Min)

	empty := f64Band(t, "e", []float64{1}, 1, 1, WithMask([]bool{true}))
	s = empty.Summary()
	assert.Equal(t, 0, s.Count)
	assert.True(t, math.IsNaN(s.Mean))
}

func TestBandMeta(t *testing.T) {
	b := i16Band(t, "b", []int16{1, 2, 3, 4, 5, 6}, 2, 3)
	m := b.Meta()
	assert.Equal(t, 3, m.Width)
	assert.Equal(t, 2, m.Height)
	assert.Equal(t, 1, m.Count)
	assert.Equal(t, DTInt16, m.DType)
	assert.Equal(t, 32632, m.EPSG)
	assert.Equal(t, "GTiff", m.Driver)
	assert.Equal(t, b.GeoInfo.Affine(), m.Transform)
}

func TestArrayCastClamps(t *testing.T) {
	arr, err := NewFloat64Array([]float64{-5, 0.4, 0.6, 300}, 2, 2)
	require.NoError(t, err)
	out, err := arr.CastTo(DTByte)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.ValueAt(0))
	assert.Equal(t, 0.0, out.ValueAt(1))
	assert.Equal(t, 1.0, out.ValueAt(2))
	assert.Equal(t, 255.0, out.ValueAt(3))
}

func TestArraySliceWindow(t *testing.T) {
	arr, err := NewFloat64Array([]float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, 3, 3)
	require.NoError(t, err)

	win, err := arr.Slice(1, 3, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, win.Rows())
	assert.Equal(t, 2, win.Cols())
	assert.Equal(t, []float64{4, 5, 7, 8}, win.Float64s())

	_, err = arr.Slice(2, 2, 0, 1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = arr.Slice(0, 4, 0, 1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestArrayEqualNaN(t *testing.T) {
	nan := math.NaN()
	a, err := NewFloat64Array([]float64{1, nan}, 1, 2)
	require.NoError(t, err)
	b, err := NewFloat64Array([]float64{1, nan}, 1, 2)
	require.NoError(t, err)
	c, err := NewFloat64Array([]float64{1, 2}, 1, 2)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
