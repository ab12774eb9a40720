package raster

import (
	"encoding/json"
	"testing"

	geo "github.com/nci/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func featureFromJSON(t *testing.T, s string) geo.Feature {
	t.Helper()
	var f geo.Feature
	require.NoError(t, json.Unmarshal([]byte(s), &f))
	return f
}

func seqBand4x4(t *testing.T, opts ...BandOption) *Band {
	t.Helper()
	data := make([]float64, 16)
	for i := range data {
		data[i] = float64(i + 1)
	}
	return f64Band(t, "b", data, 4, 4, opts...)
}

func TestClipConservation(t *testing.T) {
	b := seqBand4x4(t)
	out, err := b.Clip(b.Bounds())
	require.NoError(t, err)

	assert.True(t, b.Values.Equal(out.Values))
	assert.Equal(t, b.GeoInfo, out.GeoInfo)
}

func TestClipWindow(t *testing.T) {
	mask := make([]bool, 16)
	mask[1*4+1] = true
	b := seqBand4x4(t, WithMask(mask))

	out, err := b.Clip(Bounds{XMin: 399970, YMin: 5600010, XMax: 399990, YMax: 5600030})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Rows())
	assert.Equal(t, 2, out.Cols())
	assert.Equal(t, []float64{6, 7, 10, 11}, out.Values.Float64s())
	assert.Equal(t, []bool{true, false, false, false}, out.Mask)
	assert.Equal(t, 399970.0, out.GeoInfo.ULX)
	assert.Equal(t, 5600030.0, out.GeoInfo.ULY)
	assert.Equal(t, b.GeoInfo.PixResX, out.GeoInfo.PixResX)
}

func TestClipExpandsPartialPixels(t *testing.T) {
	b := seqBand4x4(t)
	r0, r1, c0, c1 := b.PixelWindow(Bounds{XMin: 399972, YMin: 5600013, XMax: 399984, YMax: 5600027})
	assert.Equal(t, 1, r0)
	assert.Equal(t, 3, r1)
	assert.Equal(t, 1, c0)
	assert.Equal(t, 3, c1)
}

func TestClipRejections(t *testing.T) {
	b := seqBand4x4(t)

	_, err := b.Clip(Bounds{XMin: 399970, YMin: 5600010, XMax: 399970, YMax: 5600030})
	assert.ErrorIs(t, err, ErrOutOfBounds, "zero extent")

	_, err = b.Clip(Bounds{XMin: 500000, YMin: 5600010, XMax: 500020, YMax: 5600030})
	assert.ErrorIs(t, err, ErrOutOfBounds, "disjoint box")
}

const twoSquaresFeature = `{"type":"Feature","geometry":{"type":"MultiPolygon","coordinates":[
	[[[399961,5600031],[399969,5600031],[399969,5600039],[399961,5600039],[399961,5600031]]],
	[[[399991,5600001],[399999,5600001],[399999,5600009],[399991,5600009],[399991,5600001]]]
]},"properties":{}}`

func TestClipFeaturesMasksOutsideGeometry(t *testing.T) {
	b := seqBand4x4(t)
	feat := featureFromJSON(t, twoSquaresFeature)

	out, err := b.ClipFeatures([]geo.Feature{feat}, 32632, false)
	require.NoError(t, err)

	assert.Equal(t, 4, out.Rows())
	assert.Equal(t, 4, out.Cols())
	assert.Equal(t, 2, out.ValidCount(), "only the two covered cells stay valid")
	assert.False(t, out.Mask[0], "cell containing first square")
	assert.False(t, out.Mask[15], "cell containing second square")
	assert.Equal(t, 1.0, out.Values.ValueAt(0))
	assert.Equal(t, 16.0, out.Values.ValueAt(15))
	assert.Len(t, out.Features, 1)
}

func TestClipFeaturesFullBBoxOnly(t *testing.T) {
	b := seqBand4x4(t)
	feat := featureFromJSON(t, twoSquaresFeature)

	out, err := b.ClipFeatures([]geo.Feature{feat}, 32632, true)
	require.NoError(t, err)

	assert.Equal(t, 16, out.ValidCount(), "bbox clip does not mask")
}

func TestClipFeaturesCRSMismatch(t *testing.T) {
	b := seqBand4x4(t)
	feat := featureFromJSON(t, twoSquaresFeature)

	_, err := b.ClipFeatures([]geo.Feature{feat}, 4326, false)
	assert.ErrorIs(t, err, ErrInvalidCRS)
}

func TestGetPixels(t *testing.T) {
	mask := make([]bool, 16)
	mask[2*4+3] = true
	b := seqBand4x4(t, WithMask(mask))

	point := featureFromJSON(t, `{"type":"Feature","geometry":{"type":"Point","coordinates":[399985,5600025]},"properties":{}}`)
	maskedPoint := featureFromJSON(t, `{"type":"Feature","geometry":{"type":"Point","coordinates":[399995,5600015]},"properties":{}}`)
	farPoint := featureFromJSON(t, `{"type":"Feature","geometry":{"type":"Point","coordinates":[500000,5600025]},"properties":{}}`)
	poly := featureFromJSON(t, `{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[399971,5600011],[399979,5600011],[399979,5600019],[399971,5600019],[399971,5600011]]]},"properties":{}}`)

	samples, err := b.GetPixels([]geo.Feature{point, maskedPoint, farPoint, poly}, 32632)
	require.NoError(t, err)
	require.Len(t, samples, 4)

	assert.Equal(t, 1, samples[0].Row)
	assert.Equal(t, 2, samples[0].Col)
	assert.Equal(t, 7.0, samples[0].Value)
	assert.True(t, samples[0].Valid)

	assert.True(t, samples[1].Row == 2 && samples[1].Col == 3)
	assert.False(t, samples[1].Valid, "masked cell")

	assert.False(t, samples[2].Valid, "outside grid")

	assert.Equal(t, 2, samples[3].Row, "polygon samples at centroid")
	assert.Equal(t, 1, samples[3].Col)
	assert.Equal(t, 10.0, samples[3].Value)
	assert.True(t, samples[3].Valid)

	_, err = b.GetPixels([]geo.Feature{point}, 4326)
	assert.ErrorIs(t, err, ErrInvalidCRS)
}
