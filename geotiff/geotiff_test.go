package geotiff

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geostack/geostack/raster"
)

func testGeoInfo(t *testing.T) raster.GeoInfo {
	t.Helper()
	gi, err := raster.NewGeoInfo(32632, 399960, 5600040, 10, -10)
	require.NoError(t, err)
	return gi
}

func tmpTIFF(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "scene.tif")
}

func TestRoundTripInt16(t *testing.T) {
	gi := testGeoInfo(t)
	arr, err := raster.NewInt16Array([]int16{10, 20, 30, 40, 50, 60}, 2, 3)
	require.NoError(t, err)
	src, err := raster.NewBand("B04", arr, gi,
		raster.WithNodata(-32768),
		raster.WithMask([]bool{false, true, false, false, false, false}))
	require.NoError(t, err)

	path := tmpTIFF(t)
	require.NoError(t, WriteBand(context.Background(), path, src))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{'I', 'I', 42, 0}, raw[:4])

	got, err := ReadBand(context.Background(), path, 1)
	require.NoError(t, err)

	assert.Equal(t, "B04", got.Name)
	assert.Equal(t, gi, got.GeoInfo)
	assert.Equal(t, raster.DTInt16, got.Values.DType())
	assert.Equal(t, -32768.0, got.Nodata)
	assert.Equal(t, raster.PixelIsArea, got.AreaOrPoint)

	assert.Equal(t, 10.0, got.Values.Value(0, 0))
	assert.Equal(t, -32768.0, got.Values.Value(0, 1))
	require.NotNil(t, got.Mask)
	assert.True(t, got.Mask[1])
	assert.Equal(t, 5, got.ValidCount())
}

func TestRoundTripMultiBandFloat32(t *testing.T) {
	gi := testGeoInfo(t)
	redArr, err := raster.NewFloat32Array([]float32{0.1, 0.2, 0.3, float32(math.NaN())}, 2, 2)
	require.NoError(t, err)
	red, err := raster.NewBand("red", redArr, gi)
	require.NoError(t, err)
	nirArr, err := raster.NewFloat32Array([]float32{0.5, 0.6, 0.7, 0.8}, 2, 2)
	require.NoError(t, err)
	nir, err := raster.NewBand("nir", nirArr, gi, raster.WithScaleOffset(0.0001, -0.1))
	require.NoError(t, err)

	rc, err := raster.NewRasterCollection(red, nir)
	require.NoError(t, err)

	path := tmpTIFF(t)
	require.NoError(t, Write(context.Background(), path, rc))

	got, err := Read(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, []string{"red", "nir"}, got.BandNames())

	gotRed, err := got.Get("red")
	require.NoError(t, err)
	assert.Equal(t, raster.DTFloat32, gotRed.Values.DType())
	assert.True(t, math.IsNaN(gotRed.Nodata))
	assert.InDelta(t, 0.1, gotRed.Values.Value(0, 0), 1e-6)
	require.NotNil(t, gotRed.Mask)
	assert.True(t, gotRed.Mask[3])
	assert.Equal(t, 1.0, gotRed.Scale)
	assert.Equal(t, 0.0, gotRed.Offset)

	gotNIR, err := got.Get("nir")
	require.NoError(t, err)
	assert.Equal(t, 0.0001, gotNIR.Scale)
	assert.Equal(t, -0.1, gotNIR.Offset)
	assert.InDelta(t, 0.8, gotNIR.Values.Value(1, 1), 1e-6)

	renamed, err := Read(context.Background(), path, "blue", "green")
	require.NoError(t, err)
	assert.Equal(t, []string{"blue", "green"}, renamed.BandNames())
}

func TestRoundTripGeographicPoint(t *testing.T) {
	gi, err := raster.NewGeoInfo(4326, 11, 48, 0.001, -0.001)
	require.NoError(t, err)
	arr, err := raster.NewByteArray([]uint8{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	src, err := raster.NewBand("mask", arr, gi, raster.WithAreaOrPoint(raster.PixelIsPoint))
	require.NoError(t, err)

	path := tmpTIFF(t)
	require.NoError(t, WriteBand(context.Background(), path, src))

	got, err := ReadBand(context.Background(), path, 1)
	require.NoError(t, err)
	assert.Equal(t, 4326, got.GeoInfo.EPSG)
	assert.Equal(t, raster.PixelIsPoint, got.AreaOrPoint)
	assert.Equal(t, raster.DTByte, got.Values.DType())
	assert.Equal(t, 4.0, got.Values.Value(1, 1))
}

func TestRoundTripWideRaster(t *testing.T) {
	// 70000 columns pushes ImageWidth past the SHORT range, so the writer
	// stores it as a LONG entry and the reader must accept both types.
	const cols = 70000
	gi := testGeoInfo(t)
	data := make([]uint8, cols)
	for i := range data {
		data[i] = uint8(i % 251)
	}
	arr, err := raster.NewByteArray(data, 1, cols)
	require.NoError(t, err)
	src, err := raster.NewBand("strip", arr, gi)
	require.NoError(t, err)

	path := tmpTIFF(t)
	require.NoError(t, WriteBand(context.Background(), path, src))

	got, err := ReadBand(context.Background(), path, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Rows())
	assert.Equal(t, cols, got.Cols())
	assert.Equal(t, 0.0, got.Values.Value(0, 0))
	assert.Equal(t, float64(69999%251), got.Values.Value(0, cols-1))
}

func TestWriteRejections(t *testing.T) {
	gi := testGeoInfo(t)
	ctx := context.Background()

	empty, err := raster.NewRasterCollection()
	require.NoError(t, err)
	assert.Error(t, Write(ctx, tmpTIFF(t), empty))

	a, err := raster.NewInt16Array([]int16{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	b16, err := raster.NewBand("a", a, gi)
	require.NoError(t, err)
	f, err := raster.NewFloat32Array([]float32{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	bf, err := raster.NewBand("b", f, gi)
	require.NoError(t, err)
	mixed, err := raster.NewRasterCollection(b16, bf)
	require.NoError(t, err)
	assert.Error(t, Write(ctx, tmpTIFF(t), mixed))

	shifted, err := raster.NewGeoInfo(32632, 399970, 5600040, 10, -10)
	require.NoError(t, err)
	c, err := raster.NewInt16Array([]int16{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	bc, err := raster.NewBand("c", c, shifted)
	require.NoError(t, err)
	unaligned, err := raster.NewRasterCollection(b16, bc)
	require.NoError(t, err)
	err = Write(ctx, tmpTIFF(t), unaligned)
	assert.ErrorIs(t, err, raster.ErrUnalignedBands)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	single, err := raster.NewRasterCollection(b16)
	require.NoError(t, err)
	err = Write(cancelled, tmpTIFF(t), single)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadRejections(t *testing.T) {
	ctx := context.Background()

	path := tmpTIFF(t)
	require.NoError(t, os.WriteFile(path, []byte("not a tiff at all"), 0o644))
	_, err := Read(ctx, path)
	assert.Error(t, err)

	_, err = Read(ctx, filepath.Join(t.TempDir(), "missing.tif"))
	assert.Error(t, err)

	gi := testGeoInfo(t)
	arr, err := raster.NewByteArray([]uint8{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	b, err := raster.NewBand("only", arr, gi)
	require.NoError(t, err)
	good := tmpTIFF(t)
	require.NoError(t, WriteBand(ctx, good, b))
	_, err = ReadBand(ctx, good, 2)
	assert.Error(t, err)
	_, err = ReadBand(ctx, good, 0)
	assert.Error(t, err)
}

func TestParseNoData(t *testing.T) {
	v, ok := parseNoData("-999\x00")
	assert.True(t, ok)
	assert.Equal(t, -999.0, v)

	_, ok = parseNoData("")
	assert.False(t, ok)
	_, ok = parseNoData("\x00")
	assert.False(t, ok)
	_, ok = parseNoData("none")
	assert.False(t, ok)

	v, ok = parseNoData("nan")
	assert.True(t, ok)
	assert.True(t, math.IsNaN(v))
}

func TestParseGeoKeys(t *testing.T) {
	keys, err := parseGeoKeys([]uint16{
		1, 1, 0, 3,
		1024, 0, 1, 1,
		1025, 0, 1, 2,
		3072, 0, 1, 32632,
	})
	require.NoError(t, err)
	assert.Equal(t, 32632, keys.epsg)
	assert.Equal(t, rasterTypePoint, keys.rasterType)
	assert.Equal(t, modelTypeProjected, keys.modelType)

	keys, err = parseGeoKeys([]uint16{
		1, 1, 0, 2,
		1024, 0, 1, 2,
		2048, 0, 1, 4326,
	})
	require.NoError(t, err)
	assert.Equal(t, 4326, keys.epsg)
	assert.Equal(t, rasterTypeArea, keys.rasterType)

	_, err = parseGeoKeys([]uint16{1, 1})
	assert.Error(t, err)
	_, err = parseGeoKeys([]uint16{1, 1, 0, 5, 1024, 0, 1, 1})
	assert.Error(t, err)
}

func TestParseGDALMetadata(t *testing.T) {
	md := parseGDALMetadata(`<GDALMetadata>
  <Item name="DESCRIPTION" sample="0" role="description">B02</Item>
  <Item name="SCALE" sample="1" role="scale">0.0001</Item>
  <Item name="OFFSET" sample="1" role="offset">-0.1</Item>
</GDALMetadata>`, 2)
	require.Len(t, md, 2)
	assert.Equal(t, "B02", md[0].description)
	assert.Equal(t, 1.0, md[0].scale)
	assert.Equal(t, 0.0001, md[1].scale)
	assert.Equal(t, -0.1, md[1].offset)

	md = parseGDALMetadata("", 1)
	require.Len(t, md, 1)
	assert.Equal(t, 1.0, md[0].scale)

	md = parseGDALMetadata("<nonsense", 1)
	assert.Equal(t, 1.0, md[0].scale)
}
