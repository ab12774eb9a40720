package processor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geostack/geostack/catalog"
	"github.com/geostack/geostack/geotiff"
	"github.com/geostack/geostack/raster"
	"github.com/geostack/geostack/sentinel2"
)

func TestGroupByDate(t *testing.T) {
	recs := []catalog.SceneRecord{
		{ProductURI: "S2A_MSIL2A_20230614_A", SensingTime: time.Date(2023, 6, 14, 10, 30, 0, 0, time.UTC)},
		{ProductURI: "S2B_MSIL2A_20230619_C", SensingTime: time.Date(2023, 6, 19, 10, 36, 0, 0, time.UTC)},
		{ProductURI: "S2A_MSIL2A_20230614_B", SensingTime: time.Date(2023, 6, 14, 9, 0, 0, 0, time.UTC)},
	}

	groups := GroupByDate(recs)
	require.Len(t, groups, 2)

	assert.Equal(t, "2023-06-14", groups[0].Date)
	require.Len(t, groups[0].Records, 2)
	assert.Equal(t, "S2A_MSIL2A_20230614_B", groups[0].Records[0].ProductURI)
	assert.Equal(t, "S2A_MSIL2A_20230614_A", groups[0].Records[1].ProductURI)

	assert.Equal(t, "2023-06-19", groups[1].Date)
	require.Len(t, groups[1].Records, 1)
}

// writeSplitHalf stores one half of a datatake-split acquisition: valid
// pixels in one column, blackfill zeros in the other.
func writeSplitHalf(t *testing.T, path string, bands map[string][]uint16) {
	t.Helper()
	gi, err := raster.NewGeoInfo(32632, 399960, 5600040, 10, -10)
	require.NoError(t, err)

	stack := make([]*raster.Band, 0, len(bands))
	for _, name := range []string{"B02", "B03", "B04", sentinel2.SCLName} {
		arr, err := raster.NewUInt16Array(bands[name], 2, 2)
		require.NoError(t, err)
		b, err := raster.NewBand(name, arr, gi)
		require.NoError(t, err)
		stack = append(stack, b)
	}
	rc, err := raster.NewRasterCollection(stack...)
	require.NoError(t, err)
	require.NoError(t, geotiff.Write(context.Background(), path, rc))
}

func TestSceneStagesEndToEnd(t *testing.T) {
	srcDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "products")
	pathA := filepath.Join(srcDir, "a.tif")
	pathB := filepath.Join(srcDir, "b.tif")

	writeSplitHalf(t, pathA, map[string][]uint16{
		"B02":             {100, 0, 110, 0},
		"B03":             {120, 0, 130, 0},
		"B04":             {140, 0, 150, 0},
		sentinel2.SCLName: {4, 0, 4, 0},
	})
	writeSplitHalf(t, pathB, map[string][]uint16{
		"B02":             {0, 200, 0, 210},
		"B03":             {0, 220, 0, 230},
		"B04":             {0, 240, 0, 250},
		sentinel2.SCLName: {0, 6, 0, 6},
	})

	sensed := time.Date(2023, 6, 14, 10, 30, 0, 0, time.UTC)
	goodGroup := &SceneGroup{
		Date: "2023-06-14",
		Records: []catalog.SceneRecord{
			{ProductURI: "S2A_MSIL2A_20230614_A", Platform: "S2A", SensingTime: sensed, EPSG: 32632, Path: pathA},
			{ProductURI: "S2A_MSIL2A_20230614_B", Platform: "S2A", SensingTime: sensed, EPSG: 32632, Path: pathB},
		},
		TargetEPSG: 32632,
	}
	badGroup := &SceneGroup{
		Date: "2023-06-24",
		Records: []catalog.SceneRecord{
			{ProductURI: "S2A_MSIL2A_20230624_C", Platform: "S2A", SensingTime: sensed.AddDate(0, 0, 10), EPSG: 32632, Path: filepath.Join(srcDir, "missing.tif")},
		},
		TargetEPSG: 32632,
	}

	runLog, err := NewRunLog(t.TempDir())
	require.NoError(t, err)
	defer runLog.Close()

	errChan := make(chan error, 10)
	cfg := Config{
		PoolSize:         2,
		TargetResolution: 10,
		PreviewFormat:    "png",
		OutputDir:        outDir,
	}

	ctx := context.Background()
	proc := NewSceneProcessor(ctx, cfg, nil, runLog, nil, errChan)
	writer := NewSceneWriter(ctx, cfg, runLog, nil, errChan)
	writer.In = proc.Out

	proc.In <- goodGroup
	proc.In <- badGroup
	close(proc.In)
	go proc.Run()
	go writer.Run()

	var results []*SceneResult
	for result := range writer.Out {
		results = append(results, result)
	}
	require.Len(t, results, 1)

	result := results[0]
	assert.True(t, result.Merged)
	assert.Equal(t, filepath.Join(outDir, "S2A_MSIL2A_20230614_A_merged.tif"), result.Path)
	assert.FileExists(t, result.Path)
	assert.FileExists(t, filepath.Join(outDir, "S2A_MSIL2A_20230614_A_merged_SCL.tif"))
	assert.FileExists(t, filepath.Join(outDir, "S2A_MSIL2A_20230614_A_merged_rgb_preview.png"))
	assert.FileExists(t, filepath.Join(outDir, "S2A_MSIL2A_20230614_A_merged_scl_preview.png"))

	product, err := geotiff.Read(ctx, result.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"B02", "B03", "B04"}, product.BandNames())
	blue, err := product.Get("B02")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 200, 110, 210}, blue.Values.Float64s())
	assert.Equal(t, 4, blue.ValidCount())

	var processedOK, writtenOK, failed int
	for _, rec := range runLog.Records() {
		switch {
		case rec.Stage == StageProcess && rec.Status == StatusOK:
			processedOK++
			assert.True(t, rec.Merged)
			assert.Equal(t, "S2A_MSIL2A_20230614_A", rec.ProductURI)
		case rec.Stage == StageWrite && rec.Status == StatusOK:
			writtenOK++
			assert.Equal(t, result.Path, rec.Output)
		case rec.Status == StatusFailed:
			failed++
			assert.Equal(t, "S2A_MSIL2A_20230624_C", rec.ProductURI)
		}
	}
	assert.Equal(t, 1, processedOK)
	assert.Equal(t, 1, writtenOK)
	assert.Equal(t, 1, failed)

	select {
	case err := <-errChan:
		t.Fatalf("unexpected pipeline error: %v", err)
	default:
	}
}
