package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geostack/geostack/raster"
)

func testWindow() (time.Time, time.Time) {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func TestQueryValidate(t *testing.T) {
	start, end := testWindow()

	assert.NoError(t, Query{Start: start, End: end}.validate())

	assert.ErrorIs(t, Query{}.validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Query{Start: start}.validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Query{Start: end, End: start}.validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Query{Start: start, End: start}.validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Query{Start: start, End: end, MaxCloudCover: 101}.validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Query{Start: start, End: end, MaxCloudCover: -1}.validate(), ErrInvalidQuery)
}

func TestQueryCacheKey(t *testing.T) {
	start, end := testWindow()
	base := Query{Start: start, End: end}

	key := base.cacheKey()
	assert.Equal(t, key, base.cacheKey())

	withPlatform := base
	withPlatform.Platform = "S2A"
	assert.NotEqual(t, key, withPlatform.cacheKey())

	withCloud := base
	withCloud.MaxCloudCover = 30
	assert.NotEqual(t, key, withCloud.cacheKey())

	withAOI := base
	withAOI.AOI = &raster.Bounds{XMin: 399960, YMin: 5590200, XMax: 509760, YMax: 5700000}
	assert.NotEqual(t, key, withAOI.cacheKey())
	assert.NotEqual(t, withCloud.cacheKey(), withAOI.cacheKey())

	// keys are insensitive to the zone a caller expressed the window in
	inZone := Query{Start: start.In(time.FixedZone("CEST", 2*3600)), End: end}
	assert.Equal(t, key, inZone.cacheKey())
}

func TestEPSGCodes(t *testing.T) {
	recs := testRecords()
	codes := EPSGCodes(recs)
	require.Equal(t, []int{32632, 32633}, codes)

	majority, err := raster.MajorityEPSG(append(codes, 32633))
	require.NoError(t, err)
	assert.Equal(t, 32633, majority)

	assert.Empty(t, EPSGCodes(nil))
}
