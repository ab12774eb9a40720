// Package warp implements the projection primitive the raster data model
// delegates to: reprojecting a 2-D grid between two EPSG coordinate
// reference systems. Coordinate transforms come from PROJ; the grid warp
// itself is inverse-projection sampling of destination cell centers.
package warp

import (
	"fmt"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/twpayne/go-proj/v10"

	"github.com/geostack/geostack/raster"
)

// geographicAxisOrder lists EPSG codes whose authority axis order is
// latitude/longitude. PROJ honors authority order, so coordinates for
// these systems are flipped on the way in and out.
var geographicAxisOrder = map[int]bool{
	4258: true, // ETRS89
	4269: true, // NAD83
	4283: true, // GDA94
	4326: true, // WGS 84
}

const transformerCacheSize = 32

// Proj is a raster.Warper backed by PROJ coordinate transforms. It keeps a
// small cache of constructed transformers keyed by CRS pair. Safe for use
// from multiple goroutines; transforms serialize on an internal lock.
type Proj struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *proj.PJ]
}

func NewProj() (*Proj, error) {
	cache, err := lru.New[string, *proj.PJ](transformerCacheSize)
	if err != nil {
		return nil, err
	}
	return &Proj{cache: cache}, nil
}

// transformer returns a cached CRS-to-CRS transformer. Callers must hold mu.
func (p *Proj) transformer(srcEPSG, dstEPSG int) (*proj.PJ, error) {
	key := fmt.Sprintf("epsg:%d>epsg:%d", srcEPSG, dstEPSG)
	if pj, ok := p.cache.Get(key); ok {
		return pj, nil
	}
	pj, err := proj.NewCRSToCRS(fmt.Sprintf("epsg:%d", srcEPSG), fmt.Sprintf("epsg:%d", dstEPSG), nil)
	if err != nil {
		return nil, fmt.Errorf("creating transformer %s: %w", key, err)
	}
	p.cache.Add(key, pj)
	return pj, nil
}

// transformPoints converts coords between two CRSes in place. Each element
// is one [x, y] pair in map axis order; axis flips for geographic systems
// are handled here.
func (p *Proj) transformPoints(srcEPSG, dstEPSG int, coords [][]float64) error {
	pj, err := p.transformer(srcEPSG, dstEPSG)
	if err != nil {
		return err
	}
	if geographicAxisOrder[srcEPSG] {
		flipCoords(coords)
	}
	if err := pj.ForwardFloat64Slices(coords); err != nil {
		return fmt.Errorf("transforming %d points epsg:%d to epsg:%d: %w", len(coords), srcEPSG, dstEPSG, err)
	}
	if geographicAxisOrder[dstEPSG] {
		flipCoords(coords)
	}
	return nil
}

// TransformPoints converts [x, y] pairs between two EPSG systems in place.
func (p *Proj) TransformPoints(srcEPSG, dstEPSG int, coords [][]float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transformPoints(srcEPSG, dstEPSG, coords)
}

func flipCoords(coords [][]float64) {
	for i, c := range coords {
		coords[i][0], coords[i][1] = c[1], c[0]
	}
}

func newCoords(n int) [][]float64 {
	flat := make([]float64, 2*n)
	coords := make([][]float64, n)
	for i := range coords {
		coords[i] = flat[2*i : 2*i+2]
	}
	return coords
}

// Warp implements raster.Warper by sampling source pixels at the inverse
// projection of each destination cell center. Destination cells outside
// the source footprint are set to fill.
func (p *Proj) Warp(src []float64, srcRows, srcCols int, srcGI raster.GeoInfo, dstEPSG int, dst *raster.WarpGrid, interp raster.Interpolation, fill float64) (*raster.WarpResult, error) {
	if len(src) != srcRows*srcCols || srcRows <= 0 || srcCols <= 0 {
		return nil, fmt.Errorf("source grid is %d values for %dx%d", len(src), srcRows, srcCols)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	grid := raster.WarpGrid{}
	if dst != nil {
		grid = *dst
		if grid.Rows <= 0 || grid.Cols <= 0 {
			return nil, fmt.Errorf("destination grid has shape %dx%d", grid.Rows, grid.Cols)
		}
	} else {
		derived, err := p.deriveGrid(srcRows, srcCols, srcGI, dstEPSG)
		if err != nil {
			return nil, err
		}
		grid = *derived
	}

	// one batch transform for every destination cell center
	coords := newCoords(grid.Rows * grid.Cols)
	for r := 0; r < grid.Rows; r++ {
		for c := 0; c < grid.Cols; c++ {
			x, y := grid.GeoInfo.CellCenter(r, c)
			coords[r*grid.Cols+c][0] = x
			coords[r*grid.Cols+c][1] = y
		}
	}
	if err := p.transformPoints(dstEPSG, srcGI.EPSG, coords); err != nil {
		return nil, err
	}

	af := srcGI.Affine()
	data := make([]float64, grid.Rows*grid.Cols)
	valid := 0
	for i, c := range coords {
		x, y := c[0], c[1]
		if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
			data[i] = fill
			continue
		}
		colF, rowF := af.Invert(x, y)
		if rowF < 0 || rowF >= float64(srcRows) || colF < 0 || colF >= float64(srcCols) {
			data[i] = fill
			continue
		}
		data[i] = sample(src, srcRows, srcCols, rowF, colF, interp)
		valid++
	}
	if valid == 0 {
		return nil, fmt.Errorf("no destination cell maps into the source footprint (epsg:%d to epsg:%d)", srcGI.EPSG, dstEPSG)
	}
	return &raster.WarpResult{Data: data, Grid: grid}, nil
}

// deriveGrid computes a destination grid covering the source footprint in
// the target CRS, with resolution chosen to keep the pixel count close to
// the source. The footprint is sampled densely along all four edges since
// projected edges curve.
func (p *Proj) deriveGrid(srcRows, srcCols int, srcGI raster.GeoInfo, dstEPSG int) (*raster.WarpGrid, error) {
	const edgeSamples = 21
	ext := srcGI.Extent(srcRows, srcCols)
	coords := newCoords(4 * edgeSamples)
	for i := 0; i < edgeSamples; i++ {
		t := float64(i) / float64(edgeSamples-1)
		x := ext.XMin + t*ext.Width()
		y := ext.YMin + t*ext.Height()
		coords[4*i][0], coords[4*i][1] = x, ext.YMin
		coords[4*i+1][0], coords[4*i+1][1] = x, ext.YMax
		coords[4*i+2][0], coords[4*i+2][1] = ext.XMin, y
		coords[4*i+3][0], coords[4*i+3][1] = ext.XMax, y
	}
	if err := p.transformPoints(srcGI.EPSG, dstEPSG, coords); err != nil {
		return nil, err
	}
	xMin, yMin := math.Inf(1), math.Inf(1)
	xMax, yMax := math.Inf(-1), math.Inf(-1)
	for _, c := range coords {
		if math.IsNaN(c[0]) || math.IsInf(c[0], 0) || math.IsNaN(c[1]) || math.IsInf(c[1], 0) {
			continue
		}
		xMin = math.Min(xMin, c[0])
		yMin = math.Min(yMin, c[1])
		xMax = math.Max(xMax, c[0])
		yMax = math.Max(yMax, c[1])
	}
	if xMin >= xMax || yMin >= yMax {
		return nil, fmt.Errorf("degenerate footprint transforming epsg:%d to epsg:%d", srcGI.EPSG, dstEPSG)
	}
	resX := (xMax - xMin) / float64(srcCols)
	resY := (yMax - yMin) / float64(srcRows)
	gi, err := raster.NewGeoInfo(dstEPSG, xMin, yMax, resX, -resY)
	if err != nil {
		return nil, err
	}
	return &raster.WarpGrid{GeoInfo: gi, Rows: srcRows, Cols: srcCols}, nil
}

func sample(src []float64, rows, cols int, rowF, colF float64, interp raster.Interpolation) float64 {
	if interp == raster.InterpBilinear {
		return bilinear(src, rows, cols, rowF-0.5, colF-0.5)
	}
	r := int(rowF)
	c := int(colF)
	return src[r*cols+c]
}

func bilinear(src []float64, rows, cols int, rf, cf float64) float64 {
	clamp := func(v, hi int) int {
		if v < 0 {
			return 0
		}
		if v > hi {
			return hi
		}
		return v
	}
	r0 := clamp(int(math.Floor(rf)), rows-1)
	c0 := clamp(int(math.Floor(cf)), cols-1)
	r1 := clamp(r0+1, rows-1)
	c1 := clamp(c0+1, cols-1)
	fr := math.Max(0, rf-float64(r0))
	fc := math.Max(0, cf-float64(c0))
	v00 := src[r0*cols+c0]
	v01 := src[r0*cols+c1]
	v10 := src[r1*cols+c0]
	v11 := src[r1*cols+c1]
	return v00*(1-fr)*(1-fc) + v01*(1-fr)*fc + v10*fr*(1-fc) + v11*fr*fc
}
