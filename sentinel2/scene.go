package sentinel2

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/geostack/geostack/geotiff"
	"github.com/geostack/geostack/preview"
	"github.com/geostack/geostack/raster"
)

// Scene is a Sentinel-2 acquisition: a raster collection whose bands carry
// the platform's spectral metadata and, for L2A, a scene classification
// layer.
type Scene struct {
	*raster.RasterCollection
}

// NewScene wraps an existing collection.
func NewScene(rc *raster.RasterCollection) *Scene {
	return &Scene{RasterCollection: rc}
}

// LoadScene reads a bandstacked GeoTIFF and decorates every known band
// with its alias and the platform's spectral properties.
func LoadScene(ctx context.Context, path string, props raster.SceneProperties) (*Scene, error) {
	rc, err := geotiff.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	rc.SceneProperties = props
	for _, name := range rc.BandNames() {
		b, err := rc.Get(name)
		if err != nil {
			return nil, err
		}
		if alias := Alias(name); alias != "" && b.Alias == "" {
			b.Alias = alias
		}
		if wl, err := Wavelength(props.Platform, name); err == nil {
			b.Wavelength = &wl
			b.Unit = wl.Unit
		}
		if b.Scale == 1 && b.Offset == 0 && name != SCLName {
			b.Scale = GainFactor
		}
	}
	return NewScene(rc), nil
}

// sclBand resolves the classification layer by name or alias.
func (s *Scene) sclBand() (*raster.Band, error) {
	b, err := s.Get(SCLName)
	if err == nil {
		return b, nil
	}
	return s.Get(bandAliases[SCLName])
}

// SCL returns the scene classification band, found by name or alias.
func (s *Scene) SCL() (*raster.Band, error) {
	return s.sclBand()
}

// HasSCL reports whether the scene carries a classification layer.
func (s *Scene) HasSCL() bool {
	_, err := s.sclBand()
	return err == nil
}

// SCLStat is the pixel count of one classification class. Share is the
// percentage of the class among all unmasked classification pixels.
type SCLStat struct {
	Class SCLClass
	Name  string
	Count int
	Share float64
}

// SCLStats returns the class histogram of the scene classification layer.
// All twelve classes are always present, absent ones with a zero count.
// Masked pixels are excluded from counts and shares.
func (s *Scene) SCLStats() ([]SCLStat, error) {
	scl, err := s.sclBand()
	if err != nil {
		return nil, fmt.Errorf("sentinel2: scene has no classification layer: %w", err)
	}
	var counts [len(sclNames)]int
	total := 0
	for i := 0; i < scl.Values.Len(); i++ {
		if scl.Mask != nil && scl.Mask[i] {
			continue
		}
		c, ok := sclCode(scl.Values.ValueAt(i))
		if !ok {
			continue
		}
		counts[c]++
		total++
	}
	stats := make([]SCLStat, len(sclNames))
	for i := range stats {
		share := 0.0
		if total > 0 {
			share = float64(counts[i]) / float64(total) * 100
		}
		stats[i] = SCLStat{Class: SCLClass(i), Name: SCLClass(i).String(), Count: counts[i], Share: share}
	}
	return stats, nil
}

// IsBlackfilled reports whether the scene holds no sensor data at all.
// With a classification layer present this means every pixel is class
// no_data; otherwise the first band is checked for all-zero values.
func (s *Scene) IsBlackfilled() bool {
	if stats, err := s.SCLStats(); err == nil {
		total := 0
		for _, st := range stats {
			total += st.Count
		}
		return stats[SCLNoData].Count == total
	}
	names := s.BandNames()
	if len(names) == 0 {
		return false
	}
	b, err := s.Get(names[0])
	if err != nil {
		return false
	}
	for i := 0; i < b.Values.Len(); i++ {
		if b.Values.ValueAt(i) != 0 {
			return false
		}
	}
	return true
}

// MaskCloudsAndShadows masks the given bands (default: all except the
// classification layer itself) wherever the SCL holds one of the cloud
// classes (default: CloudMaskClasses). The bands must be stacked on the
// classification layer's grid.
func (s *Scene) MaskCloudsAndShadows(bandsToMask []string, cloudClasses []SCLClass) error {
	scl, err := s.sclBand()
	if err != nil {
		return fmt.Errorf("sentinel2: scene has no classification layer: %w", err)
	}
	if len(cloudClasses) == 0 {
		cloudClasses = CloudMaskClasses
	}
	if len(bandsToMask) == 0 {
		for _, name := range s.BandNames() {
			if name != scl.Name {
				bandsToMask = append(bandsToMask, name)
			}
		}
	} else {
		kept := make([]string, 0, len(bandsToMask))
		for _, key := range bandsToMask {
			if key != scl.Name && key != scl.Alias {
				kept = append(kept, key)
			}
		}
		bandsToMask = kept
	}
	values := make([]float64, len(cloudClasses))
	for i, c := range cloudClasses {
		values[i] = float64(c)
	}
	return s.ApplyMask(scl.Name, raster.MaskOptions{MaskValues: values, Bands: bandsToMask})
}

// CloudyPixelPercentage returns the share (0..100) of cloud-class pixels
// among the valid (non-no_data, unmasked) classification pixels.
func (s *Scene) CloudyPixelPercentage(cloudClasses ...SCLClass) (float64, error) {
	if len(cloudClasses) == 0 {
		cloudClasses = CloudCoverClasses
	}
	stats, err := s.SCLStats()
	if err != nil {
		return 0, err
	}
	inClass := make(map[SCLClass]bool, len(cloudClasses))
	for _, c := range cloudClasses {
		inClass[c] = true
	}
	cloudy, all := 0, 0
	for _, st := range stats {
		all += st.Count
		if inClass[st.Class] {
			cloudy += st.Count
		}
	}
	valid := all - stats[SCLNoData].Count
	if valid == 0 {
		return 0, fmt.Errorf("sentinel2: no valid classification pixels")
	}
	return float64(cloudy) / float64(valid) * 100, nil
}

// RGBPreview renders a true-color quicklook from the visible bands.
func (s *Scene) RGBPreview(opts preview.Options) (image.Image, error) {
	r, err := s.firstOf("B04", "red")
	if err != nil {
		return nil, err
	}
	g, err := s.firstOf("B03", "green")
	if err != nil {
		return nil, err
	}
	b, err := s.firstOf("B02", "blue")
	if err != nil {
		return nil, err
	}
	return preview.RGB(r, g, b, opts)
}

// SCLPreview renders the classification layer in the ESA color map.
// Masked and out-of-range pixels come out transparent.
func (s *Scene) SCLPreview(maxEdge int) (image.Image, error) {
	scl, err := s.sclBand()
	if err != nil {
		return nil, fmt.Errorf("sentinel2: scene has no classification layer: %w", err)
	}
	rows, cols := scl.Rows(), scl.Cols()
	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			i := row*cols + col
			if scl.Mask != nil && scl.Mask[i] {
				continue
			}
			c, ok := sclCode(scl.Values.ValueAt(i))
			if !ok {
				continue
			}
			img.SetNRGBA(col, row, c.Color())
		}
	}
	return preview.Resize(img, maxEdge), nil
}

// sclCode converts a raw pixel value to a classification code, reporting
// false for fractional, out-of-range or NaN values.
func sclCode(v float64) (SCLClass, bool) {
	if !(v >= 0 && v <= float64(SCLSnow)) || v != math.Trunc(v) {
		return 0, false
	}
	return SCLClass(v), true
}

func (s *Scene) firstOf(keys ...string) (*raster.Band, error) {
	var err error
	for _, key := range keys {
		var b *raster.Band
		if b, err = s.Get(key); err == nil {
			return b, nil
		}
	}
	return nil, err
}
