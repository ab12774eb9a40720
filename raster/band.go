package raster

import (
	"fmt"
	"math"

	geo "github.com/nci/geometry"
)

// WavelengthInfo describes the spectral location of a band.
type WavelengthInfo struct {
	CentralWavelength float64
	BandWidth         float64
	Unit              string
}

// Meta is the decoded-file metadata mapping exchanged with file codecs.
// A Band's Meta round-trips through a georeferenced raster file.
type Meta struct {
	Width     int
	Height    int
	Transform Affine
	Count     int
	DType     DType
	EPSG      int
	Nodata    float64
	Driver    string
}

// Pixel anchoring conventions for AreaOrPoint.
const (
	PixelIsArea  = "Area"
	PixelIsPoint = "Point"
)

// Band is a single named raster layer: one 2-D grid, an optional validity
// mask (true = invalid), geo-referencing, and decoding metadata. A Band owns
// its grid and mask exclusively; every operation that is not explicitly
// in-place returns a deep copy and never aliases storage between instances.
type Band struct {
	Name        string
	Values      *Array
	Mask        []bool
	GeoInfo     GeoInfo
	Alias       string
	Wavelength  *WavelengthInfo
	Scale       float64
	Offset      float64
	Unit        string
	Nodata      float64
	IsTiled     bool
	AreaOrPoint string

	// Features holds the vector geometries the band was last clipped to,
	// if any. Retained so masks can be re-derived after grid changes.
	Features []geo.Feature

	// nodataSet marks an explicit WithNodata during construction so a
	// deliberate nodata of 0 is not mistaken for the unset default.
	nodataSet bool
}

// BandOption configures optional Band attributes at construction.
type BandOption func(*Band)

func WithAlias(alias string) BandOption {
	return func(b *Band) { b.Alias = alias }
}

func WithWavelength(w WavelengthInfo) BandOption {
	return func(b *Band) { b.Wavelength = &w }
}

func WithScaleOffset(scale, offset float64) BandOption {
	return func(b *Band) { b.Scale, b.Offset = scale, offset }
}

func WithUnit(unit string) BandOption {
	return func(b *Band) { b.Unit = unit }
}

// WithNodata overrides the dtype-family default nodata value.
func WithNodata(nodata float64) BandOption {
	return func(b *Band) { b.Nodata = nodata; b.nodataSet = true }
}

func WithAreaOrPoint(aop string) BandOption {
	return func(b *Band) { b.AreaOrPoint = aop }
}

// WithMask attaches a validity mask (true = invalid). The slice is copied.
func WithMask(mask []bool) BandOption {
	return func(b *Band) { b.Mask = append([]bool(nil), mask...) }
}

func WithFeatures(features []geo.Feature) BandOption {
	return func(b *Band) { b.Features = features }
}

func WithTiled(tiled bool) BandOption {
	return func(b *Band) { b.IsTiled = tiled }
}

// NewBand builds a Band over values, which must be a valid 2-D grid.
// Nodata defaults by dtype family (NaN for floats, -999 for signed
// integers, 0 for unsigned integers) unless WithNodata is given.
func NewBand(name string, values *Array, gi GeoInfo, opts ...BandOption) (*Band, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty band name", ErrBandNotFound)
	}
	if values == nil || values.Len() == 0 {
		return nil, fmt.Errorf("%w: band %q has no values", ErrInvalidShape, name)
	}
	b := &Band{
		Name:        name,
		Values:      values,
		GeoInfo:     gi,
		Scale:       1,
		Offset:      0,
		AreaOrPoint: PixelIsArea,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.AreaOrPoint != PixelIsArea && b.AreaOrPoint != PixelIsPoint {
		return nil, fmt.Errorf("area_or_point must be %q or %q, got %q", PixelIsArea, PixelIsPoint, b.AreaOrPoint)
	}
	if b.Mask != nil && len(b.Mask) != values.Len() {
		return nil, fmt.Errorf("%w: mask has %d elements, values %d", ErrInvalidShape, len(b.Mask), values.Len())
	}
	if !b.nodataSet {
		b.Nodata = values.DType().DefaultNodata()
	}
	b.nodataSet = false
	return b, nil
}

func (b *Band) Rows() int { return b.Values.Rows() }
func (b *Band) Cols() int { return b.Values.Cols() }

// IsMasked reports whether the band carries a validity mask.
func (b *Band) IsMasked() bool { return b.Mask != nil }

// Bounds returns the band's spatial extent in its own CRS.
func (b *Band) Bounds() Bounds {
	return b.GeoInfo.Extent(b.Rows(), b.Cols())
}

// Meta returns the file-codec metadata mapping for this band.
func (b *Band) Meta() Meta {
	return Meta{
		Width:     b.Cols(),
		Height:    b.Rows(),
		Transform: b.GeoInfo.Affine(),
		Count:     1,
		DType:     b.Values.DType(),
		EPSG:      b.GeoInfo.EPSG,
		Nodata:    b.Nodata,
		Driver:    "GTiff",
	}
}

// Copy returns a deep copy sharing no storage with b.
func (b *Band) Copy() *Band {
	nb := *b
	nb.Values = b.Values.Clone()
	if b.Mask != nil {
		nb.Mask = append([]bool(nil), b.Mask...)
	}
	if b.Wavelength != nil {
		w := *b.Wavelength
		nb.Wavelength = &w
	}
	if b.Features != nil {
		nb.Features = append([]geo.Feature(nil), b.Features...)
	}
	return &nb
}

// ApplyMask OR-combines mask into the band's validity mask in place.
// Masking is monotonic: pixels already invalid stay invalid. The mask must
// match the grid shape exactly.
func (b *Band) ApplyMask(mask []bool) error {
	if len(mask) != b.Values.Len() {
		return fmt.Errorf("%w: mask has %d elements, values %d", ErrInvalidShape, len(mask), b.Values.Len())
	}
	if b.Mask == nil {
		b.Mask = append([]bool(nil), mask...)
		return nil
	}
	for i, m := range mask {
		if m {
			b.Mask[i] = true
		}
	}
	return nil
}

// MaskNodata derives a validity mask from pixels equal to the nodata value
// and OR-combines it in place.
func (b *Band) MaskNodata() {
	mask := make([]bool, b.Values.Len())
	for i := range mask {
		mask[i] = isNodata(b.Values.ValueAt(i), b.Nodata)
	}
	// shape verified by construction
	_ = b.ApplyMask(mask)
}

// ValidCount returns the number of pixels that are neither masked nor
// equal to the nodata value.
func (b *Band) ValidCount() int {
	n := 0
	for i := 0; i < b.Values.Len(); i++ {
		if b.invalidAt(i) {
			continue
		}
		n++
	}
	return n
}

// ValidAt reports whether pixel i is neither masked nor nodata.
func (b *Band) ValidAt(i int) bool {
	return !b.invalidAt(i)
}

func (b *Band) invalidAt(i int) bool {
	if b.Mask != nil && b.Mask[i] {
		return true
	}
	return isNodata(b.Values.ValueAt(i), b.Nodata)
}

// ScaleData applies value' = scale * (value + offset) elementwise and
// returns a new Float64 band. Values listed in ignore (and the band's
// nodata value) pass through unscaled. Scale and offset reset to 1 and 0
// on the result so the transformation is not applied twice.
func (b *Band) ScaleData(ignore ...float64) (*Band, error) {
	out, err := b.Values.CastTo(DTFloat64)
	if err != nil {
		return nil, err
	}
	skip := func(v float64) bool {
		if isNodata(v, b.Nodata) {
			return true
		}
		for _, iv := range ignore {
			if v == iv {
				return true
			}
		}
		return false
	}
	for i := 0; i < out.Len(); i++ {
		v := out.ValueAt(i)
		if skip(v) {
			continue
		}
		out.SetValueAt(i, b.Scale*(v+b.Offset))
	}
	nb := b.Copy()
	nb.Values = out
	nb.Scale, nb.Offset = 1, 0
	return nb, nil
}

// float64Grid returns the grid promoted to float64 with invalid pixels
// (masked or nodata) replaced by NaN.
func (b *Band) float64Grid() []float64 {
	vals := b.Values.Float64s()
	for i := range vals {
		if b.invalidAt(i) {
			vals[i] = math.NaN()
		}
	}
	return vals
}

// Stats summarizes the valid pixels of the band.
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Summary computes statistics over all valid (unmasked, non-nodata) pixels.
// A band with no valid pixels yields a zero Count and NaN moments.
func (b *Band) Summary() Stats {
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum, sumSq float64
	for i := 0; i < b.Values.Len(); i++ {
		if b.invalidAt(i) {
			continue
		}
		v := b.Values.ValueAt(i)
		if math.IsNaN(v) {
			continue
		}
		s.Count++
		sum += v
		sumSq += v * v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	if s.Count == 0 {
		nan := math.NaN()
		return Stats{Min: nan, Max: nan, Mean: nan, StdDev: nan}
	}
	s.Mean = sum / float64(s.Count)
	variance := sumSq/float64(s.Count) - s.Mean*s.Mean
	if variance < 0 {
		variance = 0
	}
	s.StdDev = math.Sqrt(variance)
	return s
}
