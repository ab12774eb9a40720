package raster

import (
	"fmt"
	"time"

	geo "github.com/nci/geometry"
)

// SceneProperties is the acquisition-level metadata that turns a plain
// collection of bands into a scene. AcquisitionTime is the minimum a scene
// must carry.
type SceneProperties struct {
	AcquisitionTime time.Time
	Platform        string
	Sensor          string
	ProcessingLevel string
	ProductURI      string
	Mode            string
}

// RasterCollection is an ordered mapping of unique band names to Bands.
// Each band may additionally carry one alias; names and aliases are both
// valid lookup keys. Operations that need a common grid are gated by the
// bandstack predicate.
type RasterCollection struct {
	SceneProperties SceneProperties

	order []string
	bands map[string]*Band
}

// NewRasterCollection builds a collection from zero or more bands,
// preserving argument order.
func NewRasterCollection(bands ...*Band) (*RasterCollection, error) {
	rc := &RasterCollection{bands: map[string]*Band{}}
	for _, b := range bands {
		if err := rc.AddBand(b); err != nil {
			return nil, err
		}
	}
	return rc, nil
}

func (rc *RasterCollection) Len() int { return len(rc.order) }

// IsScene reports whether scene metadata is attached.
func (rc *RasterCollection) IsScene() bool {
	return !rc.SceneProperties.AcquisitionTime.IsZero()
}

// BandNames returns the canonical names in insertion order.
func (rc *RasterCollection) BandNames() []string {
	return append([]string(nil), rc.order...)
}

// BandAliases returns the alias slots in insertion order; bands without an
// alias contribute an empty string.
func (rc *RasterCollection) BandAliases() []string {
	aliases := make([]string, len(rc.order))
	for i, name := range rc.order {
		aliases[i] = rc.bands[name].Alias
	}
	return aliases
}

// Bands returns the stored bands in insertion order. The bands themselves
// are not copied.
func (rc *RasterCollection) Bands() []*Band {
	out := make([]*Band, len(rc.order))
	for i, name := range rc.order {
		out[i] = rc.bands[name]
	}
	return out
}

// resolve maps a name or alias to the canonical band name.
func (rc *RasterCollection) resolve(key string) (string, bool) {
	if _, ok := rc.bands[key]; ok {
		return key, true
	}
	for _, name := range rc.order {
		if a := rc.bands[name].Alias; a != "" && a == key {
			return name, true
		}
	}
	return "", false
}

// Get looks a band up by name or alias.
func (rc *RasterCollection) Get(key string) (*Band, error) {
	name, ok := rc.resolve(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBandNotFound, key)
	}
	return rc.bands[name], nil
}

// Has reports whether a band exists under the given name or alias.
func (rc *RasterCollection) Has(key string) bool {
	_, ok := rc.resolve(key)
	return ok
}

// AddBand inserts a band. The band's name must be unused.
func (rc *RasterCollection) AddBand(b *Band) error {
	if b == nil {
		return fmt.Errorf("%w: nil band", ErrBandNotFound)
	}
	if _, exists := rc.bands[b.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateBandName, b.Name)
	}
	if rc.bands == nil {
		rc.bands = map[string]*Band{}
	}
	rc.bands[b.Name] = b
	rc.order = append(rc.order, b.Name)
	return nil
}

// DropBand removes a band (resolved by name or alias) and its alias slot.
func (rc *RasterCollection) DropBand(key string) error {
	name, ok := rc.resolve(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrBandNotFound, key)
	}
	delete(rc.bands, name)
	for i, n := range rc.order {
		if n == name {
			rc.order = append(rc.order[:i], rc.order[i+1:]...)
			break
		}
	}
	return nil
}

// SliceByName returns a new collection holding the half-open range
// [from, to) of bands in insertion order. Both endpoints may be names or
// aliases; an empty endpoint leaves that side open. The bands are deep
// copies.
func (rc *RasterCollection) SliceByName(from, to string) (*RasterCollection, error) {
	start, stop := 0, len(rc.order)
	if from != "" {
		name, ok := rc.resolve(from)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBandNotFound, from)
		}
		start = rc.indexOf(name)
	}
	if to != "" {
		name, ok := rc.resolve(to)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBandNotFound, to)
		}
		stop = rc.indexOf(name)
	}
	out := &RasterCollection{SceneProperties: rc.SceneProperties, bands: map[string]*Band{}}
	for i := start; i < stop && i < len(rc.order); i++ {
		if err := out.AddBand(rc.bands[rc.order[i]].Copy()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (rc *RasterCollection) indexOf(name string) int {
	for i, n := range rc.order {
		if n == name {
			return i
		}
	}
	return -1
}

// selection resolves keys to canonical names, defaulting to every band.
func (rc *RasterCollection) selection(keys []string) ([]string, error) {
	if len(keys) == 0 {
		return rc.BandNames(), nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		name, ok := rc.resolve(k)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBandNotFound, k)
		}
		names[i] = name
	}
	return names, nil
}

// IsBandstack reports whether the selected bands (default: all) share CRS,
// signed pixel sizes, origin, and shape. The result is nil when the
// selection is empty: alignment of nothing is indeterminate.
func (rc *RasterCollection) IsBandstack(keys ...string) (*bool, error) {
	names, err := rc.selection(keys)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	first := rc.bands[names[0]]
	aligned := true
	for _, name := range names[1:] {
		b := rc.bands[name]
		if b.GeoInfo != first.GeoInfo || b.Rows() != first.Rows() || b.Cols() != first.Cols() {
			aligned = false
			break
		}
	}
	return &aligned, nil
}

// requireBandstack is the gate in front of any whole-collection operation
// that needs one common grid.
func (rc *RasterCollection) requireBandstack(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: empty band selection", ErrBandNotFound)
	}
	aligned, err := rc.IsBandstack(names...)
	if err != nil {
		return err
	}
	if aligned == nil || !*aligned {
		return fmt.Errorf("%w: bands %v", ErrUnalignedBands, names)
	}
	return nil
}

// Stack is a multi-band pixel block: the selected bands' grids stacked
// along a leading band axis. Per-band masks are preserved independently;
// they are not combined.
type Stack struct {
	Names  []string
	Arrays []*Array
	Masks  [][]bool
	Rows   int
	Cols   int
}

// Value returns the element of band index b at (row, col).
func (s *Stack) Value(b, row, col int) float64 {
	return s.Arrays[b].Value(row, col)
}

// GetValues stacks the selected bands' arrays after passing the bandstack
// gate. All storage is deep-copied.
func (rc *RasterCollection) GetValues(keys ...string) (*Stack, error) {
	names, err := rc.selection(keys)
	if err != nil {
		return nil, err
	}
	if err := rc.requireBandstack(names); err != nil {
		return nil, err
	}
	first := rc.bands[names[0]]
	s := &Stack{Rows: first.Rows(), Cols: first.Cols()}
	for _, name := range names {
		b := rc.bands[name]
		s.Names = append(s.Names, name)
		s.Arrays = append(s.Arrays, b.Values.Clone())
		if b.Mask != nil {
			s.Masks = append(s.Masks, append([]bool(nil), b.Mask...))
		} else {
			s.Masks = append(s.Masks, nil)
		}
	}
	return s, nil
}

// MaskOptions refines how ApplyMask turns its source into a boolean mask
// and which bands receive it.
type MaskOptions struct {
	// MaskValues marks source pixels with any of these values as invalid.
	MaskValues []float64
	// KeepValues marks every source pixel NOT holding one of these values
	// as invalid. Mutually exclusive with MaskValues.
	KeepValues []float64
	// Bands selects the bands to mask; empty means all.
	Bands []string
}

// ApplyMask resolves source into one boolean mask and OR-combines it into
// each selected band. Source may be a band name (or alias) within the
// collection, a []bool, or a *Band. The selection, plus the source band
// when it lives in the collection, must pass the bandstack gate.
func (rc *RasterCollection) ApplyMask(source interface{}, opts MaskOptions) error {
	if len(opts.MaskValues) > 0 && len(opts.KeepValues) > 0 {
		return fmt.Errorf("mask_values and keep_values are mutually exclusive")
	}

	names, err := rc.selection(opts.Bands)
	if err != nil {
		return err
	}

	var srcBand *Band
	gateNames := names
	switch sv := source.(type) {
	case string:
		srcBand, err = rc.Get(sv)
		if err != nil {
			return err
		}
		canonical, _ := rc.resolve(sv)
		inSelection := false
		for _, n := range names {
			if n == canonical {
				inSelection = true
				break
			}
		}
		if !inSelection {
			gateNames = append(append([]string(nil), names...), canonical)
		}
	case *Band:
		srcBand = sv
	case []bool:
		if err := rc.requireBandstack(names); err != nil {
			return err
		}
		return rc.applyBoolMask(sv, names)
	default:
		return fmt.Errorf("unsupported mask source type %T", source)
	}

	if err := rc.requireBandstack(gateNames); err != nil {
		return err
	}

	mask := make([]bool, srcBand.Values.Len())
	switch {
	case len(opts.MaskValues) > 0:
		for i := range mask {
			v := srcBand.Values.ValueAt(i)
			for _, mv := range opts.MaskValues {
				if v == mv {
					mask[i] = true
					break
				}
			}
		}
	case len(opts.KeepValues) > 0:
		for i := range mask {
			v := srcBand.Values.ValueAt(i)
			keep := false
			for _, kv := range opts.KeepValues {
				if v == kv {
					keep = true
					break
				}
			}
			mask[i] = !keep
		}
	default:
		// a bare band source masks where the source itself is invalid
		for i := range mask {
			mask[i] = srcBand.invalidAt(i)
		}
	}
	return rc.applyBoolMask(mask, names)
}

func (rc *RasterCollection) applyBoolMask(mask []bool, names []string) error {
	for _, name := range names {
		if err := rc.bands[name].ApplyMask(mask); err != nil {
			return fmt.Errorf("band %q: %w", name, err)
		}
	}
	return nil
}

// transformBands maps every band through fn into a new collection.
func (rc *RasterCollection) transformBands(fn func(*Band) (*Band, error)) (*RasterCollection, error) {
	out := &RasterCollection{SceneProperties: rc.SceneProperties, bands: map[string]*Band{}}
	for _, name := range rc.order {
		nb, err := fn(rc.bands[name])
		if err != nil {
			return nil, fmt.Errorf("band %q: %w", name, err)
		}
		if err := out.AddBand(nb); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Resample resamples every band to the same target resolution, returning a
// new collection.
func (rc *RasterCollection) Resample(opts ResampleOptions) (*RasterCollection, error) {
	return rc.transformBands(func(b *Band) (*Band, error) { return b.Resample(opts) })
}

// ResampleInPlace replaces every stored band with its resampled version.
func (rc *RasterCollection) ResampleInPlace(opts ResampleOptions) error {
	return rc.replaceFrom(func(b *Band) (*Band, error) { return b.Resample(opts) })
}

// Reproject reprojects every band to targetEPSG, returning a new
// collection.
func (rc *RasterCollection) Reproject(w Warper, targetEPSG int, opts ReprojectOptions) (*RasterCollection, error) {
	return rc.transformBands(func(b *Band) (*Band, error) { return b.Reproject(w, targetEPSG, opts) })
}

// ReprojectInPlace replaces every stored band with its reprojected version.
func (rc *RasterCollection) ReprojectInPlace(w Warper, targetEPSG int, opts ReprojectOptions) error {
	return rc.replaceFrom(func(b *Band) (*Band, error) { return b.Reproject(w, targetEPSG, opts) })
}

// ScaleData applies each band's scale/offset decoding, returning a new
// collection of Float64 bands.
func (rc *RasterCollection) ScaleData(ignore ...float64) (*RasterCollection, error) {
	return rc.transformBands(func(b *Band) (*Band, error) { return b.ScaleData(ignore...) })
}

func (rc *RasterCollection) replaceFrom(fn func(*Band) (*Band, error)) error {
	nc, err := rc.transformBands(fn)
	if err != nil {
		return err
	}
	rc.bands = nc.bands
	rc.order = nc.order
	return nil
}

// Copy returns a deep copy of the collection.
func (rc *RasterCollection) Copy() *RasterCollection {
	out := &RasterCollection{SceneProperties: rc.SceneProperties, bands: map[string]*Band{}}
	for _, name := range rc.order {
		// AddBand cannot fail here: names were unique in the source
		_ = out.AddBand(rc.bands[name].Copy())
	}
	return out
}

// BandSummary is one reduction record: statistics of one band over the
// whole grid or over one vector feature. FeatureIndex is -1 for
// whole-extent summaries.
type BandSummary struct {
	BandName     string
	FeatureIndex int
	Stats
}

// BandSummaries reduces each selected band to summary statistics, one
// record per (band, feature) pair. With no features the reduction runs
// over each band's full extent. Feature geometries must be in the
// collection's CRS (featureEPSG is validated per band).
func (rc *RasterCollection) BandSummaries(features []geo.Feature, featureEPSG int, keys ...string) ([]BandSummary, error) {
	names, err := rc.selection(keys)
	if err != nil {
		return nil, err
	}
	var out []BandSummary
	for _, name := range names {
		b := rc.bands[name]
		if len(features) == 0 {
			out = append(out, BandSummary{BandName: name, FeatureIndex: -1, Stats: b.Summary()})
			continue
		}
		for fi, feat := range features {
			clipped, err := b.ClipFeatures([]geo.Feature{feat}, featureEPSG, false)
			if err != nil {
				return nil, fmt.Errorf("band %q feature %d: %w", name, fi, err)
			}
			out = append(out, BandSummary{BandName: name, FeatureIndex: fi, Stats: clipped.Summary()})
		}
	}
	return out, nil
}
