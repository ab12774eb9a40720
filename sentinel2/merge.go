package sentinel2

import (
	"fmt"
	"image"

	"github.com/geostack/geostack/preview"
	"github.com/geostack/geostack/raster"
)

// MergeOptions controls split-scene merging. A zero TargetResolution means
// 10 m; the interpolation applies to reflectance bands only, the
// classification layer always resamples nearest-neighbor. Warper is needed
// only when the two halves sit in different UTM zones: the second scene is
// then warped onto the first one's CRS before compositing.
type MergeOptions struct {
	TargetResolution float64
	Interpolation    raster.Interpolation
	PreviewMaxEdge   int
	Warper           raster.Warper
}

// MergeResult is a merged split acquisition plus its regenerated preview
// artifacts. SCLPreview is nil when the inputs carry no classification
// layer, and either preview is nil when its bands could not be rendered.
type MergeResult struct {
	Scene      *Scene
	RGBPreview image.Image
	SCLPreview image.Image
}

// MergeSplitScenes stitches two acquisitions of the same nominal scene that
// a datatake boundary split into complementary-blackfill halves. Both
// scenes are brought to the target resolution first; when the halves
// straddle a UTM zone boundary the second one is reprojected onto the
// first one's CRS and pixel lattice. The aligned scenes are then
// composited band by band with the earlier argument winning wherever both
// hold data. The classification layer is merged by the same rule,
// separately from the reflectance bands, and only when both scenes carry
// one. Scene properties come from the first scene.
func MergeSplitScenes(a, b *Scene, opts MergeOptions) (*MergeResult, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("sentinel2: %w: two scenes required", raster.ErrMergeFailed)
	}
	res := opts.TargetResolution
	if res == 0 {
		res = 10
	}

	ar, err := resampleScene(a, res, opts.Interpolation)
	if err != nil {
		return nil, fmt.Errorf("sentinel2: %w: %v", raster.ErrMergeFailed, err)
	}
	br, err := resampleScene(b, res, opts.Interpolation)
	if err != nil {
		return nil, fmt.Errorf("sentinel2: %w: %v", raster.ErrMergeFailed, err)
	}
	ar, br, err = reconcilePair(ar, br, opts.Warper)
	if err != nil {
		return nil, err
	}

	merged, err := raster.NewRasterCollection()
	if err != nil {
		return nil, err
	}
	merged.SceneProperties = a.SceneProperties

	for _, name := range ar.BandNames() {
		if name == SCLName {
			continue
		}
		left, err := ar.Get(name)
		if err != nil {
			return nil, err
		}
		right, err := br.Get(name)
		if err != nil {
			return nil, fmt.Errorf("sentinel2: %w: band %s missing in second scene", raster.ErrMergeFailed, name)
		}
		mb, err := raster.MergeBands(left, right)
		if err != nil {
			return nil, err
		}
		if err := merged.AddBand(mb); err != nil {
			return nil, err
		}
	}

	if ar.Has(SCLName) && br.Has(SCLName) {
		left, err := ar.Get(SCLName)
		if err != nil {
			return nil, err
		}
		right, err := br.Get(SCLName)
		if err != nil {
			return nil, err
		}
		scl, err := raster.MergeBands(left, right)
		if err != nil {
			return nil, err
		}
		if err := merged.AddBand(scl); err != nil {
			return nil, err
		}
	}

	scene := NewScene(merged)
	result := &MergeResult{Scene: scene}
	if rgb, err := scene.RGBPreview(preview.Options{MaxEdge: opts.PreviewMaxEdge}); err == nil {
		result.RGBPreview = rgb
	}
	if sclImg, err := scene.SCLPreview(opts.PreviewMaxEdge); err == nil {
		result.SCLPreview = sclImg
	}
	return result, nil
}

// reconcilePair brings a cross-zone split pair onto one CRS: the second
// scene is warped onto the first one's zone and pixel lattice. Pairs
// already sharing a CRS pass through untouched.
func reconcilePair(a, b *raster.RasterCollection, w raster.Warper) (*raster.RasterCollection, *raster.RasterCollection, error) {
	out, _, err := raster.ReconcileScenes(w, []*raster.RasterCollection{a, b})
	if err != nil {
		return nil, nil, fmt.Errorf("sentinel2: %w: %v", raster.ErrMergeFailed, err)
	}
	return out[0], out[1], nil
}

// ResampleScene brings every band of a scene to the target resolution,
// nearest-neighbor for the classification layer.
func ResampleScene(s *Scene, res float64, interp raster.Interpolation) (*Scene, error) {
	rc, err := resampleScene(s, res, interp)
	if err != nil {
		return nil, err
	}
	return NewScene(rc), nil
}

// resampleScene brings every band of a scene to the target resolution. The
// classification layer resamples nearest-neighbor regardless of the
// requested kernel so class codes stay intact.
func resampleScene(s *Scene, res float64, interp raster.Interpolation) (*raster.RasterCollection, error) {
	out, err := raster.NewRasterCollection()
	if err != nil {
		return nil, err
	}
	out.SceneProperties = s.SceneProperties
	for _, name := range s.BandNames() {
		b, err := s.Get(name)
		if err != nil {
			return nil, err
		}
		kernel := interp
		if name == SCLName || b.Alias == bandAliases[SCLName] {
			kernel = raster.InterpNearest
		}
		rb, err := b.Resample(raster.ResampleOptions{TargetResolution: res, Interpolation: kernel})
		if err != nil {
			return nil, err
		}
		if err := out.AddBand(rb); err != nil {
			return nil, err
		}
	}
	return out, nil
}
