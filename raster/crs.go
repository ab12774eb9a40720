package raster

import "fmt"

// SceneEPSG reports the CRS a scene's bands live in. Mixed CRSes within
// one scene are rejected.
func SceneEPSG(rc *RasterCollection) (int, error) {
	if rc.Len() == 0 {
		return 0, fmt.Errorf("%w: scene has no bands", ErrBandNotFound)
	}
	epsg := rc.bands[rc.order[0]].GeoInfo.EPSG
	for _, name := range rc.order[1:] {
		if e := rc.bands[name].GeoInfo.EPSG; e != epsg {
			return 0, fmt.Errorf("%w: scene mixes EPSG %d and %d", ErrInvalidCRS, epsg, e)
		}
	}
	return epsg, nil
}

// MajorityEPSG picks the most common EPSG code among the given codes.
// Ties go to the code that appears first in input order.
func MajorityEPSG(codes []int) (int, error) {
	if len(codes) == 0 {
		return 0, fmt.Errorf("%w: no codes given", ErrInvalidCRS)
	}
	counts := map[int]int{}
	for _, c := range codes {
		counts[c]++
	}
	best, bestCount := 0, 0
	for _, c := range codes {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best, nil
}

// ReconcileCRS decides a common CRS for a set of scenes: the majority EPSG
// wins, ties resolve to the first scene's CRS. It returns the target EPSG
// and the indices of scenes that need reprojecting.
func ReconcileCRS(scenes []*RasterCollection) (int, []int, error) {
	if len(scenes) == 0 {
		return 0, nil, fmt.Errorf("%w: no scenes given", ErrInvalidCRS)
	}
	codes := make([]int, len(scenes))
	for i, sc := range scenes {
		epsg, err := SceneEPSG(sc)
		if err != nil {
			return 0, nil, fmt.Errorf("scene %d: %w", i, err)
		}
		codes[i] = epsg
	}
	target, err := MajorityEPSG(codes)
	if err != nil {
		return 0, nil, err
	}
	var stale []int
	for i, c := range codes {
		if c != target {
			stale = append(stale, i)
		}
	}
	return target, stale, nil
}

// ReconcileScenes reprojects the minority scenes onto the majority CRS and
// returns the homogenised set. Scenes already in the target CRS are passed
// through untouched. Each warped band is anchored to the grid of the
// same-named band in the first target-CRS scene, so reconciled scenes stay
// pixel-aligned and can go straight into a merge. Bands warp
// nearest-neighbor, which keeps classification layers intact.
func ReconcileScenes(w Warper, scenes []*RasterCollection) ([]*RasterCollection, int, error) {
	target, stale, err := ReconcileCRS(scenes)
	if err != nil {
		return nil, 0, err
	}
	if len(stale) == 0 {
		return scenes, target, nil
	}
	if w == nil {
		return nil, 0, fmt.Errorf("%w: scenes span several EPSG codes and no warper is available", ErrInvalidCRS)
	}

	isStale := map[int]bool{}
	for _, i := range stale {
		isStale[i] = true
	}
	var ref *RasterCollection
	for i, sc := range scenes {
		if !isStale[i] {
			ref = sc
			break
		}
	}

	out := make([]*RasterCollection, len(scenes))
	copy(out, scenes)
	for _, i := range stale {
		rp, err := reprojectOnto(w, scenes[i], target, ref)
		if err != nil {
			return nil, 0, fmt.Errorf("scene %d: %w", i, err)
		}
		out[i] = rp
	}
	return out, target, nil
}

// reprojectOnto warps every band of sc to the target CRS. Bands that exist
// in ref land on that band's pixel lattice; bands ref does not carry keep
// the warper's derived grid.
func reprojectOnto(w Warper, sc *RasterCollection, targetEPSG int, ref *RasterCollection) (*RasterCollection, error) {
	out := &RasterCollection{SceneProperties: sc.SceneProperties, bands: map[string]*Band{}}
	for _, name := range sc.order {
		b := sc.bands[name]
		var nb *Band
		var err error
		if rb, refErr := ref.Get(name); refErr == nil {
			nb, err = b.ReprojectAligned(w, targetEPSG, rb.GeoInfo, InterpNearest)
		} else {
			nb, err = b.Reproject(w, targetEPSG, ReprojectOptions{})
		}
		if err != nil {
			return nil, fmt.Errorf("band %q: %w", name, err)
		}
		if err := out.AddBand(nb); err != nil {
			return nil, err
		}
	}
	return out, nil
}
