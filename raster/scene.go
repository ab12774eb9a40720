package raster

import (
	"fmt"
	"sort"
	"time"
)

// SceneCollection keeps scenes ordered by insertion and keyed by their
// acquisition timestamp. Every member must carry scene metadata; two
// scenes may not share an acquisition instant.
type SceneCollection struct {
	order  []time.Time
	scenes map[time.Time]*RasterCollection
}

// NewSceneCollection builds a collection from zero or more scenes.
func NewSceneCollection(scenes ...*RasterCollection) (*SceneCollection, error) {
	sc := &SceneCollection{scenes: map[time.Time]*RasterCollection{}}
	for _, s := range scenes {
		if err := sc.AddScene(s); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

func (sc *SceneCollection) Len() int { return len(sc.order) }

// AddScene inserts a scene under its acquisition timestamp (normalised to
// UTC).
func (sc *SceneCollection) AddScene(s *RasterCollection) error {
	if s == nil || !s.IsScene() {
		return fmt.Errorf("%w: acquisition time not set", ErrMissingSceneMetadata)
	}
	ts := s.SceneProperties.AcquisitionTime.UTC()
	if _, exists := sc.scenes[ts]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateScene, ts.Format(time.RFC3339))
	}
	if sc.scenes == nil {
		sc.scenes = map[time.Time]*RasterCollection{}
	}
	sc.scenes[ts] = s
	sc.order = append(sc.order, ts)
	return nil
}

// Get returns the scene acquired at the given instant.
func (sc *SceneCollection) Get(ts time.Time) (*RasterCollection, error) {
	s, ok := sc.scenes[ts.UTC()]
	if !ok {
		return nil, fmt.Errorf("no scene at %s", ts.UTC().Format(time.RFC3339))
	}
	return s, nil
}

// Has reports whether a scene exists at the given instant.
func (sc *SceneCollection) Has(ts time.Time) bool {
	_, ok := sc.scenes[ts.UTC()]
	return ok
}

// DropScene removes the scene acquired at the given instant.
func (sc *SceneCollection) DropScene(ts time.Time) error {
	key := ts.UTC()
	if _, ok := sc.scenes[key]; !ok {
		return fmt.Errorf("no scene at %s", key.Format(time.RFC3339))
	}
	delete(sc.scenes, key)
	for i, t := range sc.order {
		if t.Equal(key) {
			sc.order = append(sc.order[:i], sc.order[i+1:]...)
			break
		}
	}
	return nil
}

// Timestamps returns the acquisition instants in current collection order.
func (sc *SceneCollection) Timestamps() []time.Time {
	return append([]time.Time(nil), sc.order...)
}

// Scenes returns the members in current collection order.
func (sc *SceneCollection) Scenes() []*RasterCollection {
	out := make([]*RasterCollection, len(sc.order))
	for i, ts := range sc.order {
		out[i] = sc.scenes[ts]
	}
	return out
}

// Slice returns the scenes acquired in the half-open interval
// [start, end). A zero start or end leaves that side of the interval
// open. The scenes themselves are shared, not copied.
func (sc *SceneCollection) Slice(start, end time.Time) *SceneCollection {
	out := &SceneCollection{scenes: map[time.Time]*RasterCollection{}}
	for _, ts := range sc.order {
		if !start.IsZero() && ts.Before(start.UTC()) {
			continue
		}
		if !end.IsZero() && !ts.Before(end.UTC()) {
			continue
		}
		out.scenes[ts] = sc.scenes[ts]
		out.order = append(out.order, ts)
	}
	return out
}

// SortAscending orders the collection by acquisition time, oldest first.
// Sorting twice is a no-op.
func (sc *SceneCollection) SortAscending() {
	sort.Slice(sc.order, func(i, j int) bool { return sc.order[i].Before(sc.order[j]) })
}

// SortDescending orders the collection by acquisition time, newest first.
func (sc *SceneCollection) SortDescending() {
	sort.Slice(sc.order, func(i, j int) bool { return sc.order[j].Before(sc.order[i]) })
}

// Apply maps every scene through fn in collection order, replacing each
// stored scene with the result. The timestamp key must not change.
func (sc *SceneCollection) Apply(fn func(*RasterCollection) (*RasterCollection, error)) error {
	for _, ts := range sc.order {
		ns, err := fn(sc.scenes[ts])
		if err != nil {
			return fmt.Errorf("scene %s: %w", ts.Format(time.RFC3339), err)
		}
		if ns == nil || !ns.SceneProperties.AcquisitionTime.UTC().Equal(ts) {
			return fmt.Errorf("scene %s: apply changed the acquisition time", ts.Format(time.RFC3339))
		}
		sc.scenes[ts] = ns
	}
	return nil
}
