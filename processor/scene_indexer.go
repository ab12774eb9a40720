package processor

import (
	"context"
	"fmt"
	"sort"

	"github.com/geostack/geostack/catalog"
	"github.com/geostack/geostack/raster"
)

// SceneIndexer turns catalog queries into date-grouped scene work units.
// Archive and filter failures are fatal to the run.
type SceneIndexer struct {
	Context context.Context
	In      chan *catalog.Query
	Out     chan *SceneGroup
	Error   chan error
	Catalog *catalog.Client
	Filter  *catalog.Filter
}

func NewSceneIndexer(ctx context.Context, cat *catalog.Client, filter *catalog.Filter, errChan chan error) *SceneIndexer {
	return &SceneIndexer{
		Context: ctx,
		In:      make(chan *catalog.Query, 100),
		Out:     make(chan *SceneGroup, 100),
		Error:   errChan,
		Catalog: cat,
		Filter:  filter,
	}
}

func (p *SceneIndexer) Run() {
	defer close(p.Out)
	for q := range p.In {
		select {
		case <-p.Context.Done():
			p.Error <- fmt.Errorf("scene indexer context has been cancelled: %v", p.Context.Err())
			return
		default:
			recs, err := p.Catalog.Scenes(p.Context, *q)
			if err != nil {
				p.Error <- err
				return
			}
			recs, err = p.Filter.Apply(recs)
			if err != nil {
				p.Error <- err
				return
			}
			if len(recs) == 0 {
				continue
			}
			target, err := raster.MajorityEPSG(catalog.EPSGCodes(recs))
			if err != nil {
				p.Error <- err
				return
			}
			for _, g := range GroupByDate(recs) {
				g.TargetEPSG = target
				p.Out <- g
			}
		}
	}
}

// GroupByDate buckets records by acquisition date (UTC). Groups come out
// in date order, records within a group in sensing-time order.
func GroupByDate(recs []catalog.SceneRecord) []*SceneGroup {
	byDate := map[string][]catalog.SceneRecord{}
	for _, r := range recs {
		date := r.SensingTime.UTC().Format("2006-01-02")
		byDate[date] = append(byDate[date], r)
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	groups := make([]*SceneGroup, 0, len(dates))
	for _, d := range dates {
		g := &SceneGroup{Date: d, Records: byDate[d]}
		sort.Slice(g.Records, func(i, j int) bool {
			return g.Records[i].SensingTime.Before(g.Records[j].SensingTime)
		})
		groups = append(groups, g)
	}
	return groups
}
