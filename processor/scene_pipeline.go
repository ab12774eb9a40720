package processor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/geostack/geostack/catalog"
	"github.com/geostack/geostack/raster"
)

// ScenePipeline chains the batch stages: the indexer turns a catalog
// query into date groups, the processor merges and grids them, the
// writer stores the products. Process returns the stream of finished
// results.
type ScenePipeline struct {
	Context context.Context
	Error   chan error
	Catalog *catalog.Client
	Filter  *catalog.Filter
	Warper  raster.Warper
	RunLog  *RunLog
	Config  Config
	Log     *zap.Logger
}

func InitScenePipeline(ctx context.Context, cat *catalog.Client, filter *catalog.Filter, w raster.Warper, runLog *RunLog, cfg Config, logger *zap.Logger, errChan chan error) *ScenePipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScenePipeline{
		Context: ctx,
		Error:   errChan,
		Catalog: cat,
		Filter:  filter,
		Warper:  w,
		RunLog:  runLog,
		Config:  cfg,
		Log:     logger,
	}
}

func (sp *ScenePipeline) Process(query catalog.Query) chan *SceneResult {
	indexer := NewSceneIndexer(sp.Context, sp.Catalog, sp.Filter, sp.Error)
	go func() {
		indexer.In <- &query
		close(indexer.In)
	}()
	proc := NewSceneProcessor(sp.Context, sp.Config, sp.Warper, sp.RunLog, sp.Log, sp.Error)
	writer := NewSceneWriter(sp.Context, sp.Config, sp.RunLog, sp.Log, sp.Error)

	proc.In = indexer.Out
	writer.In = proc.Out

	go indexer.Run()
	go proc.Run()
	go writer.Run()

	out := make(chan *SceneResult, 100)
	start := time.Now()
	go func() {
		defer close(out)
		for result := range writer.Out {
			out <- result
		}
		runDuration.Set(time.Since(start).Seconds())
	}()
	return out
}
