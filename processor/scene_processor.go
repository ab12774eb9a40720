package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/geostack/geostack/catalog"
	"github.com/geostack/geostack/preview"
	"github.com/geostack/geostack/raster"
	"github.com/geostack/geostack/sentinel2"
)

const logTag = "<processor> "

// SceneProcessor loads, merges, masks and grids scene groups, fanning the
// groups out over a fixed worker pool. A failing group is counted,
// written to the run log and skipped; sibling groups keep running.
type SceneProcessor struct {
	Context context.Context
	In      chan *SceneGroup
	Out     chan *SceneResult
	Error   chan error
	Config  Config
	Warper  raster.Warper
	RunLog  *RunLog
	Log     *zap.Logger
}

func NewSceneProcessor(ctx context.Context, cfg Config, w raster.Warper, runLog *RunLog, logger *zap.Logger, errChan chan error) *SceneProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SceneProcessor{
		Context: ctx,
		In:      make(chan *SceneGroup, 100),
		Out:     make(chan *SceneResult, 100),
		Error:   errChan,
		Config:  cfg,
		Warper:  w,
		RunLog:  runLog,
		Log:     logger,
	}
}

func (p *SceneProcessor) Run() {
	cLmt := NewConcLimiter(p.Config.PoolSize)
	defer close(p.Out)
	for group := range p.In {
		select {
		case <-p.Context.Done():
			p.Error <- fmt.Errorf("scene processor context has been cancelled: %v", p.Context.Err())
			cLmt.Wait()
			return
		default:
			cLmt.Increase()
			go func(g *SceneGroup) {
				defer cLmt.Decrease()
				p.processGroup(g)
			}(group)
		}
	}
	cLmt.Wait()
}

func (p *SceneProcessor) processGroup(g *SceneGroup) {
	start := time.Now()

	scenes := make([]*sentinel2.Scene, 0, len(g.Records))
	for _, rec := range g.Records {
		s, err := sentinel2.LoadScene(p.Context, rec.Path, sceneProps(rec))
		if err != nil {
			p.fail(g, fmt.Errorf("load %s: %w", rec.Path, err), start)
			return
		}
		scenes = append(scenes, s)
	}

	result := &SceneResult{Group: g}
	var scene *sentinel2.Scene
	switch len(scenes) {
	case 1:
		if scenes[0].IsBlackfilled() {
			p.skip(g, start)
			return
		}
		resampled, err := sentinel2.ResampleScene(scenes[0], p.Config.TargetResolution, p.Config.Interpolation)
		if err != nil {
			p.fail(g, err, start)
			return
		}
		scene = resampled
	case 2:
		merged, err := sentinel2.MergeSplitScenes(scenes[0], scenes[1], sentinel2.MergeOptions{
			TargetResolution: p.Config.TargetResolution,
			Interpolation:    p.Config.Interpolation,
			PreviewMaxEdge:   p.Config.PreviewMaxEdge,
			Warper:           p.Warper,
		})
		if err != nil {
			p.fail(g, err, start)
			return
		}
		scene = merged.Scene
		result.Merged = true
		scenesMerged.Inc()
	default:
		p.fail(g, fmt.Errorf("%d scenes share date %s, expected a split pair at most", len(scenes), g.Date), start)
		return
	}

	if p.Config.MaskClouds {
		if err := scene.MaskCloudsAndShadows(nil, p.Config.CloudClasses); err != nil {
			p.fail(g, err, start)
			return
		}
	}

	epsg, err := raster.SceneEPSG(scene.RasterCollection)
	if err != nil {
		p.fail(g, err, start)
		return
	}
	if g.TargetEPSG != 0 && epsg != g.TargetEPSG {
		rc, err := scene.Reproject(p.Warper, g.TargetEPSG, raster.ReprojectOptions{Interpolation: p.Config.Interpolation})
		if err != nil {
			p.fail(g, err, start)
			return
		}
		scene = sentinel2.NewScene(rc)
	}

	// previews reflect the product as written, after masking and warping
	if img, err := scene.RGBPreview(preview.Options{MaxEdge: p.Config.PreviewMaxEdge}); err == nil {
		result.RGBPreview = img
	}
	if img, err := scene.SCLPreview(p.Config.PreviewMaxEdge); err == nil {
		result.SCLPreview = img
	}

	result.Scene = scene
	result.Elapsed = time.Since(start)
	p.RunLog.Append(RunRecord{
		Stage: StageProcess, Status: StatusOK,
		Date: g.Date, ProductURI: groupURI(g), Merged: result.Merged,
		ElapsedMS: result.Elapsed.Milliseconds(),
	})
	scenesProcessed.Inc()
	p.Out <- result
}

func (p *SceneProcessor) skip(g *SceneGroup, start time.Time) {
	p.RunLog.Append(RunRecord{
		Stage: StageProcess, Status: StatusSkipped,
		Date: g.Date, ProductURI: groupURI(g),
		ElapsedMS: time.Since(start).Milliseconds(),
	})
	p.Log.Info(logTag+"blackfilled scene skipped",
		zap.String("date", g.Date), zap.String("product_uri", groupURI(g)))
}

func (p *SceneProcessor) fail(g *SceneGroup, err error, start time.Time) {
	scenesFailed.Inc()
	p.RunLog.Append(RunRecord{
		Stage: StageProcess, Status: StatusFailed,
		Date: g.Date, ProductURI: groupURI(g), Error: err.Error(),
		ElapsedMS: time.Since(start).Milliseconds(),
	})
	p.Log.Warn(logTag+"scene group failed",
		zap.String("date", g.Date), zap.String("product_uri", groupURI(g)), zap.Error(err))
}

func sceneProps(rec catalog.SceneRecord) raster.SceneProperties {
	return raster.SceneProperties{
		AcquisitionTime: rec.SensingTime,
		Platform:        rec.Platform,
		Sensor:          "MSI",
		ProductURI:      rec.ProductURI,
	}
}
