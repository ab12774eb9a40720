package processor

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/geostack/geostack/geotiff"
	"github.com/geostack/geostack/preview"
	"github.com/geostack/geostack/raster"
	"github.com/geostack/geostack/sentinel2"
)

// SceneWriter stores processed scenes under the output directory: the
// reflectance bands as one stacked GeoTIFF, the classification layer as
// its own GeoTIFF, previews in the configured image format. A failing
// write is counted, logged and skipped.
type SceneWriter struct {
	Context context.Context
	In      chan *SceneResult
	Out     chan *SceneResult
	Error   chan error
	Config  Config
	RunLog  *RunLog
	Log     *zap.Logger
}

func NewSceneWriter(ctx context.Context, cfg Config, runLog *RunLog, logger *zap.Logger, errChan chan error) *SceneWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SceneWriter{
		Context: ctx,
		In:      make(chan *SceneResult, 100),
		Out:     make(chan *SceneResult, 100),
		Error:   errChan,
		Config:  cfg,
		RunLog:  runLog,
		Log:     logger,
	}
}

func (w *SceneWriter) Run() {
	defer close(w.Out)
	if err := os.MkdirAll(w.Config.OutputDir, 0o755); err != nil {
		w.Error <- fmt.Errorf("scene writer output directory: %v", err)
		return
	}
	for result := range w.In {
		select {
		case <-w.Context.Done():
			w.Error <- fmt.Errorf("scene writer context has been cancelled: %v", w.Context.Err())
			return
		default:
			start := time.Now()
			path, err := w.write(result)
			if err != nil {
				scenesFailed.Inc()
				w.RunLog.Append(RunRecord{
					Stage: StageWrite, Status: StatusFailed,
					Date: result.Group.Date, ProductURI: groupURI(result.Group),
					Error: err.Error(), ElapsedMS: time.Since(start).Milliseconds(),
				})
				w.Log.Warn(logTag+"scene write failed",
					zap.String("date", result.Group.Date),
					zap.String("product_uri", groupURI(result.Group)), zap.Error(err))
				continue
			}
			result.Path = path
			w.RunLog.Append(RunRecord{
				Stage: StageWrite, Status: StatusOK,
				Date: result.Group.Date, ProductURI: groupURI(result.Group),
				Output: path, Merged: result.Merged,
				ElapsedMS: time.Since(start).Milliseconds(),
			})
			w.Out <- result
		}
	}
}

func (w *SceneWriter) write(result *SceneResult) (string, error) {
	base := sceneFileBase(result)
	path := filepath.Join(w.Config.OutputDir, base+".tif")

	reflectance, err := reflectanceStack(result.Scene)
	if err != nil {
		return "", err
	}
	if err := geotiff.Write(w.Context, path, reflectance); err != nil {
		return "", err
	}

	if scl, err := result.Scene.SCL(); err == nil {
		sclPath := filepath.Join(w.Config.OutputDir, base+"_SCL.tif")
		if err := geotiff.WriteBand(w.Context, sclPath, scl); err != nil {
			return "", err
		}
	}

	if result.RGBPreview != nil {
		if err := w.writePreview(filepath.Join(w.Config.OutputDir, base+"_rgb_preview"), result.RGBPreview); err != nil {
			return "", err
		}
	}
	if result.SCLPreview != nil {
		if err := w.writePreview(filepath.Join(w.Config.OutputDir, base+"_scl_preview"), result.SCLPreview); err != nil {
			return "", err
		}
	}
	return path, nil
}

// reflectanceStack collects every band except the classification layer.
func reflectanceStack(s *sentinel2.Scene) (*raster.RasterCollection, error) {
	out, err := raster.NewRasterCollection()
	if err != nil {
		return nil, err
	}
	out.SceneProperties = s.SceneProperties
	for _, name := range s.BandNames() {
		if name == sentinel2.SCLName {
			continue
		}
		b, err := s.Get(name)
		if err != nil {
			return nil, err
		}
		if err := out.AddBand(b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (w *SceneWriter) writePreview(base string, img image.Image) error {
	ext := ".png"
	if w.Config.PreviewFormat == "webp" {
		ext = ".webp"
	}
	f, err := os.Create(base + ext)
	if err != nil {
		return err
	}
	defer f.Close()
	if w.Config.PreviewFormat == "webp" {
		return preview.EncodeWebP(f, img, w.Config.WebPQuality)
	}
	return preview.EncodePNG(f, img)
}

func sceneFileBase(result *SceneResult) string {
	uri := groupURI(result.Group)
	if uri == "" {
		uri = "scene_" + result.Group.Date
	}
	base := uri[:len(uri)-len(filepath.Ext(uri))]
	if result.Merged {
		base += "_merged"
	}
	return base
}
