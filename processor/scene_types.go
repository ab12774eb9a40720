// Package processor runs the scene batch pipeline: catalog records are
// grouped into per-date work units, loaded, merged, masked and gridded
// concurrently, then written out with preview artifacts. Group failures
// are counted and logged but never abort the run.
package processor

import (
	"image"
	"time"

	"github.com/geostack/geostack/catalog"
	"github.com/geostack/geostack/raster"
	"github.com/geostack/geostack/sentinel2"
)

// Stage and status labels used in run-log records.
const (
	StageIndex   = "index"
	StageProcess = "process"
	StageWrite   = "write"

	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// SceneGroup is one unit of batch work: every catalog record of one
// acquisition date, two for a datatake-split scene. TargetEPSG is the
// majority CRS of the batch the group belongs to.
type SceneGroup struct {
	Date       string
	Records    []catalog.SceneRecord
	TargetEPSG int
}

// SceneResult is a finished group: the processed scene, its preview
// artifacts, and the path the writer stored it under.
type SceneResult struct {
	Group      *SceneGroup
	Scene      *sentinel2.Scene
	RGBPreview image.Image
	SCLPreview image.Image
	Merged     bool
	Path       string
	Elapsed    time.Duration
}

// Config carries the batch processing knobs.
type Config struct {
	PoolSize         int
	TargetResolution float64
	Interpolation    raster.Interpolation
	MaskClouds       bool
	CloudClasses     []sentinel2.SCLClass
	PreviewMaxEdge   int
	PreviewFormat    string
	WebPQuality      int
	OutputDir        string
}

func groupURI(g *SceneGroup) string {
	if len(g.Records) == 0 {
		return ""
	}
	return g.Records[0].ProductURI
}
