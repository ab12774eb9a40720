// Package utils carries the batch configuration document and the logger
// construction shared by the command line and the pipeline packages.
package utils

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/geostack/geostack/raster"
)

// CatalogConfig points the run at the scene-metadata archive.
type CatalogConfig struct {
	DSN          string `yaml:"dsn"`
	MemcacheURI  string `yaml:"memcache_uri"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// QueryConfig is the scene selection of one batch run. Start and End
// accept a date or an RFC 3339 timestamp; AOI is xmin ymin xmax ymax
// in the archive CRS.
type QueryConfig struct {
	Start           string    `yaml:"start"`
	End             string    `yaml:"end"`
	Platform        string    `yaml:"platform"`
	ProcessingLevel string    `yaml:"processing_level"`
	MaxCloudCover   float64   `yaml:"max_cloud_cover"`
	AOI             []float64 `yaml:"aoi"`
	Filter          string    `yaml:"filter"`
}

// BatchConfig is the whole batch-run document.
type BatchConfig struct {
	Catalog          CatalogConfig `yaml:"catalog"`
	Query            QueryConfig   `yaml:"query"`
	PoolSize         int           `yaml:"pool_size"`
	TargetResolution float64       `yaml:"target_resolution"`
	Interpolation    string        `yaml:"interpolation"`
	MaskClouds       bool          `yaml:"mask_clouds"`
	CloudClasses     []int         `yaml:"cloud_classes"`
	PreviewMaxEdge   int           `yaml:"preview_max_edge"`
	PreviewFormat    string        `yaml:"preview_format"`
	WebPQuality      int           `yaml:"webp_quality"`
	OutputDir        string        `yaml:"output_dir"`
	RunDir           string        `yaml:"run_dir"`
	ReportTemplate   string        `yaml:"report_template"`
}

const (
	DefaultPoolSize         = 4
	DefaultTargetResolution = 10.0
	DefaultRunDir           = "runs"
	DefaultReportTemplate   = "templates/run_report.jet"
)

// LoadBatchConfig reads a YAML batch document, expanding ${VAR}
// references from the environment before parsing.
func LoadBatchConfig(path string) (*BatchConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("utils: reading config file %s: %v", path, err)
	}

	config := &BatchConfig{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), config); err != nil {
		return nil, fmt.Errorf("utils: parsing config document %s: %v", path, err)
	}

	if config.PoolSize <= 0 {
		config.PoolSize = DefaultPoolSize
	}
	if config.TargetResolution <= 0 {
		config.TargetResolution = DefaultTargetResolution
	}
	if config.Interpolation == "" {
		config.Interpolation = "nearest"
	}
	if config.PreviewFormat == "" {
		config.PreviewFormat = "png"
	}
	if config.RunDir == "" {
		config.RunDir = DefaultRunDir
	}
	if config.ReportTemplate == "" {
		config.ReportTemplate = DefaultReportTemplate
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the document for holes a run would trip over later.
func (c *BatchConfig) Validate() error {
	if c.Catalog.DSN == "" {
		return fmt.Errorf("utils: catalog dsn is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("utils: output_dir is required")
	}
	if _, _, err := c.Window(); err != nil {
		return err
	}
	if _, err := c.InterpolationMode(); err != nil {
		return err
	}
	switch c.PreviewFormat {
	case "png", "webp":
	default:
		return fmt.Errorf("utils: preview format %q not supported", c.PreviewFormat)
	}
	for _, class := range c.CloudClasses {
		if class < 0 || class > 11 {
			return fmt.Errorf("utils: scene class %d out of range 0..11", class)
		}
	}
	if n := len(c.Query.AOI); n != 0 && n != 4 {
		return fmt.Errorf("utils: aoi wants xmin ymin xmax ymax, got %d values", n)
	}
	return nil
}

// Window parses the query window. Date-only values mean midnight UTC.
func (c *BatchConfig) Window() (time.Time, time.Time, error) {
	start, err := parseTime(c.Query.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("utils: query start: %v", err)
	}
	end, err := parseTime(c.Query.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("utils: query end: %v", err)
	}
	return start, end, nil
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

// InterpolationMode maps the document value onto the resampling kernel.
func (c *BatchConfig) InterpolationMode() (raster.Interpolation, error) {
	switch c.Interpolation {
	case "nearest":
		return raster.InterpNearest, nil
	case "bilinear":
		return raster.InterpBilinear, nil
	}
	return 0, fmt.Errorf("utils: interpolation %q not supported", c.Interpolation)
}

// AOIBounds returns the query extent, nil when the document has none.
func (c *BatchConfig) AOIBounds() *raster.Bounds {
	if len(c.Query.AOI) != 4 {
		return nil
	}
	return &raster.Bounds{
		XMin: c.Query.AOI[0],
		YMin: c.Query.AOI[1],
		XMax: c.Query.AOI[2],
		YMax: c.Query.AOI[3],
	}
}
