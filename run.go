package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geostack/geostack/catalog"
	"github.com/geostack/geostack/processor"
	"github.com/geostack/geostack/sentinel2"
	"github.com/geostack/geostack/utils"
	"github.com/geostack/geostack/warp"
)

var configPath string

func init() {
	runCommand.Flags().StringVarP(&configPath, "config", "c", "batch.yaml", "batch config document")
}

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "run the scene batch pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := utils.LoadBatchConfig(configPath)
		if err != nil {
			return err
		}
		logger, err := utils.NewLogger(verbose)
		if err != nil {
			return err
		}
		defer logger.Sync()

		client, err := catalog.Open(catalog.Config{
			DSN:         cfg.Catalog.DSN,
			MaxIdle:     cfg.Catalog.MaxIdleConns,
			MaxOpen:     cfg.Catalog.MaxOpenConns,
			MemcacheURI: cfg.Catalog.MemcacheURI,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		filter, err := catalog.NewFilter(cfg.Query.Filter)
		if err != nil {
			return err
		}
		warper, err := warp.NewProj()
		if err != nil {
			return err
		}
		runLog, err := processor.NewRunLog(cfg.RunDir)
		if err != nil {
			return err
		}
		defer runLog.Close()

		start, end, err := cfg.Window()
		if err != nil {
			return err
		}
		interp, err := cfg.InterpolationMode()
		if err != nil {
			return err
		}
		classes := make([]sentinel2.SCLClass, len(cfg.CloudClasses))
		for i, class := range cfg.CloudClasses {
			classes[i] = sentinel2.SCLClass(class)
		}

		errChan := make(chan error, 100)
		pipeline := processor.InitScenePipeline(ctx, client, filter, warper, runLog, processor.Config{
			PoolSize:         cfg.PoolSize,
			TargetResolution: cfg.TargetResolution,
			Interpolation:    interp,
			MaskClouds:       cfg.MaskClouds,
			CloudClasses:     classes,
			PreviewMaxEdge:   cfg.PreviewMaxEdge,
			PreviewFormat:    cfg.PreviewFormat,
			WebPQuality:      cfg.WebPQuality,
			OutputDir:        cfg.OutputDir,
		}, logger, errChan)

		results := pipeline.Process(catalog.Query{
			Start:           start,
			End:             end,
			Platform:        cfg.Query.Platform,
			ProcessingLevel: cfg.Query.ProcessingLevel,
			MaxCloudCover:   cfg.Query.MaxCloudCover,
			AOI:             cfg.AOIBounds(),
		})

		written := 0
		for results != nil {
			select {
			case result, ok := <-results:
				if !ok {
					results = nil
					break
				}
				written++
				logger.Info("product written",
					zap.String("date", result.Group.Date),
					zap.String("path", result.Path),
					zap.Bool("merged", result.Merged))
			case err := <-errChan:
				return fmt.Errorf("pipeline: %v", err)
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		report := processor.BuildReport(runLog.RunID(), runLog.Records())
		reportPath := filepath.Join(cfg.RunDir, runLog.RunID()+"_report.txt")
		f, err := os.Create(reportPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := processor.RenderReport(f, cfg.ReportTemplate, report); err != nil {
			return err
		}

		logger.Info("batch run finished",
			zap.String("run_id", runLog.RunID()),
			zap.Int("written", written),
			zap.Int("failed", report.Failed),
			zap.String("report", reportPath))
		return nil
	},
}
