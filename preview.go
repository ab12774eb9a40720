package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/geostack/geostack/geotiff"
	"github.com/geostack/geostack/preview"
)

var (
	redName     string
	greenName   string
	blueName    string
	maxEdge     int
	webpQuality int
)

func init() {
	previewCommand.Flags().StringVarP(&redName, "red", "r", "B04", "red channel band name or alias")
	previewCommand.Flags().StringVarP(&greenName, "green", "g", "B03", "green channel band name or alias")
	previewCommand.Flags().StringVarP(&blueName, "blue", "b", "B02", "blue channel band name or alias")
	previewCommand.Flags().IntVar(&maxEdge, "max-edge", 1024, "longest preview edge in pixels, 0 keeps full size")
	previewCommand.Flags().IntVar(&webpQuality, "webp-quality", 85, "webp quality when the output ends in .webp")
}

var previewCommand = &cobra.Command{
	Use:   "preview [flags] file.tif out.png",
	Short: "render an RGB quicklook from three bands",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := geotiff.Read(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		r, err := rc.Get(redName)
		if err != nil {
			return err
		}
		g, err := rc.Get(greenName)
		if err != nil {
			return err
		}
		b, err := rc.Get(blueName)
		if err != nil {
			return err
		}

		img, err := preview.RGB(r, g, b, preview.Options{MaxEdge: maxEdge})
		if err != nil {
			return err
		}

		out, err := os.Create(args[1])
		if err != nil {
			return err
		}
		defer out.Close()
		if filepath.Ext(args[1]) == ".webp" {
			return preview.EncodeWebP(out, img, webpQuality)
		}
		return preview.EncodePNG(out, img)
	},
}
