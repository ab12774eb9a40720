package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geostack/geostack/geotiff"
)

var infoCommand = &cobra.Command{
	Use:   "info file.tif",
	Short: "describe the bands of a GeoTIFF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := geotiff.Read(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		props := rc.SceneProperties
		if !props.AcquisitionTime.IsZero() {
			fmt.Printf("scene: %s %s %s\n", props.Platform, props.ProductURI, props.AcquisitionTime)
		}
		for _, name := range rc.BandNames() {
			b, err := rc.Get(name)
			if err != nil {
				return err
			}
			m := b.Meta()
			bounds := b.Bounds()
			fmt.Printf("%s: %s %dx%d epsg=%d res=%g nodata=%g valid=%d/%d extent=(%.2f %.2f %.2f %.2f)\n",
				b.Name, m.DType, m.Width, m.Height, m.EPSG,
				b.GeoInfo.PixResX, m.Nodata, b.ValidCount(), b.Values.Len(),
				bounds.XMin, bounds.YMin, bounds.XMax, bounds.YMax)
		}
		return nil
	},
}
