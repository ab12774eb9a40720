// geostack is the command line over the raster stack: the scene batch
// pipeline, GeoTIFF inspection and quicklook rendering.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCommand = &cobra.Command{
	Use:   "geostack",
	Short: "georeferenced raster tooling and scene batch processing",
}

func init() {
	rootCommand.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "console development logging")
	rootCommand.AddCommand(runCommand, infoCommand, previewCommand)
}

func main() {
	err := rootCommand.Execute()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
