// Package sentinel2 carries the Sentinel-2 MSI specifics on top of the
// generic raster model: band naming, native resolutions and spectral
// properties per platform, the Sen2Cor scene classification enumeration,
// and the scene-level operations built from them (cloud masking, blackfill
// detection, split-scene merging).
package sentinel2

import (
	"fmt"

	"github.com/geostack/geostack/raster"
)

// Processing levels of Sentinel-2 products.
const (
	L1C = "L1C"
	L2A = "L2A"
)

// GainFactor converts uint16 digital numbers to 0..1 reflectance factors.
const GainFactor = 0.0001

// Nodata markers of ESA L2A products for reflectance bands and the scene
// classification layer.
const (
	NodataReflectance = 64537
	NodataSCL         = 254
)

// SCLName is the canonical band name of the scene classification layer.
const SCLName = "SCL"

// bandOrder lists the spectral bands in ascending wavelength order.
var bandOrder = []string{
	"B01", "B02", "B03", "B04", "B05", "B06", "B07",
	"B08", "B8A", "B09", "B10", "B11", "B12",
}

// bandResolution is the native ground sampling distance in meters per
// processing level. The SCL exists in L2A only.
var bandResolution = map[string]map[string]float64{
	L1C: {
		"B01": 60, "B02": 10, "B03": 10, "B04": 10,
		"B05": 20, "B06": 20, "B07": 20, "B08": 10,
		"B8A": 20, "B09": 60, "B10": 60, "B11": 20, "B12": 20,
	},
	L2A: {
		"B01": 60, "B02": 10, "B03": 10, "B04": 10,
		"B05": 20, "B06": 20, "B07": 20, "B08": 10,
		"B8A": 20, "B09": 60, "B10": 60, "B11": 20, "B12": 20,
		SCLName: 20,
	},
}

// bandAliases maps band names to color names usable as collection aliases.
var bandAliases = map[string]string{
	"B01": "ultra_blue",
	"B02": "blue",
	"B03": "green",
	"B04": "red",
	"B05": "red_edge_1",
	"B06": "red_edge_2",
	"B07": "red_edge_3",
	"B08": "nir_1",
	"B8A": "nir_2",
	"B09": "nir_3",
	"B11": "swir_1",
	"B12": "swir_2",
	SCLName: "scl",
}

// Central wavelengths and band widths in nm, per platform, from the ESA
// spectral response documents.
var centralWavelengths = map[string]map[string]float64{
	"S2A": {
		"B01": 442.7, "B02": 492.4, "B03": 559.8, "B04": 664.6,
		"B05": 704.1, "B06": 740.5, "B07": 782.8, "B08": 832.8,
		"B8A": 864.7, "B09": 945.1, "B10": 1373.5, "B11": 1613.7, "B12": 2202.4,
	},
	"S2B": {
		"B01": 442.2, "B02": 492.1, "B03": 559.0, "B04": 664.9,
		"B05": 703.8, "B06": 739.1, "B07": 779.7, "B08": 832.9,
		"B8A": 864.0, "B09": 943.2, "B10": 1376.9, "B11": 1610.4, "B12": 2185.7,
	},
}

var bandWidths = map[string]map[string]float64{
	"S2A": {
		"B01": 21, "B02": 66, "B03": 36, "B04": 31,
		"B05": 15, "B06": 15, "B07": 20, "B08": 106,
		"B8A": 21, "B09": 20, "B10": 31, "B11": 91, "B12": 175,
	},
	"S2B": {
		"B01": 21, "B02": 66, "B03": 36, "B04": 31,
		"B05": 16, "B06": 15, "B07": 20, "B08": 106,
		"B8A": 22, "B09": 21, "B10": 30, "B11": 94, "B12": 185,
	},
}

// BandNames returns the band names of a processing level in wavelength
// order, with the SCL appended for L2A.
func BandNames(level string) []string {
	names := append([]string(nil), bandOrder...)
	if level == L2A {
		names = append(names, SCLName)
	}
	return names
}

// Resolution returns the native resolution of a band in meters.
func Resolution(level, band string) (float64, error) {
	bands, ok := bandResolution[level]
	if !ok {
		return 0, fmt.Errorf("sentinel2: unknown processing level %q", level)
	}
	res, ok := bands[band]
	if !ok {
		return 0, fmt.Errorf("sentinel2: %w: %s in %s", raster.ErrBandNotFound, band, level)
	}
	return res, nil
}

// Alias returns the color-name alias of a band, or "" when it has none.
func Alias(band string) string {
	return bandAliases[band]
}

// Wavelength returns the spectral location of a band on a platform
// ("S2A" or "S2B").
func Wavelength(platform, band string) (raster.WavelengthInfo, error) {
	centers, ok := centralWavelengths[platform]
	if !ok {
		return raster.WavelengthInfo{}, fmt.Errorf("sentinel2: unknown platform %q", platform)
	}
	center, ok := centers[band]
	if !ok {
		return raster.WavelengthInfo{}, fmt.Errorf("sentinel2: %w: %s", raster.ErrBandNotFound, band)
	}
	return raster.WavelengthInfo{
		CentralWavelength: center,
		BandWidth:         bandWidths[platform][band],
		Unit:              "nm",
	}, nil
}
