package sentinel2

import "image/color"

// SCLClass is one Sen2Cor scene-classification code. The codes and names
// follow the official ESA Level-2A algorithm documentation.
type SCLClass int

const (
	SCLNoData SCLClass = iota
	SCLSaturatedOrDefective
	SCLDarkAreaPixels
	SCLCloudShadows
	SCLVegetation
	SCLNonVegetated
	SCLWater
	SCLUnclassified
	SCLCloudMediumProbability
	SCLCloudHighProbability
	SCLThinCirrus
	SCLSnow
)

var sclNames = [...]string{
	"no_data",
	"saturated_or_defective",
	"dark_area_pixels",
	"cloud_shadows",
	"vegetation",
	"non_vegetated",
	"water",
	"unclassified",
	"cloud_medium_probability",
	"cloud_high_probability",
	"thin_cirrus",
	"snow",
}

// sclColors mimics the default ESA color map for the classification layer.
var sclColors = [...]color.NRGBA{
	{0, 0, 0, 255},       // no_data: black
	{255, 0, 0, 255},     // saturated_or_defective: red
	{105, 105, 105, 255}, // dark_area_pixels: dim grey
	{210, 105, 30, 255},  // cloud_shadows: chocolate
	{154, 205, 50, 255},  // vegetation: yellow green
	{255, 255, 0, 255},   // non_vegetated: yellow
	{0, 0, 255, 255},     // water: blue
	{128, 128, 128, 255}, // unclassified: grey
	{169, 169, 169, 255}, // cloud_medium_probability: dark grey
	{220, 220, 220, 255}, // cloud_high_probability: gainsboro
	{72, 209, 204, 255},  // thin_cirrus: medium turquoise
	{255, 0, 255, 255},   // snow: magenta
}

func (c SCLClass) Valid() bool {
	return c >= SCLNoData && c <= SCLSnow
}

func (c SCLClass) String() string {
	if !c.Valid() {
		return "unknown"
	}
	return sclNames[c]
}

// Color returns the quicklook color of the class.
func (c SCLClass) Color() color.NRGBA {
	if !c.Valid() {
		return color.NRGBA{}
	}
	return sclColors[c]
}

// SCLClasses lists all twelve classes in ascending code order.
func SCLClasses() []SCLClass {
	out := make([]SCLClass, len(sclNames))
	for i := range out {
		out[i] = SCLClass(i)
	}
	return out
}

// CloudMaskClasses are the classes MaskCloudsAndShadows masks by default:
// the three cloud classes, cloud shadows, saturated/dark/unclassified
// pixels and snow.
var CloudMaskClasses = []SCLClass{
	SCLSaturatedOrDefective,
	SCLDarkAreaPixels,
	SCLCloudShadows,
	SCLUnclassified,
	SCLCloudMediumProbability,
	SCLCloudHighProbability,
	SCLThinCirrus,
	SCLSnow,
}

// CloudCoverClasses are the classes CloudyPixelPercentage counts by
// default.
var CloudCoverClasses = []SCLClass{
	SCLDarkAreaPixels,
	SCLCloudShadows,
	SCLUnclassified,
	SCLCloudMediumProbability,
	SCLCloudHighProbability,
	SCLThinCirrus,
	SCLSnow,
}
