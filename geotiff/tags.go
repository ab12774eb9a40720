// Package geotiff reads and writes single- and multi-band GeoTIFF files
// into the raster data model. Reading handles striped and tiled layouts,
// uncompressed, LZW and deflate payloads, and the GeoTIFF and GDAL private tags
// carrying geo-referencing, nodata and scale/offset metadata. Writing
// produces plain striped, uncompressed, chunky-interleaved files.
package geotiff

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TIFF tag and GeoKey IDs used by the codec.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagModelTransform  = 34264
	tagGeoKeyDirectory = 34735
	tagGDALMetadata    = 42112
	tagGDALNoData      = 42113

	geoKeyModelType      = 1024
	geoKeyRasterType     = 1025
	geoKeyGeographicType = 2048
	geoKeyProjectedType  = 3072

	modelTypeProjected  = 1
	modelTypeGeographic = 2
	rasterTypeArea      = 1
	rasterTypePoint     = 2

	compressionNone    = 1
	compressionLZW     = 5
	compressionDeflate = 8
	compressionOldZlib = 32946

	sampleFormatUnsigned = 1
	sampleFormatSigned   = 2
	sampleFormatFloat    = 3
)

var ErrUnsupportedLayout = errors.New("geotiff: unsupported file layout")

// geoTIFFIFD is the struct github.com/google/tiff unmarshals the first IFD
// into. Dimension and strip geometry tags may be SHORT or LONG depending
// on the writer, so they decode into wide fields.
type geoTIFFIFD struct {
	ImageWidth                uint64    `tiff:"field,tag=256"`
	ImageLength               uint64    `tiff:"field,tag=257"`
	BitsPerSample             []uint16  `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	StripOffsets              []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	RowsPerStrip              uint64    `tiff:"field,tag=278"`
	StripByteCounts           []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint64    `tiff:"field,tag=322"`
	TileLength                uint64    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              []uint16  `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	ModelTransformationTag    []float64 `tiff:"field,tag=34264"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GDALMetadata              string    `tiff:"field,tag=42112"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// geoKeys is the decoded GeoKeyDirectoryTag content the codec cares about.
type geoKeys struct {
	modelType  int
	rasterType int
	epsg       int
}

// parseGeoKeys walks the GeoKeyDirectory: a [version, revision, minor,
// count] header followed by count [keyID, location, count, value] entries.
// Only SHORT-valued keys stored inline (location 0) are needed here.
func parseGeoKeys(dir []uint16) (geoKeys, error) {
	keys := geoKeys{rasterType: rasterTypeArea}
	if len(dir) < 4 {
		return keys, fmt.Errorf("%w: truncated GeoKeyDirectory", ErrUnsupportedLayout)
	}
	n := int(dir[3])
	if len(dir) < 4+4*n {
		return keys, fmt.Errorf("%w: GeoKeyDirectory header count %d exceeds tag length", ErrUnsupportedLayout, n)
	}
	var geographic, projected int
	for i := 0; i < n; i++ {
		keyID := dir[4+4*i]
		location := dir[4+4*i+1]
		value := int(dir[4+4*i+3])
		if location != 0 {
			continue
		}
		switch keyID {
		case geoKeyModelType:
			keys.modelType = value
		case geoKeyRasterType:
			keys.rasterType = value
		case geoKeyGeographicType:
			geographic = value
		case geoKeyProjectedType:
			projected = value
		}
	}
	switch keys.modelType {
	case modelTypeGeographic:
		keys.epsg = geographic
	default:
		keys.epsg = projected
		if keys.epsg == 0 {
			keys.epsg = geographic
		}
	}
	return keys, nil
}

// gdalMetadata is the XML payload of the GDALMetadata tag: per-sample items
// keyed by name.
type gdalMetadata struct {
	XMLName xml.Name `xml:"GDALMetadata"`
	Items   []struct {
		Name   string `xml:"name,attr"`
		Sample string `xml:"sample,attr"`
		Value  string `xml:",chardata"`
	} `xml:"Item"`
}

// bandMetadata is what GDALMetadata contributes to one decoded band.
type bandMetadata struct {
	description string
	scale       float64
	offset      float64
}

// parseGDALMetadata extracts per-band description, scale and offset from
// the GDALMetadata XML. Bands without entries keep scale 1 and offset 0.
func parseGDALMetadata(raw string, bands int) []bandMetadata {
	out := make([]bandMetadata, bands)
	for i := range out {
		out[i].scale = 1
	}
	raw = strings.TrimRight(raw, "\x00")
	if strings.TrimSpace(raw) == "" {
		return out
	}
	var md gdalMetadata
	if err := xml.Unmarshal([]byte(raw), &md); err != nil {
		return out
	}
	for _, item := range md.Items {
		sample := 0
		if item.Sample != "" {
			s, err := strconv.Atoi(item.Sample)
			if err != nil || s < 0 || s >= bands {
				continue
			}
			sample = s
		}
		value := strings.TrimSpace(item.Value)
		switch strings.ToUpper(item.Name) {
		case "SCALE":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				out[sample].scale = v
			}
		case "OFFSET":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				out[sample].offset = v
			}
		case "DESCRIPTION":
			out[sample].description = value
		}
	}
	return out
}

// parseNoData decodes the GDAL_NODATA ASCII tag. GDAL writes a plain float
// with a trailing NUL; "nan" is valid.
func parseNoData(raw string) (float64, bool) {
	raw = strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// isGeographicEPSG reports whether an EPSG code names a geographic 2-D CRS.
// The geographic codes the library meets in practice all live in the 4xxx
// block of the registry.
func isGeographicEPSG(epsg int) bool {
	return epsg >= 4000 && epsg < 5000
}
