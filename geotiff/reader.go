package geotiff

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"golang.org/x/image/tiff/lzw"

	"github.com/geostack/geostack/raster"
)

// Read decodes every band of a GeoTIFF file into a raster collection.
// Band names come from the GDAL per-band DESCRIPTION items when present,
// from bandNames when given, and fall back to B1..Bn. Only the first IFD
// is decoded; overview IFDs are ignored.
func Read(ctx context.Context, path string, bandNames ...string) (*raster.RasterCollection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geotiff: %v", err)
	}
	defer f.Close()
	rc, err := decode(ctx, f, bandNames)
	if err != nil {
		return nil, fmt.Errorf("geotiff: %s: %w", path, err)
	}
	return rc, nil
}

// ReadBand decodes a single band of a GeoTIFF file. index is 1-based, the
// way GDAL and the raster IO tooling around it count bands.
func ReadBand(ctx context.Context, path string, index int) (*raster.Band, error) {
	rc, err := Read(ctx, path)
	if err != nil {
		return nil, err
	}
	names := rc.BandNames()
	if index < 1 || index > len(names) {
		return nil, fmt.Errorf("geotiff: band index %d out of range 1..%d", index, len(names))
	}
	return rc.Get(names[index-1])
}

func decode(ctx context.Context, f tiff.ReadAtReadSeeker, bandNames []string) (*raster.RasterCollection, error) {
	order, err := byteOrderOf(f)
	if err != nil {
		return nil, err
	}
	t, err := tiff.Parse(f, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, err
	}
	if len(t.IFDs()) == 0 {
		return nil, fmt.Errorf("%w: no IFDs", ErrUnsupportedLayout)
	}
	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(t.IFDs()[0], &ifd); err != nil {
		return nil, err
	}

	l, err := validateLayout(&ifd)
	if err != nil {
		return nil, err
	}
	gi, err := georeference(&ifd, l.keys)
	if err != nil {
		return nil, err
	}

	arrays := make([]*raster.Array, l.samples)
	for s := range arrays {
		arrays[s], err = raster.NewArray(l.dtype, l.rows, l.cols)
		if err != nil {
			return nil, err
		}
	}
	if ifd.TileWidth > 0 {
		err = readTiles(ctx, f, &ifd, l, order, arrays)
	} else {
		err = readStrips(ctx, f, &ifd, l, order, arrays)
	}
	if err != nil {
		return nil, err
	}

	meta := parseGDALMetadata(ifd.GDALMetadata, l.samples)
	nodata, hasNodata := parseNoData(ifd.GDALNoData)
	aop := raster.PixelIsArea
	if l.keys.rasterType == rasterTypePoint {
		aop = raster.PixelIsPoint
	}

	bands := make([]*raster.Band, l.samples)
	for s := range bands {
		name := fmt.Sprintf("B%d", s+1)
		if meta[s].description != "" {
			name = meta[s].description
		}
		if s < len(bandNames) && bandNames[s] != "" {
			name = bandNames[s]
		}
		opts := []raster.BandOption{raster.WithAreaOrPoint(aop)}
		if meta[s].scale != 1 || meta[s].offset != 0 {
			opts = append(opts, raster.WithScaleOffset(meta[s].scale, meta[s].offset))
		}
		if hasNodata {
			opts = append(opts, raster.WithNodata(nodata))
		}
		bands[s], err = raster.NewBand(name, arrays[s], gi, opts...)
		if err != nil {
			return nil, err
		}
		if hasNodata {
			bands[s].MaskNodata()
		}
	}
	return raster.NewRasterCollection(bands...)
}

// layout is the validated pixel organisation of the first IFD.
type layout struct {
	rows, cols  int
	samples     int
	dtype       raster.DType
	size        int
	compression uint16
	predictor   uint16
	keys        geoKeys
}

func validateLayout(ifd *geoTIFFIFD) (layout, error) {
	l := layout{
		rows:        int(ifd.ImageLength),
		cols:        int(ifd.ImageWidth),
		samples:     int(ifd.SamplesPerPixel),
		compression: ifd.Compression,
		predictor:   ifd.Predictor,
	}
	if l.rows <= 0 || l.cols <= 0 {
		return l, fmt.Errorf("%w: image size %dx%d", ErrUnsupportedLayout, l.cols, l.rows)
	}
	if l.samples == 0 {
		l.samples = 1
	}
	if pc := ifd.PlanarConfiguration; pc > 1 {
		return l, fmt.Errorf("%w: planar configuration %d", ErrUnsupportedLayout, pc)
	}
	if ifd.PhotometricInterpretation == 3 {
		return l, fmt.Errorf("%w: palette images", ErrUnsupportedLayout)
	}
	if l.compression == 0 {
		l.compression = compressionNone
	}
	switch l.compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionOldZlib:
	default:
		return l, fmt.Errorf("%w: compression %d", ErrUnsupportedLayout, l.compression)
	}

	bits, err := uniformUint16(ifd.BitsPerSample, l.samples, 0)
	if err != nil {
		return l, fmt.Errorf("%w: mixed bits per sample", ErrUnsupportedLayout)
	}
	format, err := uniformUint16(ifd.SampleFormat, l.samples, sampleFormatUnsigned)
	if err != nil {
		return l, fmt.Errorf("%w: mixed sample formats", ErrUnsupportedLayout)
	}
	l.dtype, err = dtypeFor(bits, format)
	if err != nil {
		return l, err
	}
	l.size = l.dtype.Size()

	if l.predictor == 0 {
		l.predictor = 1
	}
	if l.predictor > 2 || (l.predictor == 2 && l.dtype.IsFloat()) {
		return l, fmt.Errorf("%w: predictor %d for %s samples", ErrUnsupportedLayout, l.predictor, l.dtype)
	}

	l.keys, err = parseGeoKeys(ifd.GeoKeyDirectoryTag)
	if err != nil {
		return l, err
	}
	return l, nil
}

// uniformUint16 expands a per-sample SHORT tag and requires all samples to
// agree. A missing tag yields def.
func uniformUint16(vals []uint16, samples int, def uint16) (uint16, error) {
	if len(vals) == 0 {
		return def, nil
	}
	v := vals[0]
	for _, o := range vals {
		if o != v {
			return 0, fmt.Errorf("mixed per-sample values")
		}
	}
	return v, nil
}

func dtypeFor(bits, format uint16) (raster.DType, error) {
	switch format {
	case sampleFormatUnsigned:
		switch bits {
		case 8:
			return raster.DTByte, nil
		case 16:
			return raster.DTUInt16, nil
		case 32:
			return raster.DTUInt32, nil
		}
	case sampleFormatSigned:
		switch bits {
		case 16:
			return raster.DTInt16, nil
		case 32:
			return raster.DTInt32, nil
		}
	case sampleFormatFloat:
		switch bits {
		case 32:
			return raster.DTFloat32, nil
		case 64:
			return raster.DTFloat64, nil
		}
	}
	return "", fmt.Errorf("%w: sample format %d with %d bits", ErrUnsupportedLayout, format, bits)
}

// georeference builds the GeoInfo from ModelPixelScale+ModelTiepoint, or
// from a ModelTransformation matrix without rotation terms.
func georeference(ifd *geoTIFFIFD, keys geoKeys) (raster.GeoInfo, error) {
	var ulx, uly, resX, resY float64
	switch {
	case len(ifd.ModelPixelScaleTag) >= 2 && len(ifd.ModelTiepointTag) >= 6:
		tp := ifd.ModelTiepointTag
		resX = ifd.ModelPixelScaleTag[0]
		resY = -ifd.ModelPixelScaleTag[1]
		ulx = tp[3] - tp[0]*resX
		uly = tp[4] - tp[1]*resY
	case len(ifd.ModelTransformationTag) == 16:
		m := ifd.ModelTransformationTag
		if m[1] != 0 || m[4] != 0 {
			return raster.GeoInfo{}, fmt.Errorf("%w: rotated rasters", ErrUnsupportedLayout)
		}
		resX, resY = m[0], m[5]
		ulx, uly = m[3], m[7]
	default:
		return raster.GeoInfo{}, fmt.Errorf("%w: missing georeferencing tags", ErrUnsupportedLayout)
	}
	gi, err := raster.NewGeoInfo(keys.epsg, ulx, uly, resX, resY)
	if err != nil {
		return raster.GeoInfo{}, err
	}
	return gi, nil
}

func byteOrderOf(r io.ReaderAt) (binary.ByteOrder, error) {
	magic := make([]byte, 2)
	if _, err := r.ReadAt(magic, 0); err != nil {
		return nil, err
	}
	switch string(magic) {
	case "II":
		return binary.LittleEndian, nil
	case "MM":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("%w: bad byte order mark %q", ErrUnsupportedLayout, magic)
}

func readStrips(ctx context.Context, r io.ReaderAt, ifd *geoTIFFIFD, l layout, order binary.ByteOrder, arrays []*raster.Array) error {
	rowsPerStrip := l.rows
	if ifd.RowsPerStrip > 0 {
		rowsPerStrip = int(ifd.RowsPerStrip)
	}
	strips := (l.rows + rowsPerStrip - 1) / rowsPerStrip
	if len(ifd.StripOffsets) < strips || len(ifd.StripByteCounts) < strips {
		return fmt.Errorf("%w: %d strips described, %d needed", ErrUnsupportedLayout, len(ifd.StripOffsets), strips)
	}
	for s := 0; s < strips; s++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows := rowsPerStrip
		if r0 := s * rowsPerStrip; r0+rows > l.rows {
			rows = l.rows - r0
		}
		buf, err := readChunk(r, ifd.StripOffsets[s], ifd.StripByteCounts[s], l, rows*l.cols*l.samples*l.size)
		if err != nil {
			return fmt.Errorf("strip %d: %w", s, err)
		}
		if err := undoPredictor(buf, order, l, rows, l.cols); err != nil {
			return err
		}
		fillRows(buf, order, l, arrays, s*rowsPerStrip, rows, 0, l.cols)
	}
	return nil
}

func readTiles(ctx context.Context, r io.ReaderAt, ifd *geoTIFFIFD, l layout, order binary.ByteOrder, arrays []*raster.Array) error {
	tw, th := int(ifd.TileWidth), int(ifd.TileLength)
	if tw <= 0 || th <= 0 {
		return fmt.Errorf("%w: tile size %dx%d", ErrUnsupportedLayout, tw, th)
	}
	across := (l.cols + tw - 1) / tw
	down := (l.rows + th - 1) / th
	if len(ifd.TileOffsets) < across*down || len(ifd.TileByteCounts) < across*down {
		return fmt.Errorf("%w: %d tiles described, %d needed", ErrUnsupportedLayout, len(ifd.TileOffsets), across*down)
	}
	for ty := 0; ty < down; ty++ {
		for tx := 0; tx < across; tx++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			i := ty*across + tx
			buf, err := readChunk(r, ifd.TileOffsets[i], ifd.TileByteCounts[i], l, th*tw*l.samples*l.size)
			if err != nil {
				return fmt.Errorf("tile %d: %w", i, err)
			}
			if err := undoPredictor(buf, order, l, th, tw); err != nil {
				return err
			}
			rows := th
			if r0 := ty * th; r0+rows > l.rows {
				rows = l.rows - r0
			}
			cols := tw
			if c0 := tx * tw; c0+cols > l.cols {
				cols = l.cols - c0
			}
			fillTile(buf, order, l, arrays, ty*th, tx*tw, rows, cols, tw)
		}
	}
	return nil
}

func readChunk(r io.ReaderAt, offset, count uint64, l layout, expected int) ([]byte, error) {
	raw := make([]byte, count)
	if _, err := r.ReadAt(raw, int64(offset)); err != nil {
		return nil, err
	}
	switch l.compression {
	case compressionNone:
		if len(raw) < expected {
			return nil, fmt.Errorf("%w: short chunk %d < %d bytes", ErrUnsupportedLayout, len(raw), expected)
		}
		return raw, nil
	case compressionLZW:
		zr := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer zr.Close()
		return readFullChunk(zr, expected)
	default:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readFullChunk(zr, expected)
	}
}

func readFullChunk(r io.Reader, expected int) ([]byte, error) {
	buf := make([]byte, expected)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: truncated chunk: %v", ErrUnsupportedLayout, err)
	}
	return buf, nil
}

// undoPredictor reverses horizontal differencing (predictor 2) in place.
// Differences accumulate along each row, per sample channel, in the sample
// integer width.
func undoPredictor(buf []byte, order binary.ByteOrder, l layout, rows, cols int) error {
	if l.predictor != 2 {
		return nil
	}
	stride := cols * l.samples
	switch l.size {
	case 1:
		for r := 0; r < rows; r++ {
			row := buf[r*stride : (r+1)*stride]
			for i := l.samples; i < stride; i++ {
				row[i] += row[i-l.samples]
			}
		}
	case 2:
		for r := 0; r < rows; r++ {
			row := buf[r*stride*2 : (r+1)*stride*2]
			for i := l.samples; i < stride; i++ {
				order.PutUint16(row[2*i:], order.Uint16(row[2*i:])+order.Uint16(row[2*(i-l.samples):]))
			}
		}
	case 4:
		for r := 0; r < rows; r++ {
			row := buf[r*stride*4 : (r+1)*stride*4]
			for i := l.samples; i < stride; i++ {
				order.PutUint32(row[4*i:], order.Uint32(row[4*i:])+order.Uint32(row[4*(i-l.samples):]))
			}
		}
	default:
		return fmt.Errorf("%w: predictor 2 with %d-byte samples", ErrUnsupportedLayout, l.size)
	}
	return nil
}

// fillRows copies full-width chunky rows starting at row0 into the
// per-band arrays.
func fillRows(buf []byte, order binary.ByteOrder, l layout, arrays []*raster.Array, row0, rows, col0, cols int) {
	fillTile(buf, order, l, arrays, row0, col0, rows, cols, cols)
}

// fillTile copies a chunky tile of bufCols-wide rows into the per-band
// arrays at (row0, col0), clipped to rows x cols.
func fillTile(buf []byte, order binary.ByteOrder, l layout, arrays []*raster.Array, row0, col0, rows, cols, bufCols int) {
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			p := r*bufCols + c
			at := (row0+r)*l.cols + col0 + c
			for s := 0; s < l.samples; s++ {
				arrays[s].SetValueAt(at, sampleAt(buf, order, l.dtype, p*l.samples+s))
			}
		}
	}
}

func sampleAt(buf []byte, order binary.ByteOrder, dtype raster.DType, i int) float64 {
	switch dtype {
	case raster.DTByte:
		return float64(buf[i])
	case raster.DTInt16:
		return float64(int16(order.Uint16(buf[2*i:])))
	case raster.DTUInt16:
		return float64(order.Uint16(buf[2*i:]))
	case raster.DTInt32:
		return float64(int32(order.Uint32(buf[4*i:])))
	case raster.DTUInt32:
		return float64(order.Uint32(buf[4*i:]))
	case raster.DTFloat32:
		return float64(math.Float32frombits(order.Uint32(buf[4*i:])))
	default:
		return math.Float64frombits(order.Uint64(buf[8*i:]))
	}
}
