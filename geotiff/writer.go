package geotiff

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/geostack/geostack/raster"
)

// TIFF field types used by the writer.
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// Write encodes a raster collection as a striped, uncompressed, little
// endian GeoTIFF with chunky band interleaving. All bands must share grid,
// CRS and data type. Masked pixels are written as the band's nodata value,
// which also lands in the GDAL_NODATA tag, and band names, scale and offset
// go into the GDALMetadata tag so a read round-trips them.
func Write(ctx context.Context, path string, rc *raster.RasterCollection) error {
	bands, err := writableBands(rc)
	if err != nil {
		return fmt.Errorf("geotiff: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("geotiff: %v", err)
	}
	w := bufio.NewWriter(f)
	if err := encode(ctx, w, bands); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("geotiff: %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("geotiff: %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("geotiff: %s: %v", path, err)
	}
	return nil
}

// WriteBand encodes a single band as a GeoTIFF file.
func WriteBand(ctx context.Context, path string, b *raster.Band) error {
	rc, err := raster.NewRasterCollection(b)
	if err != nil {
		return fmt.Errorf("geotiff: %w", err)
	}
	return Write(ctx, path, rc)
}

func writableBands(rc *raster.RasterCollection) ([]*raster.Band, error) {
	if rc == nil || rc.Len() == 0 {
		return nil, fmt.Errorf("nothing to write")
	}
	stacked, err := rc.IsBandstack()
	if err != nil {
		return nil, err
	}
	if stacked == nil || !*stacked {
		return nil, fmt.Errorf("%w: bands not aligned on a common grid", raster.ErrUnalignedBands)
	}
	bands := make([]*raster.Band, 0, rc.Len())
	for _, name := range rc.BandNames() {
		b, err := rc.Get(name)
		if err != nil {
			return nil, err
		}
		if len(bands) > 0 && b.Values.DType() != bands[0].Values.DType() {
			return nil, fmt.Errorf("mixed data types %s and %s", bands[0].Values.DType(), b.Values.DType())
		}
		bands = append(bands, b)
	}
	return bands, nil
}

func encode(ctx context.Context, w *bufio.Writer, bands []*raster.Band) error {
	first := bands[0]
	rows, cols, samples := first.Rows(), first.Cols(), len(bands)
	dtype := first.Values.DType()
	size := dtype.Size()

	rowBytes := cols * samples * size
	rowsPerStrip := 8192 / rowBytes
	if rowsPerStrip < 1 {
		rowsPerStrip = 1
	}
	if rowsPerStrip > rows {
		rowsPerStrip = rows
	}
	strips := (rows + rowsPerStrip - 1) / rowsPerStrip

	byteCounts := make([]uint32, strips)
	for s := range byteCounts {
		r := rowsPerStrip
		if r0 := s * rowsPerStrip; r0+r > rows {
			r = rows - r0
		}
		byteCounts[s] = uint32(r * rowBytes)
	}

	entries := buildEntries(bands, rows, cols, samples, dtype, rowsPerStrip, byteCounts)
	dataStart, err := layoutEntries(entries)
	if err != nil {
		return err
	}
	total := uint64(dataStart)
	for _, c := range byteCounts {
		total += uint64(c)
	}
	if total >= 1<<32 {
		return fmt.Errorf("%w: %d bytes exceeds classic TIFF", ErrUnsupportedLayout, total)
	}
	fillStripOffsets(entries, dataStart, byteCounts)

	if err := writeHeaderAndIFD(w, entries); err != nil {
		return err
	}

	strip := make([]byte, rowsPerStrip*rowBytes)
	for s := 0; s < strips; s++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r0 := s * rowsPerStrip
		nrows := rowsPerStrip
		if r0+nrows > rows {
			nrows = rows - r0
		}
		buf := strip[:nrows*rowBytes]
		for r := 0; r < nrows; r++ {
			for c := 0; c < cols; c++ {
				at := (r0+r)*cols + c
				for bi, b := range bands {
					v := b.Values.ValueAt(at)
					if b.Mask != nil && b.Mask[at] {
						v = b.Nodata
					}
					putSample(buf, dtype, (r*cols+c)*samples+bi, v)
				}
			}
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// tagEntry is one IFD entry plus its payload. Payloads over four bytes are
// placed in the overflow area between the IFD and the pixel data.
type tagEntry struct {
	tag    uint16
	typ    uint16
	count  uint32
	data   []byte
	offset uint32
}

func buildEntries(bands []*raster.Band, rows, cols, samples int, dtype raster.DType, rowsPerStrip int, byteCounts []uint32) []*tagEntry {
	first := bands[0]
	gi := first.GeoInfo

	bits := make([]uint16, samples)
	formats := make([]uint16, samples)
	for i := range bits {
		bits[i] = uint16(8 * dtype.Size())
		formats[i] = sampleFormatOf(dtype)
	}

	entries := []*tagEntry{
		shortOrLongEntry(tagImageWidth, uint32(cols)),
		shortOrLongEntry(tagImageLength, uint32(rows)),
		{tag: tagBitsPerSample, typ: typeShort, count: uint32(samples), data: shortsLE(bits)},
		shortEntry(tagCompression, compressionNone),
		shortEntry(tagPhotometric, 1),
		{tag: tagStripOffsets, typ: typeLong, count: uint32(len(byteCounts)), data: make([]byte, 4*len(byteCounts))},
		shortEntry(tagSamplesPerPixel, uint16(samples)),
		shortEntry(tagRowsPerStrip, uint16(rowsPerStrip)),
		{tag: tagStripByteCounts, typ: typeLong, count: uint32(len(byteCounts)), data: longsLE(byteCounts)},
		shortEntry(tagPlanarConfig, 1),
		{tag: tagSampleFormat, typ: typeShort, count: uint32(samples), data: shortsLE(formats)},
		{tag: tagModelPixelScale, typ: typeDouble, count: 3, data: doublesLE([]float64{gi.PixResX, -gi.PixResY, 0})},
		{tag: tagModelTiepoint, typ: typeDouble, count: 6, data: doublesLE([]float64{0, 0, 0, gi.ULX, gi.ULY, 0})},
		geoKeyEntry(gi.EPSG, first.AreaOrPoint),
	}
	if md := gdalMetadataXML(bands); md != "" {
		entries = append(entries, asciiEntry(tagGDALMetadata, md))
	}
	entries = append(entries, asciiEntry(tagGDALNoData, nodataString(first.Nodata)))
	return entries
}

func sampleFormatOf(dtype raster.DType) uint16 {
	switch {
	case dtype.IsFloat():
		return sampleFormatFloat
	case dtype.IsSigned():
		return sampleFormatSigned
	default:
		return sampleFormatUnsigned
	}
}

func shortEntry(tag, v uint16) *tagEntry {
	return &tagEntry{tag: tag, typ: typeShort, count: 1, data: shortsLE([]uint16{v})}
}

func shortOrLongEntry(tag uint16, v uint32) *tagEntry {
	if v < 1<<16 {
		return shortEntry(tag, uint16(v))
	}
	return &tagEntry{tag: tag, typ: typeLong, count: 1, data: longsLE([]uint32{v})}
}

func asciiEntry(tag uint16, s string) *tagEntry {
	data := append([]byte(s), 0)
	return &tagEntry{tag: tag, typ: typeASCII, count: uint32(len(data)), data: data}
}

// geoKeyEntry builds the GeoKeyDirectory with the model type, the raster
// type and the CRS code key that matches the kind of CRS.
func geoKeyEntry(epsg int, areaOrPoint string) *tagEntry {
	modelType := uint16(modelTypeProjected)
	crsKey := uint16(geoKeyProjectedType)
	if isGeographicEPSG(epsg) {
		modelType = modelTypeGeographic
		crsKey = geoKeyGeographicType
	}
	rasterType := uint16(rasterTypeArea)
	if areaOrPoint == raster.PixelIsPoint {
		rasterType = rasterTypePoint
	}
	dir := []uint16{
		1, 1, 0, 3,
		geoKeyModelType, 0, 1, modelType,
		geoKeyRasterType, 0, 1, rasterType,
		crsKey, 0, 1, uint16(epsg),
	}
	return &tagEntry{tag: tagGeoKeyDirectory, typ: typeShort, count: uint32(len(dir)), data: shortsLE(dir)}
}

// gdalMetadataXML renders the per-band DESCRIPTION, SCALE and OFFSET items
// the way GDAL stores them.
func gdalMetadataXML(bands []*raster.Band) string {
	var sb strings.Builder
	sb.WriteString("<GDALMetadata>\n")
	for i, b := range bands {
		fmt.Fprintf(&sb, "  <Item name=\"DESCRIPTION\" sample=\"%d\" role=\"description\">%s</Item>\n", i, xmlEscape(b.Name))
		if b.Scale != 1 || b.Offset != 0 {
			fmt.Fprintf(&sb, "  <Item name=\"SCALE\" sample=\"%d\" role=\"scale\">%s</Item>\n", i, formatFloat(b.Scale))
			fmt.Fprintf(&sb, "  <Item name=\"OFFSET\" sample=\"%d\" role=\"offset\">%s</Item>\n", i, formatFloat(b.Offset))
		}
	}
	sb.WriteString("</GDALMetadata>\n")
	return sb.String()
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func nodataString(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return formatFloat(v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// layoutEntries assigns overflow offsets to every entry whose payload does
// not fit inline and returns the file offset where pixel data starts.
func layoutEntries(entries []*tagEntry) (uint32, error) {
	for i := 1; i < len(entries); i++ {
		if entries[i].tag <= entries[i-1].tag {
			return 0, fmt.Errorf("tags out of order at %d", entries[i].tag)
		}
	}
	overflowStart := uint32(8 + 2 + 12*len(entries) + 4)
	cur := overflowStart
	for _, e := range entries {
		if len(e.data) <= 4 {
			continue
		}
		e.offset = cur
		cur += uint32(len(e.data))
		if cur%2 == 1 {
			cur++
		}
	}
	return cur, nil
}

func fillStripOffsets(entries []*tagEntry, dataStart uint32, byteCounts []uint32) {
	for _, e := range entries {
		if e.tag != tagStripOffsets {
			continue
		}
		off := dataStart
		for i, c := range byteCounts {
			binary.LittleEndian.PutUint32(e.data[4*i:], off)
			off += c
		}
	}
}

func writeHeaderAndIFD(w *bufio.Writer, entries []*tagEntry) error {
	head := make([]byte, 8)
	copy(head, "II")
	binary.LittleEndian.PutUint16(head[2:], 42)
	binary.LittleEndian.PutUint32(head[4:], 8)
	if _, err := w.Write(head); err != nil {
		return err
	}

	var b [12]byte
	binary.LittleEndian.PutUint16(b[:], uint16(len(entries)))
	if _, err := w.Write(b[:2]); err != nil {
		return err
	}
	for _, e := range entries {
		binary.LittleEndian.PutUint16(b[0:], e.tag)
		binary.LittleEndian.PutUint16(b[2:], e.typ)
		binary.LittleEndian.PutUint32(b[4:], e.count)
		binary.LittleEndian.PutUint32(b[8:], 0)
		if len(e.data) <= 4 {
			copy(b[8:], e.data)
		} else {
			binary.LittleEndian.PutUint32(b[8:], e.offset)
		}
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	}
	binary.LittleEndian.PutUint32(b[:], 0)
	if _, err := w.Write(b[:4]); err != nil {
		return err
	}

	cur := uint32(8 + 2 + 12*len(entries) + 4)
	for _, e := range entries {
		if len(e.data) <= 4 {
			continue
		}
		if _, err := w.Write(e.data); err != nil {
			return err
		}
		cur += uint32(len(e.data))
		if cur%2 == 1 {
			if err := w.WriteByte(0); err != nil {
				return err
			}
			cur++
		}
	}
	return nil
}

func shortsLE(vals []uint16) []byte {
	out := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func longsLE(vals []uint32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}

func doublesLE(vals []float64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
	}
	return out
}

func putSample(buf []byte, dtype raster.DType, i int, v float64) {
	switch dtype {
	case raster.DTByte:
		buf[i] = uint8(v)
	case raster.DTInt16:
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(int16(v)))
	case raster.DTUInt16:
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	case raster.DTInt32:
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(int32(v)))
	case raster.DTUInt32:
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	case raster.DTFloat32:
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	default:
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
}
