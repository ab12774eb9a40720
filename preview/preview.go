// Package preview renders quicklook images from raster bands: an 8-bit
// percentile stretch over three reflectance bands with invalid pixels kept
// transparent, optional downscaling, and PNG/WebP encoding.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sort"

	"github.com/gen2brain/webp"
	xdraw "golang.org/x/image/draw"

	"github.com/geostack/geostack/raster"
)

// Options controls quicklook rendering. Zero values mean a 2-98 percentile
// stretch and no resizing.
type Options struct {
	MaxEdge         int
	LowerPercentile float64
	UpperPercentile float64
}

func (o Options) bounds() (float64, float64) {
	lo, hi := o.LowerPercentile, o.UpperPercentile
	if lo == 0 && hi == 0 {
		return 2, 98
	}
	return lo, hi
}

// RGB renders three bands of one scene as a true-color image. Each band is
// stretched to 8 bit between its percentile bounds over valid pixels only;
// a pixel invalid in any band comes out fully transparent.
func RGB(r, g, b *raster.Band, opts Options) (image.Image, error) {
	for _, o := range []*raster.Band{g, b} {
		if !o.Values.SameShape(r.Values) || o.GeoInfo != r.GeoInfo {
			return nil, fmt.Errorf("preview: %w", raster.ErrUnalignedBands)
		}
	}
	lo, hi := opts.bounds()
	channels := make([][]uint8, 3)
	for i, band := range []*raster.Band{r, g, b} {
		channels[i] = stretch(band, lo, hi)
	}

	rows, cols := r.Rows(), r.Cols()
	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			i := row*cols + col
			if !r.ValidAt(i) || !g.ValidAt(i) || !b.ValidAt(i) {
				continue
			}
			img.SetNRGBA(col, row, color.NRGBA{channels[0][i], channels[1][i], channels[2][i], 255})
		}
	}
	return Resize(img, opts.MaxEdge), nil
}

// stretch maps a band's valid pixels linearly to 0..255 between the lo and
// hi percentiles of the valid-value distribution.
func stretch(b *raster.Band, lo, hi float64) []uint8 {
	n := b.Values.Len()
	valid := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if b.ValidAt(i) {
			valid = append(valid, b.Values.ValueAt(i))
		}
	}
	if len(valid) == 0 {
		return make([]uint8, n)
	}
	sort.Float64s(valid)
	vlo := percentile(valid, lo)
	vhi := percentile(valid, hi)

	out := make([]uint8, n)
	for i := 0; i < n; i++ {
		if !b.ValidAt(i) {
			continue
		}
		v := b.Values.ValueAt(i)
		if vhi <= vlo {
			out[i] = 128
			continue
		}
		s := math.Round((v - vlo) / (vhi - vlo) * 255)
		if s < 0 {
			s = 0
		}
		if s > 255 {
			s = 255
		}
		out[i] = uint8(s)
	}
	return out
}

func percentile(sorted []float64, p float64) float64 {
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Round(p / 100 * float64(len(sorted)-1)))
	return sorted[idx]
}

// Resize scales an image down so that its longer edge is maxEdge pixels.
// Images already small enough, and maxEdge <= 0, pass through unchanged.
func Resize(img image.Image, maxEdge int) image.Image {
	if maxEdge <= 0 {
		return img
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxEdge {
		return img
	}
	scale := float64(maxEdge) / float64(longest)
	dw := int(math.Round(float64(w) * scale))
	dh := int(math.Round(float64(h) * scale))
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)
	return dst
}

// EncodePNG writes the image as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("preview: %v", err)
	}
	return nil
}

// EncodeWebP writes the image as lossy WebP. quality <= 0 selects 85.
func EncodeWebP(w io.Writer, img image.Image, quality int) error {
	if quality <= 0 {
		quality = 85
	}
	if err := webp.Encode(w, img, webp.Options{Quality: quality}); err != nil {
		return fmt.Errorf("preview: %v", err)
	}
	return nil
}
