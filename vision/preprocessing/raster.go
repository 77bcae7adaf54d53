package preprocessing

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Raster is the numeric array view of a resized image. Pixel values are stored
// in HWC order (row, column, channel) as unsigned 8-bit integers.
type Raster struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewRaster allocates a zeroed raster
func NewRaster(width, height, channels int) *Raster {
	return &Raster{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

// FromImage converts an image into a raster. Grayscale images keep a single
// channel; every other colour model is flattened to RGB and alpha is dropped.
func FromImage(img image.Image) *Raster {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	switch src := img.(type) {
	case *image.Gray:
		r := NewRaster(w, h, 1)
		for y := 0; y < h; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(r.Pix[y*w:(y+1)*w], src.Pix[off:off+w])
		}
		return r
	case *image.RGBA:
		r := NewRaster(w, h, 3)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				si := src.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				di := (y*w + x) * 3
				r.Pix[di] = src.Pix[si]
				r.Pix[di+1] = src.Pix[si+1]
				r.Pix[di+2] = src.Pix[si+2]
			}
		}
		return r
	}

	if isGrayModel(img.ColorModel()) {
		r := NewRaster(w, h, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
				r.Pix[y*w+x] = g.Y
			}
		}
		return r
	}

	r := NewRaster(w, h, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.RGBA)
			di := (y*w + x) * 3
			r.Pix[di] = c.R
			r.Pix[di+1] = c.G
			r.Pix[di+2] = c.B
		}
	}
	return r
}

func isGrayModel(m color.Model) bool {
	return m == color.GrayModel || m == color.Gray16Model
}

// Len returns the number of elements (height * width * channels)
func (r *Raster) Len() int {
	return len(r.Pix)
}

// Sum returns the sum of every pixel channel value
func (r *Raster) Sum() int64 {
	var total int64
	for _, v := range r.Pix {
		total += int64(v)
	}
	return total
}

// At returns the value at row y, column x, channel c
func (r *Raster) At(y, x, c int) uint8 {
	return r.Pix[(y*r.Width+x)*r.Channels+c]
}

// Clone returns a deep copy of the raster
func (r *Raster) Clone() *Raster {
	pix := make([]uint8, len(r.Pix))
	copy(pix, r.Pix)
	return &Raster{Width: r.Width, Height: r.Height, Channels: r.Channels, Pix: pix}
}

// Image rebuilds a fresh image from the raster
func (r *Raster) Image() image.Image {
	if r.Channels == 1 {
		img := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
		copy(img.Pix, r.Pix)
		return img
	}
	return r.RGBA()
}

// RGBA expands the raster into an opaque RGBA image
func (r *Raster) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i := 0; i < r.Width*r.Height; i++ {
		di := i * 4
		if r.Channels == 1 {
			v := r.Pix[i]
			img.Pix[di], img.Pix[di+1], img.Pix[di+2] = v, v, v
		} else {
			si := i * r.Channels
			img.Pix[di], img.Pix[di+1], img.Pix[di+2] = r.Pix[si], r.Pix[si+1], r.Pix[si+2]
		}
		img.Pix[di+3] = 0xff
	}
	return img
}

// Scale writes every element multiplied by factor into dst, which must hold
// exactly Len() values. Used to rescale 8-bit values into [0, 1].
func (r *Raster) Scale(dst []float64, factor float64) error {
	if len(dst) != len(r.Pix) {
		return errors.Errorf("destination holds %d values, raster has %d", len(dst), len(r.Pix))
	}
	for i, v := range r.Pix {
		dst[i] = float64(v)
	}
	floats.Scale(factor, dst)
	return nil
}
