package preprocessing

import (
	"image"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// AugmentConfig describes the random transformations applied to training
// images. RotationRange is in degrees; ZoomRange z draws independent zoom
// factors for each axis from [1-z, 1+z].
type AugmentConfig struct {
	HorizontalFlip bool
	RotationRange  float64
	ZoomRange      float64
}

// DefaultAugmentConfig mirrors the training defaults: mirroring on, rotation
// and zoom limits of 0.4
func DefaultAugmentConfig() AugmentConfig {
	return AugmentConfig{
		HorizontalFlip: true,
		RotationRange:  0.4,
		ZoomRange:      0.4,
	}
}

// Enabled reports whether any transformation is configured
func (c AugmentConfig) Enabled() bool {
	return c.HorizontalFlip || c.RotationRange != 0 || c.ZoomRange != 0
}

// Validate checks the ranges
func (c AugmentConfig) Validate() error {
	if c.RotationRange < 0 || c.RotationRange > 180 {
		return errors.Errorf("rotation range must be in [0, 180] degrees, got %g", c.RotationRange)
	}
	if c.ZoomRange < 0 || c.ZoomRange >= 1 {
		return errors.Errorf("zoom range must be in [0, 1), got %g", c.ZoomRange)
	}
	return nil
}

// Augmenter applies randomized transformations with its own seeded source.
// Two augmenters built with the same seed produce the same sequence.
type Augmenter struct {
	config AugmentConfig
	rng    *rand.Rand
}

// NewAugmenter creates an augmenter seeded with seed
func NewAugmenter(config AugmentConfig, seed uint64) *Augmenter {
	return &Augmenter{
		config: config,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Transform is one sampled set of augmentation parameters
type Transform struct {
	Flip    bool
	Degrees float64
	ZoomX   float64
	ZoomY   float64
}

// Identity reports whether the transform leaves the image unchanged
func (t Transform) Identity() bool {
	return !t.Flip && t.Degrees == 0 && t.ZoomX == 1 && t.ZoomY == 1
}

// Sample draws the next transform
func (a *Augmenter) Sample() Transform {
	t := Transform{ZoomX: 1, ZoomY: 1}
	if a.config.HorizontalFlip {
		t.Flip = a.rng.Float64() < 0.5
	}
	if r := a.config.RotationRange; r > 0 {
		t.Degrees = (a.rng.Float64()*2 - 1) * r
	}
	if z := a.config.ZoomRange; z > 0 {
		t.ZoomX = 1 - z + a.rng.Float64()*2*z
		t.ZoomY = 1 - z + a.rng.Float64()*2*z
	}
	return t
}

// Apply samples a transform and applies it to raster, returning a new
// 3-channel raster. Regions mapped from outside the source are filled black.
func (a *Augmenter) Apply(raster *Raster) *Raster {
	return ApplyTransform(raster, a.Sample())
}

// ApplyTransform warps raster around its centre. A zoom factor above 1 zooms
// out, matching the usual augmentation convention.
func ApplyTransform(raster *Raster, t Transform) *Raster {
	src := raster.RGBA()
	if t.Identity() {
		return FromImage(src)
	}

	w, h := float64(raster.Width), float64(raster.Height)
	cx, cy := w/2, h/2

	theta := t.Degrees * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)

	flip := 1.0
	if t.Flip {
		flip = -1
	}

	// source -> destination: translate to centre, mirror, rotate, scale, translate back
	s2d := compose(
		f64.Aff3{1, 0, cx, 0, 1, cy},
		f64.Aff3{1 / t.ZoomX, 0, 0, 0, 1 / t.ZoomY, 0},
		f64.Aff3{cos, -sin, 0, sin, cos, 0},
		f64.Aff3{flip, 0, 0, 0, 1, 0},
		f64.Aff3{1, 0, -cx, 0, 1, -cy},
	)

	dst := image.NewRGBA(image.Rect(0, 0, raster.Width, raster.Height))
	draw.BiLinear.Transform(dst, s2d, src, src.Bounds(), draw.Src, nil)
	return FromImage(dst)
}

// compose multiplies affine matrices; the rightmost is applied first
func compose(ms ...f64.Aff3) f64.Aff3 {
	out := f64.Aff3{1, 0, 0, 0, 1, 0}
	for _, m := range ms {
		out = mul(out, m)
	}
	return out
}

func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3],
		a[0]*b[1] + a[1]*b[4],
		a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3],
		a[3]*b[1] + a[4]*b[4],
		a[3]*b[2] + a[4]*b[5] + a[5],
	}
}
