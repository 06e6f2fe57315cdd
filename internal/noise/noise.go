// Package noise generates the procedural noise layers used when compositing
// training images, plus the smooth value noise used for mesh deformation.
package noise

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"gocv.io/x/gocv"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	synimage "synthpic/internal/image"
)

// Distribution selects how the low resolution field is drawn.
type Distribution int

const (
	Gaussian Distribution = iota
	Uniform
)

func (d Distribution) String() string {
	switch d {
	case Gaussian:
		return "gaussian"
	case Uniform:
		return "uniform"
	default:
		return "unknown"
	}
}

// ParseDistribution accepts "gaussian"/"normal" and "uniform".
func ParseDistribution(s string) (Distribution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gaussian", "normal":
		return Gaussian, nil
	case "uniform":
		return Uniform, nil
	}
	return Gaussian, fmt.Errorf("unknown noise distribution %q", s)
}

// ErrInvalidOptions is returned for non-positive sizes or scales.
var ErrInvalidOptions = errors.New("invalid noise options")

// Options describes one noise layer.
type Options struct {
	Width, Height int
	Scale         float64 // size of one noise cell in output pixels
	Seed          *uint64 // nil draws from the ambient source
	Distribution  Distribution
	Strength      float64 // standard deviation of the gaussian field
	Contrast      float64
	Brightness    float64
}

// DefaultOptions returns a full resolution gaussian layer with neutral enhancement.
func DefaultOptions(width, height int) Options {
	return Options{
		Width:      width,
		Height:     height,
		Scale:      1,
		Strength:   1,
		Contrast:   1,
		Brightness: 1,
	}
}

// WithSeed returns a copy of the options with a fixed seed.
func (o Options) WithSeed(seed uint64) Options {
	o.Seed = &seed
	return o
}

// Generate draws the field, upsamples it bicubically to Width x Height and
// returns it as an opaque RGBA image after brightness then contrast.
func Generate(opts Options, ambient *rand.Rand) (*image.NRGBA, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("size %dx%d: %w", opts.Width, opts.Height, ErrInvalidOptions)
	}
	if opts.Scale <= 0 {
		return nil, fmt.Errorf("scale %g: %w", opts.Scale, ErrInvalidOptions)
	}

	src := ambient
	if opts.Seed != nil {
		src = rand.New(rand.NewSource(*opts.Seed))
	}
	if src == nil {
		return nil, fmt.Errorf("no seed and no ambient source: %w", ErrInvalidOptions)
	}

	bw := int(math.Ceil(float64(opts.Width) / opts.Scale))
	bh := int(math.Ceil(float64(opts.Height) / opts.Scale))

	var draw func() float64
	switch opts.Distribution {
	case Uniform:
		draw = distuv.Uniform{Min: 0, Max: 1, Src: src}.Rand
	default:
		draw = distuv.Normal{Mu: 0.5, Sigma: opts.Strength, Src: src}.Rand
	}

	field := gocv.NewMatWithSize(bh, bw, gocv.MatTypeCV32F)
	defer field.Close()
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			field.SetFloatAt(y, x, float32(draw()*255))
		}
	}

	full := gocv.NewMat()
	defer full.Close()
	if bw == opts.Width && bh == opts.Height {
		field.CopyTo(&full)
	} else {
		gocv.Resize(field, &full, image.Point{X: opts.Width, Y: opts.Height}, 0, 0, gocv.InterpolationCubic)
	}

	img := image.NewNRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	for y := 0; y < opts.Height; y++ {
		for x := 0; x < opts.Width; x++ {
			v := clip(full.GetFloatAt(y, x))
			i := y*img.Stride + x*4
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
		}
	}

	img = synimage.Brightness(img, opts.Brightness)
	img = synimage.Contrast(img, opts.Contrast)
	return img, nil
}

func clip(v float32) uint8 {
	if v <= 0 || v != v {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
