// Package image provides image loading and saving, layer management, and compositing.
package image

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/effect"
	"golang.org/x/image/tiff"

	"synthpic/pkg/geometry"
)

// ErrSizeMismatch is returned when two images that must align differ in size.
var ErrSizeMismatch = errors.New("image sizes differ")

// Layer represents a single straight-alpha image layer.
type Layer struct {
	Path    string       // Original file path, if loaded from disk
	Image   *image.NRGBA // Pixel data
	Visible bool         // Layer visibility
	Opacity float64      // Layer opacity (0.0 - 1.0)
}

// NewLayer wraps an image, converting it to NRGBA when needed.
func NewLayer(img image.Image) *Layer {
	return &Layer{
		Image:   ToNRGBA(img),
		Visible: true,
		Opacity: 1.0,
	}
}

// Load loads an image from the specified path and returns a Layer.
func Load(path string) (*Layer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	layer := NewLayer(img)
	layer.Path = path
	return layer, nil
}

// Width returns the image width in pixels.
func (l *Layer) Width() int {
	if l.Image == nil {
		return 0
	}
	return l.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (l *Layer) Height() int {
	if l.Image == nil {
		return 0
	}
	return l.Image.Bounds().Dy()
}

// Bounds returns the image rectangle in pixel coordinates.
func (l *Layer) Bounds() geometry.Rect {
	return geometry.Rect{Width: float64(l.Width()), Height: float64(l.Height())}
}

// PixelAt returns the color at the specified pixel coordinates.
func (l *Layer) PixelAt(x, y int) color.NRGBA {
	if l.Image == nil {
		return color.NRGBA{}
	}
	if !(image.Point{X: x, Y: y}).In(l.Image.Bounds()) {
		return color.NRGBA{}
	}
	return l.Image.NRGBAAt(x, y)
}

// Gray converts the layer to 8-bit luminance.
func (l *Layer) Gray() *image.Gray {
	return Gray(l.Image)
}

// Save writes the layer to path. The format follows the extension.
func (l *Layer) Save(path string) error {
	return Save(path, l.Image)
}

// Gray converts an image to 8-bit luminance with ITU-R 601-2 weights.
func Gray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	rgba := effect.GrayscaleWithWeights(img, 0.299, 0.587, 0.114)
	b := rgba.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Pix[y*out.Stride+x] = rgba.Pix[y*rgba.Stride+x*4]
		}
	}
	return out
}

// ToNRGBA returns img as a zero-origin *image.NRGBA, copying when needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && packed(n) {
		return n
	}
	return Clone(img)
}

// packed reports whether Pix holds exactly the pixels of a zero-origin image.
func packed(n *image.NRGBA) bool {
	return n.Rect.Min == (image.Point{}) && n.Stride == 4*n.Rect.Dx()
}

// Clone returns a deep, zero-origin, tightly packed copy of img.
func Clone(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Save encodes img to path as PNG or TIFF depending on the extension,
// creating the parent directory.
func Save(path string, img image.Image) error {
	if !IsSupportedFormat(path) {
		return fmt.Errorf("unsupported image format %q", filepath.Ext(path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		err = tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// SupportedFormats returns the extensions Save can write.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png"}
}

// IsSupportedFormat checks if Save can write the given path.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
