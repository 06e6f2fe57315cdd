package image

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
)

// BlendMode specifies how layers are composited.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendOverlay
	BlendDifference
)

func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "Normal"
	case BlendMultiply:
		return "Multiply"
	case BlendScreen:
		return "Screen"
	case BlendOverlay:
		return "Overlay"
	case BlendDifference:
		return "Difference"
	default:
		return "Unknown"
	}
}

// ParseBlendMode is the inverse of String (case-insensitive).
func ParseBlendMode(s string) (BlendMode, error) {
	for m := BlendNormal; m <= BlendDifference; m++ {
		if strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}
	return BlendNormal, fmt.Errorf("unknown blend mode %q", s)
}

// Composite combines multiple layers into a single image.
type Composite struct {
	Width     int
	Height    int
	Layers    []*CompositeLayer
	BackColor color.NRGBA
}

// CompositeLayer wraps a Layer with compositing settings.
type CompositeLayer struct {
	Layer     *Layer
	BlendMode BlendMode
	OffsetX   int
	OffsetY   int
}

// NewComposite creates a new Composite with the specified dimensions and an opaque black background.
func NewComposite(width, height int) *Composite {
	return &Composite{
		Width:     width,
		Height:    height,
		BackColor: color.NRGBA{A: 255},
	}
}

// AddLayer adds a layer to the composite.
func (c *Composite) AddLayer(layer *Layer, mode BlendMode, offsetX, offsetY int) {
	c.Layers = append(c.Layers, &CompositeLayer{
		Layer:     layer,
		BlendMode: mode,
		OffsetX:   offsetX,
		OffsetY:   offsetY,
	})
}

// Render produces the final composited image.
func (c *Composite) Render() *image.NRGBA {
	result := image.NewNRGBA(image.Rect(0, 0, c.Width, c.Height))

	// Fill background
	for i := 0; i < len(result.Pix); i += 4 {
		result.Pix[i+0] = c.BackColor.R
		result.Pix[i+1] = c.BackColor.G
		result.Pix[i+2] = c.BackColor.B
		result.Pix[i+3] = c.BackColor.A
	}

	// Composite each layer
	for _, cl := range c.Layers {
		if cl.Layer == nil || cl.Layer.Image == nil || !cl.Layer.Visible {
			continue
		}
		c.compositeLayer(result, cl)
	}

	return result
}

// compositeLayer blends a single layer onto the result.
func (c *Composite) compositeLayer(dst *image.NRGBA, cl *CompositeLayer) {
	src := cl.Layer.Image
	srcBounds := src.Bounds()
	opacity := cl.Layer.Opacity

	for y := srcBounds.Min.Y; y < srcBounds.Max.Y; y++ {
		dstY := y - srcBounds.Min.Y + cl.OffsetY
		if dstY < 0 || dstY >= c.Height {
			continue
		}

		for x := srcBounds.Min.X; x < srcBounds.Max.X; x++ {
			dstX := x - srcBounds.Min.X + cl.OffsetX
			if dstX < 0 || dstX >= c.Width {
				continue
			}

			dst.SetNRGBA(dstX, dstY, blend(dst.NRGBAAt(dstX, dstY), src.NRGBAAt(x, y), cl.BlendMode, opacity))
		}
	}
}

// blend performs the blend operation between two colors.
func blend(dst, src color.NRGBA, mode BlendMode, opacity float64) color.NRGBA {
	// Convert to 0-1 range
	sf := [4]float64{float64(src.R) / 255, float64(src.G) / 255, float64(src.B) / 255, float64(src.A) / 255}
	df := [4]float64{float64(dst.R) / 255, float64(dst.G) / 255, float64(dst.B) / 255, float64(dst.A) / 255}

	var rf [3]float64
	for i := 0; i < 3; i++ {
		switch mode {
		case BlendMultiply:
			rf[i] = sf[i] * df[i]
		case BlendScreen:
			rf[i] = 1 - (1-sf[i])*(1-df[i])
		case BlendOverlay:
			if df[i] < 0.5 {
				rf[i] = 2 * sf[i] * df[i]
			} else {
				rf[i] = 1 - 2*(1-sf[i])*(1-df[i])
			}
		case BlendDifference:
			rf[i] = math.Abs(sf[i] - df[i])
		default:
			rf[i] = sf[i]
		}
	}

	// Apply opacity and alpha blending
	alpha := sf[3] * opacity
	return color.NRGBA{
		R: to8(rf[0]*alpha + df[0]*(1-alpha)),
		G: to8(rf[1]*alpha + df[1]*(1-alpha)),
		B: to8(rf[2]*alpha + df[2]*(1-alpha)),
		A: to8(alpha + df[3]*(1-alpha)),
	}
}

// Colorize turns a grayscale mask into a layer of colour c whose alpha follows the mask.
func Colorize(mask *image.Gray, c color.NRGBA) *Layer {
	b := mask.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := mask.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			a := uint8(uint16(v) * uint16(c.A) / 255)
			out.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: a})
		}
	}
	return &Layer{Image: out, Visible: true, Opacity: 1}
}

// to8 maps a 0-1 value onto 0-255 with rounding and clamping.
func to8(x float64) uint8 {
	return uint8(clamp(x, 0, 1)*255 + 0.5)
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
