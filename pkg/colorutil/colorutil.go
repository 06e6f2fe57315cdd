// Package colorutil provides shared color utilities for the image generator.
package colorutil

import (
	"image/color"
	"math"

	"github.com/gogpu/gg"
)

// Colors used by the mask protocol and the default materials.
var (
	Black = color.NRGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	Gray  = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
)

// ParseHex converts "#rrggbb", "#rgb" or "#rrggbbaa" into a straight-alpha color.
// Malformed input yields opaque black.
func ParseHex(hex string) color.NRGBA {
	return ToNRGBA(gg.Hex(hex).Color())
}

// ToNRGBA converts any color into straight-alpha 8-bit form.
func ToNRGBA(c color.Color) color.NRGBA {
	return color.NRGBAModel.Convert(c).(color.NRGBA)
}

// Hex formats a color as "#rrggbb" (or "#rrggbbaa" when not opaque).
func Hex(c color.NRGBA) string {
	const digits = "0123456789abcdef"
	buf := []byte{'#'}
	comps := []uint8{c.R, c.G, c.B}
	if c.A != 255 {
		comps = append(comps, c.A)
	}
	for _, v := range comps {
		buf = append(buf, digits[v>>4], digits[v&0x0f])
	}
	return string(buf)
}

// Luminance returns the ITU-R 601-2 luma of an 8-bit RGB triple, in 0-255.
// Matches the weights used for "L" mode conversion.
func Luminance(r, g, b uint8) float64 {
	return float64(r)*299/1000 + float64(g)*587/1000 + float64(b)*114/1000
}

// Shade scales the RGB channels of c by factor, clamping to 0-255. Alpha is kept.
func Shade(c color.NRGBA, factor float64) color.NRGBA {
	return color.NRGBA{
		R: ClampUint8(float64(c.R) * factor),
		G: ClampUint8(float64(c.G) * factor),
		B: ClampUint8(float64(c.B) * factor),
		A: c.A,
	}
}

// ClampUint8 rounds v and clamps it into 0-255.
func ClampUint8(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
