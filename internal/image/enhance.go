package image

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// Blend interpolates every channel, alpha included: out = a + w*(b-a).
// Results are truncated towards zero and clipped to 0-255.
func Blend(a, b *image.NRGBA, w float64) (*image.NRGBA, error) {
	if a.Rect.Size() != b.Rect.Size() {
		return nil, fmt.Errorf("blend %v with %v: %w", a.Rect.Size(), b.Rect.Size(), ErrSizeMismatch)
	}
	a, b = ToNRGBA(a), ToNRGBA(b)
	out := image.NewNRGBA(image.Rect(0, 0, a.Rect.Dx(), a.Rect.Dy()))
	for i := range out.Pix {
		av := float64(a.Pix[i])
		out.Pix[i] = clip8(av + w*(float64(b.Pix[i])-av))
	}
	return out, nil
}

// AlphaComposite draws src over dst (straight alpha Porter-Duff "over").
func AlphaComposite(dst, src *image.NRGBA) (*image.NRGBA, error) {
	if dst.Rect.Size() != src.Rect.Size() {
		return nil, fmt.Errorf("alpha composite %v over %v: %w", src.Rect.Size(), dst.Rect.Size(), ErrSizeMismatch)
	}
	dst, src = ToNRGBA(dst), ToNRGBA(src)
	out := image.NewNRGBA(image.Rect(0, 0, dst.Rect.Dx(), dst.Rect.Dy()))
	for i := 0; i < len(out.Pix); i += 4 {
		sa := float64(src.Pix[i+3]) / 255
		if sa == 0 {
			copy(out.Pix[i:i+4], dst.Pix[i:i+4])
			continue
		}
		da := float64(dst.Pix[i+3]) / 255
		oa := sa + da*(1-sa)
		for c := 0; c < 3; c++ {
			v := (float64(src.Pix[i+c])*sa + float64(dst.Pix[i+c])*da*(1-sa)) / oa
			out.Pix[i+c] = clip8(math.Round(v))
		}
		out.Pix[i+3] = clip8(math.Round(oa * 255))
	}
	return out, nil
}

// Brightness blends the colour channels with black: factor 0 gives black,
// 1 the original, above 1 brightens. Alpha is kept.
func Brightness(img *image.NRGBA, factor float64) *image.NRGBA {
	return enhance(img, factor, func(int) float64 { return 0 })
}

// Contrast blends the colour channels with a flat gray at the rounded mean
// luminance of the image. Alpha is kept.
func Contrast(img *image.NRGBA, factor float64) *image.NRGBA {
	mean := math.Floor(MeanLuminance(img) + 0.5)
	return enhance(img, factor, func(int) float64 { return mean })
}

func enhance(img *image.NRGBA, factor float64, degenerate func(c int) float64) *image.NRGBA {
	img = ToNRGBA(img)
	out := image.NewNRGBA(image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy()))
	for i := 0; i < len(out.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			d := degenerate(c)
			out.Pix[i+c] = clip8(d + factor*(float64(img.Pix[i+c])-d))
		}
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out
}

// MeanLuminance is the mean "L" value of the image (alpha ignored).
func MeanLuminance(img *image.NRGBA) float64 {
	n := img.Rect.Dx() * img.Rect.Dy()
	if n == 0 {
		return 0
	}
	img = ToNRGBA(img)
	lum := make([]float64, 0, n)
	for i := 0; i < len(img.Pix); i += 4 {
		lum = append(lum, float64(luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])))
	}
	return stat.Mean(lum, nil)
}

// luma is the 16-bit fixed point ITU-R 601-2 conversion used for "L" images.
func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}

// GaussianBlur blurs every channel, alpha included, with sigma = radius.
func GaussianBlur(img *image.NRGBA, radius float64) (*image.NRGBA, error) {
	if radius <= 0 {
		return Clone(img), nil
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	src := ToNRGBA(img)

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC4, src.Pix)
	if err != nil {
		return nil, fmt.Errorf("failed to create mat: %w", err)
	}
	defer mat.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(mat, &blurred, image.Point{}, radius, radius, gocv.BorderDefault)

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	copy(out.Pix, blurred.ToBytes())
	return out, nil
}

func clip8(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
