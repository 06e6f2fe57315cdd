package image

import (
	"fmt"
	"image"
)

// Compositor assembles the final frame from the background, the two noise
// layers and the rendered particle layer.
type Compositor struct {
	BackgroundNoiseWeight float64
	FineNoiseWeight       float64
}

// DefaultCompositor blends each noise layer in at 20%.
func DefaultCompositor() Compositor {
	return Compositor{BackgroundNoiseWeight: 0.2, FineNoiseWeight: 0.2}
}

// Compose runs, in order: blend the background noise into the background, draw the
// particles over it, blend the fine noise over everything. All inputs must share a size.
func (c Compositor) Compose(background, backgroundNoise, particles, fineNoise *image.NRGBA) (*image.NRGBA, error) {
	img, err := Blend(background, backgroundNoise, c.BackgroundNoiseWeight)
	if err != nil {
		return nil, fmt.Errorf("background noise: %w", err)
	}
	img, err = AlphaComposite(img, particles)
	if err != nil {
		return nil, fmt.Errorf("particles: %w", err)
	}
	img, err = Blend(img, fineNoise, c.FineNoiseWeight)
	if err != nil {
		return nil, fmt.Errorf("fine noise: %w", err)
	}
	return img, nil
}

// PostProcess are the adjustments applied to the rendered particle layer.
type PostProcess struct {
	Contrast   float64
	Brightness float64
	BlurRadius float64
}

// DefaultPostProcess returns contrast 1.5, brightness 2.2 and a 1.5 px blur.
func DefaultPostProcess() PostProcess {
	return PostProcess{Contrast: 1.5, Brightness: 2.2, BlurRadius: 1.5}
}

// PostProcessParticles runs contrast, then brightness, then the blur.
func PostProcessParticles(layer *image.NRGBA, p PostProcess) (*image.NRGBA, error) {
	out := Contrast(layer, p.Contrast)
	out = Brightness(out, p.Brightness)
	blurred, err := GaussianBlur(out, p.BlurRadius)
	if err != nil {
		return nil, fmt.Errorf("failed to blur particle layer: %w", err)
	}
	return blurred, nil
}
