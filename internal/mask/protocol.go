// Package mask renders one binary mask per particle while leaving the scene
// exactly as it found it.
package mask

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"path/filepath"
	"strings"

	"synthpic/internal/logging"
	"synthpic/internal/particle"
	"synthpic/internal/render"
	"synthpic/internal/scene"
)

// Strategy selects how a single particle is isolated for its mask render.
type Strategy int

const (
	// Material paints every object black and the current particle white, so
	// occluded parts of the particle stay out of its mask.
	Material Strategy = iota
	// Visibility hides every object except the current particle.
	Visibility
)

func (s Strategy) String() string {
	switch s {
	case Material:
		return "material"
	case Visibility:
		return "visibility"
	default:
		return "unknown"
	}
}

// ParseStrategy accepts "material" (also "occlusion") and "visibility" (also "object").
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "material", "occlusion":
		return Material, nil
	case "visibility", "object":
		return Visibility, nil
	}
	return Material, fmt.Errorf("unknown mask strategy %q", s)
}

// Mask materials.
var (
	BlackMaterial = scene.Material{Name: "black_mask_material", Color: color.NRGBA{A: 255}}
	WhiteMaterial = scene.Material{Name: "white_mask_material", Color: color.NRGBA{R: 255, G: 255, B: 255, A: 255}}
)

// FileName is the mask file name of the index-th particle of an image.
func FileName(imageID string, index int) string {
	return fmt.Sprintf("%s_mask%06d.png", imageID, index)
}

// Protocol renders masks with a renderer. TempDir holds the scene snapshot.
type Protocol struct {
	Renderer scene.Renderer
	Strategy Strategy
	TempDir  string
	Log      *slog.Logger
}

// RenderMasks writes one grayscale mask per particle, in order, to outputDir and
// returns the written paths. The scene is restored afterwards even on failure.
func (p *Protocol) RenderMasks(ctx context.Context, s *scene.Scene, particles []*particle.Particle, imageID, outputDir string) ([]string, error) {
	var paths []string
	err := scene.WithTemporaryState(s, p.TempDir, func() error {
		isolate(&s.Render, p.Strategy)
		renderable := s.Renderable()
		switch p.Strategy {
		case Visibility:
			for _, o := range renderable {
				o.HideRender = true
			}
		default:
			for _, o := range renderable {
				o.Material = BlackMaterial
			}
		}

		for i, pt := range particles {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(outputDir, FileName(imageID, i))
			obj := pt.Object()
			switch p.Strategy {
			case Visibility:
				obj.HideRender = false
			default:
				obj.Material = WhiteMaterial
			}
			if err := render.ToFile(ctx, p.Renderer, s, path); err != nil {
				return fmt.Errorf("mask %d of %s: %w", i, imageID, err)
			}
			switch p.Strategy {
			case Visibility:
				obj.HideRender = true
			default:
				obj.Material = BlackMaterial
			}
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return paths, err
	}
	logging.OrNop(p.Log).Info("rendered masks", "image", imageID, "count", len(paths), "strategy", p.Strategy.String())
	return paths, nil
}

// isolate switches the render settings to binary single-object output.
func isolate(rs *scene.RenderSettings, strategy Strategy) {
	rs.ColorMode = scene.ColorBW
	rs.Engine = scene.EngineFlat
	rs.Shading = scene.ShadingFlat
	rs.AntiAlias = false
	rs.FilmTransparent = false
	rs.Background = color.NRGBA{A: 255}
	rs.Compositing = false
	rs.ColorType = scene.ColorTypeMaterial
	if strategy == Visibility {
		rs.ColorType = scene.ColorTypeSingle
		rs.SingleColor = WhiteMaterial.Color
	}
}
