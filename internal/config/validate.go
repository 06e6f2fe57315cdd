package config

import (
	"fmt"
	"strings"

	"synthpic/internal/mask"
	"synthpic/internal/noise"
	"synthpic/internal/physics"
	"synthpic/internal/render"
	"synthpic/internal/scene"
	"synthpic/pkg/colorutil"
)

// Validate checks the configuration before any scene work starts.
func (c *Config) Validate() error {
	if c.Images < 0 {
		return fmt.Errorf("images must not be negative: %w", ErrInvalid)
	}
	if c.Resolution.Width <= 0 || c.Resolution.Height <= 0 {
		return fmt.Errorf("resolution %dx%d: %w", c.Resolution.Width, c.Resolution.Height, ErrInvalid)
	}
	if c.Depth < 0 {
		return fmt.Errorf("depth must not be negative: %w", ErrInvalid)
	}
	if c.IDPrefix == "" {
		return fmt.Errorf("id_prefix is empty: %w", ErrInvalid)
	}
	var rs scene.RenderSettings
	if err := c.Render.Apply(&rs, c.Resolution); err != nil {
		return err
	}

	seen := map[string]bool{}
	for i, f := range c.Fractions {
		if err := f.validate(seen); err != nil {
			return fmt.Errorf("fraction %d (%s): %w", i, f.Key(), err)
		}
		seen[f.Key()] = true
	}

	if c.Relaxation.Enabled {
		if _, err := c.RelaxOptions(); err != nil {
			return err
		}
	}
	if _, err := c.MaskStrategy(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	if c.Compositing.Enabled {
		for name, l := range map[string]NoiseLayer{
			"background":       c.Compositing.Background,
			"background_noise": c.Compositing.BackgroundNoise,
			"fine_noise":       c.Compositing.FineNoise,
		} {
			if _, err := l.Options(1, 1); err != nil {
				return fmt.Errorf("compositing %s: %w", name, err)
			}
		}
	}
	return nil
}

func (f Fraction) validate(earlier map[string]bool) error {
	if len(f.Classes) == 0 && (f.Class == "" || f.Primitive == "") {
		return fmt.Errorf("needs class and primitive, or classes: %w", ErrInvalid)
	}
	for _, m := range f.Classes {
		if m.Class == "" || m.Primitive == "" {
			return fmt.Errorf("class entry needs class and primitive: %w", ErrInvalid)
		}
		if m.Weight < 0 {
			return fmt.Errorf("class %s has negative weight: %w", m.Class, ErrInvalid)
		}
	}
	if f.Count.N < 0 || (f.Count.Range != nil && f.Count.Range[0] < 0) {
		return fmt.Errorf("negative count: %w", ErrInvalid)
	}
	if f.Size != nil && f.Hair != nil {
		return fmt.Errorf("size and hair are exclusive: %w", ErrInvalid)
	}
	if f.Size != nil {
		if _, err := f.Size.Distribution(); err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalid)
		}
	}
	if f.Size == nil && f.Hair == nil {
		return fmt.Errorf("needs size or hair settings: %w", ErrInvalid)
	}
	switch strings.ToLower(f.Placement.Mode) {
	case "", "random", "none":
	case "hosts":
		if !earlier[f.Placement.Hosts] {
			return fmt.Errorf("hosts %q must name an earlier fraction: %w", f.Placement.Hosts, ErrInvalid)
		}
	default:
		return fmt.Errorf("unknown placement %q: %w", f.Placement.Mode, ErrInvalid)
	}
	return nil
}

// Apply copies the render configuration into scene render settings.
func (r Render) Apply(rs *scene.RenderSettings, res Resolution) error {
	if rs.Samples == nil {
		rs.Samples = map[scene.Engine]int{}
	}
	switch strings.ToLower(r.Engine) {
	case "", "fast":
		rs.Engine = scene.EngineFast
	case "quality":
		rs.Engine = scene.EngineQuality
	case "flat":
		rs.Engine = scene.EngineFlat
	default:
		return fmt.Errorf("unknown engine %q: %w", r.Engine, ErrInvalid)
	}
	for k, v := range r.Samples {
		rs.Samples[scene.Engine(strings.ToUpper(k))] = v
	}
	switch strings.ToLower(r.Shading) {
	case "", "lit":
		rs.Shading = scene.ShadingLit
	case "flat":
		rs.Shading = scene.ShadingFlat
	default:
		return fmt.Errorf("unknown shading %q: %w", r.Shading, ErrInvalid)
	}
	switch strings.ToLower(r.Renderer) {
	case "", "software":
	case "command":
		if _, err := render.ParseCommand(r.Command); err != nil {
			return fmt.Errorf("command renderer: %v: %w", err, ErrInvalid)
		}
	default:
		return fmt.Errorf("unknown renderer %q: %w", r.Renderer, ErrInvalid)
	}

	rs.ResolutionX = res.Width
	rs.ResolutionY = res.Height
	rs.ResolutionPercent = res.Percent
	if rs.ResolutionPercent <= 0 {
		rs.ResolutionPercent = 100
	}
	rs.FilmTransparent = r.Transparent
	rs.AntiAlias = r.AntiAlias
	rs.ColorMode = scene.ColorRGBA
	rs.ColorType = scene.ColorTypeMaterial
	rs.Background = colorutil.Black
	if r.Background != "" {
		rs.Background = colorutil.ParseHex(r.Background)
	}
	return nil
}

// Options converts the layer into noise options for a w x h image.
func (n NoiseLayer) Options(w, h int) (noise.Options, error) {
	dist, err := noise.ParseDistribution(n.Distribution)
	if err != nil {
		return noise.Options{}, fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	if n.Scale <= 0 {
		return noise.Options{}, fmt.Errorf("noise scale %g: %w", n.Scale, ErrInvalid)
	}
	return noise.Options{
		Width:        w,
		Height:       h,
		Scale:        n.Scale,
		Seed:         n.Seed,
		Distribution: dist,
		Strength:     n.Strength,
		Contrast:     n.Contrast,
		Brightness:   n.Brightness,
	}, nil
}

// MaskStrategy parses the configured mask strategy.
func (c *Config) MaskStrategy() (mask.Strategy, error) {
	return mask.ParseStrategy(c.Masks.Strategy)
}

// RelaxOptions converts the relaxation settings.
func (c *Config) RelaxOptions() (physics.Options, error) {
	if _, err := physics.ParseShape(c.Relaxation.Shape); err != nil {
		return physics.Options{}, err
	}
	if c.Relaxation.Frames < 1 {
		return physics.Options{}, fmt.Errorf("relaxation frames must be positive: %w", ErrInvalid)
	}
	return physics.Options{
		Damping:        c.Relaxation.Damping,
		CollisionShape: c.Relaxation.Shape,
		Frames:         c.Relaxation.Frames,
	}, nil
}
