package particle

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"synthpic/internal/logging"
	"synthpic/internal/scene"
	"synthpic/pkg/geometry"
)

// SizeDistribution draws particle diameters.
type SizeDistribution interface {
	Sample(rng *rand.Rand) float64
}

// LogNormal is parameterized by the geometric mean diameter Dg and the
// geometric standard deviation SigmaG, i.e. ln(d) ~ N(ln Dg, ln SigmaG).
type LogNormal struct {
	Dg     float64 `json:"d_g"`
	SigmaG float64 `json:"sigma_g"`
}

// Sample draws one diameter.
func (d LogNormal) Sample(rng *rand.Rand) float64 {
	return distuv.LogNormal{Mu: math.Log(d.Dg), Sigma: math.Log(d.SigmaG), Src: rng}.Rand()
}

// Validate rejects parameters that do not describe a distribution.
func (d LogNormal) Validate() error {
	if d.Dg <= 0 {
		return fmt.Errorf("log-normal d_g must be positive, got %g", d.Dg)
	}
	if d.SigmaG < 1 {
		return fmt.Errorf("log-normal sigma_g must be >= 1, got %g", d.SigmaG)
	}
	return nil
}

// Uniform draws diameters uniformly from [Min, Max).
type Uniform struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Sample draws one diameter.
func (d Uniform) Sample(rng *rand.Rand) float64 {
	return Range(d).Sample(rng)
}

// Range is a closed-open interval for uniform draws. The zero Range means "not set".
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// IsZero reports whether the range is unset.
func (r Range) IsZero() bool { return r.Min == 0 && r.Max == 0 }

// Sample draws uniformly from the range.
func (r Range) Sample(rng *rand.Rand) float64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return distuv.Uniform{Min: r.Min, Max: r.Max, Src: rng}.Rand()
}

// Fraction is an ordered set of particles sharing a class label.
type Fraction struct {
	Class        string
	Particles    []*Particle
	Distribution SizeDistribution
}

// Len returns the number of particles.
func (f *Fraction) Len() int { return len(f.Particles) }

// Objects returns the underlying scene objects in emission order.
func (f *Fraction) Objects() []*scene.Object {
	out := make([]*scene.Object, len(f.Particles))
	for i, p := range f.Particles {
		out[i] = p.Object()
	}
	return out
}

// Generator clones primitives into particle fractions. All randomness comes from Rand.
type Generator struct {
	Scene *scene.Scene
	Rand  *rand.Rand
	Log   *slog.Logger
}

// Generate clones primitive count times. Each clone is named after the class
// (<class>000000, <class>000001, ...) and gets the class
// label, a randomized shape and a diameter drawn from dist. The primitive is
// hidden from rendering afterwards.
func (g *Generator) Generate(primitive *scene.Object, class string, count int, dist SizeDistribution) (*Fraction, error) {
	if dist == nil {
		return nil, errors.New("generate: no size distribution")
	}
	return g.generate(primitive, class, count, dist, func(p *Particle) error {
		d := dist.Sample(g.Rand)
		if h, err := p.AsHair(); err == nil {
			h.SetHairDiameter(d, d)
			return nil
		}
		m, err := p.AsMesh()
		if err != nil {
			return err
		}
		m.SetSize(geometry.Uniform(d))
		return nil
	})
}

// HairOptions configures GenerateHairFraction.
type HairOptions struct {
	// Diameter is the starting diameter.
	Diameter float64
	// Jitter multiplies the running diameter before every particle (cumulative).
	Jitter Range
	// LengthFactor is drawn per particle.
	LengthFactor Range
	// Rotate gives every particle a random orientation.
	Rotate bool
}

// GenerateHairFraction clones a hair primitive count times with a random walk
// diameter and a random length factor per particle.
func (g *Generator) GenerateHairFraction(primitive *scene.Object, class string, count int, opts HairOptions) (*Fraction, error) {
	if primitive == nil {
		return nil, errors.New("generate: nil primitive")
	}
	if primitive.Kind != scene.KindHair {
		return nil, fmt.Errorf("hair fraction from %s: %w", primitive.Name, ErrPrecondition)
	}
	diameter := opts.Diameter
	return g.generate(primitive, class, count, nil, func(p *Particle) error {
		h, err := p.AsHair()
		if err != nil {
			return err
		}
		if !opts.Jitter.IsZero() {
			diameter *= opts.Jitter.Sample(g.Rand)
		}
		h.SetHairDiameter(diameter, diameter)
		if !opts.LengthFactor.IsZero() {
			h.SetRandomHairLengthFactor(g.Rand, opts.LengthFactor)
		}
		if opts.Rotate {
			h.RotateRandomly(g.Rand)
		}
		return nil
	})
}

func (g *Generator) generate(primitive *scene.Object, class string, count int, dist SizeDistribution, size func(*Particle) error) (*Fraction, error) {
	if count < 0 {
		return nil, fmt.Errorf("generate %s: negative count %d", class, count)
	}
	if primitive == nil {
		return nil, errors.New("generate: nil primitive")
	}
	log := logging.OrNop(g.Log)

	frac := &Fraction{Class: class, Distribution: dist, Particles: make([]*Particle, 0, count)}

	// The primitive is shown while cloning so the clones come out visible.
	primitive.HideRender = false
	primitive.HideViewport = false
	defer func() {
		primitive.HideRender = true
		primitive.HideViewport = true
	}()

	for i := 0; i < count; i++ {
		name := g.Scene.UniqueName(fmt.Sprintf("%s%06d", class, i))
		obj, err := g.Scene.Duplicate(primitive, name)
		if err != nil {
			return nil, err
		}
		p := Wrap(obj)
		p.SetClass(class)
		p.RandomizeShape(g.Rand)
		if err := size(p); err != nil {
			return nil, fmt.Errorf("size %s: %w", name, err)
		}
		frac.Particles = append(frac.Particles, p)
	}

	log.Debug("generated fraction", "class", class, "primitive", primitive.Name, "count", count)
	return frac, nil
}

