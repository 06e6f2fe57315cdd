// Package particle wraps scene objects as typed particles and generates
// fractions of them from primitive templates.
package particle

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"synthpic/internal/scene"
	"synthpic/internal/spline"
	"synthpic/pkg/geometry"
)

// ErrPrecondition is returned when an operation does not apply to the particle's kind.
var ErrPrecondition = errors.New("precondition violated")

// ClassProp is the custom property holding the class label.
const ClassProp = "class"

// Particle is a view over a scene object used as a particle.
type Particle struct {
	obj *scene.Object
}

// Wrap returns the particle view of obj.
func Wrap(obj *scene.Object) *Particle {
	return &Particle{obj: obj}
}

// Object returns the underlying scene object.
func (p *Particle) Object() *scene.Object { return p.obj }

// Name returns the object name.
func (p *Particle) Name() string { return p.obj.Name }

// Kind returns the representation of the particle.
func (p *Particle) Kind() scene.Kind { return p.obj.Kind }

// AsHair returns the hair variant, or ErrPrecondition for mesh particles.
func (p *Particle) AsHair() (*Hair, error) {
	if p.obj.Kind != scene.KindHair || p.obj.Hair == nil {
		return nil, fmt.Errorf("%s is not a hair particle: %w", p.obj.Name, ErrPrecondition)
	}
	return &Hair{p}, nil
}

// AsMesh returns the mesh variant, or ErrPrecondition for hair particles.
func (p *Particle) AsMesh() (*Mesh, error) {
	if p.obj.Kind != scene.KindMesh || p.obj.Mesh == nil {
		return nil, fmt.Errorf("%s is not a mesh particle: %w", p.obj.Name, ErrPrecondition)
	}
	return &Mesh{p}, nil
}

// Class returns the class label and whether one is set.
func (p *Particle) Class() (string, bool) {
	c, ok := p.obj.Prop(ClassProp)
	return c, ok && c != ""
}

// SetClass stamps the class label.
func (p *Particle) SetClass(class string) {
	p.obj.SetProp(ClassProp, class)
}

// Hide excludes the particle from rendering.
func (p *Particle) Hide() {
	p.obj.HideRender = true
	p.obj.HideViewport = true
}

// Show includes the particle in rendering.
func (p *Particle) Show() {
	p.obj.HideRender = false
	p.obj.HideViewport = false
}

// Location returns the particle position.
func (p *Particle) Location() geometry.Point3D {
	return p.obj.Transform.Location
}

// Place moves the particle to pos.
func (p *Particle) Place(pos geometry.Point3D) {
	p.obj.Transform.Location = pos
}

// PlaceRandomly moves the particle to an integer position drawn uniformly from
// [min, max) on every axis of the domain, optionally rotating it as well.
func (p *Particle) PlaceRandomly(rng *rand.Rand, domain geometry.Box, rotate bool) {
	p.obj.Transform.Location = geometry.Point3D{
		X: randInt(rng, domain.Min.X, domain.Max.X),
		Y: randInt(rng, domain.Min.Y, domain.Max.Y),
		Z: randInt(rng, domain.Min.Z, domain.Max.Z),
	}
	if rotate {
		p.RotateRandomly(rng)
	}
}

// RotateRandomly draws each Euler angle uniformly from [0, 2pi).
func (p *Particle) RotateRandomly(rng *rand.Rand) {
	p.obj.Transform.Rotation = geometry.Point3D{
		X: rng.Float64() * 2 * math.Pi,
		Y: rng.Float64() * 2 * math.Pi,
		Z: rng.Float64() * 2 * math.Pi,
	}
}

// RandomizeShape gives the particle a shape independent of its siblings.
// Hair particles get fresh seeds; mesh particles bake their deformation at a random offset.
func (p *Particle) RandomizeShape(rng *rand.Rand) {
	switch p.obj.Kind {
	case scene.KindHair:
		if p.obj.Hair == nil {
			return
		}
		p.obj.Hair.Seed = rng.Uint32()
		p.obj.Hair.ChildSeed = rng.Uint32()
	default:
		const span = 1e10
		offset := geometry.Point3D{
			X: float64(rng.Int63n(span + 1)),
			Y: float64(rng.Int63n(span + 1)),
			Z: float64(rng.Int63n(span + 1)),
		}
		if p.obj.Mesh == nil {
			return
		}
		loc := p.obj.Transform.Location
		p.obj.Transform.Location = offset
		p.obj.Mesh.Bake(p.obj.Transform.Location)
		p.obj.Transform.Location = loc
	}
}

// randInt mirrors an integer uniform draw in [low, high) with float bounds truncated.
func randInt(rng *rand.Rand, low, high float64) float64 {
	lo, hi := int64(low), int64(high)
	if hi <= lo {
		return float64(lo)
	}
	return float64(lo + rng.Int63n(hi-lo))
}

// Hair is the hair variant of a particle.
type Hair struct {
	*Particle
}

// SetHairDiameter sets root and tip diameter; the radius scale is reset to 1.
func (h *Hair) SetHairDiameter(root, tip float64) {
	hs := h.obj.Hair
	hs.RootDiameter = root
	hs.TipDiameter = tip
	hs.RadiusScale = 1
}

// HairDiameter is the mean of root and tip diameter times the radius scale.
func (h *Hair) HairDiameter() float64 {
	return h.obj.Hair.Diameter()
}

// SetHairLengthFactor scales the strand length.
func (h *Hair) SetHairLengthFactor(f float64) {
	h.obj.Hair.ChildLength = f
}

// HairLengthFactor returns the strand length factor.
func (h *Hair) HairLengthFactor() float64 {
	return h.obj.Hair.ChildLength
}

// SetRandomHairLengthFactor draws the length factor uniformly from r.
func (h *Hair) SetRandomHairLengthFactor(rng *rand.Rand, r Range) {
	h.SetHairLengthFactor(r.Sample(rng))
}

// SplineVertices returns the strand keypoints in scene space.
func (h *Hair) SplineVertices() []geometry.Point3D {
	return h.obj.WorldVertices()
}

// SplineKeypoints returns the strand keypoints in pixel coordinates, dropping
// those outside the image.
func (h *Hair) SplineKeypoints(domain geometry.SpatialDomain) []geometry.Point2D {
	return spline.Project(h.SplineVertices(), domain)
}

// SplineLength is the arc length of the strand in scene units.
func (h *Hair) SplineLength() float64 {
	return spline.Length(h.SplineVertices())
}

// Mesh is the mesh variant of a particle.
type Mesh struct {
	*Particle
}

// SetSize scales the particle so its bounding box matches target on each axis.
// Axes with zero extent keep their scale.
func (m *Mesh) SetSize(target geometry.Point3D) {
	base := m.obj.BaseDimensions()
	scale := m.obj.Transform.Scale
	if base.X > 0 {
		scale.X = target.X / base.X
	}
	if base.Y > 0 {
		scale.Y = target.Y / base.Y
	}
	if base.Z > 0 {
		scale.Z = target.Z / base.Z
	}
	m.obj.Transform.Scale = scale
}

// Size returns the scaled bounding box extent.
func (m *Mesh) Size() geometry.Point3D {
	return m.obj.Dimensions()
}

// SetSmoothShading toggles smooth shading.
func (m *Mesh) SetSmoothShading(smooth bool) {
	m.obj.Mesh.Smooth = smooth
}

// Diameter is the size of a particle for annotation purposes: the hair diameter,
// or the largest bounding box extent of a mesh.
func (p *Particle) Diameter() float64 {
	if h, err := p.AsHair(); err == nil {
		return h.HairDiameter()
	}
	return p.obj.Dimensions().Max()
}
