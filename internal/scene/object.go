package scene

import (
	"image/color"
	"math"

	"golang.org/x/exp/rand"

	"synthpic/internal/noise"
	"synthpic/pkg/geometry"
)

// Kind distinguishes the two particle representations.
type Kind string

const (
	KindMesh Kind = "MESH"
	KindHair Kind = "HAIR"
)

// Transform is the placement of an object in scene space.
type Transform struct {
	Location geometry.Point3D `json:"location"`
	Rotation geometry.Point3D `json:"rotation"` // XYZ Euler, radians
	Scale    geometry.Point3D `json:"scale"`
}

// IdentityTransform places an object at the origin with unit scale.
func IdentityTransform() Transform {
	return Transform{Scale: geometry.Uniform(1)}
}

// Apply maps a local point into scene space.
func (t Transform) Apply(p geometry.Point3D) geometry.Point3D {
	return geometry.EulerXYZ(t.Rotation).Apply(p.Mul(t.Scale)).Add(t.Location)
}

// Material is owned by exactly one object. Clones get their own copy.
type Material struct {
	Name  string      `json:"name"`
	Color color.NRGBA `json:"color"`
}

// Deformation is a procedural displacement along the vertex normal, driven by
// value noise sampled at the vertex's scene position. It stays live until baked.
type Deformation struct {
	Strength  float64 `json:"strength"`
	Frequency float64 `json:"frequency"`
	Seed      uint64  `json:"seed"`
}

// Mesh is a triangle mesh in local coordinates.
type Mesh struct {
	Vertices    []geometry.Point3D `json:"vertices"`
	Faces       [][3]int           `json:"faces"`
	Smooth      bool               `json:"smooth"`
	Deformation *Deformation       `json:"deformation,omitempty"`
}

// HairSystem describes a single procedural strand.
type HairSystem struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Seed         uint32  `json:"seed"`
	ChildSeed    uint32  `json:"child_seed"`
	RootDiameter float64 `json:"root_diameter"`
	TipDiameter  float64 `json:"tip_diameter"`
	RadiusScale  float64 `json:"radius_scale"`
	Length       float64 `json:"length"`
	ChildLength  float64 `json:"child_length"`
	Segments     int     `json:"segments"`
	Kink         float64 `json:"kink"`
}

// RigidBody tags an object as taking part in the physics simulation.
type RigidBody struct {
	Type           string  `json:"type"`
	CollisionShape string  `json:"collision_shape"`
	Mass           float64 `json:"mass"`
	LinearDamping  float64 `json:"linear_damping"`
	AngularDamping float64 `json:"angular_damping"`
}

// Object is a node of the scene graph.
type Object struct {
	Name         string            `json:"name"`
	Kind         Kind              `json:"kind"`
	Transform    Transform         `json:"transform"`
	Mesh         *Mesh             `json:"mesh,omitempty"`
	Hair         *HairSystem       `json:"hair,omitempty"`
	Material     Material          `json:"material"`
	HideRender   bool              `json:"hide_render"`
	HideViewport bool              `json:"hide_viewport"`
	Props        map[string]string `json:"props,omitempty"`
	RigidBody    *RigidBody        `json:"rigid_body,omitempty"`
}

// LocalVertices returns the evaluated geometry in local coordinates: mesh vertices
// with any live deformation applied, or the strand keypoints of a hair system.
func (o *Object) LocalVertices() []geometry.Point3D {
	switch o.Kind {
	case KindHair:
		if o.Hair == nil {
			return nil
		}
		return o.Hair.Strand()
	default:
		if o.Mesh == nil {
			return nil
		}
		if o.Mesh.Deformation == nil {
			return o.Mesh.Vertices
		}
		return o.Mesh.Deformed(o.Transform.Location)
	}
}

// WorldVertices returns LocalVertices mapped into scene space.
func (o *Object) WorldVertices() []geometry.Point3D {
	local := o.LocalVertices()
	out := make([]geometry.Point3D, len(local))
	for i, v := range local {
		out[i] = o.Transform.Apply(v)
	}
	return out
}

// BaseDimensions is the bounding box extent of the evaluated local geometry.
func (o *Object) BaseDimensions() geometry.Point3D {
	return geometry.BoundingBox3D(o.LocalVertices()).Size()
}

// Dimensions is the bounding box extent of the evaluated geometry times the object scale.
func (o *Object) Dimensions() geometry.Point3D {
	s := o.Transform.Scale
	d := o.BaseDimensions()
	return geometry.Point3D{X: d.X * math.Abs(s.X), Y: d.Y * math.Abs(s.Y), Z: d.Z * math.Abs(s.Z)}
}

// Prop returns a custom property.
func (o *Object) Prop(key string) (string, bool) {
	v, ok := o.Props[key]
	return v, ok
}

// SetProp sets a custom property.
func (o *Object) SetProp(key, value string) {
	if o.Props == nil {
		o.Props = make(map[string]string)
	}
	o.Props[key] = value
}

// Deformed evaluates the live deformation with the mesh placed at location.
func (m *Mesh) Deformed(location geometry.Point3D) []geometry.Point3D {
	out := make([]geometry.Point3D, len(m.Vertices))
	d := m.Deformation
	if d == nil {
		copy(out, m.Vertices)
		return out
	}
	center := geometry.Centroid3D(m.Vertices)
	for i, v := range m.Vertices {
		p := v.Add(location).Scale(d.Frequency)
		n := noise.Fractal(p.X, p.Y, p.Z, d.Seed, 3)
		dir := v.Sub(center).Normalize()
		out[i] = v.Add(dir.Scale(d.Strength * (2*n - 1)))
	}
	return out
}

// Bake makes the deformation at the given location permanent and removes it.
func (m *Mesh) Bake(location geometry.Point3D) {
	if m.Deformation == nil {
		return
	}
	m.Vertices = m.Deformed(location)
	m.Deformation = nil
}

// Diameter is the mean of root and tip diameter times the radius scale.
func (h *HairSystem) Diameter() float64 {
	return (h.RootDiameter + h.TipDiameter) / 2 * h.RadiusScale
}

// WidthAt interpolates the strand diameter at parameter t in [0,1].
func (h *HairSystem) WidthAt(t float64) float64 {
	return (h.RootDiameter + (h.TipDiameter-h.RootDiameter)*t) * h.RadiusScale
}

// Strand returns the keypoints of the strand in local coordinates, centered on the origin.
// The shape is a deterministic function of Seed, ChildSeed, Length, ChildLength, Segments and Kink.
func (h *HairSystem) Strand() []geometry.Point3D {
	segments := h.Segments
	if segments < 1 {
		segments = 1
	}
	rng := rand.New(rand.NewSource(uint64(h.Seed)<<32 | uint64(h.ChildSeed)))
	step := h.Length * h.ChildLength / float64(segments)

	// Strands mostly lie in the image plane.
	dir := randomUnit(rng)
	dir.Z *= 0.25
	dir = dir.Normalize()

	pts := make([]geometry.Point3D, 0, segments+1)
	p := geometry.Point3D{}
	pts = append(pts, p)
	for i := 0; i < segments; i++ {
		turn := randomUnit(rng).Scale(h.Kink)
		turn.Z *= 0.25
		dir = dir.Add(turn).Normalize()
		p = p.Add(dir.Scale(step))
		pts = append(pts, p)
	}

	c := geometry.Centroid3D(pts)
	for i := range pts {
		pts[i] = pts[i].Sub(c)
	}
	return pts
}

func randomUnit(rng *rand.Rand) geometry.Point3D {
	for {
		v := geometry.Point3D{X: 2*rng.Float64() - 1, Y: 2*rng.Float64() - 1, Z: 2*rng.Float64() - 1}
		if n := v.Norm(); n > 1e-6 && n <= 1 {
			return v.Scale(1 / n)
		}
	}
}
