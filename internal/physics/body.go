package physics

import (
	"synthpic/pkg/geometry"
)

// Shape is the collision proxy of a body.
type Shape string

const (
	ShapeSphere     Shape = "SPHERE"
	ShapeBox        Shape = "BOX"
	ShapeConvexHull Shape = "CONVEX_HULL"
)

// Body is a rigid body with position, velocity and a sphere or box proxy.
// Static bodies do not move and are not affected by gravity.
type Body struct {
	Name     string
	Position geometry.Point3D
	Velocity geometry.Point3D
	Shape    Shape
	// Radius of the sphere proxy; also the bound used for mixed pairs.
	Radius float64
	// HalfExtents of the box proxy.
	HalfExtents geometry.Point3D
	Mass        float64
	Damping     float64
	Static      bool
}

// NewBody returns a body whose proxy is fitted to an object of the given dimensions.
// Convex hulls use the bounding sphere. mass <= 0 means 1.
func NewBody(name string, position, dimensions geometry.Point3D, shape Shape, mass float64, static bool) *Body {
	if mass <= 0 {
		mass = 1
	}
	b := &Body{
		Name:        name,
		Position:    position,
		Shape:       shape,
		Radius:      dimensions.Max() / 2,
		HalfExtents: dimensions.Scale(0.5),
		Mass:        mass,
		Static:      static,
	}
	if shape == ShapeConvexHull {
		b.Shape = ShapeSphere
	}
	return b
}

// aabb returns the box bounds of a box body.
func (b *Body) aabb() geometry.Box {
	return geometry.Box{Min: b.Position.Sub(b.HalfExtents), Max: b.Position.Add(b.HalfExtents)}
}
