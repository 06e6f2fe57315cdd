// Package geometry provides basic geometric types used throughout the generator.
package geometry

import (
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Add returns the sum of two points.
func (p Point2D) Add(other Point2D) Point2D {
	return Point2D{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Scale returns the point scaled by a factor.
func (p Point2D) Scale(factor float64) Point2D {
	return Point2D{X: p.X * factor, Y: p.Y * factor}
}

// Point3D represents a point or vector in scene space.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NewPoint3D creates a new Point3D.
func NewPoint3D(x, y, z float64) Point3D {
	return Point3D{X: x, Y: y, Z: z}
}

// Uniform returns a point with all three components set to v.
func Uniform(v float64) Point3D {
	return Point3D{X: v, Y: v, Z: v}
}

// Add returns the sum of two points.
func (p Point3D) Add(o Point3D) Point3D {
	return Point3D{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

// Sub returns the difference of two points.
func (p Point3D) Sub(o Point3D) Point3D {
	return Point3D{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

// Scale returns the point scaled by a factor.
func (p Point3D) Scale(f float64) Point3D {
	return Point3D{X: p.X * f, Y: p.Y * f, Z: p.Z * f}
}

// Mul returns the component-wise product.
func (p Point3D) Mul(o Point3D) Point3D {
	return Point3D{X: p.X * o.X, Y: p.Y * o.Y, Z: p.Z * o.Z}
}

// Dot returns the dot product.
func (p Point3D) Dot(o Point3D) float64 {
	return p.X*o.X + p.Y*o.Y + p.Z*o.Z
}

// Cross returns the cross product.
func (p Point3D) Cross(o Point3D) Point3D {
	return Point3D{
		X: p.Y*o.Z - p.Z*o.Y,
		Y: p.Z*o.X - p.X*o.Z,
		Z: p.X*o.Y - p.Y*o.X,
	}
}

// Norm returns the Euclidean length.
func (p Point3D) Norm() float64 {
	return math.Sqrt(p.Dot(p))
}

// Normalize returns the unit vector in the direction of p. The zero vector is returned unchanged.
func (p Point3D) Normalize() Point3D {
	n := p.Norm()
	if n == 0 {
		return p
	}
	return p.Scale(1 / n)
}

// Distance returns the Euclidean distance to another point.
func (p Point3D) Distance(o Point3D) float64 {
	return p.Sub(o).Norm()
}

// XY drops the Z component.
func (p Point3D) XY() Point2D {
	return Point2D{X: p.X, Y: p.Y}
}

// Component returns the i-th component (0=X, 1=Y, 2=Z).
func (p Point3D) Component(i int) float64 {
	switch i {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// Max returns the largest component.
func (p Point3D) Max() float64 {
	return math.Max(p.X, math.Max(p.Y, p.Z))
}

// Mat3 is a row-major 3x3 matrix.
type Mat3 [3][3]float64

// Identity3 returns the identity matrix.
func Identity3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Apply multiplies the matrix with a column vector.
func (m Mat3) Apply(p Point3D) Point3D {
	return Point3D{
		X: m[0][0]*p.X + m[0][1]*p.Y + m[0][2]*p.Z,
		Y: m[1][0]*p.X + m[1][1]*p.Y + m[1][2]*p.Z,
		Z: m[2][0]*p.X + m[2][1]*p.Y + m[2][2]*p.Z,
	}
}

// Compose returns m * other.
func (m Mat3) Compose(other Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += m[i][k] * other[k][j]
			}
		}
	}
	return out
}

// EulerXYZ returns the rotation matrix for XYZ Euler angles in radians.
// X is applied first, then Y, then Z (R = Rz * Ry * Rx).
func EulerXYZ(r Point3D) Mat3 {
	cx, sx := math.Cos(r.X), math.Sin(r.X)
	cy, sy := math.Cos(r.Y), math.Sin(r.Y)
	cz, sz := math.Cos(r.Z), math.Sin(r.Z)

	rx := Mat3{{1, 0, 0}, {0, cx, -sx}, {0, sx, cx}}
	ry := Mat3{{cy, 0, sy}, {0, 1, 0}, {-sy, 0, cy}}
	rz := Mat3{{cz, -sz, 0}, {sz, cz, 0}, {0, 0, 1}}
	return rz.Compose(ry).Compose(rx)
}

// Rect represents a rectangle with floating-point coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains returns true if the point is inside the rectangle.
// The right and bottom edges are exclusive so pixel rectangles do not overlap.
func (r Rect) Contains(p Point2D) bool {
	return p.X >= r.X && p.X < r.X+r.Width &&
		p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Box is an axis-aligned box in scene space.
type Box struct {
	Min Point3D `json:"min"`
	Max Point3D `json:"max"`
}

// Size returns the extent of the box along each axis.
func (b Box) Size() Point3D {
	return b.Max.Sub(b.Min)
}

// Center returns the center of the box.
func (b Box) Center() Point3D {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Contains reports whether p lies inside the box (bounds inclusive).
func (b Box) Contains(p Point3D) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// BoundingBox3D computes the axis-aligned bounding box of a set of points.
func BoundingBox3D(points []Point3D) Box {
	if len(points) == 0 {
		return Box{}
	}
	b := Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b.Min.X = math.Min(b.Min.X, p.X)
		b.Min.Y = math.Min(b.Min.Y, p.Y)
		b.Min.Z = math.Min(b.Min.Z, p.Z)
		b.Max.X = math.Max(b.Max.X, p.X)
		b.Max.Y = math.Max(b.Max.Y, p.Y)
		b.Max.Z = math.Max(b.Max.Z, p.Z)
	}
	return b
}

// SpatialDomain is the placement volume derived from a target image resolution.
// One scene unit maps to PixelScale output pixels (one when unset); the image
// center is the scene origin and Y points up.
type SpatialDomain struct {
	Box
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	PixelScale float64 `json:"pixel_scale,omitempty"`
}

// DomainForResolution returns the domain for a width x height image with the given
// half depth along Z.
func DomainForResolution(width, height int, depth float64) SpatialDomain {
	w, h := float64(width), float64(height)
	return SpatialDomain{
		Box: Box{
			Min: Point3D{X: -w / 2, Y: -h / 2, Z: -depth},
			Max: Point3D{X: w / 2, Y: h / 2, Z: depth},
		},
		Width:  width,
		Height: height,
	}
}

// WithPixelScale returns the same volume imaged at k output pixels per scene unit.
func (d SpatialDomain) WithPixelScale(k float64) SpatialDomain {
	d.PixelScale = k
	return d
}

// Scale is the number of output pixels per scene unit.
func (d SpatialDomain) Scale() float64 {
	if d.PixelScale <= 0 {
		return 1
	}
	return d.PixelScale
}

// Project maps a scene point onto output pixel coordinates (origin top-left, Y down).
func (d SpatialDomain) Project(p Point3D) Point2D {
	return Point2D{
		X: p.X + float64(d.Width)/2,
		Y: float64(d.Height)/2 - p.Y,
	}.Scale(d.Scale())
}

// Frame returns the output image rectangle in pixel coordinates.
func (d SpatialDomain) Frame() Rect {
	k := d.Scale()
	return Rect{
		Width:  math.Floor(float64(d.Width)*k + 0.5),
		Height: math.Floor(float64(d.Height)*k + 0.5),
	}
}

// InFrame reports whether a projected point falls inside the image.
func (d SpatialDomain) InFrame(p Point2D) bool {
	return d.Frame().Contains(p)
}

// Centroid3D computes the average position of a set of points.
func Centroid3D(points []Point3D) Point3D {
	if len(points) == 0 {
		return Point3D{}
	}
	var sum Point3D
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(points)))
}
