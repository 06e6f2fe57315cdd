// Package physics relaxes overlapping particles with a small deterministic rigid body solver.
package physics

import (
	"math"

	"synthpic/pkg/geometry"
)

// World holds a set of bodies and runs a simple 3D step: gravity, integration,
// damping and pairwise overlap resolution.
type World struct {
	Gravity    geometry.Point3D
	UseGravity bool
	Bodies     []*Body
	// Iterations of the overlap pass per step.
	Iterations int
}

// NewWorld returns a world without gravity.
func NewWorld() *World {
	return &World{Iterations: 4}
}

// AddBody appends a body to the world. Order is preserved, which keeps stepping deterministic.
func (w *World) AddBody(b *Body) {
	w.Bodies = append(w.Bodies, b)
}

// Step advances the simulation by dt seconds.
func (w *World) Step(dt float64) {
	for _, b := range w.Bodies {
		if b.Static {
			continue
		}
		if w.UseGravity {
			b.Velocity = b.Velocity.Add(w.Gravity.Scale(dt))
		}
		b.Position = b.Position.Add(b.Velocity.Scale(dt))
		// Exponential decay: a damping of 1 stops the body every step.
		d := math.Min(math.Max(b.Damping, 0), 1)
		b.Velocity = b.Velocity.Scale(math.Pow(1-d, dt))
	}

	iters := w.Iterations
	if iters < 1 {
		iters = 1
	}
	for it := 0; it < iters; it++ {
		if !w.resolve(dt) {
			break
		}
	}
}

// Overlapping counts the pairs of bodies that currently intersect.
func (w *World) Overlapping() int {
	n := 0
	for i := 0; i < len(w.Bodies); i++ {
		for j := i + 1; j < len(w.Bodies); j++ {
			if depth, _ := penetration(w.Bodies[i], w.Bodies[j]); depth > 1e-9 {
				n++
			}
		}
	}
	return n
}

// resolve pushes every overlapping pair apart once. It reports whether anything moved.
func (w *World) resolve(dt float64) bool {
	moved := false
	for i := 0; i < len(w.Bodies); i++ {
		bi := w.Bodies[i]
		for j := i + 1; j < len(w.Bodies); j++ {
			bj := w.Bodies[j]
			if bi.Static && bj.Static {
				continue
			}
			depth, n := penetration(bi, bj)
			if depth <= 0 {
				continue
			}
			moved = true

			// Push apart along n; static bodies do not move.
			var moveI, moveJ float64
			switch {
			case bi.Static:
				moveJ = depth
			case bj.Static:
				moveI = -depth
			default:
				total := bi.Mass + bj.Mass
				moveI = -depth * (bj.Mass / total)
				moveJ = depth * (bi.Mass / total)
			}
			bi.Position = bi.Position.Add(n.Scale(moveI))
			bj.Position = bj.Position.Add(n.Scale(moveJ))

			// Drop the approaching component of the velocities along n.
			if !bi.Static {
				if v := bi.Velocity.Dot(n); v > 0 {
					bi.Velocity = bi.Velocity.Sub(n.Scale(v))
				}
			}
			if !bj.Static {
				if v := bj.Velocity.Dot(n); v < 0 {
					bj.Velocity = bj.Velocity.Sub(n.Scale(v))
				}
			}
		}
	}
	return moved
}

// penetration returns the overlap depth and the unit direction from a to b along
// which to separate them. No overlap yields depth 0.
func penetration(a, b *Body) (float64, geometry.Point3D) {
	if a.Shape == ShapeBox && b.Shape == ShapeBox {
		return boxPenetration(a, b)
	}
	return spherePenetration(a, b)
}

func spherePenetration(a, b *Body) (float64, geometry.Point3D) {
	delta := b.Position.Sub(a.Position)
	dist := delta.Norm()
	depth := a.Radius + b.Radius - dist
	if depth <= 0 {
		return 0, geometry.Point3D{}
	}
	if dist == 0 {
		// Coincident centers: separate along X.
		return depth, geometry.Point3D{X: 1}
	}
	return depth, delta.Scale(1 / dist)
}

// boxPenetration uses the minimum penetration axis of the two AABBs.
func boxPenetration(a, b *Body) (float64, geometry.Point3D) {
	ba, bb := a.aabb(), b.aabb()
	overlap := geometry.Point3D{
		X: math.Min(ba.Max.X, bb.Max.X) - math.Max(ba.Min.X, bb.Min.X),
		Y: math.Min(ba.Max.Y, bb.Max.Y) - math.Max(ba.Min.Y, bb.Min.Y),
		Z: math.Min(ba.Max.Z, bb.Max.Z) - math.Max(ba.Min.Z, bb.Min.Z),
	}
	if overlap.X <= 0 || overlap.Y <= 0 || overlap.Z <= 0 {
		return 0, geometry.Point3D{}
	}
	axis := 0
	depth := overlap.X
	if overlap.Y < depth {
		depth, axis = overlap.Y, 1
	}
	if overlap.Z < depth {
		depth, axis = overlap.Z, 2
	}
	var n geometry.Point3D
	sign := 1.0
	if b.Position.Component(axis) < a.Position.Component(axis) {
		sign = -1
	}
	switch axis {
	case 0:
		n.X = sign
	case 1:
		n.Y = sign
	default:
		n.Z = sign
	}
	return depth, n
}
