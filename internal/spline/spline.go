// Package spline measures and projects the keypoint chains of hair particles.
package spline

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"

	"synthpic/pkg/geometry"
)

const (
	// rombergTol is the relative change between refinements at which integration stops.
	rombergTol = 1e-8
	// rombergMaxLevel bounds the number of samples to 2^16+1.
	rombergMaxLevel = 16
)

// Dedupe drops repeated points, keeping the first occurrence and the original order.
func Dedupe(points []geometry.Point3D) []geometry.Point3D {
	seen := make(map[geometry.Point3D]struct{}, len(points))
	out := make([]geometry.Point3D, 0, len(points))
	for _, p := range points {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Length returns the arc length of the interpolating spline through points.
// Fewer than two distinct points have length 0. Two or three points use a
// linear spline, four or more a cubic one. Integration is best effort: a result
// that has not converged at the finest level is returned as is.
func Length(points []geometry.Point3D) float64 {
	pts := Dedupe(points)
	if len(pts) < 2 {
		return 0
	}

	u := chordParams(pts)
	speed, ok := fit(u, pts)
	if !ok {
		return polylineLength(pts)
	}

	prev := math.NaN()
	var est float64
	for k := 1; k <= rombergMaxLevel; k++ {
		n := 1<<k + 1
		dx := 1 / float64(n-1)
		f := make([]float64, n)
		for i := range f {
			f[i] = speed(float64(i) * dx)
		}
		est = integrate.Romberg(f, dx)
		if k > 1 && math.Abs(est-prev) <= rombergTol*math.Max(math.Abs(est), 1) {
			break
		}
		prev = est
	}
	return est
}

// chordParams normalizes cumulative chord length to [0, 1]. Distinct points guarantee
// strictly increasing parameters.
func chordParams(pts []geometry.Point3D) []float64 {
	u := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		u[i] = u[i-1] + pts[i].Distance(pts[i-1])
	}
	total := u[len(u)-1]
	for i := range u {
		u[i] /= total
	}
	u[len(u)-1] = 1
	return u
}

// fit returns the parametric speed |dP/du| of the spline through pts.
func fit(u []float64, pts []geometry.Point3D) (func(float64) float64, bool) {
	coords := make([][]float64, 3)
	for d := range coords {
		coords[d] = make([]float64, len(pts))
		for i, p := range pts {
			coords[d][i] = p.Component(d)
		}
	}

	derivs := make([]func(float64) float64, 3)
	for d := range coords {
		if len(pts) < 4 {
			derivs[d] = linearSlope(u, coords[d])
			continue
		}
		var nak interp.NotAKnotCubic
		if err := nak.Fit(u, coords[d]); err != nil {
			return nil, false
		}
		derivs[d] = nak.PredictDerivative
	}

	return func(x float64) float64 {
		var sum float64
		for _, d := range derivs {
			v := d(x)
			sum += v * v
		}
		return math.Sqrt(sum)
	}, true
}

// linearSlope is the derivative of the piecewise linear interpolant of (xs, ys).
func linearSlope(xs, ys []float64) func(float64) float64 {
	slopes := make([]float64, len(xs)-1)
	for i := range slopes {
		slopes[i] = (ys[i+1] - ys[i]) / (xs[i+1] - xs[i])
	}
	return func(x float64) float64 {
		i := sort.SearchFloat64s(xs, x) - 1
		if i < 0 {
			i = 0
		}
		if i > len(slopes)-1 {
			i = len(slopes) - 1
		}
		return slopes[i]
	}
}

func polylineLength(pts []geometry.Point3D) float64 {
	var l float64
	for i := 1; i < len(pts); i++ {
		l += pts[i].Distance(pts[i-1])
	}
	return l
}

// Project maps scene points onto pixel coordinates and keeps those inside the image.
func Project(points []geometry.Point3D, domain geometry.SpatialDomain) []geometry.Point2D {
	out := make([]geometry.Point2D, 0, len(points))
	for _, p := range points {
		px := domain.Project(p)
		if domain.InFrame(px) {
			out = append(out, px)
		}
	}
	return out
}
