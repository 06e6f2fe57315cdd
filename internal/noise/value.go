package noise

import "math"

// Value3D is smooth value noise in [0,1] using a hash-based lattice and cubic easing.
// Lattice coordinates are 64-bit so sampling far from the origin stays well defined.
func Value3D(x, y, z float64, seed uint64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	z0 := math.Floor(z)
	ix, iy, iz := int64(x0), int64(y0), int64(z0)

	sx := smoothStep(x - x0)
	sy := smoothStep(y - y0)
	sz := smoothStep(z - z0)

	// Lattice values at cell corners.
	c000 := hash3D(ix, iy, iz, seed)
	c100 := hash3D(ix+1, iy, iz, seed)
	c010 := hash3D(ix, iy+1, iz, seed)
	c110 := hash3D(ix+1, iy+1, iz, seed)
	c001 := hash3D(ix, iy, iz+1, seed)
	c101 := hash3D(ix+1, iy, iz+1, seed)
	c011 := hash3D(ix, iy+1, iz+1, seed)
	c111 := hash3D(ix+1, iy+1, iz+1, seed)

	x00 := lerp(c000, c100, sx)
	x10 := lerp(c010, c110, sx)
	x01 := lerp(c001, c101, sx)
	x11 := lerp(c011, c111, sx)
	return lerp(lerp(x00, x10, sy), lerp(x01, x11, sy), sz)
}

// Fractal layers octaves of Value3D with the usual lacunarity 2 and gain 0.5. Output is in [0,1].
func Fractal(x, y, z float64, seed uint64, octaves int) float64 {
	if octaves < 1 {
		octaves = 1
	}
	var sum, maxAmp float64
	amp, freq := 1.0, 1.0
	for i := 0; i < octaves; i++ {
		sum += Value3D(x*freq, y*freq, z*freq, seed+uint64(i)) * amp
		maxAmp += amp
		amp *= 0.5
		freq *= 2
	}
	return sum / maxAmp
}

// hash3D maps integer lattice coordinates to a deterministic pseudo-random value in [0,1].
func hash3D(x, y, z int64, seed uint64) float64 {
	n := uint64(x)*0x9E3779B185EBCA87 ^ uint64(y)*0xC2B2AE3D27D4EB4F ^ uint64(z)*0x165667B19E3779F9 ^ seed*0x27D4EB2F165667C5
	n ^= n >> 33
	n *= 0xFF51AFD7ED558CCD
	n ^= n >> 33
	n *= 0xC4CEB9FE1A85EC53
	n ^= n >> 33
	return float64(n>>11) / float64(1<<53)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// smoothStep is Perlin-style cubic easing: 3t^2 - 2t^3.
func smoothStep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}
