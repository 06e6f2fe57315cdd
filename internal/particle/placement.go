package particle

import (
	"errors"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"synthpic/pkg/geometry"
)

// PlaceRandomly scatters particles over the domain in emission order.
func PlaceRandomly(rng *rand.Rand, particles []*Particle, domain geometry.Box, rotate bool) {
	for _, p := range particles {
		p.PlaceRandomly(rng, domain, rotate)
	}
}

// PlaceOnHosts puts every guest onto a keypoint of a host strand. Hosts are picked
// with probability proportional to their spline length, the keypoint uniformly.
// Guests also get a random orientation.
func PlaceOnHosts(rng *rand.Rand, guests []*Particle, hosts []*Hair) error {
	if len(guests) == 0 {
		return nil
	}
	if len(hosts) == 0 {
		return errors.New("place on hosts: no host particles")
	}

	weights := make([]float64, len(hosts))
	verts := make([][]geometry.Point3D, len(hosts))
	var total float64
	for i, h := range hosts {
		verts[i] = h.SplineVertices()
		weights[i] = h.SplineLength()
		total += weights[i]
	}
	if total <= 0 {
		for i := range weights {
			weights[i] = 1
		}
	}
	pick := distuv.NewCategorical(weights, rng)

	for _, g := range guests {
		host := int(pick.Rand())
		vs := verts[host]
		if len(vs) == 0 {
			g.Place(hosts[host].Location())
		} else {
			g.Place(vs[rng.Intn(len(vs))])
		}
		g.RotateRandomly(rng)
	}
	return nil
}

// AsHairs converts particles into hair views, failing on the first mesh particle.
func AsHairs(particles []*Particle) ([]*Hair, error) {
	out := make([]*Hair, 0, len(particles))
	for _, p := range particles {
		h, err := p.AsHair()
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
