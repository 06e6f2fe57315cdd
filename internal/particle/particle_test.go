package particle

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"synthpic/internal/scene"
	"synthpic/pkg/geometry"
)

const meshAsset = `
name: dark
kind: mesh
material: {name: dark, color: "#303030"}
mesh:
  shape: sphere
  rings: 6
  segments: 8
  size: [1, 1, 1]
  deformation: {strength: 0.05, frequency: 0.3}
`

const hairAsset = `
name: fiber
kind: hair
material: {name: fiber, color: "#d0d0d0"}
hair:
  diameter: 10
  length: 200
  segments: 16
  kink: 0.2
`

func loadPrimitive(t *testing.T, s *scene.Scene, body string) *scene.Object {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asset.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	obj, err := s.LoadPrimitive(path, true)
	require.NoError(t, err)
	return obj
}

func newGenerator(s *scene.Scene, seed uint64) *Generator {
	return &Generator{Scene: s, Rand: rand.New(rand.NewSource(seed))}
}

func TestLogNormalStatistics(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d := LogNormal{Dg: 50, SigmaG: 1.6}
	logs := make([]float64, 20000)
	for i := range logs {
		logs[i] = math.Log(d.Sample(rng))
	}
	mean, std := stat.MeanStdDev(logs, nil)
	assert.InDelta(t, math.Log(50), mean, 0.02)
	assert.InDelta(t, math.Log(1.6), std, 0.02)
}

func TestGenerateMeshFraction(t *testing.T) {
	s := scene.New("test")
	prim := loadPrimitive(t, s, meshAsset)
	g := newGenerator(s, 3)

	frac, err := g.Generate(prim, "dark", 400, LogNormal{Dg: 50, SigmaG: 1.6})
	require.NoError(t, err)
	require.Equal(t, 400, frac.Len())

	assert.True(t, prim.HideRender, "primitive hidden after generation")
	assert.Len(t, s.Renderable(), 400)

	logs := make([]float64, 0, frac.Len())
	names := map[string]bool{}
	for i, p := range frac.Particles {
		assert.Equal(t, fmt.Sprintf("dark%06d", i), p.Name())
		names[p.Name()] = true
		class, ok := p.Class()
		assert.True(t, ok)
		assert.Equal(t, "dark", class)
		assert.Nil(t, p.Object().Mesh.Deformation, "deformation baked")

		m, err := p.AsMesh()
		require.NoError(t, err)
		size := m.Size()
		assert.InDelta(t, size.X, size.Y, 1e-9*size.X)
		logs = append(logs, math.Log(size.X))
	}
	assert.Len(t, names, 400)
	assert.InDelta(t, math.Log(50), stat.Mean(logs, nil), 0.08)
}

func TestGenerateClonesDiffer(t *testing.T) {
	s := scene.New("test")
	prim := loadPrimitive(t, s, meshAsset)
	frac, err := newGenerator(s, 5).Generate(prim, "dark", 2, LogNormal{Dg: 10, SigmaG: 1})
	require.NoError(t, err)

	a := frac.Particles[0].Object()
	b := frac.Particles[1].Object()
	assert.NotEqual(t, a.Mesh.Vertices, b.Mesh.Vertices)
	assert.Equal(t, a.Transform.Location, prim.Transform.Location, "location restored after baking")
	a.Material.Color.G = 1
	assert.NotEqual(t, a.Material.Color, b.Material.Color)
}

func TestGenerateZeroCount(t *testing.T) {
	s := scene.New("test")
	prim := loadPrimitive(t, s, meshAsset)
	frac, err := newGenerator(s, 1).Generate(prim, "dark", 0, LogNormal{Dg: 10, SigmaG: 1.2})
	require.NoError(t, err)
	assert.Zero(t, frac.Len())
	assert.Empty(t, s.Renderable())
}

func TestGenerateHidesPrimitiveOnError(t *testing.T) {
	s := scene.New("test")
	prim := loadPrimitive(t, s, meshAsset)
	require.True(t, prim.HideRender)

	calls := 0
	_, err := newGenerator(s, 1).generate(prim, "dark", 5, nil, func(*Particle) error {
		calls++
		if calls == 3 {
			return fmt.Errorf("size rejected")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, prim.HideRender)
	assert.True(t, prim.HideViewport)
}

func TestGenerateHairFraction(t *testing.T) {
	s := scene.New("test")
	prim := loadPrimitive(t, s, hairAsset)
	frac, err := newGenerator(s, 9).GenerateHairFraction(prim, "loop", 5, HairOptions{
		Diameter:     20,
		Jitter:       Range{Min: 0.8, Max: 1.2},
		LengthFactor: Range{Min: 0.3, Max: 1},
		Rotate:       true,
	})
	require.NoError(t, err)
	require.Equal(t, 5, frac.Len())

	seeds := map[uint32]bool{}
	for _, p := range frac.Particles {
		h, err := p.AsHair()
		require.NoError(t, err)
		assert.Greater(t, h.HairDiameter(), 20*math.Pow(0.8, 5)-1e-9)
		assert.Less(t, h.HairDiameter(), 20*math.Pow(1.2, 5)+1e-9)
		assert.GreaterOrEqual(t, h.HairLengthFactor(), 0.3)
		assert.Less(t, h.HairLengthFactor(), 1.0)
		seeds[p.Object().Hair.Seed] = true
	}
	assert.Len(t, seeds, 5)

	_, err = newGenerator(s, 1).GenerateHairFraction(loadPrimitive(t, s, meshAsset), "x", 1, HairOptions{Diameter: 1})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestPreconditions(t *testing.T) {
	s := scene.New("test")
	mesh := loadPrimitive(t, s, meshAsset)
	hair := loadPrimitive(t, s, hairAsset)

	_, err := Wrap(mesh).AsHair()
	assert.ErrorIs(t, err, ErrPrecondition)
	_, err = Wrap(hair).AsMesh()
	assert.ErrorIs(t, err, ErrPrecondition)

	h, err := Wrap(hair).AsHair()
	require.NoError(t, err)
	h.SetHairDiameter(4, 8)
	assert.Equal(t, 6.0, h.HairDiameter())
}

func TestHairSeedsCoverFullRange(t *testing.T) {
	s := scene.New("test")
	prim := loadPrimitive(t, s, hairAsset)
	frac, err := newGenerator(s, 11).Generate(prim, "fiber", 200, LogNormal{Dg: 10, SigmaG: 1.1})
	require.NoError(t, err)
	high := false
	for _, p := range frac.Particles {
		if p.Object().Hair.Seed > math.MaxInt32 {
			high = true
		}
		h, err := p.AsHair()
		require.NoError(t, err)
		assert.Equal(t, h.Object().Hair.RootDiameter, h.Object().Hair.TipDiameter)
	}
	assert.True(t, high, "seeds use the upper half of the uint32 range")
}

func TestPlaceRandomly(t *testing.T) {
	s := scene.New("test")
	prim := loadPrimitive(t, s, meshAsset)
	frac, err := newGenerator(s, 2).Generate(prim, "dark", 50, LogNormal{Dg: 10, SigmaG: 1.2})
	require.NoError(t, err)

	domain := geometry.DomainForResolution(1032, 825, 10)
	PlaceRandomly(rand.New(rand.NewSource(4)), frac.Particles, domain.Box, true)
	for _, p := range frac.Particles {
		loc := p.Location()
		assert.Equal(t, math.Trunc(loc.X), loc.X)
		assert.GreaterOrEqual(t, loc.X, -516.0)
		assert.Less(t, loc.X, 516.0)
		assert.GreaterOrEqual(t, loc.Y, -412.0)
		assert.Less(t, loc.Y, 412.0)
		assert.GreaterOrEqual(t, loc.Z, -10.0)
		assert.Less(t, loc.Z, 10.0)
	}
}

func TestPlaceOnHosts(t *testing.T) {
	s := scene.New("test")
	g := newGenerator(s, 8)
	fibers, err := g.GenerateHairFraction(loadPrimitive(t, s, hairAsset), "fiber", 3, HairOptions{Diameter: 10})
	require.NoError(t, err)
	clutter, err := g.Generate(loadPrimitive(t, s, meshAsset), "clutter", 10, LogNormal{Dg: 5, SigmaG: 1.1})
	require.NoError(t, err)

	hosts, err := AsHairs(fibers.Particles)
	require.NoError(t, err)
	require.NoError(t, PlaceOnHosts(g.Rand, clutter.Particles, hosts))

	var all []geometry.Point3D
	for _, h := range hosts {
		all = append(all, h.SplineVertices()...)
	}
	for _, c := range clutter.Particles {
		assert.Contains(t, all, c.Location())
	}

	_, err = AsHairs(clutter.Particles)
	assert.ErrorIs(t, err, ErrPrecondition)
}
