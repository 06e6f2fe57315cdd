package scene

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synthpic/pkg/geometry"
)

const sphereAsset = `
name: grain
kind: mesh
material:
  name: grain
  color: "#808080"
mesh:
  shape: sphere
  rings: 8
  segments: 12
  size: [2, 2, 2]
  deformation:
    strength: 0.1
    frequency: 0.5
`

func writeAsset(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "primitive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPrimitive(t *testing.T) {
	s := New("test")
	obj, err := s.LoadPrimitive(writeAsset(t, sphereAsset), true)
	require.NoError(t, err)
	assert.Equal(t, "grain", obj.Name)
	assert.Equal(t, KindMesh, obj.Kind)
	assert.True(t, obj.HideRender)
	assert.Empty(t, s.Renderable())
	require.NotNil(t, obj.Mesh.Deformation)

	again, err := s.LoadPrimitive(writeAsset(t, sphereAsset), false)
	require.NoError(t, err)
	assert.Equal(t, "grain.001", again.Name)
}

func TestLoadPrimitiveMissing(t *testing.T) {
	s := New("test")
	before, err := s.Digest()
	require.NoError(t, err)

	_, err = s.LoadPrimitive(filepath.Join(t.TempDir(), "nope.yaml"), true)
	assert.ErrorIs(t, err, ErrAssetNotFound)

	after, err := s.Digest()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLoadPrimitiveFS(t *testing.T) {
	fsys := fstest.MapFS{"grains/grain.yaml": {Data: []byte(sphereAsset)}}
	s := New("test")

	obj, err := s.LoadPrimitiveFS(fsys, "grains/grain.yaml", false)
	require.NoError(t, err)
	assert.Equal(t, "grain", obj.Name)
	assert.False(t, obj.HideRender)

	_, err = s.LoadPrimitiveFS(fsys, "grains/missing.yaml", false)
	assert.ErrorIs(t, err, ErrAssetNotFound)
	assert.Len(t, s.Objects, 1)
}

func TestDuplicateIsIndependent(t *testing.T) {
	s := New("test")
	src, err := s.LoadPrimitive(writeAsset(t, sphereAsset), false)
	require.NoError(t, err)
	src.SetProp("class", "dark")
	src.RigidBody = &RigidBody{Type: "ACTIVE"}

	dup, err := s.Duplicate(src, "grain000000")
	require.NoError(t, err)
	assert.Nil(t, dup.RigidBody)
	assert.Equal(t, "dark", dup.Props["class"])

	dup.Material.Color.R = 1
	dup.Mesh.Vertices[0].X = 42
	dup.Mesh.Deformation.Strength = 9
	dup.SetProp("class", "light")

	assert.NotEqual(t, uint8(1), src.Material.Color.R)
	assert.NotEqual(t, 42.0, src.Mesh.Vertices[0].X)
	assert.Equal(t, 0.1, src.Mesh.Deformation.Strength)
	assert.Equal(t, "dark", src.Props["class"])

	_, err = s.Duplicate(src, "grain000000")
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestDimensions(t *testing.T) {
	obj := &Object{Kind: KindMesh, Mesh: Box(geometry.NewPoint3D(2, 4, 6)), Transform: IdentityTransform()}
	obj.Transform.Scale = geometry.NewPoint3D(0.5, 1, 2)
	assert.InDeltaMapValues(t,
		map[string]float64{"x": 1, "y": 4, "z": 12},
		map[string]float64{"x": obj.Dimensions().X, "y": obj.Dimensions().Y, "z": obj.Dimensions().Z},
		1e-9)
}

func TestBakeMovesDeformationIntoVertices(t *testing.T) {
	m := UVSphere(6, 8, geometry.Uniform(2))
	m.Deformation = &Deformation{Strength: 0.2, Frequency: 1.3}
	live := m.Deformed(geometry.NewPoint3D(5, 0, 0))

	m.Bake(geometry.NewPoint3D(5, 0, 0))
	assert.Nil(t, m.Deformation)
	assert.Equal(t, live, m.Vertices)
}

func TestHairStrandDeterministic(t *testing.T) {
	h := &HairSystem{Seed: 7, ChildSeed: 9, Length: 100, ChildLength: 1, Segments: 10, RadiusScale: 1}
	a := h.Strand()
	b := h.Strand()
	assert.Equal(t, a, b)
	assert.Len(t, a, 11)

	h.ChildSeed = 10
	assert.NotEqual(t, a, h.Strand())
}

func TestWithTemporaryStateRestores(t *testing.T) {
	s := New("test")
	obj, err := s.LoadPrimitive(writeAsset(t, sphereAsset), false)
	require.NoError(t, err)
	before, err := s.Digest()
	require.NoError(t, err)
	dir := t.TempDir()

	boom := errors.New("boom")
	err = WithTemporaryState(s, dir, func() error {
		obj.HideRender = true
		obj.Material.Name = "black_mask_material"
		s.Render.ColorMode = ColorBW
		_, _ = s.Duplicate(obj, "extra")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	after, err := s.Digest()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Same(t, obj, s.Object("grain"), "handles survive a restore")
	assert.Nil(t, s.Object("extra"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWithTemporaryStateRestoresOnPanic(t *testing.T) {
	s := New("test")
	_, err := s.LoadPrimitive(writeAsset(t, sphereAsset), false)
	require.NoError(t, err)
	before, err := s.Digest()
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = WithTemporaryState(s, t.TempDir(), func() error {
			s.Objects[0].Transform.Location.X = 100
			panic("renderer crashed")
		})
	})

	after, err := s.Digest()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSetFrame(t *testing.T) {
	s := New("test")
	obj := &Object{Name: "a", Kind: KindMesh, Mesh: Box(geometry.Uniform(1)), Transform: IdentityTransform()}
	require.NoError(t, s.Link(obj))
	w := s.EnsureRigidBodyWorld()
	moved := IdentityTransform()
	moved.Location = geometry.NewPoint3D(3, 4, 0)
	w.Cache = []Frame{{Index: 5, Transforms: map[string]Transform{"a": moved}}}

	s.SetFrame(5)
	assert.Equal(t, 5, s.FrameCurrent)
	assert.Equal(t, moved, obj.Transform)
}

func TestUnlinkRemovesFromWorld(t *testing.T) {
	s := New("test")
	require.NoError(t, s.Link(&Object{Name: "a", Kind: KindMesh}))
	w := s.EnsureRigidBodyWorld()
	w.Collection = []string{"a"}

	require.NoError(t, s.Unlink("a"))
	assert.Empty(t, w.Collection)
	assert.ErrorIs(t, s.Unlink("a"), ErrNoObject)
}
