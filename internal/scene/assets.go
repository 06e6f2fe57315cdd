package scene

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"synthpic/pkg/colorutil"
	"synthpic/pkg/geometry"
)

// Asset is the on-disk description of a primitive template object.
type Asset struct {
	Name     string            `yaml:"name"`
	Kind     string            `yaml:"kind"` // mesh or hair
	Material MaterialAsset     `yaml:"material"`
	Mesh     *MeshAsset        `yaml:"mesh"`
	Hair     *HairAsset        `yaml:"hair"`
	Props    map[string]string `yaml:"props"`
}

// MaterialAsset is a named flat colour.
type MaterialAsset struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

// MeshAsset generates a closed triangle mesh.
type MeshAsset struct {
	Shape       string            `yaml:"shape"` // sphere, ellipsoid or box
	Rings       int               `yaml:"rings"`
	Segments    int               `yaml:"segments"`
	Size        []float64         `yaml:"size"`
	Smooth      bool              `yaml:"smooth"`
	Deformation *DeformationAsset `yaml:"deformation"`
}

// DeformationAsset configures the live displacement of a mesh primitive.
type DeformationAsset struct {
	Strength  float64 `yaml:"strength"`
	Frequency float64 `yaml:"frequency"`
	Seed      uint64  `yaml:"seed"`
}

// HairAsset configures a hair primitive.
type HairAsset struct {
	Diameter     float64 `yaml:"diameter"`
	RootDiameter float64 `yaml:"root_diameter"`
	TipDiameter  float64 `yaml:"tip_diameter"`
	Length       float64 `yaml:"length"`
	ChildLength  float64 `yaml:"child_length"`
	Segments     int     `yaml:"segments"`
	Kink         float64 `yaml:"kink"`
}

// ReadAsset parses a primitive asset file.
func ReadAsset(path string) (*Asset, error) {
	data, err := os.ReadFile(path)
	return parseAsset(path, data, err)
}

// ReadAssetFS parses a primitive asset from fsys.
func ReadAssetFS(fsys fs.FS, name string) (*Asset, error) {
	data, err := fs.ReadFile(fsys, name)
	return parseAsset(name, data, err)
}

func parseAsset(path string, data []byte, err error) (*Asset, error) {
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrAssetNotFound)
		}
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	var a Asset
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse asset %s: %w", path, err)
	}
	return &a, nil
}

// LoadPrimitive appends the template object described by the asset at path and returns it.
// A missing file fails with ErrAssetNotFound before the scene is touched.
func (s *Scene) LoadPrimitive(path string, hidden bool) (*Object, error) {
	a, err := ReadAsset(path)
	if err != nil {
		return nil, err
	}
	return s.linkAsset(path, a, hidden)
}

// LoadPrimitiveFS is LoadPrimitive for assets stored in fsys.
func (s *Scene) LoadPrimitiveFS(fsys fs.FS, name string, hidden bool) (*Object, error) {
	a, err := ReadAssetFS(fsys, name)
	if err != nil {
		return nil, err
	}
	return s.linkAsset(name, a, hidden)
}

func (s *Scene) linkAsset(path string, a *Asset, hidden bool) (*Object, error) {
	obj, err := a.Build()
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", path, err)
	}
	obj.Name = s.UniqueName(obj.Name)
	obj.HideRender = hidden
	obj.HideViewport = hidden
	if err := s.Link(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Build creates an unlinked object from the asset.
func (a *Asset) Build() (*Object, error) {
	name := a.Name
	if name == "" {
		name = "primitive"
	}
	obj := &Object{
		Name:      name,
		Transform: IdentityTransform(),
		Material: Material{
			Name:  a.Material.Name,
			Color: colorutil.ParseHex(a.Material.Color),
		},
	}
	if obj.Material.Name == "" {
		obj.Material.Name = name
	}
	if a.Material.Color == "" {
		obj.Material.Color = colorutil.Gray
	}
	for k, v := range a.Props {
		obj.SetProp(k, v)
	}

	switch strings.ToLower(a.Kind) {
	case "hair":
		if a.Hair == nil {
			return nil, errors.New("hair asset without hair settings")
		}
		obj.Kind = KindHair
		obj.Hair = a.Hair.build(name)
	case "mesh", "":
		if a.Mesh == nil {
			return nil, errors.New("mesh asset without mesh settings")
		}
		m, err := a.Mesh.build()
		if err != nil {
			return nil, err
		}
		obj.Kind = KindMesh
		obj.Mesh = m
	default:
		return nil, fmt.Errorf("unknown asset kind %q", a.Kind)
	}
	return obj, nil
}

func (h *HairAsset) build(name string) *HairSystem {
	root, tip := h.RootDiameter, h.TipDiameter
	if root == 0 && tip == 0 {
		root, tip = h.Diameter, h.Diameter
	}
	hs := &HairSystem{
		Name:         name + "_hair",
		Type:         "HAIR",
		RootDiameter: root,
		TipDiameter:  tip,
		RadiusScale:  1,
		Length:       h.Length,
		ChildLength:  h.ChildLength,
		Segments:     h.Segments,
		Kink:         h.Kink,
	}
	if hs.ChildLength == 0 {
		hs.ChildLength = 1
	}
	if hs.Segments == 0 {
		hs.Segments = 24
	}
	return hs
}

func (m *MeshAsset) build() (*Mesh, error) {
	size := geometry.Uniform(1)
	switch len(m.Size) {
	case 0:
	case 1:
		size = geometry.Uniform(m.Size[0])
	case 3:
		size = geometry.NewPoint3D(m.Size[0], m.Size[1], m.Size[2])
	default:
		return nil, fmt.Errorf("mesh size needs 1 or 3 values, got %d", len(m.Size))
	}

	var mesh *Mesh
	switch strings.ToLower(m.Shape) {
	case "sphere", "ellipsoid", "":
		rings, segments := m.Rings, m.Segments
		if rings < 3 {
			rings = 12
		}
		if segments < 3 {
			segments = 24
		}
		mesh = UVSphere(rings, segments, size)
	case "box", "cube":
		mesh = Box(size)
	default:
		return nil, fmt.Errorf("unknown mesh shape %q", m.Shape)
	}
	mesh.Smooth = m.Smooth
	if d := m.Deformation; d != nil {
		mesh.Deformation = &Deformation{Strength: d.Strength, Frequency: d.Frequency, Seed: d.Seed}
	}
	return mesh, nil
}

// UVSphere builds an ellipsoid with the given bounding size, centered on the origin.
func UVSphere(rings, segments int, size geometry.Point3D) *Mesh {
	r := size.Scale(0.5)
	m := &Mesh{}
	m.Vertices = append(m.Vertices, geometry.Point3D{Z: r.Z})
	for i := 1; i < rings; i++ {
		phi := math.Pi * float64(i) / float64(rings)
		for j := 0; j < segments; j++ {
			theta := 2 * math.Pi * float64(j) / float64(segments)
			m.Vertices = append(m.Vertices, geometry.Point3D{
				X: r.X * math.Sin(phi) * math.Cos(theta),
				Y: r.Y * math.Sin(phi) * math.Sin(theta),
				Z: r.Z * math.Cos(phi),
			})
		}
	}
	bottom := len(m.Vertices)
	m.Vertices = append(m.Vertices, geometry.Point3D{Z: -r.Z})

	ring := func(i, j int) int { return 1 + (i-1)*segments + j%segments }
	for j := 0; j < segments; j++ {
		m.Faces = append(m.Faces, [3]int{0, ring(1, j), ring(1, j+1)})
	}
	for i := 1; i < rings-1; i++ {
		for j := 0; j < segments; j++ {
			a, b := ring(i, j), ring(i, j+1)
			c, d := ring(i+1, j), ring(i+1, j+1)
			m.Faces = append(m.Faces, [3]int{a, c, d}, [3]int{a, d, b})
		}
	}
	for j := 0; j < segments; j++ {
		m.Faces = append(m.Faces, [3]int{bottom, ring(rings-1, j+1), ring(rings-1, j)})
	}
	return m
}

// Box builds an axis-aligned box with the given size, centered on the origin.
func Box(size geometry.Point3D) *Mesh {
	h := size.Scale(0.5)
	m := &Mesh{}
	for i := 0; i < 8; i++ {
		p := geometry.Point3D{X: -h.X, Y: -h.Y, Z: -h.Z}
		if i&1 != 0 {
			p.X = h.X
		}
		if i&2 != 0 {
			p.Y = h.Y
		}
		if i&4 != 0 {
			p.Z = h.Z
		}
		m.Vertices = append(m.Vertices, p)
	}
	m.Faces = [][3]int{
		{0, 2, 3}, {0, 3, 1}, // -Z
		{4, 5, 7}, {4, 7, 6}, // +Z
		{0, 1, 5}, {0, 5, 4}, // -Y
		{2, 6, 7}, {2, 7, 3}, // +Y
		{0, 4, 6}, {0, 6, 2}, // -X
		{1, 3, 7}, {1, 7, 5}, // +X
	}
	return m
}
