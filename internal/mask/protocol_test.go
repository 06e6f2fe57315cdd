package mask

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	synimage "synthpic/internal/image"
	"synthpic/internal/particle"
	"synthpic/internal/render"
	"synthpic/internal/scene"
	"synthpic/pkg/geometry"
)

func boxParticle(t *testing.T, s *scene.Scene, name string, size float64, at geometry.Point3D) *particle.Particle {
	t.Helper()
	o := &scene.Object{
		Name:      name,
		Kind:      scene.KindMesh,
		Transform: scene.IdentityTransform(),
		Mesh:      scene.Box(geometry.Uniform(size)),
		Material:  scene.Material{Name: name, Color: color.NRGBA{R: 120, G: 80, B: 40, A: 255}},
	}
	o.Transform.Location = at
	require.NoError(t, s.Link(o))
	p := particle.Wrap(o)
	p.SetClass("grain")
	return p
}

// testScene returns a 64x48 scene where c sits on top of a and hides it completely.
func testScene(t *testing.T) (*scene.Scene, []*particle.Particle) {
	t.Helper()
	s := scene.New("masks")
	s.Render.ResolutionX = 64
	s.Render.ResolutionY = 48
	a := boxParticle(t, s, "a", 10, geometry.Point3D{X: -15})
	b := boxParticle(t, s, "b", 10, geometry.Point3D{X: 15})
	c := boxParticle(t, s, "c", 20, geometry.Point3D{X: -15, Z: 5})
	return s, []*particle.Particle{a, b, c}
}

func loadGray(t *testing.T, path string) *image.Gray {
	t.Helper()
	layer, err := synimage.Load(path)
	require.NoError(t, err)
	return layer.Gray()
}

func TestRenderMasksBothStrategies(t *testing.T) {
	for _, strategy := range []Strategy{Material, Visibility} {
		t.Run(strategy.String(), func(t *testing.T) {
			s, particles := testScene(t)
			before, err := s.Digest()
			require.NoError(t, err)

			out := filepath.Join(t.TempDir(), "masks")
			p := &Protocol{Renderer: render.NewSoftware(nil), Strategy: strategy, TempDir: t.TempDir()}
			paths, err := p.RenderMasks(context.Background(), s, particles, "image000003", out)
			require.NoError(t, err)

			require.Len(t, paths, 3)
			for i, path := range paths {
				assert.Equal(t, filepath.Join(out, FileName("image000003", i)), path)
				assert.FileExists(t, path)
			}
			entries, err := os.ReadDir(out)
			require.NoError(t, err)
			assert.Len(t, entries, 3)

			after, err := s.Digest()
			require.NoError(t, err)
			assert.Equal(t, before, after)

			bMask := loadGray(t, paths[1])
			assert.Equal(t, uint8(255), bMask.GrayAt(47, 24).Y)
			assert.Equal(t, uint8(0), bMask.GrayAt(17, 24).Y)

			aMask := loadGray(t, paths[0])
			if strategy == Visibility {
				assert.Equal(t, uint8(255), aMask.GrayAt(17, 24).Y)
			} else {
				// occluded by c
				assert.Equal(t, uint8(0), aMask.GrayAt(17, 24).Y)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "image000000_mask000012.png", FileName("image000000", 12))
}

type failingRenderer struct {
	calls int
	after int
}

var errRender = errors.New("render failed")

func (f *failingRenderer) Render(ctx context.Context, s *scene.Scene) (image.Image, error) {
	f.calls++
	if f.calls > f.after {
		// mutate like a misbehaving renderer would
		s.Render.ResolutionX = 1
		return nil, errRender
	}
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}

func TestRenderMasksRestoresOnFailure(t *testing.T) {
	s, particles := testScene(t)
	before, err := s.Digest()
	require.NoError(t, err)

	tmp := t.TempDir()
	p := &Protocol{Renderer: &failingRenderer{after: 1}, TempDir: tmp}
	paths, err := p.RenderMasks(context.Background(), s, particles, "image000000", t.TempDir())
	assert.ErrorIs(t, err, errRender)
	assert.Len(t, paths, 1)

	after, err := s.Digest()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 64, s.Render.ResolutionX)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// handles still point at live objects
	assert.Same(t, s.Object("a"), particles[0].Object())
}

func TestRenderMasksNoParticles(t *testing.T) {
	s, _ := testScene(t)
	p := &Protocol{Renderer: render.NewSoftware(nil), TempDir: t.TempDir()}
	paths, err := p.RenderMasks(context.Background(), s, nil, "image000000", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("Visibility")
	require.NoError(t, err)
	assert.Equal(t, Visibility, s)
	s, err = ParseStrategy("occlusion")
	require.NoError(t, err)
	assert.Equal(t, Material, s)
	_, err = ParseStrategy("alpha")
	assert.Error(t, err)
}
