package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"synthpic/internal/annotation"
	"synthpic/internal/config"
	synimage "synthpic/internal/image"
	"synthpic/internal/mask"
	"synthpic/internal/scene"
)

const grainAsset = `name: grain
kind: mesh
material: {name: grain, color: "#8a7a66"}
mesh:
  shape: sphere
  rings: 8
  segments: 12
  size: [1, 1, 1]
`

// writeRun writes a grain primitive and a run configuration into a fresh
// directory and loads it.
func writeRun(t *testing.T, run string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "grain.yaml"), []byte(grainAsset), 0o644))
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(run), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.TempDir = t.TempDir()
	return cfg
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestRunEndToEnd(t *testing.T) {
	cfg := writeRun(t, `
name: grains
resolution: {width: 1032, height: 825}
fractions:
  - class: grain
    primitive: assets/grain.yaml
    count: 10
    size: {distribution: lognormal, d_g: 50, sigma_g: 1.6}
    placement: {mode: random, rotate: true}
masks: {enabled: true, strategy: material}
`)
	g, err := New(cfg, nil)
	require.NoError(t, err)

	m, err := g.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"image000000"}, m.IDs())

	root := filepath.Join(cfg.OutputDir, "image000000")
	assert.FileExists(t, filepath.Join(root, "images", "image000000.png"))

	masks, err := os.ReadDir(filepath.Join(root, "masks"))
	require.NoError(t, err)
	require.Len(t, masks, 10)
	assert.Equal(t, mask.FileName("image000000", 0), masks[0].Name())
	assert.Equal(t, mask.FileName("image000000", 9), masks[9].Name())

	labels := readLines(t, filepath.Join(root, annotation.LabelsFile))
	assert.Equal(t, strings.Split(strings.Repeat("grain ", 10), " ")[:10], labels)
	assert.FileExists(t, filepath.Join(root, annotation.RecordsFileName("image000000")))

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one image directory and the manifest")

	loaded, err := LoadManifest(filepath.Join(cfg.OutputDir, ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, "grains", loaded.Name)
	require.Len(t, loaded.Images, 1)
	assert.Equal(t, 10, loaded.Images[0].Particles)
	assert.Equal(t, 10, loaded.Images[0].Masks)
	assert.Equal(t, filepath.Join("image000000", "images", "image000000.png"), loaded.Images[0].Image)

	assert.Empty(t, g.scene.Objects, "working scene is restored")
	tmp, err := os.ReadDir(cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, tmp)
}

func TestGenerateImageDeterministic(t *testing.T) {
	run := `
resolution: {width: 128, height: 96}
seed: 7
fractions:
  - class: grain
    primitive: assets/grain.yaml
    count: 6
    size: {d_g: 12, sigma_g: 1.3}
relaxation: {enabled: true, damping: 1, shape: sphere, frames: 3}
masks: {enabled: false}
`
	render := func() []byte {
		cfg := writeRun(t, run)
		g, err := New(cfg, nil)
		require.NoError(t, err)
		res, err := g.GenerateImage(context.Background(), 2)
		require.NoError(t, err)
		assert.Equal(t, "image000002", res.ID)
		assert.Equal(t, uint64(9), res.Seed)
		data, err := os.ReadFile(res.Image)
		require.NoError(t, err)
		return data
	}
	assert.Equal(t, render(), render())
}

func TestGenerateImageMissingPrimitive(t *testing.T) {
	cfg := writeRun(t, `
resolution: {width: 64, height: 48}
fractions:
  - class: grain
    primitive: assets/grain.yaml
    count: 3
    size: {d_g: 8, sigma_g: 1.2}
  - class: ghost
    primitive: assets/missing.yaml
    count: 3
    size: {d_g: 8, sigma_g: 1.2}
`)
	g, err := New(cfg, nil)
	require.NoError(t, err)

	_, err = g.GenerateImage(context.Background(), 0)
	require.ErrorIs(t, err, scene.ErrAssetNotFound)
	assert.Empty(t, g.scene.Objects)
	assert.NoDirExists(t, filepath.Join(cfg.OutputDir, "image000000"))
}

func TestRunCNTPreset(t *testing.T) {
	cfg, err := config.Preset("cnt-sem")
	require.NoError(t, err)
	cfg.Resolution = config.Resolution{Width: 160, Height: 120, Percent: 100}
	cfg.OutputDir = t.TempDir()
	cfg.TempDir = t.TempDir()
	cfg.Annotations.Catalog = "catalog.db"

	g, err := New(cfg, nil)
	require.NoError(t, err)
	m, err := g.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, m.Images, 1)

	id := m.Images[0].ID
	root := filepath.Join(cfg.OutputDir, id)
	assert.FileExists(t, filepath.Join(root, "images", id+".png"))
	assert.NoDirExists(t, filepath.Join(root, "masks"))

	labels := readLines(t, filepath.Join(root, annotation.LabelsFile))
	require.NotEmpty(t, labels, "at least one fiber per image")
	for _, l := range labels {
		assert.Contains(t, []string{"loop", "noloop"}, l)
	}
	assert.LessOrEqual(t, m.Images[0].Splines, len(labels))
	for i := 0; i < m.Images[0].Splines; i++ {
		assert.FileExists(t, filepath.Join(root, annotation.SplineFileName(id, i)))
	}

	cat, err := annotation.OpenCatalog(filepath.Join(cfg.OutputDir, "catalog.db"))
	require.NoError(t, err)
	defer cat.Close()
	counts, err := cat.ClassCounts(context.Background())
	require.NoError(t, err)
	var total int
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, len(labels), total)
}

func TestRunScaledSplinesInsideImage(t *testing.T) {
	cfg, err := config.Preset("cnt-sem")
	require.NoError(t, err)
	cfg.Resolution = config.Resolution{Width: 320, Height: 240, Percent: 50}
	cfg.OutputDir = t.TempDir()
	cfg.TempDir = t.TempDir()

	g, err := New(cfg, nil)
	require.NoError(t, err)
	m, err := g.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, m.Images, 1)

	id := m.Images[0].ID
	root := filepath.Join(cfg.OutputDir, id)
	layer, err := synimage.Load(filepath.Join(root, "images", id+".png"))
	require.NoError(t, err)
	bounds := layer.Image.Bounds()
	require.Equal(t, 160, bounds.Dx())
	require.Equal(t, 120, bounds.Dy())

	require.NotZero(t, m.Images[0].Splines)
	var maxX, maxY float64
	for i := 0; i < m.Images[0].Splines; i++ {
		f, err := os.Open(filepath.Join(root, annotation.SplineFileName(id, i)))
		require.NoError(t, err)
		rows, err := csv.NewReader(f).ReadAll()
		f.Close()
		require.NoError(t, err)
		require.Equal(t, []string{"x", "y", "width"}, rows[0])
		for _, row := range rows[1:] {
			x, err := strconv.ParseFloat(row[0], 64)
			require.NoError(t, err)
			y, err := strconv.ParseFloat(row[1], 64)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, x, 0.0)
			assert.Less(t, x, float64(bounds.Dx()))
			assert.GreaterOrEqual(t, y, 0.0)
			assert.Less(t, y, float64(bounds.Dy()))
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	assert.Greater(t, maxX+maxY, 0.0)
}

func TestRunAppendsManifest(t *testing.T) {
	cfg := writeRun(t, `
resolution: {width: 64, height: 48}
fractions:
  - class: grain
    primitive: assets/grain.yaml
    count: 2
    size: {d_g: 8, sigma_g: 1.2}
masks: {enabled: false}
annotations: {append: true, labels: true}
`)
	g, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = g.Run(context.Background(), 2)
	require.NoError(t, err)

	g.FirstIndex = 2
	m, err := g.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"image000000", "image000001", "image000002"}, m.IDs())
}

func TestRunCanceled(t *testing.T) {
	cfg := writeRun(t, `
resolution: {width: 64, height: 48}
masks: {enabled: false}
`)
	g, err := New(cfg, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Run(ctx, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitCount(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	assert.Equal(t, []int{5}, splitCount(rng, 5, []config.ClassWeight{{Class: "a", Weight: 1}}))

	counts := splitCount(rng, 200, []config.ClassWeight{{Class: "a", Weight: 1}, {Class: "b", Weight: 3}})
	assert.Equal(t, 200, counts[0]+counts[1])
	assert.Less(t, counts[0], counts[1])

	counts = splitCount(rng, 10, []config.ClassWeight{{Class: "a"}, {Class: "b"}})
	assert.Equal(t, 10, counts[0]+counts[1])
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFile)
	m := NewManifest("run", "abc", 4)
	m.AddImage(path, ImageEntry{ID: "image000000", Image: filepath.Join(dir, "image000000", "images", "image000000.png")})
	m.AddImage(path, ImageEntry{ID: "image000001", Image: filepath.Join(dir, "x.png")})
	m.AddImage(path, ImageEntry{ID: "image000000", Image: filepath.Join(dir, "y.png"), Particles: 3})
	require.NoError(t, m.Save(path))

	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"image000000", "image000001"}, loaded.IDs())
	assert.Equal(t, "y.png", loaded.Images[0].Image)
	assert.Equal(t, 3, loaded.Images[0].Particles)
	assert.Equal(t, filepath.Join(dir, "x.png"), loaded.ImagePath(path, "image000001"))
	assert.Empty(t, loaded.ImagePath(path, "nope"))
	assert.Equal(t, "abc", loaded.ConfigDigest)
	assert.Contains(t, loaded.Tool, "synthpic")
}
