package annotation

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synthpic/internal/particle"
	"synthpic/internal/scene"
	"synthpic/pkg/geometry"
)

func meshParticle(t *testing.T, s *scene.Scene, name, class string) *particle.Particle {
	t.Helper()
	o := &scene.Object{Name: name, Kind: scene.KindMesh, Transform: scene.IdentityTransform(), Mesh: scene.Box(geometry.Uniform(4))}
	require.NoError(t, s.Link(o))
	p := particle.Wrap(o)
	if class != "" {
		p.SetClass(class)
	}
	return p
}

func hairParticle(t *testing.T, s *scene.Scene, name string, at geometry.Point3D) *particle.Particle {
	t.Helper()
	o := &scene.Object{
		Name:      name,
		Kind:      scene.KindHair,
		Transform: scene.IdentityTransform(),
		Hair: &scene.HairSystem{
			Seed: 5, ChildSeed: 9, RootDiameter: 6, TipDiameter: 6, RadiusScale: 1,
			Length: 40, ChildLength: 1, Segments: 8, Kink: 0.2,
		},
	}
	o.Transform.Location = at
	require.NoError(t, s.Link(o))
	p := particle.Wrap(o)
	p.SetClass("fiber")
	return p
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestWriteLabels(t *testing.T) {
	s := scene.New("labels")
	ps := []*particle.Particle{
		meshParticle(t, s, "a", "dark"),
		meshParticle(t, s, "b", "light"),
	}
	w := &Writer{Dir: t.TempDir()}

	path, err := w.WriteLabels(ps)
	require.NoError(t, err)
	assert.Equal(t, []string{"dark", "light"}, readLines(t, path))

	_, err = w.WriteLabels(ps[:1])
	require.NoError(t, err)
	assert.Equal(t, []string{"dark"}, readLines(t, path))

	w.Append = true
	_, err = w.WriteLabels(ps[1:])
	require.NoError(t, err)
	assert.Equal(t, []string{"dark", "light"}, readLines(t, path))
}

func TestWriteLabelsMissingClass(t *testing.T) {
	s := scene.New("labels")
	ps := []*particle.Particle{meshParticle(t, s, "a", "dark"), meshParticle(t, s, "b", "")}
	dir := t.TempDir()
	w := &Writer{Dir: dir}

	_, err := w.WriteLabels(ps)
	assert.ErrorIs(t, err, ErrMissingClass)
	assert.NoFileExists(t, filepath.Join(dir, LabelsFile))

	_, _, err = Collect(ps, geometry.DomainForResolution(64, 48, 10), nil)
	assert.ErrorIs(t, err, ErrMissingClass)
}

func TestWriteSplinesContiguous(t *testing.T) {
	dir := t.TempDir()
	w := &Writer{Dir: dir}
	records := []SplineRecord{
		{Keypoints: []geometry.Point2D{{X: 1, Y: 2}, {X: 3.5, Y: 4}}, Width: 6},
		{},
		{Keypoints: []geometry.Point2D{{X: 10, Y: 20}}, Width: 2.25},
	}
	paths, err := w.WriteSplines("image000001", records)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "image000001_spline000000.csv"),
		filepath.Join(dir, "image000001_spline000001.csv"),
	}, paths)
	assert.NoFileExists(t, filepath.Join(dir, "image000001_spline000002.csv"))

	f, err := os.Open(paths[0])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"x", "y", "width"}, {"1", "2", "6"}, {"3.5", "4", "6"}}, rows)

	assert.Equal(t, []string{"x,y,width", "10,20,2.25"}, readLines(t, paths[1]))
}

func TestCollectAndWriteRecords(t *testing.T) {
	s := scene.New("records")
	domain := geometry.DomainForResolution(200, 100, 10)
	ps := []*particle.Particle{
		meshParticle(t, s, "grain", "light"),
		hairParticle(t, s, "inside", geometry.Point3D{}),
		hairParticle(t, s, "outside", geometry.Point3D{X: 5000}),
	}
	masks := []string{"/x/image000000_mask000000.png", "/x/image000000_mask000001.png"}

	records, splines, err := Collect(ps, domain, masks)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Len(t, splines, 2)

	assert.Equal(t, "grain", records[0].Name)
	assert.Equal(t, "MESH", records[0].Kind)
	assert.InDelta(t, 4, records[0].Diameter, 1e-9)
	assert.Equal(t, "image000000_mask000001.png", records[1].Mask)
	assert.Empty(t, records[2].Mask)

	assert.NotEmpty(t, splines[0].Keypoints)
	assert.Empty(t, splines[1].Keypoints)
	assert.InDelta(t, 6, splines[0].Width, 1e-9)
	assert.Greater(t, splines[0].Length, 0.0)
	assert.InDelta(t, splines[0].Length, splines[1].Length, 1e-6)

	w := &Writer{Dir: t.TempDir()}
	paths, err := w.WriteSplines("image000000", splines)
	require.NoError(t, err)
	assert.Len(t, paths, 1)

	path, err := w.WriteRecords("image000000", records)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, records, decoded)
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "catalog.sqlite")
	c, err := OpenCatalog(path)
	require.NoError(t, err)
	defer c.Close()

	run, err := c.BeginRun(ctx, "sopat", "abc123", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)

	recs := []Record{
		{Index: 0, Name: "dark000000", Class: "dark", Kind: "MESH", Diameter: 50},
		{Index: 1, Name: "light000000", Class: "light", Kind: "MESH", Diameter: 48},
		{Index: 2, Name: "light000001", Class: "light", Kind: "MESH", Diameter: 51},
	}
	require.NoError(t, c.AddImage(ctx, run, "image000000", "image000000/images/image000000.png", 0, recs))
	require.NoError(t, c.AddImage(ctx, run, "image000001", "image000001/images/image000001.png", 1, recs[:1]))
	// replacing an image drops its previous particles
	require.NoError(t, c.AddImage(ctx, run, "image000001", "image000001/images/image000001.png", 1, recs[1:2]))

	counts, err := c.ClassCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"dark": 1, "light": 3}, counts)

	ids, err := c.Images(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, []string{"image000000", "image000001"}, ids)
}
