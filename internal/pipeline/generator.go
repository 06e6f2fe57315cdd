// Package pipeline drives image generation: it builds the particle scene for
// every image, renders and composites it and writes masks and annotations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"synthpic/internal/annotation"
	"synthpic/internal/config"
	synimage "synthpic/internal/image"
	"synthpic/internal/logging"
	"synthpic/internal/mask"
	"synthpic/internal/noise"
	"synthpic/internal/particle"
	"synthpic/internal/physics"
	"synthpic/internal/render"
	"synthpic/internal/scene"
)

// Generator produces the images of one configuration.
type Generator struct {
	Config *config.Config
	// NewScene creates the working scene. Defaults to scene.New.
	NewScene  func(name string) *scene.Scene
	Renderer  scene.Renderer
	Simulator scene.Simulator
	Masks     *mask.Protocol
	Catalog   *annotation.Catalog
	// FirstIndex offsets the image indices of Run.
	FirstIndex int
	Log        *slog.Logger

	scene *scene.Scene
	runID int64
}

// Result lists what GenerateImage wrote.
type Result struct {
	ID        string
	Seed      uint64
	Image     string
	Masks     []string
	Labels    string
	Splines   []string
	Records   string
	Particles int
}

// New builds a generator with the renderer, simulator and mask protocol the
// configuration asks for.
func New(cfg *config.Config, log *slog.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	renderer, err := NewRenderer(cfg, log)
	if err != nil {
		return nil, err
	}
	strategy, err := cfg.MaskStrategy()
	if err != nil {
		return nil, err
	}
	sim := physics.DefaultSimulator()
	sim.Log = log

	return &Generator{
		Config:    cfg,
		Renderer:  renderer,
		Simulator: sim,
		Masks: &mask.Protocol{
			Renderer: renderer,
			Strategy: strategy,
			TempDir:  cfg.TempDir,
			Log:      log,
		},
		Log: log,
	}, nil
}

// NewRenderer returns the software renderer or a command renderer.
func NewRenderer(cfg *config.Config, log *slog.Logger) (scene.Renderer, error) {
	if strings.EqualFold(cfg.Render.Renderer, "command") {
		cmd, err := render.ParseCommand(cfg.Render.Command)
		if err != nil {
			return nil, err
		}
		cmd.TempDir = cfg.TempDir
		cmd.Log = log
		return cmd, nil
	}
	return render.NewSoftware(log), nil
}

// Run generates n images (the configured count when n <= 0) one after the
// other and writes the manifest. A catalog is opened when configured and
// none was set.
func (g *Generator) Run(ctx context.Context, n int) (*Manifest, error) {
	cfg := g.Config
	log := logging.OrNop(g.Log)
	if n <= 0 {
		n = cfg.Images
	}

	out, err := cfg.ResolvedOutputDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	digest, err := cfg.Digest()
	if err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(out, ManifestFile)
	var m *Manifest
	if cfg.Annotations.Append {
		m, err = LoadManifest(manifestPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if m == nil {
		m = NewManifest(cfg.Name, digest, cfg.Seed)
	}

	if g.Catalog == nil && cfg.Annotations.Catalog != "" {
		path := cfg.Annotations.Catalog
		if !filepath.IsAbs(path) {
			path = filepath.Join(out, path)
		}
		cat, err := annotation.OpenCatalog(path)
		if err != nil {
			return nil, err
		}
		defer cat.Close()
		g.Catalog = cat
		defer func() { g.Catalog = nil }()
	}
	if g.Catalog != nil {
		g.runID, err = g.Catalog.BeginRun(ctx, cfg.Name, digest, time.Now())
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		res, err := g.GenerateImage(ctx, g.FirstIndex+i)
		if err != nil {
			return m, fmt.Errorf("image %d: %w", g.FirstIndex+i, err)
		}
		m.AddImage(manifestPath, ImageEntry{
			ID:        res.ID,
			Seed:      res.Seed,
			Image:     res.Image,
			Particles: res.Particles,
			Masks:     len(res.Masks),
			Splines:   len(res.Splines),
		})
		if err := m.Save(manifestPath); err != nil {
			return m, fmt.Errorf("failed to save manifest: %w", err)
		}
	}

	log.Info("run complete", "images", n, "output", out, "elapsed", time.Since(start).Round(time.Millisecond))
	return m, nil
}

// GenerateImage builds, renders and annotates the image with the given
// index. The working scene is left as it was before the call.
func (g *Generator) GenerateImage(ctx context.Context, index int) (*Result, error) {
	cfg := g.Config
	log := logging.OrNop(g.Log)
	if g.Renderer == nil {
		return nil, errors.New("generate: no renderer")
	}

	out, err := cfg.ResolvedOutputDir()
	if err != nil {
		return nil, err
	}
	id := cfg.ImageID(index)
	seed := cfg.Seed + uint64(index)
	rng := rand.New(rand.NewSource(seed))
	dir := filepath.Join(out, id)
	res := &Result{ID: id, Seed: seed}

	s := g.workingScene()
	err = scene.WithTemporaryState(s, cfg.TempDir, func() error {
		if err := cfg.Render.Apply(&s.Render, cfg.Resolution); err != nil {
			return err
		}
		prims, err := g.loadPrimitives(s)
		if err != nil {
			return err
		}

		groups, err := g.generateFractions(s, rng, prims)
		if err != nil {
			return err
		}
		if err := g.place(s, rng, groups); err != nil {
			return err
		}
		var all []*particle.Particle
		for _, gr := range groups {
			all = append(all, gr.particles...)
		}
		res.Particles = len(all)

		if cfg.Relaxation.Enabled && len(all) > 0 {
			opts, err := cfg.RelaxOptions()
			if err != nil {
				return err
			}
			if err := physics.Relax(ctx, s, g.simulator(), all, opts); err != nil {
				return err
			}
		}

		img, err := g.Renderer.Render(ctx, s)
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		final, err := g.composite(img, rng)
		if err != nil {
			return err
		}
		res.Image = filepath.Join(dir, "images", id+".png")
		if err := synimage.Save(res.Image, final); err != nil {
			return err
		}

		annotated := make([]*particle.Particle, 0, len(all))
		for _, p := range all {
			if c, ok := p.Class(); !ok || cfg.Annotations.Annotated(c) {
				annotated = append(annotated, p)
			}
		}

		if cfg.Masks.Enabled {
			res.Masks, err = g.maskProtocol().RenderMasks(ctx, s, annotated, id, filepath.Join(dir, "masks"))
			if err != nil {
				return fmt.Errorf("masks: %w", err)
			}
		}

		if err := g.annotate(ctx, s, res, dir, annotated); err != nil {
			return err
		}

		objs := make([]*scene.Object, len(all))
		for i, p := range all {
			objs[i] = p.Object()
		}
		return s.Delete(objs...)
	})
	if err != nil {
		return nil, err
	}

	log.Info("generated image", "id", id, "particles", res.Particles, "masks", len(res.Masks))
	return res, nil
}

func (g *Generator) workingScene() *scene.Scene {
	if g.scene == nil {
		newScene := g.NewScene
		if newScene == nil {
			newScene = scene.New
		}
		g.scene = newScene(g.Config.Name)
	}
	return g.scene
}

func (g *Generator) simulator() scene.Simulator {
	if g.Simulator == nil {
		g.Simulator = physics.DefaultSimulator()
	}
	return g.Simulator
}

func (g *Generator) maskProtocol() *mask.Protocol {
	if g.Masks == nil {
		strategy, _ := g.Config.MaskStrategy()
		g.Masks = &mask.Protocol{Renderer: g.Renderer, Strategy: strategy, TempDir: g.Config.TempDir, Log: g.Log}
	}
	return g.Masks
}

// loadPrimitives links every primitive the fractions use, hidden. Any missing
// asset fails the image before a particle is created.
func (g *Generator) loadPrimitives(s *scene.Scene) (map[string]*scene.Object, error) {
	prims := map[string]*scene.Object{}
	for _, f := range g.Config.Fractions {
		for _, m := range f.Members() {
			if _, ok := prims[m.Primitive]; ok {
				continue
			}
			path, err := g.Config.PrimitivePath(m.Primitive)
			if err != nil {
				return nil, err
			}
			var obj *scene.Object
			if name, ok := strings.CutPrefix(path, config.BuiltinPrefix); ok {
				obj, err = s.LoadPrimitiveFS(config.Assets(), name, true)
			} else {
				obj, err = s.LoadPrimitive(path, true)
			}
			if err != nil {
				return nil, fmt.Errorf("primitive %s: %w", m.Primitive, err)
			}
			prims[m.Primitive] = obj
		}
	}
	return prims, nil
}

type group struct {
	fraction  config.Fraction
	particles []*particle.Particle
}

func (g *Generator) generateFractions(s *scene.Scene, rng *rand.Rand, prims map[string]*scene.Object) ([]group, error) {
	cfg := g.Config
	gen := &particle.Generator{Scene: s, Rand: rng, Log: g.Log}

	var shared float64
	if cfg.HairDiameter != nil {
		shared = cfg.HairDiameter.Sample(rng)
	}

	groups := make([]group, 0, len(cfg.Fractions))
	for _, f := range cfg.Fractions {
		members := f.Members()
		counts := splitCount(rng, f.Count.Sample(rng), members)
		gr := group{fraction: f}

		for i, m := range members {
			prim := prims[m.Primitive]
			var frac *particle.Fraction
			var err error
			if f.Hair != nil {
				d := shared
				if f.Hair.Diameter != nil {
					d = f.Hair.Diameter.Sample(rng)
				}
				if d == 0 && prim.Hair != nil {
					d = prim.Hair.Diameter()
				}
				frac, err = gen.GenerateHairFraction(prim, m.Class, counts[i], particle.HairOptions{
					Diameter:     d,
					Jitter:       f.Hair.Jitter.Particle(),
					LengthFactor: f.Hair.LengthFactor.Particle(),
					Rotate:       true,
				})
			} else {
				var dist particle.SizeDistribution
				dist, err = f.Size.Distribution()
				if err == nil {
					frac, err = gen.Generate(prim, m.Class, counts[i], dist)
				}
			}
			if err != nil {
				return nil, fmt.Errorf("fraction %s: %w", f.Key(), err)
			}
			if f.Smooth {
				for _, p := range frac.Particles {
					if mesh, err := p.AsMesh(); err == nil {
						mesh.SetSmoothShading(true)
					}
				}
			}
			gr.particles = append(gr.particles, frac.Particles...)
		}
		groups = append(groups, gr)
	}
	return groups, nil
}

// splitCount assigns each of total particles to a member, weighted.
func splitCount(rng *rand.Rand, total int, members []config.ClassWeight) []int {
	counts := make([]int, len(members))
	if len(members) == 1 {
		counts[0] = total
		return counts
	}
	weights := make([]float64, len(members))
	var sum float64
	for i, m := range members {
		weights[i] = m.Weight
		sum += m.Weight
	}
	if sum <= 0 {
		for i := range weights {
			weights[i] = 1
		}
	}
	pick := distuv.NewCategorical(weights, rng)
	for i := 0; i < total; i++ {
		counts[int(pick.Rand())]++
	}
	return counts
}

func (g *Generator) place(s *scene.Scene, rng *rand.Rand, groups []group) error {
	domain := s.Render.Domain(g.Config.Depth)
	byKey := map[string][]*particle.Particle{}
	for _, gr := range groups {
		f := gr.fraction
		switch strings.ToLower(f.Placement.Mode) {
		case "", "random":
			particle.PlaceRandomly(rng, gr.particles, domain.Box, f.Placement.Rotate)
		case "hosts":
			hosts, err := particle.AsHairs(byKey[f.Placement.Hosts])
			if err != nil {
				return fmt.Errorf("hosts of %s: %w", f.Key(), err)
			}
			if err := particle.PlaceOnHosts(rng, gr.particles, hosts); err != nil {
				return fmt.Errorf("place %s: %w", f.Key(), err)
			}
		}
		byKey[f.Key()] = append(byKey[f.Key()], gr.particles...)
	}
	return nil
}

// composite layers the render over generated noise and converts it to
// greyscale. Without compositing the render is returned unchanged.
func (g *Generator) composite(img image.Image, rng *rand.Rand) (image.Image, error) {
	c := g.Config.Compositing
	if !c.Enabled {
		return img, nil
	}

	layer, err := synimage.PostProcessParticles(synimage.ToNRGBA(img), synimage.PostProcess{
		Contrast:   c.Particles.Contrast,
		Brightness: c.Particles.Brightness,
		BlurRadius: c.Particles.Blur,
	})
	if err != nil {
		return nil, fmt.Errorf("post-process particles: %w", err)
	}

	b := layer.Bounds()
	layers := make([]*image.NRGBA, 3)
	for i, nl := range []config.NoiseLayer{c.Background, c.BackgroundNoise, c.FineNoise} {
		opts, err := nl.Options(b.Dx(), b.Dy())
		if err != nil {
			return nil, err
		}
		layers[i], err = noise.Generate(opts, rng)
		if err != nil {
			return nil, fmt.Errorf("noise layer %d: %w", i, err)
		}
	}

	final, err := synimage.Compositor{
		BackgroundNoiseWeight: c.BackgroundNoiseWeight,
		FineNoiseWeight:       c.FineNoiseWeight,
	}.Compose(layers[0], layers[1], layer, layers[2])
	if err != nil {
		return nil, err
	}
	return synimage.Gray(final), nil
}

func (g *Generator) annotate(ctx context.Context, s *scene.Scene, res *Result, dir string, particles []*particle.Particle) error {
	cfg := g.Config
	a := cfg.Annotations
	w := &annotation.Writer{Dir: dir, Append: a.Append, Log: g.Log}

	if a.Labels {
		path, err := w.WriteLabels(particles)
		if err != nil {
			return err
		}
		res.Labels = path
	}

	records, splines, err := annotation.Collect(particles, s.Render.ImageDomain(cfg.Depth), res.Masks)
	if err != nil {
		return err
	}
	if a.Splines {
		res.Splines, err = w.WriteSplines(res.ID, splines)
		if err != nil {
			return err
		}
	}
	if a.Records {
		res.Records, err = w.WriteRecords(res.ID, records)
		if err != nil {
			return err
		}
	}

	if g.Catalog != nil {
		out, err := cfg.ResolvedOutputDir()
		if err != nil {
			return err
		}
		path := res.Image
		if rel, err := filepath.Rel(out, res.Image); err == nil {
			path = rel
		}
		if err := g.Catalog.AddImage(ctx, g.runID, res.ID, path, res.Seed, records); err != nil {
			return err
		}
	}
	return nil
}
