// Package config loads run configurations: what to generate, how to render
// it and where to write the results.
package config

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/yaml.v3"

	"synthpic/internal/particle"
)

//go:embed presets/*.yaml presets/primitives
var presetFS embed.FS

// BuiltinPrefix marks primitive paths that refer to the embedded asset library.
const BuiltinPrefix = "builtin:"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is a complete generation run.
type Config struct {
	Name      string `yaml:"name"`
	OutputDir string `yaml:"output_dir"`
	Images    int    `yaml:"images"`
	Seed      uint64 `yaml:"seed"`
	IDPrefix  string `yaml:"id_prefix"`
	TempDir   string `yaml:"temp_dir,omitempty"`

	Resolution Resolution `yaml:"resolution"`
	// Depth is the half extent of the placement volume along Z.
	Depth  float64 `yaml:"depth"`
	Render Render  `yaml:"render"`

	// HairDiameter is drawn once per image and shared by every hair fraction
	// that does not set its own diameter.
	HairDiameter *Range `yaml:"hair_diameter,omitempty"`

	Fractions   []Fraction  `yaml:"fractions"`
	Relaxation  Relaxation  `yaml:"relaxation"`
	Masks       Masks       `yaml:"masks"`
	Compositing Compositing `yaml:"compositing"`
	Annotations Annotations `yaml:"annotations"`

	baseDir string
}

// Resolution is the output size before the percentage is applied.
type Resolution struct {
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
	Percent int `yaml:"percent"`
}

// Render selects the renderer and its quality settings.
type Render struct {
	Renderer    string         `yaml:"renderer"` // software or command
	Command     string         `yaml:"command,omitempty"`
	Engine      string         `yaml:"engine"` // fast, quality or flat
	Samples     map[string]int `yaml:"samples"`
	Shading     string         `yaml:"shading"` // lit or flat
	Transparent bool           `yaml:"transparent"`
	AntiAlias   bool           `yaml:"anti_alias"`
	Background  string         `yaml:"background"`
}

// Range is a closed-open interval for uniform draws.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Particle converts the range for the particle package.
func (r Range) Particle() particle.Range {
	return particle.Range{Min: r.Min, Max: r.Max}
}

// Sample draws uniformly from the range.
func (r Range) Sample(rng *rand.Rand) float64 {
	return r.Particle().Sample(rng)
}

// Count is the number of particles of a fraction. It is either a fixed
// number, a log-normal draw rounded up or an integer range [min, max).
type Count struct {
	N         int        `yaml:"n,omitempty"`
	LogNormal *LogNormal `yaml:"lognormal,omitempty"`
	Range     *[2]int    `yaml:"range,omitempty"`
}

// LogNormal holds the parameters of ln(x) ~ N(Mu, Sigma).
type LogNormal struct {
	Mu    float64 `yaml:"mu"`
	Sigma float64 `yaml:"sigma"`
}

// UnmarshalYAML accepts a bare integer as a fixed count.
func (c *Count) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&c.N)
	}
	type plain Count
	return node.Decode((*plain)(c))
}

// Sample draws the count for one image.
func (c Count) Sample(rng *rand.Rand) int {
	switch {
	case c.LogNormal != nil:
		v := distuv.LogNormal{Mu: c.LogNormal.Mu, Sigma: c.LogNormal.Sigma, Src: rng}.Rand()
		return int(math.Ceil(v))
	case c.Range != nil:
		lo, hi := c.Range[0], c.Range[1]
		if hi <= lo {
			return lo
		}
		return lo + rng.Intn(hi-lo)
	default:
		return c.N
	}
}

// Size is the diameter distribution of a mesh fraction.
type Size struct {
	Kind   string  `yaml:"distribution"` // lognormal or uniform
	Dg     float64 `yaml:"d_g,omitempty"`
	SigmaG float64 `yaml:"sigma_g,omitempty"`
	Min    float64 `yaml:"min,omitempty"`
	Max    float64 `yaml:"max,omitempty"`
}

// Distribution returns the particle size distribution.
func (s Size) Distribution() (particle.SizeDistribution, error) {
	switch strings.ToLower(s.Kind) {
	case "", "lognormal", "log-normal":
		d := particle.LogNormal{Dg: s.Dg, SigmaG: s.SigmaG}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		return d, nil
	case "uniform":
		if s.Max < s.Min || s.Min < 0 {
			return nil, fmt.Errorf("uniform size needs 0 <= min <= max, got [%g, %g)", s.Min, s.Max)
		}
		return particle.Uniform{Min: s.Min, Max: s.Max}, nil
	}
	return nil, fmt.Errorf("unknown size distribution %q", s.Kind)
}

// Hair configures a fiber fraction.
type Hair struct {
	Diameter     *Range `yaml:"diameter,omitempty"`
	Jitter       Range  `yaml:"jitter"`
	LengthFactor Range  `yaml:"length_factor"`
}

// ClassWeight is one class of a mixed fraction.
type ClassWeight struct {
	Class     string  `yaml:"class"`
	Primitive string  `yaml:"primitive"`
	Weight    float64 `yaml:"weight"`
}

// Placement positions the particles of a fraction.
type Placement struct {
	Mode   string `yaml:"mode"` // random, hosts or none
	Rotate bool   `yaml:"rotate"`
	Hosts  string `yaml:"hosts,omitempty"`
}

// Fraction is one population of particles.
type Fraction struct {
	Name      string        `yaml:"name,omitempty"`
	Class     string        `yaml:"class,omitempty"`
	Primitive string        `yaml:"primitive,omitempty"`
	Classes   []ClassWeight `yaml:"classes,omitempty"`
	Count     Count         `yaml:"count"`
	Size      *Size         `yaml:"size,omitempty"`
	Hair      *Hair         `yaml:"hair,omitempty"`
	Smooth    bool          `yaml:"smooth,omitempty"`
	Placement Placement     `yaml:"placement"`
}

// Key names the fraction for host references.
func (f Fraction) Key() string {
	if f.Name != "" {
		return f.Name
	}
	return f.Class
}

// Members returns the classes of the fraction with their weights.
func (f Fraction) Members() []ClassWeight {
	if len(f.Classes) > 0 {
		return f.Classes
	}
	return []ClassWeight{{Class: f.Class, Primitive: f.Primitive, Weight: 1}}
}

// Relaxation configures collision relaxation.
type Relaxation struct {
	Enabled bool    `yaml:"enabled"`
	Damping float64 `yaml:"damping"`
	Shape   string  `yaml:"shape"`
	Frames  int     `yaml:"frames"`
}

// Masks configures mask rendering.
type Masks struct {
	Enabled  bool   `yaml:"enabled"`
	Strategy string `yaml:"strategy"`
}

// NoiseLayer describes one generated noise layer.
type NoiseLayer struct {
	Scale        float64 `yaml:"scale"`
	Distribution string  `yaml:"distribution"`
	Strength     float64 `yaml:"strength"`
	Contrast     float64 `yaml:"contrast"`
	Brightness   float64 `yaml:"brightness"`
	Seed         *uint64 `yaml:"seed,omitempty"`
}

// PostProcess adjusts the rendered particle layer before compositing.
type PostProcess struct {
	Contrast   float64 `yaml:"contrast"`
	Brightness float64 `yaml:"brightness"`
	Blur       float64 `yaml:"blur"`
}

// Compositing configures the layered final image. When disabled the render
// is saved as is.
type Compositing struct {
	Enabled               bool        `yaml:"enabled"`
	Background            NoiseLayer  `yaml:"background"`
	BackgroundNoise       NoiseLayer  `yaml:"background_noise"`
	FineNoise             NoiseLayer  `yaml:"fine_noise"`
	BackgroundNoiseWeight float64     `yaml:"background_noise_weight"`
	FineNoiseWeight       float64     `yaml:"fine_noise_weight"`
	Particles             PostProcess `yaml:"particles"`
}

// Annotations selects the ground truth written per image. Classes limits
// labels, masks, splines and records to particles of those classes.
type Annotations struct {
	Classes []string `yaml:"classes,omitempty"`
	Append  bool     `yaml:"append"`
	Labels  bool     `yaml:"labels"`
	Splines bool     `yaml:"splines"`
	Records bool     `yaml:"records"`
	Catalog string   `yaml:"catalog,omitempty"`
}

// Annotated reports whether particles of class get annotations.
func (a Annotations) Annotated(class string) bool {
	if len(a.Classes) == 0 {
		return true
	}
	for _, c := range a.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// Default returns a single-image run at 1032x825 with no fractions.
func Default() *Config {
	return &Config{
		Name:      "synthpic",
		OutputDir: "output",
		Images:    1,
		IDPrefix:  "image",
		Resolution: Resolution{
			Width:   1032,
			Height:  825,
			Percent: 100,
		},
		Depth: 10,
		Render: Render{
			Renderer:    "software",
			Engine:      "fast",
			Samples:     map[string]int{"fast": 1, "quality": 16},
			Shading:     "lit",
			Transparent: true,
			AntiAlias:   true,
			Background:  "#000000",
		},
		Relaxation: Relaxation{
			Damping: 1,
			Shape:   "SPHERE",
			Frames:  10,
		},
		Masks: Masks{
			Enabled:  true,
			Strategy: "material",
		},
		Compositing: Compositing{
			Background:            NoiseLayer{Scale: 200, Strength: 0.1, Contrast: 0.2, Brightness: 0.6},
			BackgroundNoise:       NoiseLayer{Scale: 20, Strength: 0.1, Contrast: 0.2, Brightness: 0.6},
			FineNoise:             NoiseLayer{Scale: 1, Strength: 0.075, Contrast: 1, Brightness: 1},
			BackgroundNoiseWeight: 0.2,
			FineNoiseWeight:       0.2,
			Particles:             PostProcess{Contrast: 1.5, Brightness: 2.2, Blur: 1.5},
		},
		Annotations: Annotations{
			Labels:  true,
			Splines: true,
			Records: true,
		},
	}
}

// Load reads a YAML (or, by extension, TOML) configuration on top of
// Default. Relative primitive paths are resolved against the directory of
// the file.
func Load(p string) (*Config, error) {
	p, err := homedir.Expand(p)
	if err != nil {
		return nil, fmt.Errorf("failed to expand %s: %w", p, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg *Config
	if strings.EqualFold(filepath.Ext(p), ".toml") {
		cfg, err = ParseTOML(data)
	} else {
		cfg, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	cfg.baseDir = filepath.Dir(p)
	return cfg, nil
}

// Preset returns a built-in configuration by name.
func Preset(name string) (*Config, error) {
	data, err := presetFS.ReadFile(path.Join("presets", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown preset %q (have %s)", name, strings.Join(Presets(), ", "))
	}
	return Parse(data)
}

// Presets lists the built-in configuration names.
func Presets() []string {
	entries, _ := fs.ReadDir(presetFS, "presets")
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names
}

// Assets is the embedded primitive library addressed by BuiltinPrefix paths.
func Assets() fs.FS {
	sub, err := fs.Sub(presetFS, "presets/primitives")
	if err != nil {
		panic(err)
	}
	return sub
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ParseTOML decodes a TOML document with the same keys as the YAML form.
func ParseTOML(data []byte) (*Config, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	y, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return Parse(y)
}

// PrimitivePath resolves a primitive reference. Built-in references are
// returned unchanged; the caller loads them from Assets.
func (c *Config) PrimitivePath(p string) (string, error) {
	if strings.HasPrefix(p, BuiltinPrefix) {
		return p, nil
	}
	p, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) && c.baseDir != "" {
		p = filepath.Join(c.baseDir, p)
	}
	return p, nil
}

// ResolvedOutputDir is OutputDir with ~ expanded.
func (c *Config) ResolvedOutputDir() (string, error) {
	return homedir.Expand(c.OutputDir)
}

// Digest is a stable hash of the configuration.
func (c *Config) Digest() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WithOutputDir returns a copy writing to dir.
func (c Config) WithOutputDir(dir string) *Config {
	c.OutputDir = dir
	return &c
}

// WithImages returns a copy generating n images.
func (c Config) WithImages(n int) *Config {
	c.Images = n
	return &c
}

// WithSeed returns a copy with a different base seed.
func (c Config) WithSeed(seed uint64) *Config {
	c.Seed = seed
	return &c
}

// ImageID formats the id of the index-th image.
func (c *Config) ImageID(index int) string {
	return fmt.Sprintf("%s%06d", c.IDPrefix, index)
}
