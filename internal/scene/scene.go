// Package scene holds the in-memory scene graph the generator builds images from:
// objects, render settings and the rigid body world, plus snapshot and restore.
package scene

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/jinzhu/copier"

	"synthpic/pkg/geometry"
)

var (
	// ErrAssetNotFound is returned when a primitive asset file does not exist.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrDuplicateName is returned when linking an object whose name is taken.
	ErrDuplicateName = errors.New("duplicate object name")
	// ErrNoObject is returned when a named object is not linked to the scene.
	ErrNoObject = errors.New("no such object")
)

// Engine selects the rendering quality tier.
type Engine string

const (
	EngineFast    Engine = "FAST"
	EngineQuality Engine = "QUALITY"
	EngineFlat    Engine = "FLAT"
)

// ColorMode is the channel layout of rendered images.
type ColorMode string

const (
	ColorRGBA ColorMode = "RGBA"
	ColorBW   ColorMode = "BW"
)

// Shading selects between lit surfaces and flat silhouettes.
type Shading string

const (
	ShadingLit  Shading = "LIT"
	ShadingFlat Shading = "FLAT"
)

// ColorType selects where flat shading takes its colour from.
type ColorType string

const (
	ColorTypeMaterial ColorType = "MATERIAL"
	ColorTypeSingle   ColorType = "SINGLE"
)

// RenderSettings mirrors the renderer-facing state of a scene.
type RenderSettings struct {
	Engine            Engine         `json:"engine"`
	Samples           map[Engine]int `json:"samples,omitempty"`
	ResolutionX       int            `json:"resolution_x"`
	ResolutionY       int            `json:"resolution_y"`
	ResolutionPercent int            `json:"resolution_percent"`
	FilmTransparent   bool           `json:"film_transparent"`
	ColorMode         ColorMode      `json:"color_mode"`
	Shading           Shading        `json:"shading"`
	ColorType         ColorType      `json:"color_type"`
	SingleColor       color.NRGBA    `json:"single_color"`
	AntiAlias         bool           `json:"anti_alias"`
	Background        color.NRGBA    `json:"background"`
	Compositing       bool           `json:"compositing"`
}

// DefaultRenderSettings returns settings for a 1032x825 lit RGBA render.
func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		Engine:            EngineFast,
		Samples:           map[Engine]int{EngineFast: 1, EngineQuality: 16},
		ResolutionX:       1032,
		ResolutionY:       825,
		ResolutionPercent: 100,
		FilmTransparent:   true,
		ColorMode:         ColorRGBA,
		Shading:           ShadingLit,
		ColorType:         ColorTypeMaterial,
		SingleColor:       color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		AntiAlias:         true,
		Background:        color.NRGBA{A: 255},
		Compositing:       true,
	}
}

// Scale is the output scale factor from ResolutionPercent.
func (r RenderSettings) Scale() float64 {
	if r.ResolutionPercent <= 0 {
		return 1
	}
	return float64(r.ResolutionPercent) / 100
}

// OutputSize is the pixel size of rendered images.
func (r RenderSettings) OutputSize() (int, int) {
	s := r.Scale()
	return int(float64(r.ResolutionX)*s + 0.5), int(float64(r.ResolutionY)*s + 0.5)
}

// Domain is the placement volume matching the configured resolution.
func (r RenderSettings) Domain(depth float64) geometry.SpatialDomain {
	return geometry.DomainForResolution(r.ResolutionX, r.ResolutionY, depth)
}

// ImageDomain is Domain projected onto the rendered output, which is scaled by
// the resolution percentage.
func (r RenderSettings) ImageDomain(depth float64) geometry.SpatialDomain {
	return r.Domain(depth).WithPixelScale(r.Scale())
}

// Frame is one baked simulation frame.
type Frame struct {
	Index      int                  `json:"index"`
	Transforms map[string]Transform `json:"transforms"`
}

// RigidBodyWorld is the simulation container of a scene.
type RigidBodyWorld struct {
	Enabled    bool     `json:"enabled"`
	Collection []string `json:"collection"`
	FrameEnd   int      `json:"frame_end"`
	Cache      []Frame  `json:"cache,omitempty"`
}

// Contains reports whether an object is registered in the world collection.
func (w *RigidBodyWorld) Contains(name string) bool {
	for _, n := range w.Collection {
		if n == name {
			return true
		}
	}
	return false
}

// FreeCache drops all baked frames.
func (w *RigidBodyWorld) FreeCache() {
	w.Cache = nil
}

// Scene is an explicit handle on everything the generator mutates.
type Scene struct {
	Name           string           `json:"name"`
	Objects        []*Object        `json:"objects"`
	Render         RenderSettings   `json:"render"`
	UseGravity     bool             `json:"use_gravity"`
	Gravity        geometry.Point3D `json:"gravity"`
	RigidBodyWorld *RigidBodyWorld  `json:"rigid_body_world,omitempty"`
	FrameCurrent   int              `json:"frame_current"`
}

// New creates an empty scene with default render settings and gravity along -Z.
func New(name string) *Scene {
	return &Scene{
		Name:         name,
		Render:       DefaultRenderSettings(),
		UseGravity:   true,
		Gravity:      geometry.Point3D{Z: -9.81},
		FrameCurrent: 1,
	}
}

// Renderer turns a scene into an image according to its render settings.
type Renderer interface {
	Render(ctx context.Context, s *Scene) (image.Image, error)
}

// Simulator bakes rigid body frames 1..frames into the scene's world cache.
type Simulator interface {
	Bake(ctx context.Context, s *Scene, frames int) error
}

// Link appends an object. Names are unique.
func (s *Scene) Link(obj *Object) error {
	if s.Object(obj.Name) != nil {
		return fmt.Errorf("link %q: %w", obj.Name, ErrDuplicateName)
	}
	s.Objects = append(s.Objects, obj)
	return nil
}

// Unlink removes an object from the scene and the rigid body world.
func (s *Scene) Unlink(name string) error {
	for i, o := range s.Objects {
		if o.Name != name {
			continue
		}
		s.Objects = append(s.Objects[:i], s.Objects[i+1:]...)
		if w := s.RigidBodyWorld; w != nil {
			for j, n := range w.Collection {
				if n == name {
					w.Collection = append(w.Collection[:j], w.Collection[j+1:]...)
					break
				}
			}
		}
		return nil
	}
	return fmt.Errorf("unlink %q: %w", name, ErrNoObject)
}

// Object returns the named object, or nil.
func (s *Scene) Object(name string) *Object {
	for _, o := range s.Objects {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// Renderable returns the objects visible to the renderer, in emission order.
func (s *Scene) Renderable() []*Object {
	var out []*Object
	for _, o := range s.Objects {
		if !o.HideRender {
			out = append(out, o)
		}
	}
	return out
}

// Delete unlinks every given object.
func (s *Scene) Delete(objs ...*Object) error {
	for _, o := range objs {
		if err := s.Unlink(o.Name); err != nil {
			return err
		}
	}
	return nil
}

// UniqueName returns base if free, otherwise base.001, base.002, ...
func (s *Scene) UniqueName(base string) string {
	if s.Object(base) == nil {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s.%03d", base, i)
		if s.Object(name) == nil {
			return name
		}
	}
}

// Duplicate deep-copies src under a new name and links the copy. Material,
// geometry and hair settings are independent of the source; simulation tags are cleared.
func (s *Scene) Duplicate(src *Object, name string) (*Object, error) {
	dup := &Object{}
	if err := copier.CopyWithOption(dup, src, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("duplicate %q: %w", src.Name, err)
	}
	dup.Name = name
	dup.RigidBody = nil
	if err := s.Link(dup); err != nil {
		return nil, err
	}
	return dup, nil
}

// SetFrame moves to frame n, applying baked transforms when the cache has them.
func (s *Scene) SetFrame(n int) {
	s.FrameCurrent = n
	if s.RigidBodyWorld == nil {
		return
	}
	for _, f := range s.RigidBodyWorld.Cache {
		if f.Index != n {
			continue
		}
		for name, t := range f.Transforms {
			if o := s.Object(name); o != nil {
				o.Transform = t
			}
		}
		return
	}
}

// EnsureRigidBodyWorld creates the world if the scene has none.
func (s *Scene) EnsureRigidBodyWorld() *RigidBodyWorld {
	if s.RigidBodyWorld == nil {
		s.RigidBodyWorld = &RigidBodyWorld{Enabled: true, FrameEnd: 250}
	}
	return s.RigidBodyWorld
}
