// Package render turns scenes into raster images: a CPU rasterizer built on
// gg, an adapter for external renderer processes and render-to-file helpers.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sort"

	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"

	synimage "synthpic/internal/image"
	"synthpic/internal/logging"
	"synthpic/internal/scene"
	"synthpic/pkg/colorutil"
	"synthpic/pkg/geometry"
)

// ErrEmptyFrame is returned when the render settings describe a zero-size image.
var ErrEmptyFrame = errors.New("empty render frame")

// MaxSupersample caps the per-axis supersampling factor of the quality engine.
const MaxSupersample = 4

var lightDir = geometry.Point3D{X: 0.3, Y: 0.5, Z: 1}.Normalize()

// Software is an orthographic CPU renderer. The camera looks down -Z with one
// world unit per pixel and the world origin at the image centre.
type Software struct {
	Log *slog.Logger
}

// NewSoftware returns a software renderer logging to log (nil discards).
func NewSoftware(log *slog.Logger) *Software {
	return &Software{Log: log}
}

// Supersample returns the per-axis supersampling factor for the settings.
func Supersample(rs scene.RenderSettings) int {
	if rs.Engine != scene.EngineQuality || !rs.AntiAlias {
		return 1
	}
	n := int(math.Sqrt(float64(rs.Samples[scene.EngineQuality])))
	if n < 1 {
		return 1
	}
	if n > MaxSupersample {
		return MaxSupersample
	}
	return n
}

type drawItem struct {
	obj   *scene.Object
	verts []geometry.Point3D
	depth float64
}

// Render draws every renderable object. Mesh objects are painted back to front.
func (r *Software) Render(ctx context.Context, s *scene.Scene) (image.Image, error) {
	rs := s.Render
	w, h := rs.OutputSize()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%dx%d: %w", w, h, ErrEmptyFrame)
	}
	ss := Supersample(rs)
	domain := rs.ImageDomain(0)
	k := domain.Scale() * float64(ss)
	project := func(p geometry.Point3D) geometry.Point2D {
		return domain.Project(p).Scale(float64(ss))
	}

	dc := gg.NewContext(w*ss, h*ss)
	defer dc.Close()
	dc.Clear()

	var items []drawItem
	for _, o := range s.Renderable() {
		verts := o.WorldVertices()
		if len(verts) == 0 {
			continue
		}
		items = append(items, drawItem{obj: o, verts: verts, depth: geometry.Centroid3D(verts).Z})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].depth < items[j].depth })

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := objectColor(rs, it.obj)
		var err error
		switch {
		case it.obj.Kind == scene.KindHair:
			err = drawStrand(dc, it, c, k, project)
		case rs.Shading == scene.ShadingFlat || rs.Engine == scene.EngineFlat:
			err = drawSilhouette(dc, it, c, project)
		default:
			err = drawLit(dc, it, c, project)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to draw %s: %w", it.obj.Name, err)
		}
	}

	img := synimage.ToNRGBA(dc.Image())
	if ss > 1 {
		small := image.NewNRGBA(image.Rect(0, 0, w, h))
		xdraw.CatmullRom.Scale(small, small.Bounds(), img, img.Bounds(), xdraw.Src, nil)
		img = small
	}
	if !rs.AntiAlias {
		hardenAlpha(img)
	}
	if !rs.FilmTransparent {
		bg := image.NewNRGBA(img.Rect)
		fill(bg, rs.Background)
		var err error
		if img, err = synimage.AlphaComposite(bg, img); err != nil {
			return nil, err
		}
	}

	logging.OrNop(r.Log).Debug("rendered", "scene", s.Name, "objects", len(items),
		"width", w, "height", h, "supersample", ss)

	if rs.ColorMode == scene.ColorBW {
		g := synimage.Gray(img)
		if !rs.AntiAlias {
			threshold(g)
		}
		return g, nil
	}
	return img, nil
}

func objectColor(rs scene.RenderSettings, o *scene.Object) color.NRGBA {
	if rs.ColorType == scene.ColorTypeSingle {
		return rs.SingleColor
	}
	return o.Material.Color
}

// drawSilhouette fills the convex hull of the projected geometry.
func drawSilhouette(dc *gg.Context, it drawItem, c color.NRGBA, project func(geometry.Point3D) geometry.Point2D) error {
	pts := make([]geometry.Point2D, len(it.verts))
	for i, v := range it.verts {
		pts[i] = project(v)
	}
	hull := geometry.ConvexHull(pts)
	if len(hull) < 3 || geometry.PolygonArea(hull) < 1e-9 {
		return nil
	}
	dc.SetColor(c)
	dc.MoveTo(hull[0].X, hull[0].Y)
	for _, p := range hull[1:] {
		dc.LineTo(p.X, p.Y)
	}
	dc.ClosePath()
	return dc.Fill()
}

type face struct {
	pts   [3]geometry.Point2D
	depth float64
	shade float64
}

// drawLit paints camera-facing triangles with Lambert shading.
func drawLit(dc *gg.Context, it drawItem, c color.NRGBA, project func(geometry.Point3D) geometry.Point2D) error {
	if it.obj.Mesh == nil || len(it.obj.Mesh.Faces) == 0 {
		return drawSilhouette(dc, it, c, project)
	}
	center := geometry.Centroid3D(it.verts)
	faces := make([]face, 0, len(it.obj.Mesh.Faces))
	for _, f := range it.obj.Mesh.Faces {
		if f[0] >= len(it.verts) || f[1] >= len(it.verts) || f[2] >= len(it.verts) {
			continue
		}
		a, b, cc := it.verts[f[0]], it.verts[f[1]], it.verts[f[2]]
		mid := geometry.Centroid3D([]geometry.Point3D{a, b, cc})
		n := b.Sub(a).Cross(cc.Sub(a)).Normalize()
		if n.Dot(mid.Sub(center)) < 0 {
			n = n.Scale(-1)
		}
		if it.obj.Mesh.Smooth {
			n = mid.Sub(center).Normalize()
		}
		if n.Z <= 0 {
			continue
		}
		faces = append(faces, face{
			pts:   [3]geometry.Point2D{project(a), project(b), project(cc)},
			depth: mid.Z,
			shade: 0.3 + 0.7*math.Max(0, n.Dot(lightDir)),
		})
	}
	sort.SliceStable(faces, func(i, j int) bool { return faces[i].depth < faces[j].depth })

	// Ambient underlay so triangle seams never let the background through.
	if err := drawSilhouette(dc, it, colorutil.Shade(c, 0.3), project); err != nil {
		return err
	}
	for _, f := range faces {
		dc.SetColor(colorutil.Shade(c, f.shade))
		dc.MoveTo(f.pts[0].X, f.pts[0].Y)
		dc.LineTo(f.pts[1].X, f.pts[1].Y)
		dc.LineTo(f.pts[2].X, f.pts[2].Y)
		dc.ClosePath()
		if err := dc.Fill(); err != nil {
			return err
		}
	}
	return nil
}

// drawStrand strokes the strand segment by segment, tapering from root to tip.
func drawStrand(dc *gg.Context, it drawItem, c color.NRGBA, k float64, project func(geometry.Point3D) geometry.Point2D) error {
	hair := it.obj.Hair
	if hair == nil || len(it.verts) < 2 {
		return nil
	}
	dc.SetColor(c)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	n := len(it.verts) - 1
	for i := 0; i < n; i++ {
		t := (float64(i) + 0.5) / float64(n)
		width := math.Max(hair.WidthAt(t)*it.obj.Transform.Scale.Max()*k, 1)
		a, b := project(it.verts[i]), project(it.verts[i+1])
		dc.SetLineWidth(width)
		dc.MoveTo(a.X, a.Y)
		dc.LineTo(b.X, b.Y)
		if err := dc.Stroke(); err != nil {
			return err
		}
	}
	return nil
}

// hardenAlpha snaps partially covered pixels to fully covered or empty.
func hardenAlpha(img *image.NRGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] >= 128 {
			img.Pix[i] = 255
		} else {
			img.Pix[i-3], img.Pix[i-2], img.Pix[i-1], img.Pix[i] = 0, 0, 0, 0
		}
	}
}

func threshold(g *image.Gray) {
	for i, v := range g.Pix {
		if v >= 128 {
			g.Pix[i] = 255
		} else {
			g.Pix[i] = 0
		}
	}
}

func fill(img *image.NRGBA, c color.NRGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
}
