package physics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"synthpic/internal/logging"
	"synthpic/internal/scene"
)

// Simulator bakes the rigid body world of a scene with World.
type Simulator struct {
	// FrameRate is the number of frames per simulated second.
	FrameRate float64
	// SubSteps per frame.
	SubSteps int
	// Iterations of the overlap pass per sub-step.
	Iterations int
	Log        *slog.Logger
}

// DefaultSimulator returns a 24 fps simulator with 10 sub-steps per frame.
func DefaultSimulator() *Simulator {
	return &Simulator{FrameRate: 24, SubSteps: 10, Iterations: 4}
}

// Bake simulates frames 1..frames. Frame 1 is the initial state. The cache is
// replaced; object transforms are left alone until the scene is moved to a frame.
func (sim *Simulator) Bake(ctx context.Context, s *scene.Scene, frames int) error {
	w := s.RigidBodyWorld
	if w == nil || !w.Enabled {
		return errors.New("bake: scene has no enabled rigid body world")
	}
	if frames < 1 {
		return fmt.Errorf("bake: frame count must be positive, got %d", frames)
	}
	log := logging.OrNop(sim.Log)

	world := NewWorld()
	world.Iterations = sim.Iterations
	world.UseGravity = s.UseGravity
	world.Gravity = s.Gravity

	var objs []*scene.Object
	for _, name := range w.Collection {
		obj := s.Object(name)
		if obj == nil || obj.RigidBody == nil {
			continue
		}
		rb := obj.RigidBody
		shape, err := ParseShape(rb.CollisionShape)
		if err != nil {
			return fmt.Errorf("bake %s: %w", name, err)
		}
		b := NewBody(name, obj.Transform.Location, obj.Dimensions(), shape, rb.Mass, strings.EqualFold(rb.Type, "PASSIVE"))
		// rotation is fixed, AngularDamping is not read
		b.Damping = rb.LinearDamping
		world.AddBody(b)
		objs = append(objs, obj)
	}

	fps := sim.FrameRate
	if fps <= 0 {
		fps = 24
	}
	sub := sim.SubSteps
	if sub < 1 {
		sub = 1
	}
	dt := 1 / fps / float64(sub)

	record := func(index int) scene.Frame {
		f := scene.Frame{Index: index, Transforms: make(map[string]scene.Transform, len(objs))}
		for i, obj := range objs {
			t := obj.Transform
			t.Location = world.Bodies[i].Position
			f.Transforms[obj.Name] = t
		}
		return f
	}

	cache := make([]scene.Frame, 0, frames)
	cache = append(cache, record(1))
	for f := 2; f <= frames; f++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := 0; i < sub; i++ {
			world.Step(dt)
		}
		cache = append(cache, record(f))
	}
	w.Cache = cache

	log.Debug("baked rigid body world", "bodies", len(objs), "frames", frames, "overlapping", world.Overlapping())
	return nil
}

// ParseShape maps a case-insensitive shape name onto a Shape.
func ParseShape(name string) (Shape, error) {
	switch s := Shape(strings.ToUpper(strings.TrimSpace(name))); s {
	case ShapeSphere, ShapeBox, ShapeConvexHull:
		return s, nil
	default:
		return "", fmt.Errorf("%q: %w", name, ErrUnknownShape)
	}
}
