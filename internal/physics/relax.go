package physics

import (
	"context"
	"errors"
	"fmt"

	"synthpic/internal/particle"
	"synthpic/internal/scene"
)

// ErrUnknownShape is returned for collision shapes the solver does not know.
var ErrUnknownShape = errors.New("unknown collision shape")

// Options configures Relax.
type Options struct {
	Damping        float64
	CollisionShape string
	Frames         int
}

// Relax pushes apart overlapping particles. Gravity is switched off, the particles
// become active rigid bodies with the given proxy shape and damping, the world is
// baked for Frames frames and the scene is left at the last frame. The particles
// stay registered with the world afterwards.
//
// Bodies only translate: rotations are held fixed during relaxation, so the
// angular damping recorded on each rigid body has no effect on the result.
func Relax(ctx context.Context, s *scene.Scene, sim scene.Simulator, particles []*particle.Particle, opts Options) error {
	shape, err := ParseShape(opts.CollisionShape)
	if err != nil {
		return err
	}
	if opts.Frames < 1 {
		return fmt.Errorf("relax: frame count must be positive, got %d", opts.Frames)
	}
	if opts.Damping < 0 || opts.Damping > 1 {
		return fmt.Errorf("relax: damping must be in [0, 1], got %g", opts.Damping)
	}

	s.UseGravity = false
	w := s.EnsureRigidBodyWorld()
	w.Enabled = true

	for _, p := range particles {
		obj := p.Object()
		obj.RigidBody = &scene.RigidBody{
			Type:           "ACTIVE",
			CollisionShape: string(shape),
			Mass:           1,
			LinearDamping:  opts.Damping,
			AngularDamping: opts.Damping,
		}
		if !w.Contains(obj.Name) {
			w.Collection = append(w.Collection, obj.Name)
		}
	}

	w.FrameEnd = opts.Frames
	w.FreeCache()
	if err := sim.Bake(ctx, s, opts.Frames); err != nil {
		return fmt.Errorf("relax: %w", err)
	}
	s.SetFrame(opts.Frames)
	return nil
}
