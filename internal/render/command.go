package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"

	synimage "synthpic/internal/image"
	"synthpic/internal/logging"
	"synthpic/internal/scene"
)

// Placeholders substituted in command arguments.
const (
	ScenePlaceholder  = "{scene}"
	OutputPlaceholder = "{output}"
)

// ErrNoCommand is returned when a command renderer has nothing to run.
var ErrNoCommand = errors.New("no render command")

// Command delegates rendering to an external process. The scene is written as
// JSON to a temporary file and the process is expected to write a PNG.
type Command struct {
	Path    string
	Args    []string
	TempDir string
	Log     *slog.Logger
}

// ParseCommand splits a command template with shell quoting rules. No
// variables are expanded.
func ParseCommand(template string) (*Command, error) {
	fields, err := shellwords.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("failed to parse render command: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNoCommand
	}
	return &Command{Path: fields[0], Args: fields[1:]}, nil
}

// Render runs the command once and decodes its output.
func (c *Command) Render(ctx context.Context, s *scene.Scene) (image.Image, error) {
	if c.Path == "" {
		return nil, ErrNoCommand
	}
	dir, err := os.MkdirTemp(c.TempDir, "render-")
	if err != nil {
		return nil, fmt.Errorf("failed to create render directory: %w", err)
	}
	defer os.RemoveAll(dir)

	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	scenePath := filepath.Join(dir, "scene.json")
	if err := os.WriteFile(scenePath, snap.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write scene: %w", err)
	}
	outputPath := filepath.Join(dir, "render.png")

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		a = strings.ReplaceAll(a, ScenePlaceholder, scenePath)
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, outputPath)
	}

	logging.OrNop(c.Log).Debug("running renderer", "cmd", c.Path, "args", args)
	out, err := exec.CommandContext(ctx, c.Path, args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("renderer %s failed: %w: %s", c.Path, err, strings.TrimSpace(string(out)))
	}

	layer, err := synimage.Load(outputPath)
	if err != nil {
		return nil, fmt.Errorf("renderer %s produced no image: %w", c.Path, err)
	}
	return layer.Image, nil
}

// ToFile renders the scene and saves the result to path.
func ToFile(ctx context.Context, r scene.Renderer, s *scene.Scene, path string) error {
	img, err := r.Render(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", path, err)
	}
	return synimage.Save(path, img)
}
