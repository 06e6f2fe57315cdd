package scene

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Snapshot is a serialized, immutable copy of a scene.
type Snapshot struct {
	data []byte
}

// Bytes returns the serialized scene.
func (sn Snapshot) Bytes() []byte {
	return sn.data
}

// Digest is the hex sha256 of the serialized scene.
func (sn Snapshot) Digest() string {
	sum := sha256.Sum256(sn.data)
	return hex.EncodeToString(sum[:])
}

// Snapshot serializes the whole scene.
func (s *Scene) Snapshot() (Snapshot, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to snapshot scene: %w", err)
	}
	return Snapshot{data: data}, nil
}

// Digest is a shortcut for Snapshot().Digest().
func (s *Scene) Digest() (string, error) {
	sn, err := s.Snapshot()
	if err != nil {
		return "", err
	}
	return sn.Digest(), nil
}

// Restore replaces the whole scene state with the snapshot. Objects that exist both
// before and after keep their identity, so handles held by callers stay valid.
func (s *Scene) Restore(sn Snapshot) error {
	var restored Scene
	if err := json.Unmarshal(sn.data, &restored); err != nil {
		return fmt.Errorf("failed to restore scene: %w", err)
	}

	current := make(map[string]*Object, len(s.Objects))
	for _, o := range s.Objects {
		current[o.Name] = o
	}
	for i, o := range restored.Objects {
		if prev, ok := current[o.Name]; ok {
			*prev = *o
			restored.Objects[i] = prev
		}
	}

	*s = restored
	return nil
}

// WithTemporaryState runs fn and then puts the scene back exactly as it was.
// The snapshot lives in a temporary file under dir (os.TempDir when empty) that is
// removed on every exit path. A panic in fn is re-raised after the scene is restored.
func WithTemporaryState(s *Scene, dir string, fn func() error) (err error) {
	if dir == "" {
		dir = os.TempDir()
	}
	sn, err := s.Snapshot()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.scene.json", s.Name, uuid.NewString()))
	if err := os.WriteFile(path, sn.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write scene snapshot: %w", err)
	}

	defer func() {
		r := recover()
		restoreErr := restoreFromFile(s, path)
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			restoreErr = errors.Join(restoreErr, rmErr)
		}
		if r != nil {
			panic(r)
		}
		err = errors.Join(err, restoreErr)
	}()

	return fn()
}

func restoreFromFile(s *Scene, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read scene snapshot: %w", err)
	}
	return s.Restore(Snapshot{data: data})
}
