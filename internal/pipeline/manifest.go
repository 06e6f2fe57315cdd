package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"synthpic/internal/version"
)

// ManifestFile is the manifest name inside the output directory.
const ManifestFile = "run.json"

// Manifest describes a generated dataset (run.json).
type Manifest struct {
	Version      int          `json:"version"`
	Tool         string       `json:"tool"`
	Name         string       `json:"name"`
	Created      time.Time    `json:"created"`
	Modified     time.Time    `json:"modified"`
	ConfigDigest string       `json:"config_digest"`
	Seed         uint64       `json:"seed"`
	Images       []ImageEntry `json:"images"`
}

// ImageEntry is one generated image. Paths are relative to the manifest.
type ImageEntry struct {
	ID        string `json:"id"`
	Seed      uint64 `json:"seed"`
	Image     string `json:"image"`
	Particles int    `json:"particles"`
	Masks     int    `json:"masks"`
	Splines   int    `json:"splines,omitempty"`
}

// NewManifest creates an empty manifest.
func NewManifest(name, configDigest string, seed uint64) *Manifest {
	now := time.Now()
	return &Manifest{
		Version:      1,
		Tool:         "synthpic " + version.Version,
		Name:         name,
		Created:      now,
		Modified:     now,
		ConfigDigest: configDigest,
		Seed:         seed,
	}
}

// LoadManifest loads a manifest from a run.json file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the manifest to path.
func (m *Manifest) Save(path string) error {
	m.Modified = time.Now()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// AddImage records an image, replacing an earlier entry with the same id.
// imagePath is stored relative to the manifest when possible.
func (m *Manifest) AddImage(manifestPath string, e ImageEntry) {
	if rel, err := filepath.Rel(filepath.Dir(manifestPath), e.Image); err == nil {
		e.Image = rel
	}
	m.Modified = time.Now()
	for i := range m.Images {
		if m.Images[i].ID == e.ID {
			m.Images[i] = e
			return
		}
	}
	m.Images = append(m.Images, e)
}

// ImagePath returns the absolute path of an image, or "" for unknown ids.
func (m *Manifest) ImagePath(manifestPath, id string) string {
	for _, e := range m.Images {
		if e.ID != id {
			continue
		}
		if filepath.IsAbs(e.Image) {
			return e.Image
		}
		return filepath.Join(filepath.Dir(manifestPath), e.Image)
	}
	return ""
}

// IDs lists the image ids in generation order.
func (m *Manifest) IDs() []string {
	ids := make([]string, len(m.Images))
	for i, e := range m.Images {
		ids[i] = e.ID
	}
	return ids
}
