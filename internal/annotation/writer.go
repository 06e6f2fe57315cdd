// Package annotation persists the ground truth that accompanies each image:
// class labels, fiber splines and structured per-particle records.
package annotation

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"synthpic/internal/logging"
	"synthpic/internal/particle"
	"synthpic/pkg/geometry"
)

// ErrMissingClass is returned when a particle carries no class label.
var ErrMissingClass = errors.New("particle has no class label")

// LabelsFile is the name of the class label file.
const LabelsFile = "annotations.txt"

// SplineRecord is the projected centre line of one fiber.
type SplineRecord struct {
	Keypoints []geometry.Point2D
	Width     float64
	Length    float64
}

// Record describes one particle of an image.
type Record struct {
	Index        int          `json:"index"`
	Name         string       `json:"name"`
	Class        string       `json:"class"`
	Kind         string       `json:"kind"`
	Diameter     float64      `json:"diameter"`
	SplineLength float64      `json:"spline_length,omitempty"`
	Mask         string       `json:"mask,omitempty"`
	Keypoints    [][2]float64 `json:"keypoints,omitempty"`
}

// Writer writes annotation files into Dir.
type Writer struct {
	Dir    string
	Append bool
	Log    *slog.Logger
}

// SplineFileName is the CSV name of the index-th written spline of an image.
func SplineFileName(imageID string, index int) string {
	return fmt.Sprintf("%s_spline%06d.csv", imageID, index)
}

// RecordsFileName is the JSON record file of an image.
func RecordsFileName(imageID string) string {
	return imageID + "_annotations.json"
}

// WriteLabels writes one class label per line, in particle order. Every
// particle is checked before the file is touched.
func (w *Writer) WriteLabels(particles []*particle.Particle) (string, error) {
	labels := make([]string, len(particles))
	for i, p := range particles {
		c, ok := p.Class()
		if !ok {
			return "", fmt.Errorf("%s: %w", p.Name(), ErrMissingClass)
		}
		labels[i] = c
	}

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create annotation directory: %w", err)
	}
	path := filepath.Join(w.Dir, LabelsFile)
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if w.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	for _, l := range labels {
		if _, err := fmt.Fprintln(f, l); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	logging.OrNop(w.Log).Debug("wrote labels", "path", path, "count", len(labels))
	return path, nil
}

// WriteSplines writes one CSV per record that still has keypoints. Empty
// records are skipped and the file indices stay contiguous.
func (w *Writer) WriteSplines(imageID string, records []SplineRecord) ([]string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create annotation directory: %w", err)
	}
	var paths []string
	for _, r := range records {
		if len(r.Keypoints) == 0 {
			continue
		}
		path := filepath.Join(w.Dir, SplineFileName(imageID, len(paths)))
		if err := writeSpline(path, r); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	logging.OrNop(w.Log).Debug("wrote splines", "image", imageID, "written", len(paths), "records", len(records))
	return paths, nil
}

func writeSpline(path string, r SplineRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	cw := csv.NewWriter(f)
	width := formatFloat(r.Width)
	if err := cw.Write([]string{"x", "y", "width"}); err != nil {
		f.Close()
		return err
	}
	for _, p := range r.Keypoints {
		if err := cw.Write([]string{formatFloat(p.X), formatFloat(p.Y), width}); err != nil {
			f.Close()
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteRecords writes the records of one image as indented JSON.
func (w *Writer) WriteRecords(imageID string, records []Record) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create annotation directory: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal records: %w", err)
	}
	path := filepath.Join(w.Dir, RecordsFileName(imageID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Collect builds the per-particle records and, for hair particles, the spline
// records projected into domain. masks, when given, are matched by index.
func Collect(particles []*particle.Particle, domain geometry.SpatialDomain, masks []string) ([]Record, []SplineRecord, error) {
	records := make([]Record, 0, len(particles))
	var splines []SplineRecord
	for i, p := range particles {
		class, ok := p.Class()
		if !ok {
			return nil, nil, fmt.Errorf("%s: %w", p.Name(), ErrMissingClass)
		}
		rec := Record{
			Index:    i,
			Name:     p.Name(),
			Class:    class,
			Kind:     string(p.Kind()),
			Diameter: p.Diameter(),
		}
		if i < len(masks) {
			rec.Mask = filepath.Base(masks[i])
		}
		if h, err := p.AsHair(); err == nil {
			kp := h.SplineKeypoints(domain)
			rec.SplineLength = h.SplineLength()
			for _, k := range kp {
				rec.Keypoints = append(rec.Keypoints, [2]float64{k.X, k.Y})
			}
			splines = append(splines, SplineRecord{Keypoints: kp, Width: h.HairDiameter() * domain.Scale(), Length: rec.SplineLength})
		}
		records = append(records, rec)
	}
	return records, splines, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
