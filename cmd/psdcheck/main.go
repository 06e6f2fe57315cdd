// Command psdcheck reports the particle size distribution of a generated
// dataset from its annotation records, per class.
//
// Usage: psdcheck -dir output/sopat [-dg 50 -sigma 1.6 -tol 0.15] [-masks]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"synthpic/internal/annotation"
	"synthpic/internal/mask"
)

func main() {
	dir := flag.String("dir", "", "Dataset output directory")
	dg := flag.Float64("dg", 0, "Expected geometric mean diameter (0: report only)")
	sigma := flag.Float64("sigma", 0, "Expected geometric standard deviation")
	tol := flag.Float64("tol", 0.15, "Relative tolerance for -dg and -sigma")
	fromMasks := flag.Bool("masks", false, "Measure diameters from the mask images instead of the records")
	flag.Parse()

	if *dir == "" {
		fmt.Println("Usage: psdcheck -dir <output> [-dg 50 -sigma 1.6 -tol 0.15]")
		os.Exit(1)
	}

	diameters := map[string][]float64{}
	files := 0
	err := filepath.WalkDir(*dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, "_annotations.json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var records []annotation.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		files++
		for _, r := range records {
			d := r.Diameter
			if *fromMasks {
				if r.Mask == "" {
					continue
				}
				st, err := mask.MeasureFile(filepath.Join(filepath.Dir(path), "masks", r.Mask))
				if err != nil {
					return err
				}
				// occluded particles have no visible area
				if st.Empty() {
					continue
				}
				d = st.EquivalentDiameter
			}
			if d > 0 {
				diameters[r.Class] = append(diameters[r.Class], math.Log(d))
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read records: %v\n", err)
		os.Exit(1)
	}
	if files == 0 {
		fmt.Fprintf(os.Stderr, "No annotation records under %s\n", *dir)
		os.Exit(1)
	}

	classes := make([]string, 0, len(diameters))
	for c := range diameters {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	fmt.Printf("Read %d record files\n\n", files)
	fmt.Printf("%-16s %8s %10s %10s\n", "Class", "Count", "d_g", "sigma_g")
	ok := true
	for _, c := range classes {
		mean, std := stat.MeanStdDev(diameters[c], nil)
		gm, gs := math.Exp(mean), math.Exp(std)
		mark := ""
		if *dg > 0 && math.Abs(gm-*dg) > *tol**dg {
			mark, ok = " d_g out of tolerance", false
		}
		if *sigma > 0 && math.Abs(gs-*sigma) > *tol**sigma {
			mark, ok = mark+" sigma_g out of tolerance", false
		}
		fmt.Printf("%-16s %8d %10.2f %10.3f%s\n", c, len(diameters[c]), gm, gs, mark)
	}

	if !ok {
		os.Exit(1)
	}
}
