// Command splinelen measures spline CSV files written by synthpic.
//
// Usage: splinelen <spline.csv> [more.csv ...]
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"synthpic/internal/spline"
	"synthpic/pkg/geometry"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <spline.csv> [more.csv ...]\n", os.Args[0])
		os.Exit(1)
	}

	failed := false
	var total float64
	fmt.Printf("%-40s %8s %10s %8s\n", "File", "Points", "Length", "Width")
	for _, path := range os.Args[1:] {
		pts, width, err := readSpline(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}
		l := spline.Length(pts)
		total += l
		fmt.Printf("%-40s %8d %10.2f %8.2f\n", path, len(pts), l, width)
	}
	fmt.Printf("Total length: %.2f px\n", total)

	if failed {
		os.Exit(1)
	}
}

// readSpline parses "x,y,width" rows after the header. The width of the
// first row is returned.
func readSpline(path string) ([]geometry.Point3D, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("empty file")
	}

	var pts []geometry.Point3D
	var width float64
	for i, row := range rows[1:] {
		if len(row) < 2 {
			return nil, 0, fmt.Errorf("row %d: expected x,y[,width]", i+2)
		}
		x, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: %w", i+2, err)
		}
		y, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: %w", i+2, err)
		}
		if i == 0 && len(row) > 2 {
			width, _ = strconv.ParseFloat(row[2], 64)
		}
		pts = append(pts, geometry.Point3D{X: x, Y: y})
	}
	return pts, width, nil
}
