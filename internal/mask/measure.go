package mask

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	synimage "synthpic/internal/image"
)

// Stats describes the foreground of one binary mask.
type Stats struct {
	Area int
	// EquivalentDiameter is the diameter of a disc with the same area.
	EquivalentDiameter float64
	// Circularity is 4*pi*area/perimeter^2 of the largest region, 1 for a disc.
	Circularity float64
	Bounds      image.Rectangle
	Regions     int
}

// Empty reports whether the mask has no foreground pixels.
func (s Stats) Empty() bool { return s.Area == 0 }

// MeasureFile loads a mask image and measures it.
func MeasureFile(path string) (Stats, error) {
	layer, err := synimage.Load(path)
	if err != nil {
		return Stats{}, err
	}
	return Measure(layer.Gray())
}

// Measure thresholds the mask at half intensity and measures the regions.
// Bounds and Circularity refer to the largest region.
func Measure(g *image.Gray) (Stats, error) {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return Stats{}, nil
	}
	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		copy(data[y*w:(y+1)*w], g.Pix[(y)*g.Stride:(y)*g.Stride+w])
	}

	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, data)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to wrap mask: %w", err)
	}
	defer src.Close()

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(src, &bin, 127, 255, gocv.ThresholdBinary)

	var st Stats
	st.Area = gocv.CountNonZero(bin)
	if st.Area == 0 {
		return st, nil
	}
	st.EquivalentDiameter = 2 * math.Sqrt(float64(st.Area)/math.Pi)

	contours := gocv.FindContours(bin, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	st.Regions = contours.Size()

	best, bestArea := -1, -1.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > bestArea {
			best, bestArea = i, a
		}
	}
	if best >= 0 {
		c := contours.At(best)
		st.Bounds = gocv.BoundingRect(c)
		if p := gocv.ArcLength(c, true); p > 0 {
			st.Circularity = math.Min(1, 4*math.Pi*bestArea/(p*p))
		}
	}
	return st, nil
}
