// Command overlay tints the masks of a generated image over the image itself
// for visual inspection.
//
// Usage: overlay -dir output/sopat/image000000 -o overlay.png [-mode normal] [-alpha 0.5]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	synimage "synthpic/internal/image"
	"synthpic/pkg/colorutil"
)

var palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
}

func main() {
	dir := flag.String("dir", "", "Image directory (<out>/<image_id>)")
	output := flag.String("o", "overlay.png", "Output image")
	mode := flag.String("mode", "normal", "Blend mode: normal, multiply, screen, overlay, difference")
	alpha := flag.Float64("alpha", 0.5, "Mask opacity")
	flag.Parse()

	if *dir == "" {
		fmt.Println("Usage: overlay -dir <out>/<image_id> [-o overlay.png] [-mode normal] [-alpha 0.5]")
		os.Exit(1)
	}

	blend, err := synimage.ParseBlendMode(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	id := filepath.Base(filepath.Clean(*dir))
	base, err := synimage.Load(filepath.Join(*dir, "images", id+".png"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %s: %dx%d\n", base.Path, base.Width(), base.Height())

	masks, _ := filepath.Glob(filepath.Join(*dir, "masks", "*.png"))
	sort.Strings(masks)

	comp := synimage.NewComposite(base.Width(), base.Height())
	comp.AddLayer(base, synimage.BlendNormal, 0, 0)
	for i, path := range masks {
		m, err := synimage.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load mask: %v\n", err)
			os.Exit(1)
		}
		c := colorutil.ParseHex(palette[i%len(palette)])
		c.A = colorutil.ClampUint8(*alpha * 255)
		comp.AddLayer(synimage.Colorize(m.Gray(), c), blend, 0, 0)
	}
	fmt.Printf("Blending %d masks (%s)\n", len(masks), blend)

	if err := synimage.Save(*output, comp.Render()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save overlay: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *output)
}
