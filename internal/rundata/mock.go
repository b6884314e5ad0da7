package rundata

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"geo-assembler/internal/crystfel"
	"geo-assembler/internal/detector"
	"geo-assembler/pkg/geometry"
)

// MockOptions controls the synthetic run written by WriteMock.
type MockOptions struct {
	Trains         int
	FramesPerTrain int
	FirstTrain     int
	// Geometry places the modules when drawing the rings. The detector's
	// default layout is used when nil.
	Geometry *detector.Geometry
	// Centre of the rings in geometry coordinates.
	Centre geometry.Point2D
	// Radii of the rings in pixels.
	Radii []float64
	// Skip lists modules for which no file is written.
	Skip []int
	Seed int64
}

// DefaultMockOptions returns a small run with three rings.
func DefaultMockOptions(spec *detector.Spec) MockOptions {
	scale := float64(spec.PanelRows+spec.PanelCols) / 640
	return MockOptions{
		Trains:         3,
		FramesPerTrain: 4,
		FirstTrain:     10000,
		Radii:          []float64{160 * scale, 320 * scale, 480 * scale},
		Seed:           1,
	}
}

// MockFileName returns the file name used for module n.
func MockFileName(spec *detector.Spec, n int) string {
	return fmt.Sprintf("CORR-R0001-%s%02d-S00000.fits", spec.ModuleTag, n)
}

// WriteMock writes a synthetic run of concentric rings into dir.
func WriteMock(dir string, spec *detector.Spec, opts MockOptions) error {
	if opts.Trains <= 0 || opts.FramesPerTrain <= 0 {
		return fmt.Errorf("mock run needs at least one train and one frame per train")
	}
	g := opts.Geometry
	if g == nil {
		g = detector.Default(spec)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	skip := make(map[int]bool)
	for _, n := range opts.Skip {
		skip[n] = true
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	frames := opts.Trains * opts.FramesPerTrain
	frameSize := spec.PanelRows * spec.PanelCols

	for mod := 0; mod < detector.PanelCount; mod++ {
		if skip[mod] {
			continue
		}
		rings := make([]float32, frameSize)
		for ss := 0; ss < spec.PanelRows; ss++ {
			for fs := 0; fs < spec.PanelCols; fs++ {
				pos := crystfel.PixelPosition(spec, g.Panels[mod], float64(fs)+0.5, float64(ss)+0.5)
				r := pos.Distance(opts.Centre)
				var v float64
				for k, radius := range opts.Radii {
					d := (r - radius) / 3
					v += 1000 / float64(k+1) * math.Exp(-d*d/2)
				}
				rings[ss*spec.PanelCols+fs] = float32(v)
			}
		}

		data := make([]float32, frames*frameSize)
		for f := 0; f < frames; f++ {
			gain := float32(0.8 + 0.4*rng.Float64())
			off := f * frameSize
			for i, v := range rings {
				data[off+i] = v*gain + float32(rng.NormFloat64()*5)
			}
		}

		h := moduleHeader{
			FS:             spec.PanelCols,
			SS:             spec.PanelRows,
			Frames:         frames,
			FirstTrain:     opts.FirstTrain,
			FramesPerTrain: opts.FramesPerTrain,
			Source:         spec.Source(mod),
		}
		if err := writeModule(filepath.Join(dir, MockFileName(spec, mod)), h, data); err != nil {
			return err
		}
	}
	log.Printf("Run: wrote mock %s run to %s (%d trains x %d frames)", spec.Name, dir, opts.Trains, opts.FramesPerTrain)
	return nil
}
