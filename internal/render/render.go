// Package render turns assembled intensity images into colour images, draws
// helper overlays on them and writes them to disk.
package render

import (
	"image"
	"image/color"

	"gonum.org/v1/gonum/mat"

	"geo-assembler/pkg/colorutil"
)

// Background is the colour of pixels without data.
var Background = colorutil.Black

// Options controls Render.
type Options struct {
	Levels   Levels
	Colormap string
	// FrontView mirrors the image left to right, showing the detector as
	// seen from the sample.
	FrontView bool
}

// Render maps m through the levels and colormap. Pixel (x, y) of the result
// shows m.At(y, x), or m.At(y, cols-1-x) in front view.
func Render(m mat.Matrix, opts Options) (*image.RGBA, error) {
	name := opts.Colormap
	if name == "" {
		name = "grey"
	}
	name, err := colorutil.CanonicalName(name)
	if err != nil {
		return nil, err
	}

	rows, cols := m.Dims()
	idx := make([]uint8, rows*cols)
	valid := make([]bool, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			src := j
			if opts.FrontView {
				src = cols - 1 - j
			}
			k := i*cols + j
			idx[k], valid[k] = opts.Levels.Scale(m.At(i, src))
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	if rows == 0 || cols == 0 {
		return img, nil
	}
	if err := colorize(name, idx, rows, cols, img); err != nil {
		return nil, err
	}
	for k, ok := range valid {
		if !ok {
			img.SetRGBA(k%cols, k/cols, Background)
		}
	}
	return img, nil
}

func lutColorize(name string, idx []uint8, img *image.RGBA) error {
	lut, err := colorutil.NewLUT(name)
	if err != nil {
		return err
	}
	for k, v := range idx {
		c := lut[v]
		o := k * 4
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = c.R, c.G, c.B, 255
	}
	return nil
}

// Grey16 scales m into a 16-bit grey image using the levels. Missing pixels
// are 0.
func Grey16(m mat.Matrix, lv Levels, frontView bool) *image.Gray16 {
	rows, cols := m.Dims()
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	span := lv.Max - lv.Min
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			src := j
			if frontView {
				src = cols - 1 - j
			}
			v := m.At(i, src)
			if _, ok := lv.Scale(v); !ok {
				continue
			}
			t := 1.0
			if span > 0 {
				t = min(max((v-lv.Min)/span, 0), 1)
			} else if v < lv.Max {
				t = 0
			}
			img.SetGray16(j, i, color.Gray16{Y: uint16(t*65535 + 0.5)})
		}
	}
	return img
}
