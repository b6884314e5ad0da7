// Package colorutil provides shared color utilities for the geometry assembler.
package colorutil

import (
	"fmt"
	"image/color"
	"sort"
	"strings"
)

// Common overlay colors used throughout the application.
var (
	Black   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red     = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Cyan    = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	Blue    = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	Green   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Yellow  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// Overlay roles drawn over the assembled image.
var (
	QuadrantFrame = Red
	RingColor     = Magenta
	FitPointColor = Yellow
	CentreColor   = White
)

// WithAlpha returns c with its opacity set to a.
func WithAlpha(c color.RGBA, a uint8) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: a}
}

// ShapeColors cycles through the colours used for helper shapes.
var ShapeColors = []color.RGBA{Red, Cyan, Yellow, Magenta, Green, Blue}

// LUT is a 256-entry lookup table from scaled intensity to colour.
type LUT [256]color.RGBA

// stop is an anchor of a piecewise-linear colormap at position pos in [0,1].
type stop struct {
	pos     float64
	r, g, b float64
}

var colormaps = map[string][]stop{
	"grey": {
		{0, 0, 0, 0}, {1, 255, 255, 255},
	},
	"viridis": {
		{0.00, 68, 1, 84}, {0.13, 71, 44, 122}, {0.25, 59, 81, 139},
		{0.38, 44, 113, 142}, {0.50, 33, 144, 141}, {0.63, 39, 173, 129},
		{0.75, 92, 200, 99}, {0.88, 170, 220, 50}, {1.00, 253, 231, 37},
	},
	"hot": {
		{0, 0, 0, 0}, {0.375, 255, 0, 0}, {0.75, 255, 255, 0}, {1, 255, 255, 255},
	},
	"winter": {
		{0, 0, 0, 255}, {1, 0, 255, 128},
	},
	"summer": {
		{0, 0, 128, 102}, {1, 255, 255, 102},
	},
	"coolwarm": {
		{0.00, 59, 76, 192}, {0.25, 124, 159, 249}, {0.50, 221, 221, 221},
		{0.75, 245, 156, 125}, {1.00, 180, 4, 38},
	},
	"ocean": {
		{0, 0, 128, 0}, {0.667, 0, 0, 255}, {1, 255, 255, 255},
	},
}

// aliases maps alternative colormap names onto the built-in set.
var aliases = map[string]string{
	"gray":     "grey",
	"binary_r": "grey",
	"greys_r":  "grey",
}

// Colormaps returns the names of the built-in colormaps, sorted.
func Colormaps() []string {
	names := make([]string, 0, len(colormaps))
	for name := range colormaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CanonicalName resolves aliases and case. Unknown names return an error.
func CanonicalName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[n]; ok {
		n = a
	}
	if _, ok := colormaps[n]; !ok {
		return "", fmt.Errorf("unknown colormap %q", name)
	}
	return n, nil
}

// NewLUT builds the lookup table for the named colormap.
func NewLUT(name string) (*LUT, error) {
	n, err := CanonicalName(name)
	if err != nil {
		return nil, err
	}
	stops := colormaps[n]
	var lut LUT
	j := 0
	for i := range lut {
		t := float64(i) / 255
		for j < len(stops)-2 && t > stops[j+1].pos {
			j++
		}
		a, b := stops[j], stops[j+1]
		f := 0.0
		if b.pos > a.pos {
			f = (t - a.pos) / (b.pos - a.pos)
		}
		f = min(max(f, 0), 1)
		lut[i] = color.RGBA{
			R: uint8(a.r + (b.r-a.r)*f + 0.5),
			G: uint8(a.g + (b.g-a.g)*f + 0.5),
			B: uint8(a.b + (b.b-a.b)*f + 0.5),
			A: 255,
		}
	}
	return &lut, nil
}
