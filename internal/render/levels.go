package render

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Levels is the intensity window mapped onto the colormap.
type Levels struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Scale maps v into 0..255. ok is false for NaN and infinities.
func (l Levels) Scale(v float64) (idx uint8, ok bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	span := l.Max - l.Min
	if span <= 0 {
		if v >= l.Max {
			return 255, true
		}
		return 0, true
	}
	t := (v - l.Min) / span
	t = min(max(t, 0), 1)
	return uint8(t*255 + 0.5), true
}

func (l Levels) String() string {
	return fmt.Sprintf("%g,%g", l.Min, l.Max)
}

// ParseLevels reads "min,max".
func ParseLevels(s string) (Levels, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Levels{}, fmt.Errorf("levels must be min,max: %q", s)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Levels{}, fmt.Errorf("invalid minimum level: %w", err)
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Levels{}, fmt.Errorf("invalid maximum level: %w", err)
	}
	if hi < lo {
		return Levels{}, fmt.Errorf("maximum level %g below minimum %g", hi, lo)
	}
	return Levels{Min: lo, Max: hi}, nil
}

// AutoLevels picks the lo and hi quantiles (0..1) of the finite values of m.
// An image without finite values gives the zero window.
func AutoLevels(m mat.Matrix, lo, hi float64) Levels {
	rows, cols := m.Dims()
	vals := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				vals = append(vals, v)
			}
		}
	}
	if len(vals) == 0 {
		return Levels{}
	}
	sort.Float64s(vals)
	lo = min(max(lo, 0), 1)
	hi = min(max(hi, lo), 1)
	return Levels{
		Min: stat.Quantile(lo, stat.Empirical, vals, nil),
		Max: stat.Quantile(hi, stat.Empirical, vals, nil),
	}
}
