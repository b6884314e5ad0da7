// Package assembly composites per-module pixel arrays into one detector image.
//
// Each module array is flipped (columns for FlipX, rows for FlipY), then
// rotated counter-clockwise by its quarter turns, then pasted so that its
// top-left pixel lands on the panel offset.
//
// Canvas policy: Assemble grows the canvas to the bounding box of every
// placed panel, so nothing is ever clipped. AssembleInto places panels on a
// caller supplied Layout and returns ErrOutOfCanvas instead of clipping when
// a panel does not fit. Pixels not covered by any panel are NaN. Overlapping
// panels are not detected; the later panel overwrites the earlier one.
package assembly

import (
	"gonum.org/v1/gonum/mat"

	"geo-assembler/internal/detector"
)

// FlipX returns a copy of m with its columns in reverse order.
func FlipX(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, c-1-j, m.At(i, j))
		}
	}
	return out
}

// FlipY returns a copy of m with its rows in reverse order.
func FlipY(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(r-1-i, j, m.At(i, j))
		}
	}
	return out
}

// Rot90 returns m rotated counter-clockwise by k quarter turns. Negative k
// rotates clockwise.
func Rot90(m mat.Matrix, k int) *mat.Dense {
	k = ((k % 4) + 4) % 4
	r, c := m.Dims()
	switch k {
	case 1:
		out := mat.NewDense(c, r, nil)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				out.Set(c-1-j, i, m.At(i, j))
			}
		}
		return out
	case 2:
		out := mat.NewDense(r, c, nil)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				out.Set(r-1-i, c-1-j, m.At(i, j))
			}
		}
		return out
	case 3:
		out := mat.NewDense(c, r, nil)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				out.Set(j, r-1-i, m.At(i, j))
			}
		}
		return out
	}
	return mat.DenseCopyOf(m)
}

// TransformPanel applies the flips and rotation of p to a module array.
func TransformPanel(m mat.Matrix, p detector.Panel) *mat.Dense {
	out := mat.DenseCopyOf(m)
	if p.FlipX {
		out = FlipX(out)
	}
	if p.FlipY {
		out = FlipY(out)
	}
	if p.Rotation != 0 {
		out = Rot90(out, p.Rotation/90)
	}
	return out
}
