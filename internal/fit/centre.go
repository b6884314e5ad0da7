package fit

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"geo-assembler/internal/detector"
	"geo-assembler/pkg/geometry"
)

// ErrNoSignal is returned when the profile has no finite values to judge.
var ErrNoSignal = errors.New("no finite pixels in the profile range")

// DefaultTrim is the number of profile bins ignored at each end.
const DefaultTrim = 100

type sample struct {
	x, y, v float64
}

func finiteSamples(m mat.Matrix) []sample {
	rows, cols := m.Dims()
	var out []sample
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			out = append(out, sample{x: float64(j) + 0.5, y: float64(i) + 0.5, v: v})
		}
	}
	return out
}

func profile(samples []sample, centre geometry.Point2D, bins int) []float64 {
	sum := make([]float64, bins)
	count := make([]int, bins)
	for _, s := range samples {
		dx, dy := s.x-centre.X, s.y-centre.Y
		k := int(math.Sqrt(dx*dx + dy*dy))
		if k < bins {
			sum[k] += s.v
			count[k]++
		}
	}
	out := make([]float64, bins)
	for k := range out {
		if count[k] == 0 {
			out[k] = math.NaN()
		} else {
			out[k] = sum[k] / float64(count[k])
		}
	}
	return out
}

// RadialProfile returns the azimuthal mean of the finite pixels of m in
// one-pixel radial bins around centre (canvas coordinates). Empty bins are NaN.
func RadialProfile(m mat.Matrix, centre geometry.Point2D, bins int) []float64 {
	return profile(finiteSamples(m), centre, bins)
}

// CentreOptimiser searches for the beam centre that gives the sharpest
// radial profile of an assembled image.
type CentreOptimiser struct {
	// Image is the assembled frame in canvas coordinates.
	Image mat.Matrix
	// Centre is the current beam centre on the canvas.
	Centre geometry.Point2D
	// Geometry is shifted by the result.
	Geometry *detector.Geometry
	// Trim bins are ignored at both ends of the profile.
	Trim int

	samples []sample
	bins    int
}

// CentreResult is the outcome of a centre search.
type CentreResult struct {
	// Offset of the best centre from the current one.
	Offset geometry.PointInt
	Loss   float64
	// QuadPositions are the quadrant corners after moving the detector so
	// that the best centre lies on the origin.
	QuadPositions [detector.QuadrantCount]geometry.PointInt
	Evaluations   int
}

func (o *CentreOptimiser) loss(d geometry.Point2D) float64 {
	p := profile(o.samples, o.Centre.Add(d), o.bins)
	peak := math.Inf(-1)
	for _, v := range p[o.Trim : len(p)-o.Trim] {
		if !math.IsNaN(v) && v > peak {
			peak = v
		}
	}
	if peak <= 0 || math.IsInf(peak, -1) {
		return math.Inf(1)
	}
	return 1 / peak
}

// Optimise searches offsets within ±search pixels. A coarse grid locates
// the basin, a fine grid and a Nelder-Mead pass settle on the best whole
// pixel offset.
func (o *CentreOptimiser) Optimise(ctx context.Context, search int) (CentreResult, error) {
	var res CentreResult
	o.samples = finiteSamples(o.Image)
	rows, cols := o.Image.Dims()
	o.bins = int(math.Hypot(float64(rows), float64(cols))) + 1
	if o.Trim <= 0 {
		o.Trim = min(DefaultTrim, o.bins/4)
	}
	if len(o.samples) == 0 || 2*o.Trim >= o.bins {
		return res, ErrNoSignal
	}

	best := geometry.PointInt{}
	bestLoss := o.loss(geometry.Point2D{})
	evals := 1
	try := func(p geometry.PointInt) {
		l := o.loss(p.ToFloat())
		evals++
		if l < bestLoss {
			best, bestLoss = p, l
		}
	}

	step := max(1, search/5)
	for dy := -search; dy <= search; dy += step {
		for dx := -search; dx <= search; dx += step {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			try(geometry.Pt(dx, dy))
		}
	}
	centre := best
	for dy := -step; dy <= step; dy++ {
		for dx := -step; dx <= step; dx++ {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			try(centre.Add(geometry.Pt(dx, dy)))
		}
	}

	problem := optimize.Problem{Func: func(x []float64) float64 {
		return o.loss(geometry.Point2D{X: x[0], Y: x[1]})
	}}
	settings := &optimize.Settings{FuncEvaluations: 100}
	nm, err := optimize.Minimize(problem, []float64{float64(best.X), float64(best.Y)}, settings, &optimize.NelderMead{SimplexSize: 1})
	if err == nil && nm != nil {
		evals += nm.Stats.FuncEvaluations
		try(geometry.Point2D{X: nm.X[0], Y: nm.X[1]}.Round())
	}
	if math.IsInf(bestLoss, 1) {
		return res, ErrNoSignal
	}

	res.Offset = best
	res.Loss = bestLoss
	res.Evaluations = evals
	if o.Geometry != nil {
		g := o.Geometry.Clone()
		for q := 1; q <= detector.QuadrantCount; q++ {
			_ = g.MoveQuadrant(q, best.Neg())
		}
		res.QuadPositions = g.QuadPositions()
	}
	return res, nil
}
