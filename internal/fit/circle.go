// Package fit provides the helper shapes used to judge an assembled image:
// least-squares circles, calibrant ring radii and a beam centre search.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"geo-assembler/pkg/geometry"
)

var (
	ErrTooFewPoints = errors.New("at least three points are needed")
	ErrDegenerate   = errors.New("points do not define a circle")
)

// Circle is a circle in image coordinates.
type Circle struct {
	Centre geometry.Point2D `json:"centre"`
	Radius float64          `json:"radius"`
}

// Residual returns the RMS distance of the points from the circle.
func (c Circle) Residual(points []geometry.Point2D) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		d := p.Distance(c.Centre) - c.Radius
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(points)))
}

// FitCircle returns the circle closest to the points in the least-squares
// sense. An algebraic fit gives the starting point for a Nelder-Mead
// refinement of the geometric distance.
func FitCircle(points []geometry.Point2D) (Circle, error) {
	if len(points) < 3 {
		return Circle{}, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(points))
	}
	start, err := algebraicFit(points)
	if err != nil {
		return Circle{}, err
	}

	loss := func(x []float64) float64 {
		c := Circle{Centre: geometry.Point2D{X: x[0], Y: x[1]}, Radius: x[2]}
		r := c.Residual(points)
		return r * r
	}
	problem := optimize.Problem{Func: loss}
	x0 := []float64{start.Centre.X, start.Centre.Y, start.Radius}
	res, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil || res == nil || res.F > loss(x0) {
		return start, nil
	}
	c := Circle{Centre: geometry.Point2D{X: res.X[0], Y: res.X[1]}, Radius: math.Abs(res.X[2])}
	return c, nil
}

// algebraicFit solves x² + y² + Dx + Ey + F = 0 in the least-squares sense.
// The points are taken relative to their centroid so the squared terms stay
// small on a detector-sized canvas.
func algebraicFit(points []geometry.Point2D) (Circle, error) {
	n := len(points)
	o := geometry.Centroid(points)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i, p := range points {
		p = p.Sub(o)
		a.Set(i, 0, p.X)
		a.Set(i, 1, p.Y)
		a.Set(i, 2, 1)
		b.SetVec(i, -(p.X*p.X + p.Y*p.Y))
	}
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return Circle{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	cx, cy := -x.AtVec(0)/2, -x.AtVec(1)/2
	r2 := cx*cx + cy*cy - x.AtVec(2)
	if r2 <= 0 || math.IsNaN(r2) || math.IsInf(r2, 0) {
		return Circle{}, ErrDegenerate
	}
	return Circle{Centre: geometry.Point2D{X: cx, Y: cy}.Add(o), Radius: math.Sqrt(r2)}, nil
}
