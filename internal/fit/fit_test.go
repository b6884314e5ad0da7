package fit

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"geo-assembler/internal/detector"
	"geo-assembler/pkg/geometry"
)

// circlePoints returns n points spaced evenly on a circle.
func circlePoints(centre geometry.Point2D, radius float64, n int) []geometry.Point2D {
	points := make([]geometry.Point2D, n)
	for i := range points {
		a := 2 * math.Pi * float64(i) / float64(n)
		points[i] = geometry.Point2D{X: centre.X + radius*math.Cos(a), Y: centre.Y + radius*math.Sin(a)}
	}
	return points
}

func TestFitCircleExact(t *testing.T) {
	centre := geometry.Point2D{X: 12.5, Y: -7}
	points := circlePoints(centre, 40, 24)
	c, err := FitCircle(points)
	require.NoError(t, err)
	assert.InDelta(t, centre.X, c.Centre.X, 1e-3)
	assert.InDelta(t, centre.Y, c.Centre.Y, 1e-3)
	assert.InDelta(t, 40, c.Radius, 1e-3)
	assert.Less(t, c.Residual(points), 1e-3)
}

func TestFitCircleFarFromOrigin(t *testing.T) {
	centre := geometry.Point2D{X: 1e6, Y: -2e6}
	points := circlePoints(centre, 25, 5)[:3]
	start, err := algebraicFit(points)
	require.NoError(t, err)
	assert.InDelta(t, centre.X, start.Centre.X, 1e-4)
	assert.InDelta(t, centre.Y, start.Centre.Y, 1e-4)
	assert.InDelta(t, 25, start.Radius, 1e-4)
}

func TestFitCircleThreePoints(t *testing.T) {
	c, err := FitCircle([]geometry.Point2D{{X: 10, Y: 0}, {X: 0, Y: 10}, {X: -10, Y: 0}})
	require.NoError(t, err)
	assert.InDelta(t, 0, c.Centre.X, 1e-6)
	assert.InDelta(t, 0, c.Centre.Y, 1e-6)
	assert.InDelta(t, 10, c.Radius, 1e-6)
}

func TestFitCircleErrors(t *testing.T) {
	_, err := FitCircle([]geometry.Point2D{{X: 1, Y: 1}, {X: 2, Y: 2}})
	assert.ErrorIs(t, err, ErrTooFewPoints)

	_, err = FitCircle([]geometry.Point2D{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}})
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestCalibrantSpacings(t *testing.T) {
	si, err := LookupCalibrant("si")
	require.NoError(t, err)
	d := si.DSpacings(3)
	require.Len(t, d, 3)
	// (111), (220), (311)
	assert.InDelta(t, si.A/math.Sqrt(3), d[0], 1e-9)
	assert.InDelta(t, si.A/math.Sqrt(8), d[1], 1e-9)
	assert.InDelta(t, si.A/math.Sqrt(11), d[2], 1e-9)

	lab6, err := LookupCalibrant("LaB6")
	require.NoError(t, err)
	assert.InDelta(t, lab6.A, lab6.DSpacings(1)[0], 1e-9)

	_, err = LookupCalibrant("unobtainium")
	assert.Error(t, err)
	assert.Contains(t, CalibrantNames(), "CeO2")
}

func TestRingsGrowOutwards(t *testing.T) {
	c, err := LookupCalibrant("CeO2")
	require.NoError(t, err)
	radii := c.Rings(10235, 0.119, 200e-6, 8)
	require.NotEmpty(t, radii)
	for i := 1; i < len(radii); i++ {
		assert.Greater(t, radii[i], radii[i-1])
	}
	// Longer detector distance scales the rings.
	far := c.Rings(10235, 0.238, 200e-6, 8)
	assert.InDelta(t, 2*radii[0], far[0], 1e-9)
}

func ringImage(size int, centre geometry.Point2D, radius float64) *mat.Dense {
	m := mat.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			r := math.Hypot(float64(j)+0.5-centre.X, float64(i)+0.5-centre.Y)
			d := (r - radius) / 1.5
			m.Set(i, j, 1000*math.Exp(-d*d/2))
		}
	}
	return m
}

func TestRadialProfilePeaksOnRing(t *testing.T) {
	centre := geometry.Point2D{X: 50, Y: 50}
	p := RadialProfile(ringImage(100, centre, 20), centre, 60)
	require.Len(t, p, 60)
	peak := 0
	for k := range p {
		if p[k] > p[peak] {
			peak = k
		}
	}
	assert.InDelta(t, 20, peak, 1)
}

func TestRadialProfileEmptyBinsAreNaN(t *testing.T) {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, math.NaN())
		}
	}
	m.Set(0, 0, 1)
	p := RadialProfile(m, geometry.Point2D{X: 0.5, Y: 0.5}, 3)
	assert.Equal(t, 1.0, p[0])
	assert.True(t, math.IsNaN(p[1]))
	assert.True(t, math.IsNaN(p[2]))
}

func TestCentreOptimiserFindsRingCentre(t *testing.T) {
	truth := geometry.Point2D{X: 103, Y: 98}
	g := detector.Default(detector.AGIPD)
	before := g.QuadPositions()

	o := &CentreOptimiser{
		Image:    ringImage(200, truth, 50),
		Centre:   geometry.Point2D{X: 100, Y: 100},
		Geometry: g,
		Trim:     10,
	}
	res, err := o.Optimise(context.Background(), 10)
	require.NoError(t, err)
	assert.InDelta(t, 3, res.Offset.X, 1)
	assert.InDelta(t, -2, res.Offset.Y, 1)
	assert.Greater(t, res.Evaluations, 1)

	for q := range before {
		assert.Equal(t, before[q].Sub(res.Offset), res.QuadPositions[q])
	}
	assert.Equal(t, before, g.QuadPositions(), "input geometry is untouched")
}

func TestCentreOptimiserNoSignal(t *testing.T) {
	m := mat.NewDense(50, 50, nil)
	for i := 0; i < 50; i++ {
		for j := 0; j < 50; j++ {
			m.Set(i, j, math.NaN())
		}
	}
	o := &CentreOptimiser{Image: m, Centre: geometry.Point2D{X: 25, Y: 25}, Trim: 5}
	_, err := o.Optimise(context.Background(), 4)
	assert.ErrorIs(t, err, ErrNoSignal)
}

func TestCentreOptimiserCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := &CentreOptimiser{Image: ringImage(60, geometry.Point2D{X: 30, Y: 30}, 15), Centre: geometry.Point2D{X: 30, Y: 30}, Trim: 3}
	_, err := o.Optimise(ctx, 4)
	assert.ErrorIs(t, err, context.Canceled)
}
