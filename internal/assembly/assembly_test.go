package assembly

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"geo-assembler/internal/detector"
	"geo-assembler/pkg/geometry"
)

var tiny = &detector.Spec{
	Name:          "TINY",
	ModuleTag:     "TINY",
	SourcePattern: "TINY/%d",
	PanelRows:     4,
	PanelCols:     3,
	AsicRows:      2,
	AsicCols:      3,
	PixelSize:     1e-3,
	QuadLayout: [4]geometry.PointInt{
		{X: 0, Y: 0}, {X: 0, Y: 5}, {X: 0, Y: 10}, {X: 0, Y: 15},
	},
	FallbackQuadPos: [4]geometry.PointInt{
		{X: -10, Y: -20}, {X: -10, Y: 2}, {X: 2, Y: 2}, {X: 2, Y: -20},
	},
}

func ramp(rows, cols int, base float64) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, base+float64(i*cols+j))
		}
	}
	return m
}

func tinyPanels() []mat.Matrix {
	out := make([]mat.Matrix, detector.PanelCount)
	for i := range out {
		out[i] = ramp(4, 3, float64(100*i))
	}
	return out
}

func TestIdentityPlacementReproducesPanel(t *testing.T) {
	m := ramp(4, 3, 1)
	img, err := NewImage(Layout{Rows: 4, Cols: 3})
	require.NoError(t, err)
	require.NoError(t, img.Place(m, detector.Panel{}))
	assert.True(t, mat.Equal(m, img.Data))
}

func TestFlipTwiceIsIdentity(t *testing.T) {
	m := ramp(5, 7, 0)
	assert.True(t, mat.Equal(m, FlipX(FlipX(m))))
	assert.True(t, mat.Equal(m, FlipY(FlipY(m))))
	assert.False(t, mat.Equal(m, FlipX(m)))
}

func TestRot90(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	ccw := mat.NewDense(3, 2, []float64{
		3, 6,
		2, 5,
		1, 4,
	})
	cw := mat.NewDense(3, 2, []float64{
		4, 1,
		5, 2,
		6, 3,
	})
	half := mat.NewDense(2, 3, []float64{
		6, 5, 4,
		3, 2, 1,
	})
	assert.True(t, mat.Equal(ccw, Rot90(m, 1)))
	assert.True(t, mat.Equal(half, Rot90(m, 2)))
	assert.True(t, mat.Equal(cw, Rot90(m, 3)))
	assert.True(t, mat.Equal(cw, Rot90(m, -1)))
	assert.True(t, mat.Equal(m, Rot90(Rot90(m, 1), 3)))
	assert.True(t, mat.Equal(m, Rot90(m, 4)))
}

func TestTransformFlipsBeforeRotating(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	got := TransformPanel(m, detector.Panel{FlipX: true, Rotation: 90})
	want := Rot90(FlipX(m), 1)
	assert.True(t, mat.Equal(want, got))

	// Input must stay untouched.
	assert.Equal(t, 1.0, m.At(0, 0))
}

func TestAssembleDefaultLayout(t *testing.T) {
	g := detector.Default(tiny)
	img, err := Assemble(g, tinyPanels())
	require.NoError(t, err)

	ext := g.Extent()
	rows, cols := img.Data.Dims()
	assert.Equal(t, ext.Height, rows)
	assert.Equal(t, ext.Width, cols)
	assert.Equal(t, geometry.Pt(10, 20), img.Origin)
	assert.Equal(t, geometry.Point2D{X: 10, Y: 20}, img.Centre())

	for i := 0; i < detector.PanelCount; i++ {
		at := img.ToCanvas(g.Panels[i].Offset)
		assert.Equal(t, float64(100*i), img.Data.At(at.Y, at.X), "panel %d", i)
		assert.Equal(t, float64(100*i+11), img.Data.At(at.Y+3, at.X+2), "panel %d", i)
	}

	// Gap between two panels of quadrant 1 is empty.
	gap := img.ToCanvas(geometry.Pt(-10, -16))
	assert.True(t, math.IsNaN(img.Data.At(gap.Y, gap.X)))
}

func TestAssembleMovedQuadrantGrowsCanvas(t *testing.T) {
	g := detector.Default(tiny)
	before := LayoutFor(g, 0)
	require.NoError(t, g.MoveQuadrant(3, geometry.Pt(50, 0)))

	img, err := Assemble(g, tinyPanels())
	require.NoError(t, err)
	assert.Equal(t, before.Cols+50, img.Cols)
	assert.Equal(t, before.Origin, img.Origin)
	assert.False(t, before.Fits(g))

	_, err = AssembleInto(before, g, tinyPanels())
	assert.ErrorIs(t, err, ErrOutOfCanvas)
}

func TestLayoutMargin(t *testing.T) {
	g := detector.Default(tiny)
	l := LayoutFor(g, 300)
	ext := g.Extent()
	assert.Equal(t, ext.Width+600, l.Cols)
	assert.Equal(t, ext.Height+600, l.Rows)
	assert.Equal(t, geometry.Pt(310, 320), l.Origin)
	assert.Equal(t, geometry.Pt(0, 0), l.ToGeometry(l.Origin))
	assert.True(t, l.Fits(g))
}

func TestDimensionMismatch(t *testing.T) {
	g := detector.Default(tiny)

	_, err := Assemble(g, tinyPanels()[:15])
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	panels := tinyPanels()
	panels[7] = ramp(3, 4, 0)
	_, err = Assemble(g, panels)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "panel 7")

	panels = tinyPanels()
	panels[2] = nil
	_, err = Assemble(g, panels)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOverlapLaterPanelWins(t *testing.T) {
	g := detector.Default(tiny)
	g.Panels[1].Offset = g.Panels[0].Offset
	img, err := Assemble(g, tinyPanels())
	require.NoError(t, err)
	at := img.ToCanvas(g.Panels[0].Offset)
	assert.Equal(t, 100.0, img.Data.At(at.Y, at.X))
}

func TestAssembleRotatedPanel(t *testing.T) {
	g := detector.Default(tiny)
	require.NoError(t, g.Rotate(0, 90))
	img, err := Assemble(g, tinyPanels())
	require.NoError(t, err)

	r := g.PanelRect(0)
	assert.Equal(t, 4, r.Width)
	assert.Equal(t, 3, r.Height)

	at := img.ToCanvas(g.Panels[0].Offset)
	want := Rot90(tinyPanels()[0], 1)
	got := img.Data.Slice(at.Y, at.Y+3, at.X, at.X+4)
	assert.True(t, mat.Equal(want, got))
}

func TestAssembleStack(t *testing.T) {
	g := detector.Default(tiny)
	frames := [][]mat.Matrix{tinyPanels(), tinyPanels()}
	imgs, err := AssembleStack(g, frames)
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	assert.Equal(t, imgs[0].Layout, imgs[1].Layout)

	frames[1] = frames[1][:3]
	_, err = AssembleStack(g, frames)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestInvalidGeometryRejected(t *testing.T) {
	g := detector.Default(tiny)
	g.Panels[0].Rotation = 45
	_, err := Assemble(g, tinyPanels())
	assert.ErrorIs(t, err, detector.ErrInvalidRotation)
}
