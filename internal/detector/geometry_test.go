package detector

import (
	"bytes"
	"strings"
	"testing"

	"geo-assembler/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	d, err := Lookup("agipd")
	require.NoError(t, err)
	assert.Same(t, AGIPD, d)

	_, err = Lookup("JUNGFRAU")
	assert.ErrorIs(t, err, ErrUnknownDetector)
}

func TestAsicCounts(t *testing.T) {
	assert.Equal(t, 8, AGIPD.AsicsPerPanel())
	assert.Equal(t, 1, AGIPD.AsicsFS())
	assert.Equal(t, 16, LPD.AsicsPerPanel())
	assert.Equal(t, 2, LPD.AsicsFS())
}

func TestDefaultLayoutHasNoOverlaps(t *testing.T) {
	for _, spec := range Detectors() {
		g := Default(spec)
		require.NoError(t, g.Validate(), spec.Name)
		for i := 0; i < PanelCount; i++ {
			for j := i + 1; j < PanelCount; j++ {
				a, b := g.PanelRect(i), g.PanelRect(j)
				overlap := a.X < b.X+b.Width && b.X < a.X+a.Width &&
					a.Y < b.Y+b.Height && b.Y < a.Y+a.Height
				assert.False(t, overlap, "%s panels %d and %d overlap", spec.Name, i, j)
			}
		}
	}
}

func TestDefaultQuadPositions(t *testing.T) {
	g := Default(AGIPD)
	assert.Equal(t, AGIPD.FallbackQuadPos, g.QuadPositions())

	rows, cols := g.PanelSize(0)
	assert.Equal(t, 128, rows)
	assert.Equal(t, 512, cols)
}

func TestMoveThereAndBack(t *testing.T) {
	g := Default(AGIPD)
	orig := g.Clone()

	require.NoError(t, g.MovePanel(3, geometry.Pt(7, -11)))
	assert.NotEqual(t, orig.Panels[3].Offset, g.Panels[3].Offset)
	require.NoError(t, g.MovePanel(3, geometry.Pt(-7, 11)))
	assert.Equal(t, orig.Panels, g.Panels)

	require.NoError(t, g.MoveQuadrant(2, geometry.Pt(5, 5)))
	require.NoError(t, g.MoveQuadrant(2, geometry.Pt(-5, -5)))
	assert.Equal(t, orig.Panels, g.Panels)
}

func TestMoveQuadrantOnlyTouchesItsPanels(t *testing.T) {
	g := Default(LPD)
	orig := g.Clone()
	require.NoError(t, g.Move(3, geometry.Right, 10))

	for i := range g.Panels {
		if g.Panels[i].Quadrant == 3 {
			assert.Equal(t, orig.Panels[i].Offset.X+10, g.Panels[i].Offset.X)
		} else {
			assert.Equal(t, orig.Panels[i].Offset, g.Panels[i].Offset)
		}
	}
	assert.ErrorIs(t, g.MoveQuadrant(5, geometry.Pt(1, 1)), ErrInvalidQuadrant)
	assert.ErrorIs(t, g.MovePanel(16, geometry.Pt(1, 1)), ErrPanelIndex)
}

func TestRotateNormalises(t *testing.T) {
	g := New(AGIPD)
	require.NoError(t, g.Rotate(0, -90))
	assert.Equal(t, 270, g.Panels[0].Rotation)
	require.NoError(t, g.Rotate(0, 450))
	assert.Equal(t, 0, g.Panels[0].Rotation)
	assert.ErrorIs(t, g.Rotate(0, 45), ErrInvalidRotation)
}

func TestFlipToggles(t *testing.T) {
	g := New(AGIPD)
	require.NoError(t, g.ToggleFlipX(1))
	require.NoError(t, g.ToggleFlipY(1))
	assert.True(t, g.Panels[1].FlipX)
	assert.True(t, g.Panels[1].FlipY)
	require.NoError(t, g.SetFlip(1, false, true))
	assert.False(t, g.Panels[1].FlipX)
}

func TestQuadrantAt(t *testing.T) {
	g := Default(AGIPD)
	for q := 1; q <= QuadrantCount; q++ {
		c := g.QuadrantBounds(q).Center().Round()
		assert.Equal(t, q, g.QuadrantAt(c))
	}
	assert.Equal(t, 0, g.QuadrantAt(geometry.Pt(0, 0)))
	assert.Equal(t, 0, g.QuadrantAt(geometry.Pt(5000, 5000)))
}

func TestQuadrantBoundsHasMargin(t *testing.T) {
	g := Default(AGIPD)
	b := g.QuadrantBounds(1)
	pos := g.QuadPositions()[0]
	assert.Equal(t, pos.X-2, b.X)
	assert.Equal(t, pos.Y-2, b.Y)
	assert.Equal(t, 512+4, b.Width)
	assert.Equal(t, 3*157+128+4, b.Height)
}

func TestSetQuadPositions(t *testing.T) {
	g := Default(AGIPD)
	want := [QuadrantCount]geometry.PointInt{{X: -600, Y: -600}, {X: -600, Y: 20}, {X: 40, Y: 150}, {X: 40, Y: -500}}
	g.SetQuadPositions(want)
	assert.Equal(t, want, g.QuadPositions())
	assert.Equal(t, FromQuadPositions(AGIPD, want).Panels, g.Panels)
}

func TestTableRoundTrip(t *testing.T) {
	g := Default(AGIPD)
	require.NoError(t, g.ToggleFlipX(4))
	require.NoError(t, g.Rotate(9, 180))
	require.NoError(t, g.MovePanel(15, geometry.Pt(-3, 2)))

	var buf bytes.Buffer
	require.NoError(t, g.WriteTable(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "Source,Xoffset,Yoffset,FlipX,FlipY,rotate,Quadrant\n"))

	back, err := ReadTable(&buf, AGIPD)
	require.NoError(t, err)
	assert.Equal(t, g.Panels, back.Panels)
}

func TestReadTableErrors(t *testing.T) {
	_, err := ReadTable(strings.NewReader("Source,Xoffset\nfoo,1\n"), AGIPD)
	assert.ErrorIs(t, err, ErrMalformedTable)

	_, err = ReadTable(strings.NewReader(strings.Join(tableHeader, ",")+"\nsrc,0,0,false,false,0,1\n"), AGIPD)
	assert.ErrorIs(t, err, ErrPanelCount)

	var buf bytes.Buffer
	require.NoError(t, Default(LPD).WriteTable(&buf))
	bad := strings.Replace(buf.String(), ",0,1\n", ",45,1\n", 1)
	_, err = ReadTable(strings.NewReader(bad), LPD)
	assert.ErrorIs(t, err, ErrInvalidRotation)
}

func TestQuadPositionsCSV(t *testing.T) {
	pos := AGIPD.FallbackQuadPos
	var buf bytes.Buffer
	require.NoError(t, WriteQuadPositions(&buf, pos))
	back, err := ReadQuadPositions(&buf)
	require.NoError(t, err)
	assert.Equal(t, pos, back)

	_, err = ReadQuadPositions(strings.NewReader("quad,x,y\n1,0,0\n"))
	assert.ErrorIs(t, err, ErrMalformedTable)
}
