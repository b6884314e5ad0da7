package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectUnionIgnoresEmpty(t *testing.T) {
	a := RectInt{X: -5, Y: 2, Width: 10, Height: 4}
	b := RectInt{X: 3, Y: -1, Width: 4, Height: 2}

	assert.Equal(t, RectInt{X: -5, Y: -1, Width: 12, Height: 7}, a.Union(b))
	assert.Equal(t, a, RectInt{}.Union(a))
	assert.Equal(t, a, a.Union(RectInt{}))
}

func TestRectContainsIsHalfOpen(t *testing.T) {
	r := RectInt{X: 0, Y: 0, Width: 2, Height: 2}
	assert.True(t, r.Contains(Pt(0, 0)))
	assert.True(t, r.Contains(Pt(1, 1)))
	assert.False(t, r.Contains(Pt(2, 1)))
	assert.False(t, r.Contains(Pt(1, -1)))
}

func TestInsetNegativeGrows(t *testing.T) {
	r := RectInt{X: 10, Y: 10, Width: 5, Height: 5}
	assert.Equal(t, RectInt{X: 8, Y: 8, Width: 9, Height: 9}, r.Inset(-2))
	assert.True(t, r.Inset(-2).ContainsRect(r))
}

func TestDirectionStep(t *testing.T) {
	assert.Equal(t, Pt(0, -3), Up.Step(3))
	assert.Equal(t, Pt(0, 3), Down.Step(3))
	assert.Equal(t, Pt(-3, 0), Left.Step(3))
	assert.Equal(t, Pt(3, 0), Right.Step(3))
	assert.Equal(t, Right, Left.Mirror())
	assert.Equal(t, Up, Up.Mirror())
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"u": Up, "Down": Down, "l": Left, " right ": Right} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}

func TestCentroid(t *testing.T) {
	assert.Equal(t, Point2D{}, Centroid(nil))
	c := Centroid([]Point2D{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: -8}, {X: 0, Y: -8}})
	assert.Equal(t, Point2D{X: 2, Y: -4}, c)
}

func TestTranslate(t *testing.T) {
	r := RectInt{Width: 3, Height: 2}.Translate(Pt(-5, 7))
	assert.Equal(t, RectInt{X: -5, Y: 7, Width: 3, Height: 2}, r)
}
