package detector

import (
	"errors"
	"fmt"

	"geo-assembler/pkg/geometry"
)

var (
	ErrPanelCount      = errors.New("wrong number of panels")
	ErrPanelIndex      = errors.New("panel index out of range")
	ErrInvalidRotation = errors.New("rotation must be a multiple of 90 degrees")
	ErrInvalidQuadrant = errors.New("quadrant must be between 1 and 4")
)

// quadMargin is added around a quadrant's panels when hit-testing and drawing
// its selection frame.
const quadMargin = 2

// Panel is the placement of one detector module.
type Panel struct {
	Source string            `json:"source"`
	Offset geometry.PointInt `json:"offset"`
	// FlipX reverses the module's columns, FlipY its rows.
	FlipX bool `json:"flip_x"`
	FlipY bool `json:"flip_y"`
	// Rotation is a counter-clockwise quarter-turn rotation in degrees,
	// applied after the flips.
	Rotation int `json:"rotation"`
	Quadrant int `json:"quadrant"`
}

// Geometry is the ordered placement of all panels of a detector.
type Geometry struct {
	Detector *Spec
	Panels   [PanelCount]Panel
}

// NormalizeRotation maps deg into {0, 90, 180, 270}.
func NormalizeRotation(deg int) (int, error) {
	if deg%90 != 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRotation, deg)
	}
	return ((deg % 360) + 360) % 360, nil
}

// New returns a geometry with every panel at the origin.
func New(spec *Spec) *Geometry {
	g := &Geometry{Detector: spec}
	for i := range g.Panels {
		g.Panels[i] = Panel{
			Source:   spec.Source(i),
			Quadrant: i/4 + 1,
		}
	}
	return g
}

// Clone returns a deep copy of the geometry.
func (g *Geometry) Clone() *Geometry {
	c := *g
	return &c
}

// Validate checks the placement invariants of every panel.
func (g *Geometry) Validate() error {
	if g.Detector == nil {
		return fmt.Errorf("%w: no detector", ErrUnknownDetector)
	}
	for i, p := range g.Panels {
		if _, err := NormalizeRotation(p.Rotation); err != nil {
			return fmt.Errorf("panel %d: %w", i, err)
		}
		if p.Quadrant < 1 || p.Quadrant > QuadrantCount {
			return fmt.Errorf("panel %d: %w (got %d)", i, ErrInvalidQuadrant, p.Quadrant)
		}
	}
	return nil
}

func (g *Geometry) checkIndex(i int) error {
	if i < 0 || i >= PanelCount {
		return fmt.Errorf("%w: %d", ErrPanelIndex, i)
	}
	return nil
}

func checkQuadrant(q int) error {
	if q < 1 || q > QuadrantCount {
		return fmt.Errorf("%w (got %d)", ErrInvalidQuadrant, q)
	}
	return nil
}

// MovePanel shifts one panel by delta.
func (g *Geometry) MovePanel(i int, delta geometry.PointInt) error {
	if err := g.checkIndex(i); err != nil {
		return err
	}
	g.Panels[i].Offset = g.Panels[i].Offset.Add(delta)
	return nil
}

// MoveQuadrant shifts every panel of quadrant q by delta.
func (g *Geometry) MoveQuadrant(q int, delta geometry.PointInt) error {
	if err := checkQuadrant(q); err != nil {
		return err
	}
	for i := range g.Panels {
		if g.Panels[i].Quadrant == q {
			g.Panels[i].Offset = g.Panels[i].Offset.Add(delta)
		}
	}
	return nil
}

// Move shifts quadrant q by inc pixels in direction dir.
func (g *Geometry) Move(q int, dir geometry.Direction, inc int) error {
	return g.MoveQuadrant(q, dir.Step(inc))
}

// SetFlip sets both flip flags of panel i.
func (g *Geometry) SetFlip(i int, flipX, flipY bool) error {
	if err := g.checkIndex(i); err != nil {
		return err
	}
	g.Panels[i].FlipX = flipX
	g.Panels[i].FlipY = flipY
	return nil
}

// ToggleFlipX inverts the column order of panel i.
func (g *Geometry) ToggleFlipX(i int) error {
	if err := g.checkIndex(i); err != nil {
		return err
	}
	g.Panels[i].FlipX = !g.Panels[i].FlipX
	return nil
}

// ToggleFlipY inverts the row order of panel i.
func (g *Geometry) ToggleFlipY(i int) error {
	if err := g.checkIndex(i); err != nil {
		return err
	}
	g.Panels[i].FlipY = !g.Panels[i].FlipY
	return nil
}

// Rotate adds deg degrees of counter-clockwise rotation to panel i. The
// panel keeps its top-left offset.
func (g *Geometry) Rotate(i int, deg int) error {
	if err := g.checkIndex(i); err != nil {
		return err
	}
	rot, err := NormalizeRotation(g.Panels[i].Rotation + deg)
	if err != nil {
		return err
	}
	g.Panels[i].Rotation = rot
	return nil
}

// PanelSize returns the rows and columns of panel i after rotation.
func (g *Geometry) PanelSize(i int) (rows, cols int) {
	rows, cols = g.Detector.PanelRows, g.Detector.PanelCols
	if r := g.Panels[i].Rotation; r == 90 || r == 270 {
		rows, cols = cols, rows
	}
	return rows, cols
}

// PanelRect returns the area covered by panel i in geometry coordinates.
func (g *Geometry) PanelRect(i int) geometry.RectInt {
	rows, cols := g.PanelSize(i)
	return geometry.RectInt{Width: cols, Height: rows}.Translate(g.Panels[i].Offset)
}

// Extent returns the union of all panel rectangles.
func (g *Geometry) Extent() geometry.RectInt {
	var r geometry.RectInt
	for i := range g.Panels {
		r = r.Union(g.PanelRect(i))
	}
	return r
}

func (g *Geometry) quadrantExtent(q int) geometry.RectInt {
	var r geometry.RectInt
	for i, p := range g.Panels {
		if p.Quadrant == q {
			r = r.Union(g.PanelRect(i))
		}
	}
	return r
}

// QuadrantBounds returns the frame drawn around quadrant q: the union of its
// panels grown by a small margin.
func (g *Geometry) QuadrantBounds(q int) geometry.RectInt {
	r := g.quadrantExtent(q)
	if r.Empty() {
		return r
	}
	return r.Inset(-quadMargin)
}

// QuadrantAt returns the quadrant whose bounds contain p, or 0.
func (g *Geometry) QuadrantAt(p geometry.PointInt) int {
	for q := 1; q <= QuadrantCount; q++ {
		if g.QuadrantBounds(q).Contains(p) {
			return q
		}
	}
	return 0
}

// QuadPositions returns the top-left corner of each quadrant's panels.
func (g *Geometry) QuadPositions() [QuadrantCount]geometry.PointInt {
	var pos [QuadrantCount]geometry.PointInt
	for q := 1; q <= QuadrantCount; q++ {
		pos[q-1] = g.quadrantExtent(q).Min()
	}
	return pos
}

// SetQuadPositions moves every quadrant so that its top-left corner lands on
// the given position. Relative panel placement inside a quadrant is kept.
func (g *Geometry) SetQuadPositions(pos [QuadrantCount]geometry.PointInt) {
	cur := g.QuadPositions()
	for q := 1; q <= QuadrantCount; q++ {
		_ = g.MoveQuadrant(q, pos[q-1].Sub(cur[q-1]))
	}
}

// PanelsInQuadrant returns the indices of the panels of quadrant q.
func (g *Geometry) PanelsInQuadrant(q int) []int {
	var idx []int
	for i, p := range g.Panels {
		if p.Quadrant == q {
			idx = append(idx, i)
		}
	}
	return idx
}
