package assembly

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"geo-assembler/internal/detector"
	"geo-assembler/pkg/geometry"
)

var (
	// ErrDimensionMismatch is returned when the panel arrays do not match
	// the detector geometry.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrOutOfCanvas is returned when a panel does not fit a fixed layout.
	ErrOutOfCanvas = errors.New("panel outside canvas")
)

// Layout is the size of an assembled canvas and where the geometry origin
// lies on it.
type Layout struct {
	Rows, Cols int
	// Origin is the canvas pixel of geometry coordinate (0, 0).
	Origin geometry.PointInt
}

// LayoutFor returns the smallest canvas holding every panel of g, grown by
// margin pixels on each side.
func LayoutFor(g *detector.Geometry, margin int) Layout {
	ext := g.Extent().Inset(-margin)
	return Layout{
		Rows:   ext.Height,
		Cols:   ext.Width,
		Origin: geometry.Pt(-ext.X, -ext.Y),
	}
}

// Bounds returns the canvas area in geometry coordinates.
func (l Layout) Bounds() geometry.RectInt {
	return geometry.RectInt{X: -l.Origin.X, Y: -l.Origin.Y, Width: l.Cols, Height: l.Rows}
}

// Fits reports whether every panel of g lies on the canvas.
func (l Layout) Fits(g *detector.Geometry) bool {
	return l.Bounds().ContainsRect(g.Extent())
}

// ToCanvas converts geometry coordinates to canvas pixels.
func (l Layout) ToCanvas(p geometry.PointInt) geometry.PointInt {
	return p.Add(l.Origin)
}

// ToGeometry converts canvas pixels to geometry coordinates.
func (l Layout) ToGeometry(p geometry.PointInt) geometry.PointInt {
	return p.Sub(l.Origin)
}

// Image is an assembled detector frame.
type Image struct {
	Data *mat.Dense
	Layout
}

// NewImage returns a canvas of the given layout filled with NaN.
func NewImage(l Layout) (*Image, error) {
	if l.Rows <= 0 || l.Cols <= 0 {
		return nil, fmt.Errorf("%w: empty canvas %dx%d", ErrOutOfCanvas, l.Rows, l.Cols)
	}
	buf := make([]float64, l.Rows*l.Cols)
	for i := range buf {
		buf[i] = math.NaN()
	}
	return &Image{Data: mat.NewDense(l.Rows, l.Cols, buf), Layout: l}, nil
}

// Centre returns the canvas position of the beam centre.
func (img *Image) Centre() geometry.Point2D {
	return img.Origin.ToFloat()
}

// Place transforms m according to p and pastes it on the canvas.
func (img *Image) Place(m mat.Matrix, p detector.Panel) error {
	t := TransformPanel(m, p)
	rows, cols := t.Dims()
	rect := geometry.RectInt{X: p.Offset.X, Y: p.Offset.Y, Width: cols, Height: rows}
	if !img.Bounds().ContainsRect(rect) {
		return fmt.Errorf("%w: %dx%d panel at %v", ErrOutOfCanvas, rows, cols, p.Offset)
	}
	at := img.ToCanvas(p.Offset)
	dst := img.Data.Slice(at.Y, at.Y+rows, at.X, at.X+cols).(*mat.Dense)
	dst.Copy(t)
	return nil
}

func checkPanels(g *detector.Geometry, panels []mat.Matrix) error {
	if len(panels) != detector.PanelCount {
		return fmt.Errorf("%w: got %d panels, want %d", ErrDimensionMismatch, len(panels), detector.PanelCount)
	}
	for i, m := range panels {
		if m == nil {
			return fmt.Errorf("%w: panel %d is missing", ErrDimensionMismatch, i)
		}
		r, c := m.Dims()
		if r != g.Detector.PanelRows || c != g.Detector.PanelCols {
			return fmt.Errorf("%w: panel %d is %dx%d, want %dx%d",
				ErrDimensionMismatch, i, r, c, g.Detector.PanelRows, g.Detector.PanelCols)
		}
	}
	return nil
}

// Assemble composites the panels on a canvas just large enough to hold them.
func Assemble(g *detector.Geometry, panels []mat.Matrix) (*Image, error) {
	return AssembleInto(LayoutFor(g, 0), g, panels)
}

// AssembleInto composites the panels on a canvas of fixed layout.
func AssembleInto(l Layout, g *detector.Geometry, panels []mat.Matrix) (*Image, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := checkPanels(g, panels); err != nil {
		return nil, err
	}
	img, err := NewImage(l)
	if err != nil {
		return nil, err
	}
	for i, m := range panels {
		if err := img.Place(m, g.Panels[i]); err != nil {
			return nil, fmt.Errorf("panel %d: %w", i, err)
		}
	}
	return img, nil
}

// AssembleStack assembles every frame of a stack on a shared layout.
func AssembleStack(g *detector.Geometry, frames [][]mat.Matrix) ([]*Image, error) {
	l := LayoutFor(g, 0)
	out := make([]*Image, 0, len(frames))
	for n, panels := range frames {
		img, err := AssembleInto(l, g, panels)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", n, err)
		}
		out = append(out, img)
	}
	return out, nil
}

// Dense converts a slice of module arrays to the matrix interface used by
// Assemble.
func Dense(panels []*mat.Dense) []mat.Matrix {
	out := make([]mat.Matrix, len(panels))
	for i, p := range panels {
		if p != nil {
			out[i] = p
		}
	}
	return out
}
