package app

import (
	"fmt"
	"image"
	"math"

	"geo-assembler/internal/fit"
	"geo-assembler/internal/render"
	"geo-assembler/internal/session"
	"geo-assembler/pkg/colorutil"
	"geo-assembler/pkg/geometry"
)

// RingCount is the number of calibrant rings drawn.
const RingCount = 12

// View renders the assembled image with the beam centre, the selected
// quadrant, helper shapes, clicked points and calibrant rings.
func (s *State) View() (*image.RGBA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Image == nil {
		return nil, ErrNoFrame
	}

	img, err := render.Render(s.Image.Data, render.Options{
		Levels:    s.Levels,
		Colormap:  s.Colormap,
		FrontView: s.FrontView,
	})
	if err != nil {
		return nil, err
	}

	centre := s.toDisplay(geometry.Point2D{})

	if s.Calibrant != "" {
		if c, err := fit.LookupCalibrant(s.Calibrant); err == nil {
			for _, r := range c.Rings(s.Meta.PhotonEnergy, s.Meta.Clen, s.Detector.PixelSize, RingCount) {
				render.DrawCircle(img, centre.X, centre.Y, r, colorutil.RingColor, 1)
			}
		}
	}

	for i, sh := range s.Shapes {
		col := colorutil.ShapeColors[i%len(colorutil.ShapeColors)]
		c := s.toDisplay(sh.Centre)
		switch sh.Kind {
		case session.ShapeSquare:
			r := image.Rect(
				int(math.Round(c.X-sh.Size)), int(math.Round(c.Y-sh.Size)),
				int(math.Round(c.X+sh.Size)), int(math.Round(c.Y+sh.Size)),
			)
			render.DrawRect(img, r, col, 2)
		default:
			render.DrawCircle(img, c.X, c.Y, sh.Size, col, 2)
		}
	}

	for _, p := range s.FitPoints {
		d := s.toDisplay(p)
		render.DrawCross(img, int(d.X), int(d.Y), 4, colorutil.FitPointColor)
	}

	if s.Quadrant > 0 {
		b := s.Geometry.QuadrantBounds(s.Quadrant)
		x := b.X + s.Image.Origin.X
		y := b.Y + s.Image.Origin.Y
		if s.FrontView {
			x = s.Image.Cols - x - b.Width
		}
		r := image.Rect(x, y, x+b.Width, y+b.Height)
		render.DrawRect(img, r, colorutil.QuadrantFrame, 2)
		render.DrawLabel(img, fmt.Sprintf("Q%d", s.Quadrant), x+4, y+4, colorutil.QuadrantFrame)
	}

	render.DrawCross(img, int(centre.X), int(centre.Y), 6, colorutil.CentreColor)
	return img, nil
}

// DisplayToGeometry converts a pixel of the rendered view to geometry
// coordinates. ok is false when nothing is displayed.
func (s *State) DisplayToGeometry(p geometry.PointInt) (geometry.PointInt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Image == nil {
		return geometry.PointInt{}, false
	}
	return s.displayToGeometry(p), true
}

// PixelValue returns the intensity under a pixel of the rendered view.
func (s *State) PixelValue(p geometry.PointInt) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Image == nil {
		return math.NaN(), false
	}
	x := p.X
	if s.FrontView {
		x = s.Image.Cols - 1 - x
	}
	if x < 0 || x >= s.Image.Cols || p.Y < 0 || p.Y >= s.Image.Rows {
		return math.NaN(), false
	}
	return s.Image.Data.At(p.Y, x), true
}
