package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func set(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Rect) {
		img.SetRGBA(x, y, c)
	}
}

// DrawRect outlines r with the given line thickness. The outline is drawn
// inside r.
func DrawRect(img *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	if thickness <= 0 {
		thickness = 1
	}
	r = r.Canon()
	for t := 0; t < thickness; t++ {
		x1, y1 := r.Min.X+t, r.Min.Y+t
		x2, y2 := r.Max.X-1-t, r.Max.Y-1-t
		if x1 > x2 || y1 > y2 {
			break
		}
		for x := x1; x <= x2; x++ {
			set(img, x, y1, c)
			set(img, x, y2, c)
		}
		for y := y1; y <= y2; y++ {
			set(img, x1, y, c)
			set(img, x2, y, c)
		}
	}
}

// DrawCircle outlines the circle of radius r around (cx, cy).
func DrawCircle(img *image.RGBA, cx, cy, r float64, c color.RGBA, thickness int) {
	if thickness <= 0 {
		thickness = 1
	}
	outer := r + float64(thickness)/2
	inner := max(r-float64(thickness)/2, 0)
	minX, maxX := int(math.Floor(cx-outer)), int(math.Ceil(cx+outer))
	minY, maxY := int(math.Floor(cy-outer)), int(math.Ceil(cy+outer))
	b := img.Rect
	minX, minY = max(minX, b.Min.X), max(minY, b.Min.Y)
	maxX, maxY = min(maxX, b.Max.X-1), min(maxY, b.Max.Y-1)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			if d >= inner && d <= outer {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// DrawLine draws a line between two points using Bresenham's algorithm.
func DrawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := x2 - x1
	if dx < 0 {
		dx = -dx
	}
	dy := y2 - y1
	if dy < 0 {
		dy = -dy
	}
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		set(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// DrawCross marks (x, y) with a plus sign of the given half size.
func DrawCross(img *image.RGBA, x, y, size int, c color.RGBA) {
	DrawLine(img, x-size, y, x+size, y, c)
	DrawLine(img, x, y-size, x, y+size, c)
}

// DrawLabel writes s with its top-left corner at (x, y).
func DrawLabel(img *image.RGBA, s string, x, y int, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	d.DrawString(s)
}
