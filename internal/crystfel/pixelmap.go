// Package crystfel reads and writes CrystFEL geometry files.
//
// CrystFEL describes every asic with a corner position and two basis
// vectors. They map continuous raw data coordinates (fs, ss) to lab
// coordinates in pixels with x to the right and y upwards. Geometry offsets
// use y downwards, so the y components are negated on the way in and out.
package crystfel

import (
	"geo-assembler/internal/detector"
	"geo-assembler/pkg/geometry"
)

// axis is one output coordinate as an integer affine function of (fs, ss).
type axis struct {
	f, s, c int
}

func (a axis) at(fs, ss float64) float64 {
	return float64(a.f)*fs + float64(a.s)*ss + float64(a.c)
}

// pixelMap maps continuous module coordinates onto continuous geometry
// coordinates.
type pixelMap struct {
	x, y axis
}

// placementMap builds the map for a module of rows x cols pixels placed with
// the given flips and rotation at offset (0, 0).
func placementMap(rows, cols int, flipX, flipY bool, rotation int) pixelMap {
	col := axis{f: 1}
	row := axis{s: 1}
	r, c := rows, cols
	if flipX {
		col = axis{f: -col.f, s: -col.s, c: c - col.c}
	}
	if flipY {
		row = axis{f: -row.f, s: -row.s, c: r - row.c}
	}
	for k := (rotation / 90) % 4; k > 0; k-- {
		// A counter-clockwise quarter turn sends column j to row c-j.
		col, row = row, axis{f: -col.f, s: -col.s, c: c - col.c}
		r, c = c, r
	}
	return pixelMap{x: col, y: row}
}

func panelMap(spec *detector.Spec, p detector.Panel) pixelMap {
	m := placementMap(spec.PanelRows, spec.PanelCols, p.FlipX, p.FlipY, p.Rotation)
	m.x.c += p.Offset.X
	m.y.c += p.Offset.Y
	return m
}

// PixelPosition returns the geometry coordinates of the continuous module
// position (fs, ss) of panel p. Pixel (i, j) covers fs in [j, j+1) and ss in
// [i, i+1).
func PixelPosition(spec *detector.Spec, p detector.Panel, fs, ss float64) geometry.Point2D {
	m := panelMap(spec, p)
	return geometry.Point2D{X: m.x.at(fs, ss), Y: m.y.at(fs, ss)}
}
