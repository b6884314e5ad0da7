package detector

import "geo-assembler/pkg/geometry"

// FromQuadPositions builds the standard layout of spec with each quadrant's
// top-left corner at the given position.
func FromQuadPositions(spec *Spec, quads [QuadrantCount]geometry.PointInt) *Geometry {
	g := New(spec)
	for i := range g.Panels {
		q := i / 4
		g.Panels[i].Quadrant = q + 1
		g.Panels[i].Rotation = spec.QuadRotation[q]
		g.Panels[i].Offset = quads[q].Add(spec.QuadLayout[i%4])
	}
	return g
}

// Default returns the standard layout at the detector's fallback quadrant
// positions.
func Default(spec *Spec) *Geometry {
	return FromQuadPositions(spec, spec.FallbackQuadPos)
}
