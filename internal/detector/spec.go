// Package detector describes segmented area detectors and the placement of
// their panels.
//
// A detector is made of PanelCount modules. Each module delivers a fixed-size
// array of PanelRows (slow scan) by PanelCols (fast scan) pixels. A Geometry
// records where every module lands on the assembled image, together with the
// flips and quarter-turn rotation applied to the module array first.
//
// Geometry coordinates are whole pixels with the origin at the beam centre,
// x growing to the right and y growing downwards.
package detector

import (
	"errors"
	"fmt"
	"strings"

	"geo-assembler/pkg/geometry"
)

// PanelCount is the number of modules of every supported detector.
const PanelCount = 16

// QuadrantCount is the number of independently movable quadrants.
const QuadrantCount = 4

// ErrUnknownDetector is returned when a detector name cannot be resolved.
var ErrUnknownDetector = errors.New("unknown detector")

// Spec describes the fixed properties of a detector type.
type Spec struct {
	Name string
	// ModuleTag is the token that identifies a module number in data file names,
	// e.g. AGIPD07.
	ModuleTag string
	// SourcePattern is formatted with the module number to give the data source.
	SourcePattern string

	PanelRows int // slow scan
	PanelCols int // fast scan
	AsicRows  int
	AsicCols  int

	// PixelSize in metres.
	PixelSize float64

	// QuadLayout holds the offset of each of the four modules of a quadrant
	// relative to the quadrant's top-left corner.
	QuadLayout [4]geometry.PointInt
	// QuadRotation is the default module rotation per quadrant.
	QuadRotation [QuadrantCount]int
	// FallbackQuadPos is used when no geometry file is given.
	FallbackQuadPos [QuadrantCount]geometry.PointInt

	// Manual is printed into exported geometry files.
	Manual string
}

// AGIPD is the 1 megapixel Adaptive Gain Integrating Pixel Detector.
var AGIPD = &Spec{
	Name:          "AGIPD",
	ModuleTag:     "AGIPD",
	SourcePattern: "SPB_DET_AGIPD1M-1/DET/%dCH0:xtdf",
	PanelRows:     512,
	PanelCols:     128,
	AsicRows:      64,
	AsicCols:      128,
	PixelSize:     200e-6,
	QuadLayout: [4]geometry.PointInt{
		{X: 0, Y: 0}, {X: 0, Y: 157}, {X: 0, Y: 314}, {X: 0, Y: 471},
	},
	QuadRotation: [QuadrantCount]int{270, 270, 90, 90},
	FallbackQuadPos: [QuadrantCount]geometry.PointInt{
		{X: -540, Y: -610}, {X: -540, Y: 15}, {X: 28, Y: 143}, {X: 28, Y: -482},
	},
	Manual: "https://www.desy.de/~twhite/crystfel/manual-crystfel_geometry.html",
}

// LPD is the 1 megapixel Large Pixel Detector.
var LPD = &Spec{
	Name:          "LPD",
	ModuleTag:     "LPD",
	SourcePattern: "FXE_DET_LPD1M-1/DET/%dCH0:xtdf",
	PanelRows:     256,
	PanelCols:     256,
	AsicRows:      32,
	AsicCols:      128,
	PixelSize:     500e-6,
	QuadLayout: [4]geometry.PointInt{
		{X: 0, Y: 0}, {X: 0, Y: 260}, {X: 260, Y: 260}, {X: 260, Y: 0},
	},
	QuadRotation: [QuadrantCount]int{0, 0, 0, 0},
	FallbackQuadPos: [QuadrantCount]geometry.PointInt{
		{X: -526, Y: -532}, {X: -532, Y: 6}, {X: 6, Y: 12}, {X: 12, Y: -526},
	},
	Manual: "https://www.desy.de/~twhite/crystfel/manual-crystfel_geometry.html",
}

// Detectors lists the supported detector types.
func Detectors() []*Spec {
	return []*Spec{AGIPD, LPD}
}

// Names returns the names of the supported detectors.
func Names() []string {
	var names []string
	for _, d := range Detectors() {
		names = append(names, d.Name)
	}
	return names
}

// Lookup resolves a detector by name, ignoring case.
func Lookup(name string) (*Spec, error) {
	for _, d := range Detectors() {
		if strings.EqualFold(d.Name, strings.TrimSpace(name)) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownDetector, name, strings.Join(Names(), ", "))
}

// Source returns the data source name of module i.
func (s *Spec) Source(i int) string {
	return fmt.Sprintf(s.SourcePattern, i)
}

// AsicsSS is the number of asics along the slow scan direction.
func (s *Spec) AsicsSS() int { return s.PanelRows / s.AsicRows }

// AsicsFS is the number of asics along the fast scan direction.
func (s *Spec) AsicsFS() int { return s.PanelCols / s.AsicCols }

// AsicsPerPanel is the number of asics in one module.
func (s *Spec) AsicsPerPanel() int { return s.AsicsSS() * s.AsicsFS() }

func (s *Spec) String() string { return s.Name }
