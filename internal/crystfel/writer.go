package crystfel

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"geo-assembler/internal/detector"
	"geo-assembler/internal/version"
)

// Meta holds the experiment description stored alongside panel placements.
type Meta struct {
	Clen         float64 `json:"clen" yaml:"clen"`                   // metres
	PhotonEnergy float64 `json:"photon_energy" yaml:"photon_energy"` // eV
	AduPerEV     float64 `json:"adu_per_ev" yaml:"adu_per_ev"`
	DataPath     string  `json:"data" yaml:"data"`
	MaskPath     string  `json:"mask,omitempty" yaml:"mask,omitempty"`
	MaskGood     string  `json:"mask_good" yaml:"mask_good"`
	MaskBad      string  `json:"mask_bad" yaml:"mask_bad"`

	// ClenPath and EnergyPath are set instead of the numbers when the file
	// refers to a location in the data files.
	ClenPath   string `json:"clen_path,omitempty" yaml:"clen_path,omitempty"`
	EnergyPath string `json:"energy_path,omitempty" yaml:"energy_path,omitempty"`
}

// DefaultMeta returns the values used when nothing else is known.
func DefaultMeta() Meta {
	return Meta{
		Clen:         0.119,
		PhotonEnergy: 10235,
		AduPerEV:     0.0075,
		DataPath:     "/entry_1/data_1/data",
		MaskGood:     "0x0",
		MaskBad:      "0xffff",
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatVector(x, y float64) string {
	return fmt.Sprintf("%+.6fx %+.6fy", x, y)
}

// Write writes g and meta in CrystFEL format.
func Write(w io.Writer, g *detector.Geometry, meta Meta) error {
	if err := g.Validate(); err != nil {
		return err
	}
	spec := g.Detector
	bw := bufio.NewWriter(w)
	p := func(format string, args ...any) {
		fmt.Fprintf(bw, format+"\n", args...)
	}

	p("; %s-1M geometry file written by geo-assembler %s", spec.Name, version.Version)
	p("; You may need to edit this file to add:")
	p("; - data and mask locations in the file")
	p("; - mask_good & mask_bad values to interpret the mask")
	p("; - adu_per_eV & photon_energy")
	p("; - clen (detector distance)")
	p(";")
	p("; See: %s", spec.Manual)
	p("")

	p("data = %s ;", meta.DataPath)
	if meta.MaskPath != "" {
		p("mask = %s ;", meta.MaskPath)
	} else {
		p(";mask = /entry_1/data_1/mask ;")
	}
	p("mask_good = %s", meta.MaskGood)
	p("mask_bad = %s", meta.MaskBad)
	p("adu_per_eV = %s", formatFloat(meta.AduPerEV))
	if meta.ClenPath != "" {
		p("clen = %s", meta.ClenPath)
	} else {
		p("clen = %s", formatFloat(meta.Clen))
	}
	if meta.EnergyPath != "" {
		p("photon_energy = %s", meta.EnergyPath)
	} else {
		p("photon_energy = %s", formatFloat(meta.PhotonEnergy))
	}
	p("")

	res := 1 / spec.PixelSize
	p("dim0 = %%")
	p("res = %s ; %s um pixels", formatFloat(math.Round(res)), formatFloat(math.Round(spec.PixelSize*1e6)))
	p("")

	asics := spec.AsicsPerPanel()
	asicNames := func(panel int) string {
		names := make([]string, asics)
		for a := range names {
			names[a] = fmt.Sprintf("p%da%d", panel, a)
		}
		return strings.Join(names, ",")
	}
	for q := 1; q <= detector.QuadrantCount; q++ {
		var members []string
		for _, i := range g.PanelsInQuadrant(q) {
			members = append(members, asicNames(i))
		}
		p("rigid_group_q%d = %s", q-1, strings.Join(members, ","))
	}
	p("")
	var panelGroups, quadGroups []string
	for i := range g.Panels {
		p("rigid_group_p%d = %s", i, asicNames(i))
		panelGroups = append(panelGroups, fmt.Sprintf("p%d", i))
	}
	for q := 0; q < detector.QuadrantCount; q++ {
		quadGroups = append(quadGroups, fmt.Sprintf("q%d", q))
	}
	p("")
	p("rigid_group_collection_quadrants = %s", strings.Join(quadGroups, ","))
	p("rigid_group_collection_asics = %s", strings.Join(panelGroups, ","))
	p("")

	for i, panel := range g.Panels {
		m := panelMap(spec, panel)
		p("%s p%d flip_x=%t flip_y=%t rotation=%d", hintPrefix, i, panel.FlipX, panel.FlipY, panel.Rotation)
		for a := 0; a < asics; a++ {
			minSS := (a / spec.AsicsFS()) * spec.AsicRows
			minFS := (a % spec.AsicsFS()) * spec.AsicCols
			name := fmt.Sprintf("p%da%d", i, a)
			// Lab y points up.
			cx := m.x.at(float64(minFS), float64(minSS))
			cy := 0 - m.y.at(float64(minFS), float64(minSS))
			p("%s/dim1 = %d", name, i)
			p("%s/dim2 = ss", name)
			p("%s/dim3 = fs", name)
			p("%s/min_fs = %d", name, minFS)
			p("%s/min_ss = %d", name, minSS)
			p("%s/max_fs = %d", name, minFS+spec.AsicCols-1)
			p("%s/max_ss = %d", name, minSS+spec.AsicRows-1)
			p("%s/fs = %s", name, formatVector(float64(m.x.f), float64(-m.y.f)))
			p("%s/ss = %s", name, formatVector(float64(m.x.s), float64(-m.y.s)))
			p("%s/corner_x = %s", name, formatFloat(cx))
			p("%s/corner_y = %s", name, formatFloat(cy))
			p("%s/coffset = 0.0", name)
			p("")
		}
	}
	return bw.Flush()
}

// WriteFile writes the geometry to path.
func WriteFile(path string, g *detector.Geometry, meta Meta) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create geometry file: %w", err)
	}
	if err := Write(f, g, meta); err != nil {
		f.Close()
		return fmt.Errorf("failed to write geometry file: %w", err)
	}
	return f.Close()
}
