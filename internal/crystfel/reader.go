package crystfel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"geo-assembler/internal/detector"
)

var (
	ErrMalformed         = errors.New("malformed geometry file")
	ErrMissingPanel      = errors.New("panel missing from geometry file")
	ErrUnsupportedVector = errors.New("fs/ss vectors must be axis aligned")
)

// axisTolerance is how far a refined fs/ss vector may lean off an axis and
// still be read as that axis.
const axisTolerance = 0.05

// pixelTolerance is the corner rounding below which no warning is logged.
const pixelTolerance = 1e-3

// hintPrefix starts a comment recording the exact flips of a panel. Several
// flip and rotation combinations give the same fs/ss vectors.
const hintPrefix = "; placement"

var (
	blockRe = regexp.MustCompile(`^p(\d+)(?:a(\d+))?$`)
	quadRe  = regexp.MustCompile(`^rigid_group_q(\d+)$`)
	hintRe  = regexp.MustCompile(`^; placement p(\d+) flip_x=(\w+) flip_y=(\w+) rotation=(-?\d+)$`)
)

type vector struct {
	x, y float64
}

// asic collects the fields of one p<N>a<M> block.
type asic struct {
	minFS, minSS int
	hasMin       [2]bool
	fs, ss       vector
	hasFS, hasSS bool
	cornerX      float64
	cornerY      float64
	hasCorner    [2]bool
	line         int
}

type hint struct {
	flipX, flipY bool
	rotation     int
}

// parseVector parses expressions such as "+0.5x -1y" or "x+0.0y".
func parseVector(s string) (vector, error) {
	var v vector
	var coef strings.Builder
	seen := false
	for _, r := range strings.ReplaceAll(s, " ", "") {
		switch r {
		case 'x', 'y', 'z':
			c := coef.String()
			var n float64
			switch c {
			case "", "+":
				n = 1
			case "-":
				n = -1
			default:
				var err error
				if n, err = strconv.ParseFloat(c, 64); err != nil {
					return v, fmt.Errorf("bad coefficient %q", c)
				}
			}
			switch r {
			case 'x':
				v.x += n
			case 'y':
				v.y += n
			case 'z':
				if n != 0 {
					return v, fmt.Errorf("%w: non-zero z component", ErrUnsupportedVector)
				}
			}
			coef.Reset()
			seen = true
		case '+', '-':
			last := coef.String()
			if last != "" && !strings.HasSuffix(strings.ToLower(last), "e") {
				return v, fmt.Errorf("dangling coefficient %q", last)
			}
			coef.WriteRune(r)
		default:
			coef.WriteRune(r)
		}
	}
	if !seen || coef.Len() > 0 {
		return v, fmt.Errorf("bad vector %q", s)
	}
	return v, nil
}

// unit snaps v to the nearest axis-aligned unit vector. ok is false when v is
// more than axisTolerance away from every axis. exact reports whether v was
// already on the axis.
func unit(v vector) (x, y int, exact, ok bool) {
	rx, ry := math.Round(v.x), math.Round(v.y)
	if math.Abs(rx)+math.Abs(ry) != 1 {
		return 0, 0, false, false
	}
	dx, dy := math.Abs(v.x-rx), math.Abs(v.y-ry)
	if dx > axisTolerance || dy > axisTolerance {
		return 0, 0, false, false
	}
	return int(rx), int(ry), dx <= pixelTolerance && dy <= pixelTolerance, true
}

// Read parses a CrystFEL geometry file for the given detector.
func Read(r io.Reader, spec *detector.Spec) (*detector.Geometry, Meta, error) {
	meta := DefaultMeta()
	asics := make(map[int]map[int]*asic)
	hints := make(map[int]hint)
	quadOf := make(map[int]int)
	lastLine := make(map[int]int)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := strings.TrimSpace(sc.Text())
		if m := hintRe.FindStringSubmatch(raw); m != nil {
			panel, _ := strconv.Atoi(m[1])
			fx, err1 := strconv.ParseBool(m[2])
			fy, err2 := strconv.ParseBool(m[3])
			rot, err3 := strconv.Atoi(m[4])
			if err1 == nil && err2 == nil && err3 == nil {
				hints[panel] = hint{flipX: fx, flipY: fy, rotation: rot}
			}
			continue
		}
		line := raw
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, meta, fmt.Errorf("%w: line %d: expected key = value", ErrMalformed, lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		block, field, isPanel := strings.Cut(key, "/")
		if !isPanel {
			if err := readGlobal(&meta, quadOf, key, value); err != nil {
				return nil, meta, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
			}
			continue
		}

		m := blockRe.FindStringSubmatch(block)
		if m == nil {
			// Bad-region and other blocks carry no placement.
			continue
		}
		panel, _ := strconv.Atoi(m[1])
		lastLine[panel] = lineNo
		a := 0
		if m[2] != "" {
			a, _ = strconv.Atoi(m[2])
		}
		if asics[panel] == nil {
			asics[panel] = make(map[int]*asic)
		}
		blk := asics[panel][a]
		if blk == nil {
			blk = &asic{line: lineNo}
			asics[panel][a] = blk
		}
		if err := blk.set(field, value); err != nil {
			return nil, meta, fmt.Errorf("%w: line %d: %s: %v", ErrMalformed, lineNo, key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, meta, fmt.Errorf("failed to read geometry file: %w", err)
	}

	g := detector.New(spec)
	for i := range g.Panels {
		origin := findOrigin(asics[i])
		if origin == nil {
			line, ok := lastLine[i]
			if !ok {
				line = lineNo
			}
			return nil, meta, fmt.Errorf("p%d (line %d): %w: no block starting at min_fs = 0, min_ss = 0", i, line, ErrMissingPanel)
		}
		p, warnings, err := placementFrom(spec, origin, hints[i], hasHint(hints, i))
		if err != nil {
			return nil, meta, fmt.Errorf("p%d (line %d): %w", i, origin.line, err)
		}
		for _, w := range warnings {
			log.Printf("Geometry: p%d (line %d): %s", i, origin.line, w)
		}
		p.Source = spec.Source(i)
		p.Quadrant = i/4 + 1
		if q, ok := quadOf[i]; ok {
			p.Quadrant = q
		}
		g.Panels[i] = p
	}
	if err := g.Validate(); err != nil {
		return nil, meta, err
	}
	return g, meta, nil
}

func hasHint(h map[int]hint, i int) bool {
	_, ok := h[i]
	return ok
}

func readGlobal(meta *Meta, quadOf map[int]int, key, value string) error {
	num := func(dst *float64, path *string) {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			*dst = v
			*path = ""
		} else {
			*path = value
		}
	}
	switch key {
	case "clen":
		num(&meta.Clen, &meta.ClenPath)
	case "photon_energy":
		num(&meta.PhotonEnergy, &meta.EnergyPath)
	case "adu_per_eV":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		meta.AduPerEV = v
	case "data":
		meta.DataPath = value
	case "mask":
		meta.MaskPath = value
	case "mask_good":
		meta.MaskGood = value
	case "mask_bad":
		meta.MaskBad = value
	default:
		if m := quadRe.FindStringSubmatch(key); m != nil {
			q, _ := strconv.Atoi(m[1])
			for _, member := range strings.Split(value, ",") {
				pm := blockRe.FindStringSubmatch(strings.TrimSpace(member))
				if pm == nil {
					continue
				}
				panel, _ := strconv.Atoi(pm[1])
				quadOf[panel] = q + 1
			}
		}
	}
	return nil
}

func (a *asic) set(field, value string) error {
	var err error
	switch field {
	case "min_fs":
		a.minFS, err = strconv.Atoi(value)
		a.hasMin[0] = err == nil
	case "min_ss":
		a.minSS, err = strconv.Atoi(value)
		a.hasMin[1] = err == nil
	case "fs":
		a.fs, err = parseVector(value)
		a.hasFS = err == nil
	case "ss":
		a.ss, err = parseVector(value)
		a.hasSS = err == nil
	case "corner_x":
		a.cornerX, err = strconv.ParseFloat(value, 64)
		a.hasCorner[0] = err == nil
	case "corner_y":
		a.cornerY, err = strconv.ParseFloat(value, 64)
		a.hasCorner[1] = err == nil
	}
	return err
}

func findOrigin(blocks map[int]*asic) *asic {
	for _, a := range blocks {
		if a.hasMin[0] && a.hasMin[1] && a.minFS == 0 && a.minSS == 0 {
			return a
		}
	}
	return nil
}

// placementFrom recovers flips, rotation and offset from the block holding
// module pixel (0, 0). Refined geometries lean slightly off the axes and put
// corners between pixels. Both are snapped to the pixel grid and reported
// in warnings.
func placementFrom(spec *detector.Spec, a *asic, h hint, useHint bool) (detector.Panel, []string, error) {
	var p detector.Panel
	var warnings []string
	if !a.hasFS || !a.hasSS || !a.hasCorner[0] || !a.hasCorner[1] {
		return p, nil, fmt.Errorf("%w: needs fs, ss, corner_x and corner_y", ErrMissingPanel)
	}
	fx, fy, fsExact, ok1 := unit(a.fs)
	sx, sy, ssExact, ok2 := unit(a.ss)
	if !ok1 || !ok2 || fx*sx+fy*sy != 0 {
		return p, nil, fmt.Errorf("%w: fs = %v, ss = %v", ErrUnsupportedVector, a.fs, a.ss)
	}
	if !fsExact || !ssExact {
		warnings = append(warnings, fmt.Sprintf("fs = %v, ss = %v snapped to the nearest axes", a.fs, a.ss))
	}
	// Geometry y points down.
	want := pixelMap{x: axis{f: fx, s: sx}, y: axis{f: -fy, s: -sy}}
	same := func(m pixelMap) bool {
		return m.x.f == want.x.f && m.x.s == want.x.s && m.y.f == want.y.f && m.y.s == want.y.s
	}

	var found *pixelMap
	if useHint {
		if rot, err := detector.NormalizeRotation(h.rotation); err == nil {
			m := placementMap(spec.PanelRows, spec.PanelCols, h.flipX, h.flipY, rot)
			if same(m) {
				p.FlipX, p.FlipY, p.Rotation = h.flipX, h.flipY, rot
				found = &m
			}
		}
	}
	for _, flipX := range []bool{false, true} {
		for rot := 0; found == nil && rot < 360; rot += 90 {
			m := placementMap(spec.PanelRows, spec.PanelCols, flipX, false, rot)
			if same(m) {
				p.FlipX, p.FlipY, p.Rotation = flipX, false, rot
				found = &m
			}
		}
	}
	if found == nil {
		return p, nil, fmt.Errorf("%w: fs = %v, ss = %v", ErrUnsupportedVector, a.fs, a.ss)
	}

	ox := a.cornerX - float64(found.x.c)
	oy := -a.cornerY - float64(found.y.c)
	rx, ry := math.Round(ox), math.Round(oy)
	if math.Abs(ox-rx) > pixelTolerance || math.Abs(oy-ry) > pixelTolerance {
		warnings = append(warnings, fmt.Sprintf("corner (%g, %g) rounded to whole pixels", a.cornerX, a.cornerY))
	}
	p.Offset.X, p.Offset.Y = int(rx), int(ry)
	return p, warnings, nil
}

// ReadFile reads a geometry file from path.
func ReadFile(path string, spec *detector.Spec) (*detector.Geometry, Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("failed to open geometry file: %w", err)
	}
	defer f.Close()
	return Read(f, spec)
}
