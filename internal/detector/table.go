package detector

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"geo-assembler/pkg/geometry"
)

// ErrMalformedTable is returned for placement tables that cannot be parsed.
var ErrMalformedTable = errors.New("malformed placement table")

var tableHeader = []string{"Source", "Xoffset", "Yoffset", "FlipX", "FlipY", "rotate", "Quadrant"}

// WriteTable writes the panel placements as CSV, one row per panel.
func (g *Geometry) WriteTable(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return err
	}
	for _, p := range g.Panels {
		row := []string{
			p.Source,
			strconv.Itoa(p.Offset.X),
			strconv.Itoa(p.Offset.Y),
			strconv.FormatBool(p.FlipX),
			strconv.FormatBool(p.FlipY),
			strconv.Itoa(p.Rotation),
			strconv.Itoa(p.Quadrant),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTable parses a placement table written by WriteTable. Columns are
// matched by header name so their order does not matter.
func ReadTable(r io.Reader, spec *Spec) (*Geometry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedTable)
	}

	col := make(map[string]int)
	for i, name := range records[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range tableHeader {
		if _, ok := col[strings.ToLower(name)]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedTable, name)
		}
	}

	rows := records[1:]
	if len(rows) != PanelCount {
		return nil, fmt.Errorf("%w: got %d rows, want %d", ErrPanelCount, len(rows), PanelCount)
	}

	g := New(spec)
	for i, rec := range rows {
		line := i + 2
		field := func(name string) string {
			return strings.TrimSpace(rec[col[strings.ToLower(name)]])
		}
		var p Panel
		p.Source = field("Source")
		if p.Offset.X, err = strconv.Atoi(field("Xoffset")); err != nil {
			return nil, fmt.Errorf("%w: line %d: Xoffset: %v", ErrMalformedTable, line, err)
		}
		if p.Offset.Y, err = strconv.Atoi(field("Yoffset")); err != nil {
			return nil, fmt.Errorf("%w: line %d: Yoffset: %v", ErrMalformedTable, line, err)
		}
		if p.FlipX, err = strconv.ParseBool(field("FlipX")); err != nil {
			return nil, fmt.Errorf("%w: line %d: FlipX: %v", ErrMalformedTable, line, err)
		}
		if p.FlipY, err = strconv.ParseBool(field("FlipY")); err != nil {
			return nil, fmt.Errorf("%w: line %d: FlipY: %v", ErrMalformedTable, line, err)
		}
		rot, err := strconv.Atoi(field("rotate"))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: rotate: %v", ErrMalformedTable, line, err)
		}
		if p.Rotation, err = NormalizeRotation(rot); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if p.Quadrant, err = strconv.Atoi(field("Quadrant")); err != nil {
			return nil, fmt.Errorf("%w: line %d: Quadrant: %v", ErrMalformedTable, line, err)
		}
		g.Panels[i] = p
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadTable reads a placement table from path.
func LoadTable(path string, spec *Spec) (*Geometry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open placement table: %w", err)
	}
	defer f.Close()
	return ReadTable(f, spec)
}

// SaveTable writes the placement table to path.
func (g *Geometry) SaveTable(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create placement table: %w", err)
	}
	if err := g.WriteTable(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteQuadPositions writes the four quadrant corners as CSV.
func WriteQuadPositions(w io.Writer, pos [QuadrantCount]geometry.PointInt) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"quad", "x", "y"})
	for q, p := range pos {
		_ = cw.Write([]string{strconv.Itoa(q + 1), strconv.Itoa(p.X), strconv.Itoa(p.Y)})
	}
	cw.Flush()
	return cw.Error()
}

// ReadQuadPositions parses the output of WriteQuadPositions.
func ReadQuadPositions(r io.Reader) ([QuadrantCount]geometry.PointInt, error) {
	var pos [QuadrantCount]geometry.PointInt
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return pos, fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	seen := 0
	for n, rec := range records {
		if n == 0 && len(rec) > 0 && strings.EqualFold(rec[0], "quad") {
			continue
		}
		if len(rec) != 3 {
			return pos, fmt.Errorf("%w: line %d: want 3 fields", ErrMalformedTable, n+1)
		}
		var v [3]int
		for k := range v {
			if v[k], err = strconv.Atoi(strings.TrimSpace(rec[k])); err != nil {
				return pos, fmt.Errorf("%w: line %d: %v", ErrMalformedTable, n+1, err)
			}
		}
		if err := checkQuadrant(v[0]); err != nil {
			return pos, fmt.Errorf("line %d: %w", n+1, err)
		}
		pos[v[0]-1] = geometry.Pt(v[1], v[2])
		seen |= 1 << (v[0] - 1)
	}
	if seen != 1<<QuadrantCount-1 {
		return pos, fmt.Errorf("%w: all four quadrants are required", ErrMalformedTable)
	}
	return pos, nil
}
