package crystfel

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"geo-assembler/internal/detector"
)

// ErrUnknownFormat is returned for geometry files that are neither CrystFEL
// (.geom) nor panel tables (.csv).
var ErrUnknownFormat = errors.New("unknown geometry file format")

// Load reads a CrystFEL file or a panel table, chosen by extension. meta is
// nil for tables, which carry no experiment parameters.
func Load(path string, spec *detector.Spec) (*detector.Geometry, *Meta, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geom":
		g, meta, err := ReadFile(path, spec)
		if err != nil {
			return nil, nil, err
		}
		return g, &meta, nil
	case ".csv":
		g, err := detector.LoadTable(path, spec)
		return g, nil, err
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Save writes g as a CrystFEL file or a panel table, chosen by extension.
func Save(path string, g *detector.Geometry, meta Meta) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geom":
		return WriteFile(path, g, meta)
	case ".csv":
		return g.SaveTable(path)
	}
	return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}
