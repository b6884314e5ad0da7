// Package session provides calibration session files (.geoproj).
//
// A session remembers the run, the geometry being edited and the display
// state so that work can be resumed later. Paths are stored relative to the
// session file.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"geo-assembler/internal/crystfel"
	"geo-assembler/internal/detector"
	"geo-assembler/internal/render"
	"geo-assembler/pkg/geometry"
)

// Extension is the session file suffix.
const Extension = ".geoproj"

// FormatVersion is written into new sessions.
const FormatVersion = 1

// ErrVersion is returned for sessions written by a newer program.
var ErrVersion = errors.New("unsupported session version")

// ShapeKind names a helper shape.
type ShapeKind string

const (
	ShapeCircle ShapeKind = "circle"
	ShapeSquare ShapeKind = "square"
)

// Shape is a helper shape drawn over the image, in geometry coordinates.
type Shape struct {
	Kind   ShapeKind        `json:"kind"`
	Centre geometry.Point2D `json:"centre"`
	// Size is the radius of a circle or half the side of a square.
	Size float64 `json:"size"`
}

// Selection records the displayed frame.
type Selection struct {
	Train  int    `json:"train"`
	Pulse  int    `json:"pulse"`
	Method string `json:"method"`
}

// File represents a calibration session file.
type File struct {
	Version  int       `json:"version"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Detector string    `json:"detector"`

	// Paths (relative to the session file)
	RunDirPath   string `json:"run_dir,omitempty"`
	GeometryPath string `json:"geometry,omitempty"`

	Selection Selection     `json:"selection"`
	Levels    render.Levels `json:"levels"`
	Colormap  string        `json:"colormap,omitempty"`
	FrontView bool          `json:"front_view"`

	// Panels is the full placement table at the time of saving. It wins over
	// the geometry file, which may have changed since.
	Panels []detector.Panel `json:"panels,omitempty"`
	Shapes []Shape          `json:"shapes,omitempty"`
	Meta   crystfel.Meta    `json:"meta"`
}

// New creates a new session for the given detector.
func New(name, det string) *File {
	now := time.Now()
	return &File{
		Version:  FormatVersion,
		Name:     name,
		Created:  now,
		Modified: now,
		Detector: det,
		Meta:     crystfel.DefaultMeta(),
	}
}

// Load loads a session from a .geoproj file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s File
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", path, err)
	}
	if s.Version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, s.Version)
	}
	return &s, nil
}

// Save saves the session to a file.
func (s *File) Save(path string) error {
	s.Modified = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func relativeTo(sessionPath, target string) string {
	if target == "" {
		return ""
	}
	rel, err := filepath.Rel(filepath.Dir(sessionPath), target)
	if err != nil {
		return target
	}
	return rel
}

func resolve(sessionPath, stored string) string {
	if stored == "" || filepath.IsAbs(stored) {
		return stored
	}
	return filepath.Join(filepath.Dir(sessionPath), stored)
}

// SetRunDir sets the run directory (relative to the session).
func (s *File) SetRunDir(sessionPath, dir string) {
	s.RunDirPath = relativeTo(sessionPath, dir)
	s.Modified = time.Now()
}

// SetGeometryPath sets the geometry file path (relative to the session).
func (s *File) SetGeometryPath(sessionPath, path string) {
	s.GeometryPath = relativeTo(sessionPath, path)
	s.Modified = time.Now()
}

// GetRunDir returns the absolute path to the run directory.
func (s *File) GetRunDir(sessionPath string) string {
	return resolve(sessionPath, s.RunDirPath)
}

// GetGeometryPath returns the absolute path to the geometry file.
func (s *File) GetGeometryPath(sessionPath string) string {
	return resolve(sessionPath, s.GeometryPath)
}

// SetGeometry stores the panel table of g.
func (s *File) SetGeometry(g *detector.Geometry) {
	s.Detector = g.Detector.Name
	s.Panels = append([]detector.Panel(nil), g.Panels[:]...)
}

// Geometry rebuilds the stored panel table. It returns nil without error
// when the session has no panels.
func (s *File) Geometry() (*detector.Geometry, error) {
	spec, err := detector.Lookup(s.Detector)
	if err != nil {
		return nil, err
	}
	if len(s.Panels) == 0 {
		return nil, nil
	}
	if len(s.Panels) != detector.PanelCount {
		return nil, fmt.Errorf("%w: session has %d panels", detector.ErrPanelCount, len(s.Panels))
	}
	g := &detector.Geometry{Detector: spec}
	copy(g.Panels[:], s.Panels)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
