package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geo-assembler/internal/detector"
	"geo-assembler/internal/render"
	"geo-assembler/pkg/geometry"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calib"+Extension)

	g := detector.Default(detector.LPD)
	require.NoError(t, g.MoveQuadrant(2, geometry.Pt(3, -1)))

	s := New("calib", "LPD")
	s.SetRunDir(path, filepath.Join(dir, "runs", "r0005"))
	s.SetGeometryPath(path, filepath.Join(dir, "lpd.geom"))
	s.SetGeometry(g)
	s.Selection = Selection{Train: 10001, Pulse: 2, Method: "pulse"}
	s.Levels = render.Levels{Min: 10, Max: 900}
	s.FrontView = true
	s.Shapes = []Shape{{Kind: ShapeCircle, Centre: geometry.Point2D{X: 1, Y: 2}, Size: 100}}
	require.NoError(t, s.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("runs", "r0005"), back.RunDirPath)
	assert.Equal(t, filepath.Join(dir, "runs", "r0005"), back.GetRunDir(path))
	assert.Equal(t, filepath.Join(dir, "lpd.geom"), back.GetGeometryPath(path))
	assert.Equal(t, s.Selection, back.Selection)
	assert.Equal(t, s.Levels, back.Levels)
	assert.Equal(t, s.Shapes, back.Shapes)
	assert.True(t, back.FrontView)
	assert.Equal(t, 0.119, back.Meta.Clen)

	bg, err := back.Geometry()
	require.NoError(t, err)
	assert.Equal(t, g.Panels, bg.Panels)
	assert.Same(t, detector.LPD, bg.Detector)
}

func TestAbsolutePathsSurvive(t *testing.T) {
	s := New("x", "AGIPD")
	s.RunDirPath = "/abs/run"
	assert.Equal(t, "/abs/run", s.GetRunDir("/elsewhere/x.geoproj"))
	assert.Equal(t, "", s.GetGeometryPath("/elsewhere/x.geoproj"))
}

func TestGeometryWithoutPanels(t *testing.T) {
	g, err := New("x", "AGIPD").Geometry()
	require.NoError(t, err)
	assert.Nil(t, g)

	_, err = New("x", "EIGER").Geometry()
	assert.ErrorIs(t, err, detector.ErrUnknownDetector)

	s := New("x", "AGIPD")
	s.Panels = make([]detector.Panel, 3)
	_, err = s.Geometry()
	assert.ErrorIs(t, err, detector.ErrPanelCount)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.geoproj"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.geoproj")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	future := filepath.Join(dir, "future.geoproj")
	require.NoError(t, os.WriteFile(future, []byte(`{"version": 99}`), 0o644))
	_, err = Load(future)
	assert.ErrorIs(t, err, ErrVersion)
}
