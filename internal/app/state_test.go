package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geo-assembler/internal/config"
	"geo-assembler/internal/detector"
	"geo-assembler/internal/render"
	"geo-assembler/internal/rundata"
	"geo-assembler/internal/session"
	"geo-assembler/pkg/colorutil"
	"geo-assembler/pkg/geometry"
)

var tiny = &detector.Spec{
	Name:          "TINY",
	ModuleTag:     "TINY",
	SourcePattern: "TINY/DET/%dCH0:xtdf",
	PanelRows:     8,
	PanelCols:     4,
	AsicRows:      4,
	AsicCols:      4,
	PixelSize:     1e-3,
	QuadLayout: [4]geometry.PointInt{
		{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 0, Y: 20}, {X: 0, Y: 30},
	},
	FallbackQuadPos: [4]geometry.PointInt{
		{X: -20, Y: -40}, {X: -20, Y: 2}, {X: 2, Y: 2}, {X: 2, Y: -40},
	},
}

// tinyState returns a state for the tiny detector with a mock run opened.
func tinyState(t *testing.T) *State {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, rundata.WriteMock(dir, tiny, rundata.DefaultMockOptions(tiny)))

	s := NewState(nil)
	s.Detector = tiny
	s.Geometry = detector.Default(tiny)
	s.CanvasMargin = 2
	require.NoError(t, s.OpenRun(context.Background(), dir))
	return s
}

// displayOf returns the view pixel showing geometry point p.
func displayOf(s *State, p geometry.PointInt) geometry.PointInt {
	c := s.Image.ToCanvas(p)
	if s.FrontView {
		c.X = s.Image.Cols - 1 - c.X
	}
	return c
}

func TestNewStateUsesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Detector = "LPD"
	cfg.Experiment.Clen = 0.3
	cfg.Display.MoveIncrement = 5
	s := NewState(cfg)
	assert.Same(t, detector.LPD, s.Detector)
	assert.Equal(t, 0.3, s.Meta.Clen)
	assert.Equal(t, 5, s.Increment)
	assert.Equal(t, NoQuadrant, s.Quadrant)
	assert.Equal(t, detector.LPD.FallbackQuadPos, s.QuadPositions())
}

func TestOpenRunAssembles(t *testing.T) {
	s := tinyState(t)
	require.NotNil(t, s.Image)
	assert.Equal(t, rundata.Mean, s.Selection.Method)
	assert.Equal(t, 10000, s.Selection.Train)

	ext := s.Geometry.Extent()
	assert.Equal(t, ext.Width+4, s.Image.Cols)
	assert.Equal(t, ext.Height+4, s.Image.Rows)

	err := s.SetSelection(context.Background(), rundata.Selection{Train: 10001, Pulse: 1, Method: rundata.Pulse})
	require.NoError(t, err)
	assert.Equal(t, 10001, s.Selection.Train)

	err = s.SetSelection(context.Background(), rundata.Selection{Train: 1, Method: rundata.Mean})
	assert.ErrorIs(t, err, rundata.ErrNoTrain)
}

func TestSetSelectionWithoutRun(t *testing.T) {
	s := NewState(nil)
	err := s.SetSelection(context.Background(), rundata.Selection{})
	assert.ErrorIs(t, err, ErrNoRun)
	assert.ErrorIs(t, s.Assemble(), ErrNoFrame)
	_, err = s.View()
	assert.ErrorIs(t, err, ErrNoFrame)
	_, err = s.FitCentre(context.Background(), 4)
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestSelectAndMoveQuadrant(t *testing.T) {
	s := tinyState(t)
	var changed int
	s.On(EventGeometryChanged, func(interface{}) { changed++ })

	assert.ErrorIs(t, s.MoveSelected(geometry.Up), ErrNoSelection)

	q := s.SelectAt(displayOf(s, geometry.Pt(-18, -20)))
	require.Equal(t, 1, q)
	layout := s.Image.Layout
	before := s.QuadPositions()

	require.NoError(t, s.MoveSelected(geometry.Up))
	after := s.QuadPositions()
	assert.Equal(t, before[0].Add(geometry.Pt(0, -1)), after[0])
	assert.Equal(t, before[1:], after[1:])
	assert.Equal(t, layout, s.Image.Layout, "small moves keep the canvas")
	assert.True(t, s.Modified)
	assert.Equal(t, 1, changed)

	require.NoError(t, s.MoveSelected(geometry.Down))
	assert.Equal(t, before, s.QuadPositions())
}

func TestFrontViewMirrorsMoves(t *testing.T) {
	s := tinyState(t)
	s.SetFrontView(true)
	require.Equal(t, 3, s.SelectAt(displayOf(s, geometry.Pt(4, 20))))

	before := s.QuadPositions()
	require.NoError(t, s.MoveSelected(geometry.Left))
	assert.Equal(t, before[2].Add(geometry.Pt(1, 0)), s.QuadPositions()[2])
}

func TestIncrementScalesMoves(t *testing.T) {
	s := tinyState(t)
	require.Error(t, s.SetIncrement(0))
	require.NoError(t, s.SetIncrement(3))
	require.NoError(t, s.SelectQuadrant(1))

	before := s.QuadPositions()
	require.NoError(t, s.MoveSelected(geometry.Up))
	assert.Equal(t, before[0].Add(geometry.Pt(0, -3)), s.QuadPositions()[0])
}

func TestSelectOutsideClears(t *testing.T) {
	s := tinyState(t)
	require.NoError(t, s.SelectQuadrant(2))
	assert.Equal(t, NoQuadrant, s.SelectAt(displayOf(s, geometry.Pt(-8, 0))))
	assert.Equal(t, NoQuadrant, s.Quadrant)

	assert.Error(t, s.SelectQuadrant(5))
}

func TestCanvasGrowsWhenQuadrantLeaves(t *testing.T) {
	s := tinyState(t)
	s.Increment = 10
	require.NoError(t, s.SelectQuadrant(1))
	cols := s.Image.Cols

	require.NoError(t, s.MoveSelected(geometry.Left))
	assert.Greater(t, s.Image.Cols, cols)
	assert.True(t, s.Image.Fits(s.Geometry))
}

func TestUseQuadPositions(t *testing.T) {
	s := tinyState(t)
	pos := s.QuadPositions()
	pos[3] = pos[3].Add(geometry.Pt(1, 1))
	require.NoError(t, s.UseQuadPositions(pos))
	assert.Equal(t, pos, s.QuadPositions())
}

func TestGeometryFiles(t *testing.T) {
	dir := t.TempDir()
	s := tinyState(t)
	require.NoError(t, s.SelectQuadrant(2))
	require.NoError(t, s.MoveSelected(geometry.Right))
	want := s.Geometry.Panels

	for _, name := range []string{"tiny.geom", "tiny.csv"} {
		path := filepath.Join(dir, name)
		require.NoError(t, s.SaveGeometry(path), name)
		assert.False(t, s.Modified)

		other := tinyState(t)
		require.NoError(t, other.LoadGeometry(path), name)
		assert.Equal(t, want, other.Geometry.Panels, name)
		assert.Equal(t, path, other.GeometryPath)
		assert.Equal(t, NoQuadrant, other.Quadrant)
	}

	assert.ErrorIs(t, s.SaveGeometry(filepath.Join(dir, "x.txt")), ErrUnknownGeometryFormat)
	assert.ErrorIs(t, s.LoadGeometry(filepath.Join(dir, "x.txt")), ErrUnknownGeometryFormat)
}

func TestReloadKeepsSelection(t *testing.T) {
	s := tinyState(t)
	path := filepath.Join(t.TempDir(), "tiny.csv")
	require.NoError(t, s.SaveGeometry(path))
	require.NoError(t, s.SelectQuadrant(4))

	g := s.Geometry.Clone()
	require.NoError(t, g.MoveQuadrant(4, geometry.Pt(0, 1)))
	require.NoError(t, g.SaveTable(path))

	require.NoError(t, s.ReloadGeometry())
	assert.Equal(t, 4, s.Quadrant)
	assert.Equal(t, g.Panels, s.Geometry.Panels)
}

func TestViewSettings(t *testing.T) {
	s := tinyState(t)
	assert.Error(t, s.SetLevels(render.Levels{Min: 2, Max: 1}))
	require.NoError(t, s.SetLevels(render.Levels{Min: 0, Max: 10}))
	require.NoError(t, s.AutoLevels())
	assert.LessOrEqual(t, s.Levels.Min, s.Levels.Max)

	assert.Error(t, s.SetColormap("nope"))
	require.NoError(t, s.SetColormap("Gray"))
	assert.Equal(t, "grey", s.Colormap)

	assert.Error(t, s.SetCalibrant("nope"))
	require.NoError(t, s.SetCalibrant("si"))
	assert.Equal(t, "Si", s.Calibrant)

	assert.Error(t, s.SetExperiment(0, 9000))
	require.NoError(t, s.SetExperiment(0.2, 9000))
	assert.Equal(t, 0.2, s.Meta.Clen)
}

func TestShapes(t *testing.T) {
	s := tinyState(t)
	i := s.AddShape(session.ShapeCircle)
	j := s.AddShape(session.ShapeSquare)
	assert.Equal(t, 0, i)
	assert.Equal(t, 1, j)
	assert.Greater(t, s.Shapes[0].Size, 0.0)

	require.NoError(t, s.ResizeShape(1, 7))
	assert.Equal(t, 7.0, s.Shapes[1].Size)
	assert.ErrorIs(t, s.ResizeShape(2, 1), ErrShapeIndex)

	s.ClearShapes()
	assert.Empty(t, s.Shapes)
}

func TestStatus(t *testing.T) {
	s := tinyState(t)
	s.AddShape(session.ShapeCircle)
	require.NoError(t, s.SelectQuadrant(3))

	st := s.Status()
	assert.Same(t, tiny, st.Detector)
	assert.Equal(t, 3, st.Quadrant)
	assert.NotNil(t, st.Run)
	assert.NotNil(t, st.Image)
	assert.Empty(t, st.GeometryPath)
	require.Len(t, st.Shapes, 1)

	st.Shapes[0].Size = -1
	assert.NotEqual(t, -1.0, s.Status().Shapes[0].Size, "shapes are copied")

	path := filepath.Join(t.TempDir(), "tiny.geom")
	require.NoError(t, s.SaveGeometry(path))
	assert.Equal(t, path, s.GeometryFile())
	assert.Equal(t, path, s.Status().GeometryPath)
}

func TestStatusWhileEditing(t *testing.T) {
	s := tinyState(t)
	require.NoError(t, s.SelectQuadrant(1))
	dir := t.TempDir()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			assert.NoError(t, s.MoveSelected(geometry.Down))
			s.SetFrontView(i%2 == 0)
			assert.NoError(t, s.SaveGeometry(filepath.Join(dir, "tiny.csv")))
		}
	}()
	for i := 0; i < 200; i++ {
		st := s.Status()
		if st.GeometryPath != "" {
			assert.Equal(t, filepath.Join(dir, "tiny.csv"), s.GeometryFile())
		}
	}
	wg.Wait()
	assert.False(t, s.Status().Modified)
}

func TestFitCircleFromPoints(t *testing.T) {
	s := tinyState(t)
	for _, p := range []geometry.PointInt{{X: 10, Y: 0}, {X: 0, Y: 10}, {X: -10, Y: 0}, {X: 0, Y: -10}} {
		require.NoError(t, s.AddFitPoint(displayOf(s, p)))
	}
	c, err := s.FitCircle()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, c.Centre.X, 1e-6)
	assert.InDelta(t, 0.5, c.Centre.Y, 1e-6)
	assert.InDelta(t, 10, c.Radius, 1e-6)
	assert.Empty(t, s.FitPoints)
	require.Len(t, s.Shapes, 1)

	_, err = s.FitCircle()
	assert.Error(t, err)
}

func TestViewDrawsSelection(t *testing.T) {
	s := tinyState(t)
	require.NoError(t, s.SetCalibrant("LaB6"))
	s.AddShape(session.ShapeCircle)
	require.NoError(t, s.SelectQuadrant(3))

	img, err := s.View()
	require.NoError(t, err)
	assert.Equal(t, s.Image.Cols, img.Bounds().Dx())
	assert.Equal(t, s.Image.Rows, img.Bounds().Dy())

	b := s.Geometry.QuadrantBounds(3)
	corner := displayOf(s, geometry.Pt(b.X, b.Y+b.Height-1))
	assert.Equal(t, colorutil.QuadrantFrame, img.RGBAAt(corner.X, corner.Y))
}

func TestPixelValueAndDisplayToGeometry(t *testing.T) {
	s := tinyState(t)
	p := displayOf(s, geometry.Pt(3, 5))
	g, ok := s.DisplayToGeometry(p)
	require.True(t, ok)
	assert.Equal(t, geometry.Pt(3, 5), g)

	v, ok := s.PixelValue(p)
	require.True(t, ok)
	assert.Equal(t, s.Image.Data.At(p.Y, p.X), v)

	_, ok = s.PixelValue(geometry.Pt(-1, 0))
	assert.False(t, ok)
}

func TestSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	geomPath := filepath.Join(dir, "agipd.geom")

	s := NewState(nil)
	require.NoError(t, s.SaveGeometry(geomPath))
	pos := s.QuadPositions()
	pos[0] = pos[0].Add(geometry.Pt(-3, 2))
	require.NoError(t, s.UseQuadPositions(pos))
	s.SetFrontView(true)
	require.NoError(t, s.SetColormap("hot"))
	s.AddShape(session.ShapeSquare)

	path := filepath.Join(dir, "work")
	require.NoError(t, s.SaveSession(path))
	assert.Equal(t, path+session.Extension, s.SessionPath)

	other := NewState(nil)
	var loaded bool
	other.On(EventSessionLoaded, func(interface{}) { loaded = true })
	require.NoError(t, other.LoadSession(context.Background(), path+session.Extension))
	assert.True(t, loaded)
	assert.Equal(t, pos, other.QuadPositions())
	assert.True(t, other.FrontView)
	assert.Equal(t, "hot", other.Colormap)
	assert.Equal(t, geomPath, other.GeometryPath)
	assert.Equal(t, s.Shapes, other.Shapes)
	assert.Nil(t, other.Run)
}

func TestSetDetectorResets(t *testing.T) {
	s := tinyState(t)
	require.NoError(t, s.SetDetector("lpd"))
	assert.Same(t, detector.LPD, s.Detector)
	assert.Nil(t, s.Run)
	assert.Nil(t, s.Image)
	assert.Error(t, s.SetDetector("eiger"))
}

func TestLogBuffer(t *testing.T) {
	b := NewLogBuffer(3)
	var seen []string
	b.OnLine(func(l string) { seen = append(seen, l) })

	_, err := b.Write([]byte("one\ntwo\nthr"))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, b.Lines())
	_, _ = b.Write([]byte("ee\nfour\n"))
	assert.Equal(t, []string{"two", "three", "four"}, b.Lines())
	assert.Equal(t, []string{"one", "two", "three", "four"}, seen)
	assert.Equal(t, "two\nthree\nfour", b.String())
}

func TestFileWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.geom")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	fw, err := NewFileWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)
	changed := make(chan string, 4)
	fw.OnChange(func(p string) { changed <- p })
	fw.Start()
	defer fw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("b"), 0o644))

	select {
	case p := <-changed:
		assert.Equal(t, fw.Path(), p)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestFileWatcherStopDuringCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.geom")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	fw, err := NewFileWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)

	// The callback takes a lock held by the goroutine that calls Stop.
	var mu sync.Mutex
	entered := make(chan struct{})
	var once sync.Once
	fw.OnChange(func(string) {
		once.Do(func() { close(entered) })
		mu.Lock()
		defer mu.Unlock()
	})
	fw.Start()

	mu.Lock()
	require.NoError(t, os.WriteFile(path, []byte("b"), 0o644))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		mu.Unlock()
		t.Fatal("no change reported")
	}

	stopped := make(chan struct{})
	go func() {
		fw.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop waited for the running callback")
	}
	mu.Unlock()
}

func TestFileWatcherStopFromCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.geom")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	fw, err := NewFileWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)
	stopped := make(chan struct{})
	fw.OnChange(func(string) {
		fw.Stop()
		close(stopped)
	})
	fw.Start()

	require.NoError(t, os.WriteFile(path, []byte("b"), 0o644))
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop from a callback did not return")
	}
	fw.Stop()
}
