package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geo-assembler/internal/crystfel"
	"geo-assembler/internal/detector"
	"geo-assembler/internal/version"
	"geo-assembler/pkg/geometry"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args, &out)
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.String()+"\n", out)
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCmd(t, "assemble")
	assert.ErrorIs(t, err, errUsage)
}

func TestWrongArgumentCount(t *testing.T) {
	_, err := runCmd(t, "render", "-det", "AGIPD")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, "convert", "only.geom")
	assert.ErrorIs(t, err, errUsage)
}

func TestMoveWritesGeometry(t *testing.T) {
	out := filepath.Join(t.TempDir(), "moved.geom")
	stdout, err := runCmd(t, "move", "-det", "AGIPD", "-geometry", "default",
		"-quadrant", "1", "-dir", "up", "-inc", "2", "-out", out)
	require.NoError(t, err)

	before := detector.Default(detector.AGIPD).QuadPositions()
	g, meta, err := crystfel.Load(out, detector.AGIPD)
	require.NoError(t, err)
	require.NotNil(t, meta)

	after := g.QuadPositions()
	assert.Equal(t, before[0].Add(geometry.Pt(0, -2)), after[0])
	for q := 1; q < detector.QuadrantCount; q++ {
		assert.Equal(t, before[q], after[q], "quadrant %d", q+1)
	}

	printed, err := detector.ReadQuadPositions(bytes.NewBufferString(stdout))
	require.NoError(t, err)
	assert.Equal(t, after, printed)
}

func TestMoveFrontViewMirrors(t *testing.T) {
	dir := t.TempDir()
	left := filepath.Join(dir, "left.csv")
	right := filepath.Join(dir, "right.csv")

	_, err := runCmd(t, "move", "-det", "LPD", "-quadrant", "3", "-dir", "left", "-front", "-out", left)
	require.NoError(t, err)
	_, err = runCmd(t, "move", "-det", "LPD", "-quadrant", "3", "-dir", "right", "-out", right)
	require.NoError(t, err)

	a, _, err := crystfel.Load(left, detector.LPD)
	require.NoError(t, err)
	b, _, err := crystfel.Load(right, detector.LPD)
	require.NoError(t, err)
	assert.Equal(t, b.QuadPositions(), a.QuadPositions())
}

func TestMoveErrors(t *testing.T) {
	_, err := runCmd(t, "move", "-dir", "up")
	assert.ErrorIs(t, err, errUsage, "missing -out")

	out := filepath.Join(t.TempDir(), "x.geom")
	_, err = runCmd(t, "move", "-dir", "up", "-inc", "0", "-out", out)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, "move", "-dir", "sideways", "-out", out)
	assert.Error(t, err)

	_, err = runCmd(t, "move", "-quadrant", "5", "-dir", "up", "-out", out)
	assert.ErrorIs(t, err, detector.ErrInvalidQuadrant)

	_, err = runCmd(t, "move", "-det", "JUNGFRAU", "-dir", "up", "-out", out)
	assert.ErrorIs(t, err, detector.ErrUnknownDetector)

	_, err = runCmd(t, "move", "-dir", "up", "-out", filepath.Join(t.TempDir(), "x.h5"))
	assert.ErrorIs(t, err, crystfel.ErrUnknownFormat)
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	geom := filepath.Join(dir, "agipd.geom")
	table := filepath.Join(dir, "agipd.csv")
	back := filepath.Join(dir, "back.geom")

	g := detector.Default(detector.AGIPD)
	require.NoError(t, g.MoveQuadrant(2, geometry.Pt(3, -1)))
	require.NoError(t, crystfel.Save(geom, g, crystfel.DefaultMeta()))

	_, err := runCmd(t, "convert", geom, table)
	require.NoError(t, err)
	fromTable, meta, err := crystfel.Load(table, detector.AGIPD)
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, g.Panels, fromTable.Panels)

	_, err = runCmd(t, "convert", "-clen", "0.2", "-energy", "9000", table, back)
	require.NoError(t, err)
	fromGeom, meta, err := crystfel.Load(back, detector.AGIPD)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, g.Panels, fromGeom.Panels)
	assert.InDelta(t, 0.2, meta.Clen, 1e-12)
	assert.InDelta(t, 9000, meta.PhotonEnergy, 1e-9)
}

func TestQuads(t *testing.T) {
	stdout, err := runCmd(t, "quads", "-det", "LPD")
	require.NoError(t, err)
	pos, err := detector.ReadQuadPositions(bytes.NewBufferString(stdout))
	require.NoError(t, err)
	assert.Equal(t, detector.LPD.FallbackQuadPos, pos)
}

func TestParseModules(t *testing.T) {
	mods, err := parseModules(" 3, 7 ,15")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 15}, mods)

	mods, err = parseModules("")
	require.NoError(t, err)
	assert.Nil(t, mods)

	_, err = parseModules("16")
	assert.Error(t, err)
	_, err = parseModules("a")
	assert.Error(t, err)
}

func TestRunPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("writes and assembles a full-size run")
	}
	dir := t.TempDir()
	runDir := filepath.Join(dir, "r0001")

	_, err := runCmd(t, "mock", "-det", "AGIPD", "-trains", "1", "-frames", "1", "-skip", "12", runDir)
	require.NoError(t, err)

	png := filepath.Join(dir, "frame.png")
	stdout, err := runCmd(t, "render", "-det", "AGIPD", "-method", "pulse", "-pulse", "0",
		"-level", "0,1000", "-out", png, runDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote "+png)
	info, err := os.Stat(png)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	tif := filepath.Join(dir, "frame.tif")
	_, err = runCmd(t, "render", "-det", "AGIPD", "-data", "-front", "-out", tif, runDir)
	require.NoError(t, err)
	_, err = os.Stat(tif)
	require.NoError(t, err)

	_, err = runCmd(t, "render", "-det", "AGIPD", "-method", "pulse", "-pulse", "4", "-out", png, runDir)
	assert.Error(t, err, "pulse beyond the train")

	centred := filepath.Join(dir, "centred.geom")
	stdout, err = runCmd(t, "centre", "-det", "AGIPD", "-geometry", "default", "-clen", "0.25",
		"-energy", "9300", "-search", "2", "-out", centred, runDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote "+centred)

	g, meta, err := crystfel.Load(centred, detector.AGIPD)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.InDelta(t, 0.25, meta.Clen, 1e-12)
	assert.InDelta(t, 9300, meta.PhotonEnergy, 1e-9)
	require.NoError(t, g.Validate())
}
