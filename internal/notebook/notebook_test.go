package notebook

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geo-assembler/internal/render"
)

type document struct {
	Cells []struct {
		CellType string   `json:"cell_type"`
		Source   []string `json:"source"`
	} `json:"cells"`
	NBFormat int `json:"nbformat"`
}

func source(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc document
	require.NoError(t, json.Unmarshal(data, &doc), "notebook must be valid JSON")
	assert.Equal(t, 4, doc.NBFormat)
	var all []string
	for _, c := range doc.Cells {
		all = append(all, strings.Join(c.Source, ""))
	}
	return strings.Join(all, "\n")
}

func TestCreateFillsParameters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "notebooks")
	path, msg, err := Create(Options{
		RunDir:   `/data/p700000/r0005 "copy"`,
		Geometry: "agipd.geom",
		Detector: "AGIPD",
		Levels:   &render.Levels{Min: 0, Max: 1500},
		Clen:     0.119,
		Energy:   10235,
		Dir:      dir,
		File:     "calib",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "calib.ipynb"), path)
	assert.Contains(t, msg, path)

	src := source(t, path)
	assert.Contains(t, src, `run_dir = "/data/p700000/r0005 \"copy\""`)
	assert.Contains(t, src, `geometry = "agipd.geom"`)
	assert.Contains(t, src, `levels = "0,1500"`)
	assert.Contains(t, src, "clen = 0.119")
	assert.Contains(t, src, "energy = 10235")
}

func TestCreateDefaults(t *testing.T) {
	dir := t.TempDir()
	path, _, err := Create(Options{RunDir: "/run", Detector: "LPD", Clen: 0.2, Energy: 9000, Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "geometry.ipynb"), path)

	src := source(t, path)
	assert.Contains(t, src, "geometry = None")
	assert.Contains(t, src, "levels = None")
}

func TestPathKeepsExtensionAndBaseName(t *testing.T) {
	o := Options{Dir: "/tmp/nb", File: "sub/dir/x.ipynb"}
	assert.Equal(t, filepath.Join("/tmp/nb", "x.ipynb"), o.Path())
}
