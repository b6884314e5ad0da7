// Package notebook writes a Jupyter notebook that drives the geoassemble
// command line tool for a given run.
package notebook

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"geo-assembler/internal/render"
	"geo-assembler/internal/version"
)

//go:embed notebook.ipynb.tmpl
var templateText string

var tmpl = template.Must(template.New("notebook").Funcs(template.FuncMap{"py": pyLiteral}).Parse(templateText))

// Extension is the notebook file suffix.
const Extension = ".ipynb"

// Options fills the notebook parameters.
type Options struct {
	RunDir   string
	Geometry string
	Detector string
	// Levels is left to the tool when nil.
	Levels *render.Levels
	Clen   float64
	Energy float64

	Dir  string
	File string
}

type fields struct {
	Options
	Generator string
	LevelsArg string
}

// pyLiteral renders v as a Python literal that can sit inside a JSON string.
func pyLiteral(v any) string {
	var lit string
	switch x := v.(type) {
	case string:
		if x == "" {
			lit = "None"
		} else {
			b, _ := json.Marshal(x)
			lit = string(b)
		}
	case float64:
		lit = strconv.FormatFloat(x, 'g', -1, 64)
	default:
		lit = fmt.Sprint(x)
	}
	b, _ := json.Marshal(lit)
	return string(b[1 : len(b)-1])
}

// Path returns where Create will write the notebook.
func (o Options) Path() string {
	name := o.File
	if name == "" {
		name = "geometry"
	}
	if !strings.HasSuffix(name, Extension) {
		name += Extension
	}
	return filepath.Join(o.Dir, filepath.Base(name))
}

// Render writes the notebook document for o.
func Render(o Options) ([]byte, error) {
	f := fields{Options: o, Generator: version.String()}
	if o.Levels != nil {
		f.LevelsArg = o.Levels.String()
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, f); err != nil {
		return nil, fmt.Errorf("failed to render notebook: %w", err)
	}
	return buf.Bytes(), nil
}

// Create writes the notebook and returns its path and a short usage message.
func Create(o Options) (path, message string, err error) {
	data, err := Render(o)
	if err != nil {
		return "", "", err
	}
	path = o.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create notebook directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write notebook: %w", err)
	}
	log.Printf("Notebook: wrote %s", path)
	message = fmt.Sprintf("Notebook has been created. Open %s in JupyterLab or start a server with\n"+
		"  jupyter notebook --port PORT --no-browser\n"+
		"where PORT is a free port >= 1024. The geoassemble tool must be on the PATH.", path)
	return path, message, nil
}
