package panels

import (
	"fmt"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"geo-assembler/internal/app"
	"geo-assembler/internal/detector"
	"geo-assembler/pkg/geometry"
	"geo-assembler/ui/dialogs"
	"geo-assembler/ui/prefs"
)

// geometryExtensions are the file types the geometry dialogs offer.
var geometryExtensions = []string{".geom", ".csv"}

// GeometryPanel edits the detector geometry: detector type, geometry file,
// quadrant positions and the experiment parameters.
type GeometryPanel struct {
	state     *app.State
	prefs     *prefs.Prefs
	window    fyne.Window
	container fyne.CanvasObject

	detectorSelect *widget.Select
	fileLabel      *widget.Label
	quadLabels     [detector.QuadrantCount]*widget.Label
	selectedLabel  *widget.Label
	increment      *IntSpinner
	clenEntry      *widget.Entry
	energyEntry    *widget.Entry

	onRecent func()
	syncing  bool
}

// NewGeometryPanel creates the geometry panel.
func NewGeometryPanel(state *app.State, p *prefs.Prefs) *GeometryPanel {
	gp := &GeometryPanel{state: state, prefs: p}

	gp.detectorSelect = widget.NewSelect(detector.Names(), func(name string) {
		if gp.syncing || name == state.Status().Detector.Name {
			return
		}
		showError(gp.window, state.SetDetector(name))
	})
	gp.fileLabel = widget.NewLabel("Default layout")
	gp.fileLabel.Wrapping = fyne.TextWrapBreak

	quadRows := container.NewVBox()
	for i := range gp.quadLabels {
		gp.quadLabels[i] = widget.NewLabel("")
		quadRows.Add(gp.quadLabels[i])
	}
	gp.selectedLabel = widget.NewLabel("")

	gp.increment = NewIntSpinner(1, 100, func(v int) {
		showError(gp.window, state.SetIncrement(v))
	})
	gp.increment.SetValue(state.Status().Increment)

	move := func(d geometry.Direction) func() {
		return func() { gp.Move(d) }
	}
	arrows := container.NewGridWithColumns(3,
		widget.NewLabel(""), widget.NewButton("Up", move(geometry.Up)), widget.NewLabel(""),
		widget.NewButton("Left", move(geometry.Left)), widget.NewLabel(""), widget.NewButton("Right", move(geometry.Right)),
		widget.NewLabel(""), widget.NewButton("Down", move(geometry.Down)), widget.NewLabel(""),
	)

	gp.clenEntry = widget.NewEntry()
	gp.energyEntry = widget.NewEntry()
	gp.clenEntry.OnSubmitted = func(string) { gp.applyExperiment() }
	gp.energyEntry.OnSubmitted = func(string) { gp.applyExperiment() }

	gp.container = container.NewVBox(
		widget.NewLabelWithStyle("Detector", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		gp.detectorSelect,
		widget.NewLabelWithStyle("Geometry", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		gp.fileLabel,
		container.NewGridWithColumns(2,
			widget.NewButton("Load...", gp.OnLoad),
			widget.NewButton("Save...", gp.OnSave),
		),
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Quadrant positions", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		quadRows,
		widget.NewButton("Edit Positions...", gp.OnEditPositions),
		widget.NewSeparator(),
		gp.selectedLabel,
		widget.NewForm(widget.NewFormItem("Step (px)", gp.increment.Container())),
		arrows,
		widget.NewSeparator(),
		widget.NewForm(
			widget.NewFormItem("clen (m)", gp.clenEntry),
			widget.NewFormItem("Energy (eV)", gp.energyEntry),
		),
	)

	for _, ev := range []app.EventType{
		app.EventDetectorChanged, app.EventGeometryLoaded, app.EventGeometryChanged,
		app.EventGeometrySaved, app.EventQuadrantSelected, app.EventSessionLoaded,
		app.EventViewChanged,
	} {
		state.On(ev, func(interface{}) { gp.sync() })
	}
	gp.sync()
	return gp
}

// Container returns the panel container.
func (gp *GeometryPanel) Container() fyne.CanvasObject {
	return gp.container
}

// SetWindow sets the parent window for dialogs.
func (gp *GeometryPanel) SetWindow(w fyne.Window) {
	gp.window = w
}

// Move moves the selected quadrant by one step.
func (gp *GeometryPanel) Move(d geometry.Direction) {
	showError(gp.window, gp.state.MoveSelected(d))
}

// LoadGeometry loads path and remembers it.
func (gp *GeometryPanel) LoadGeometry(path string) error {
	if err := gp.state.LoadGeometry(path); err != nil {
		return err
	}
	if gp.prefs != nil {
		gp.prefs.SetString(prefs.KeyGeometryDir, filepath.Dir(path))
		gp.prefs.SetString(prefs.KeyGeometry, path)
		gp.pushRecent(path)
	}
	return nil
}

// OnRecentChanged sets the callback run when the recent file list changes.
func (gp *GeometryPanel) OnRecentChanged(cb func()) {
	gp.onRecent = cb
}

func (gp *GeometryPanel) pushRecent(path string) {
	gp.prefs.PushRecent(prefs.KeyRecent, path)
	if gp.onRecent != nil {
		gp.onRecent()
	}
}

// OnLoad asks for a geometry file and loads it.
func (gp *GeometryPanel) OnLoad() {
	if gp.window == nil {
		return
	}
	dlg := dialog.NewFileOpen(func(r fyne.URIReadCloser, err error) {
		if err != nil || r == nil {
			return
		}
		path := r.URI().Path()
		r.Close()
		showError(gp.window, gp.LoadGeometry(path))
	}, gp.window)
	dlg.SetFilter(storage.NewExtensionFileFilter(geometryExtensions))
	gp.setLocation(dlg)
	dlg.Show()
}

// OnSave asks for a file name and writes the geometry. The format follows
// the extension, CrystFEL when there is none.
func (gp *GeometryPanel) OnSave() {
	if gp.window == nil {
		return
	}
	dlg := dialog.NewFileSave(func(w fyne.URIWriteCloser, err error) {
		if err != nil || w == nil {
			return
		}
		path := w.URI().Path()
		w.Close()
		if ext := strings.ToLower(filepath.Ext(path)); ext != ".geom" && ext != ".csv" {
			path += ".geom"
		}
		if err := gp.state.SaveGeometry(path); err != nil {
			showError(gp.window, err)
			return
		}
		if gp.prefs != nil {
			gp.prefs.SetString(prefs.KeyGeometryDir, filepath.Dir(path))
			gp.pushRecent(path)
		}
	}, gp.window)
	dlg.SetFilter(storage.NewExtensionFileFilter(geometryExtensions))
	if st := gp.state.Status(); st.GeometryPath != "" {
		dlg.SetFileName(filepath.Base(st.GeometryPath))
	} else {
		dlg.SetFileName(strings.ToLower(st.Detector.Name) + ".geom")
	}
	gp.setLocation(dlg)
	dlg.Show()
}

func (gp *GeometryPanel) setLocation(dlg *dialog.FileDialog) {
	if gp.prefs == nil {
		return
	}
	if last := gp.prefs.String(prefs.KeyGeometryDir); last != "" {
		if l, err := storage.ListerForURI(storage.NewFileURI(last)); err == nil {
			dlg.SetLocation(l)
		}
	}
}

// OnEditPositions opens the quadrant position table.
func (gp *GeometryPanel) OnEditPositions() {
	if gp.window == nil {
		return
	}
	dialogs.ShowQuadPositions(gp.window, gp.state.QuadPositions(), func(pos [detector.QuadrantCount]geometry.PointInt) {
		showError(gp.window, gp.state.UseQuadPositions(pos))
	})
}

func (gp *GeometryPanel) applyExperiment() {
	clen, err := parseFloat(gp.clenEntry)
	if err != nil {
		showError(gp.window, err)
		return
	}
	energy, err := parseFloat(gp.energyEntry)
	if err != nil {
		showError(gp.window, err)
		return
	}
	showError(gp.window, gp.state.SetExperiment(clen, energy))
}

// sync updates the widgets from the state.
func (gp *GeometryPanel) sync() {
	gp.syncing = true
	defer func() { gp.syncing = false }()

	st := gp.state.Status()
	gp.detectorSelect.SetSelected(st.Detector.Name)
	if st.GeometryPath == "" {
		gp.fileLabel.SetText("Default layout")
	} else {
		name := filepath.Base(st.GeometryPath)
		if st.Modified {
			name += " *"
		}
		gp.fileLabel.SetText(name)
	}

	for i, p := range gp.state.QuadPositions() {
		gp.quadLabels[i].SetText(fmt.Sprintf("Q%d: %d, %d", i+1, p.X, p.Y))
	}
	if q := st.Quadrant; q > 0 {
		gp.selectedLabel.SetText(fmt.Sprintf("Selected: quadrant %d", q))
	} else {
		gp.selectedLabel.SetText("Click a quadrant to select it")
	}
	gp.clenEntry.SetText(formatFloat(st.Meta.Clen))
	gp.energyEntry.SetText(formatFloat(st.Meta.PhotonEnergy))
}
