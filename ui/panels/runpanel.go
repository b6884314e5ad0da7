package panels

import (
	"context"
	"fmt"
	"path/filepath"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"geo-assembler/internal/app"
	"geo-assembler/internal/render"
	"geo-assembler/internal/rundata"
	"geo-assembler/pkg/colorutil"
	"geo-assembler/ui/prefs"
)

// RunPanel selects the run, the frame shown and its display levels.
type RunPanel struct {
	state     *app.State
	prefs     *prefs.Prefs
	window    fyne.Window
	container fyne.CanvasObject

	dirLabel  *widget.Label
	infoLabel *widget.Label
	train     *IntSpinner
	pulse     *IntSpinner
	method    *widget.RadioGroup

	levelMin *widget.Entry
	levelMax *widget.Entry
	colormap *widget.Select

	syncing bool
}

// NewRunPanel creates the run panel.
func NewRunPanel(state *app.State, p *prefs.Prefs) *RunPanel {
	rp := &RunPanel{state: state, prefs: p}

	rp.dirLabel = widget.NewLabel("No run opened")
	rp.dirLabel.Wrapping = fyne.TextWrapBreak
	rp.infoLabel = widget.NewLabel("")

	rp.train = NewIntSpinner(0, 0, func(int) { rp.applySelection() })
	rp.pulse = NewIntSpinner(0, 0, func(int) { rp.applySelection() })

	var names []string
	for _, m := range rundata.Methods() {
		names = append(names, m.String())
	}
	rp.method = widget.NewRadioGroup(names, func(string) { rp.applySelection() })
	rp.method.Horizontal = true
	rp.method.Required = true

	rp.levelMin = widget.NewEntry()
	rp.levelMax = widget.NewEntry()
	rp.levelMin.OnSubmitted = func(string) { rp.applyLevels() }
	rp.levelMax.OnSubmitted = func(string) { rp.applyLevels() }
	autoButton := widget.NewButton("Auto", func() {
		showError(rp.window, state.AutoLevels())
	})

	rp.colormap = widget.NewSelect(colorutil.Colormaps(), func(name string) {
		if rp.syncing {
			return
		}
		showError(rp.window, state.SetColormap(name))
	})

	browseButton := widget.NewButton("Open Run...", rp.onBrowse)

	rp.container = container.NewVBox(
		widget.NewLabelWithStyle("Run", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		browseButton,
		rp.dirLabel,
		rp.infoLabel,
		widget.NewSeparator(),
		widget.NewForm(
			widget.NewFormItem("Train", rp.train.Container()),
			widget.NewFormItem("Pulse", rp.pulse.Container()),
		),
		rp.method,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Display", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewForm(
			widget.NewFormItem("Min", rp.levelMin),
			widget.NewFormItem("Max", rp.levelMax),
			widget.NewFormItem("Colormap", rp.colormap),
		),
		autoButton,
	)

	state.On(app.EventRunOpened, func(interface{}) { rp.sync() })
	state.On(app.EventFrameChanged, func(interface{}) { rp.sync() })
	state.On(app.EventViewChanged, func(interface{}) { rp.syncView() })
	state.On(app.EventSessionLoaded, func(interface{}) { rp.sync(); rp.syncView() })
	state.On(app.EventDetectorChanged, func(interface{}) { rp.sync() })

	rp.sync()
	rp.syncView()
	return rp
}

// Container returns the panel container.
func (rp *RunPanel) Container() fyne.CanvasObject {
	return rp.container
}

// SetWindow sets the parent window for dialogs.
func (rp *RunPanel) SetWindow(w fyne.Window) {
	rp.window = w
}

// OpenRun opens dir in the background.
func (rp *RunPanel) OpenRun(dir string) {
	runBusy(rp.window, "Opening run", func() error {
		return rp.state.OpenRun(context.Background(), dir)
	}, func() {
		if rp.prefs != nil {
			rp.prefs.SetString(prefs.KeyRunDir, filepath.Dir(dir))
		}
	})
}

func (rp *RunPanel) onBrowse() {
	if rp.window == nil {
		return
	}
	dlg := dialog.NewFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil || uri == nil {
			return
		}
		rp.OpenRun(uri.Path())
	}, rp.window)
	if rp.prefs != nil {
		if last := rp.prefs.String(prefs.KeyRunDir); last != "" {
			if l, err := storage.ListerForURI(storage.NewFileURI(last)); err == nil {
				dlg.SetLocation(l)
			}
		}
	}
	dlg.Show()
}

// selection reads the frame selection from the widgets.
func (rp *RunPanel) selection() rundata.Selection {
	m, err := rundata.ParseMethod(rp.method.Selected)
	if err != nil {
		m = rundata.Mean
	}
	return rundata.Selection{Train: rp.train.Value(), Pulse: rp.pulse.Value(), Method: m}
}

func (rp *RunPanel) applySelection() {
	if rp.syncing || rp.state.Status().Run == nil {
		return
	}
	sel := rp.selection()
	runBusy(rp.window, "Loading frame", func() error {
		return rp.state.SetSelection(context.Background(), sel)
	}, nil)
}

func (rp *RunPanel) applyLevels() {
	lo, err := parseFloat(rp.levelMin)
	if err != nil {
		showError(rp.window, err)
		return
	}
	hi, err := parseFloat(rp.levelMax)
	if err != nil {
		showError(rp.window, err)
		return
	}
	showError(rp.window, rp.state.SetLevels(render.Levels{Min: lo, Max: hi}))
}

// sync updates the run widgets from the state.
func (rp *RunPanel) sync() {
	rp.syncing = true
	defer func() { rp.syncing = false }()

	st := rp.state.Status()
	run := st.Run
	if run == nil {
		rp.dirLabel.SetText("No run opened")
		rp.infoLabel.SetText("")
		rp.train.SetRange(0, 0)
		rp.pulse.SetRange(0, 0)
		rp.method.SetSelected(rundata.Mean.String())
		return
	}
	trains := run.TrainIDs()
	rp.dirLabel.SetText(st.RunDir)
	rp.infoLabel.SetText(fmt.Sprintf("%d modules, %d trains, %d pulses per train",
		len(run.Modules()), len(trains), run.FramesPerTrain()))
	rp.train.SetRange(trains[0], trains[len(trains)-1])
	rp.pulse.SetRange(0, max(run.FramesPerTrain()-1, 0))

	sel := st.Selection
	rp.train.SetValue(sel.Train)
	rp.pulse.SetValue(sel.Pulse)
	rp.method.SetSelected(sel.Method.String())
}

// syncView updates the display widgets from the state.
func (rp *RunPanel) syncView() {
	rp.syncing = true
	defer func() { rp.syncing = false }()

	st := rp.state.Status()
	rp.levelMin.SetText(formatFloat(st.Levels.Min))
	rp.levelMax.SetText(formatFloat(st.Levels.Max))
	rp.colormap.SetSelected(st.Colormap)
}
