package panels

import (
	"context"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"geo-assembler/internal/app"
	"geo-assembler/internal/fit"
	"geo-assembler/internal/session"
)

const (
	noCalibrant = "None"

	// DefaultCentreSearch is the centre search radius in pixels.
	DefaultCentreSearch = 20
)

// ShapesPanel manages the helper shapes, circle fits, calibrant rings and
// the centre optimiser.
type ShapesPanel struct {
	state     *app.State
	window    fyne.Window
	container fyne.CanvasObject

	list     *widget.List
	selected int
	size     *widget.Slider
	sizeText *widget.Label

	pickPoints  *widget.Check
	pointsLabel *widget.Label
	fitLabel    *widget.Label

	frontView *widget.Check
	calibrant *widget.Select
	search    *IntSpinner

	// shapes is the copy the list shows, refreshed by sync.
	shapes []session.Shape

	onShowLog func()
	syncing   bool
}

// NewShapesPanel creates the shapes panel.
func NewShapesPanel(state *app.State) *ShapesPanel {
	sp := &ShapesPanel{state: state, selected: -1}

	sp.list = widget.NewList(
		func() int { return len(sp.shapes) },
		func() fyne.CanvasObject { return widget.NewLabel("circle r=0000.0") },
		func(id widget.ListItemID, o fyne.CanvasObject) {
			if id < len(sp.shapes) {
				s := sp.shapes[id]
				o.(*widget.Label).SetText(fmt.Sprintf("%d. %s %.1f", id+1, s.Kind, s.Size))
			}
		},
	)
	sp.list.OnSelected = func(id widget.ListItemID) {
		sp.selected = id
		sp.syncSize()
	}
	sp.list.OnUnselected = func(widget.ListItemID) {
		sp.selected = -1
		sp.syncSize()
	}

	sp.size = widget.NewSlider(1, 2000)
	sp.size.Step = 1
	sp.size.OnChanged = func(v float64) {
		if sp.syncing || sp.selected < 0 {
			return
		}
		showError(sp.window, state.ResizeShape(sp.selected, v))
	}
	sp.sizeText = widget.NewLabel("")

	add := func(kind session.ShapeKind) func() {
		return func() {
			i := state.AddShape(kind)
			sp.list.Select(i)
		}
	}

	sp.pickPoints = widget.NewCheck("Pick points on canvas", nil)
	sp.pointsLabel = widget.NewLabel("")
	sp.fitLabel = widget.NewLabel("")
	sp.fitLabel.Wrapping = fyne.TextWrapWord

	sp.frontView = widget.NewCheck("Front view (mirrored)", func(on bool) {
		if !sp.syncing {
			state.SetFrontView(on)
		}
	})

	sp.calibrant = widget.NewSelect(append([]string{noCalibrant}, fit.CalibrantNames()...), func(name string) {
		if sp.syncing {
			return
		}
		if name == noCalibrant {
			name = ""
		}
		showError(sp.window, state.SetCalibrant(name))
	})

	sp.search = NewIntSpinner(1, 200, nil)
	sp.search.SetValue(DefaultCentreSearch)

	sp.container = container.NewVBox(
		widget.NewLabelWithStyle("Helper shapes", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewGridWithColumns(2,
			widget.NewButton("Add Circle", add(session.ShapeCircle)),
			widget.NewButton("Add Square", add(session.ShapeSquare)),
		),
		container.NewGridWrap(fyne.NewSize(220, 120), sp.list),
		container.NewBorder(nil, nil, widget.NewLabel("Size"), sp.sizeText, sp.size),
		widget.NewButton("Clear", func() {
			sp.list.UnselectAll()
			state.ClearShapes()
		}),
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Circle fit", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		sp.pickPoints,
		sp.pointsLabel,
		widget.NewButton("Fit Circle", sp.OnFitCircle),
		sp.fitLabel,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("View", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		sp.frontView,
		widget.NewForm(
			widget.NewFormItem("Rings", sp.calibrant),
			widget.NewFormItem("Search (px)", sp.search.Container()),
		),
		widget.NewButton("Optimise Centre", sp.OnOptimiseCentre),
		widget.NewButton("Show Log...", func() {
			if sp.onShowLog != nil {
				sp.onShowLog()
			}
		}),
	)

	state.On(app.EventShapesChanged, func(interface{}) { sp.sync() })
	state.On(app.EventViewChanged, func(interface{}) { sp.sync() })
	state.On(app.EventSessionLoaded, func(interface{}) { sp.sync() })
	state.On(app.EventDetectorChanged, func(interface{}) { sp.sync() })
	sp.sync()
	return sp
}

// Container returns the panel container.
func (sp *ShapesPanel) Container() fyne.CanvasObject {
	return sp.container
}

// SetWindow sets the parent window for dialogs.
func (sp *ShapesPanel) SetWindow(w fyne.Window) {
	sp.window = w
}

// OnShowLog sets the action of the log button.
func (sp *ShapesPanel) OnShowLog(callback func()) {
	sp.onShowLog = callback
}

// PickingPoints reports whether canvas clicks record circle-fit points.
func (sp *ShapesPanel) PickingPoints() bool {
	return sp.pickPoints.Checked
}

// OnFitCircle fits a circle through the picked points.
func (sp *ShapesPanel) OnFitCircle() {
	c, err := sp.state.FitCircle()
	if err != nil {
		showError(sp.window, err)
		return
	}
	sp.pickPoints.SetChecked(false)
	sp.fitLabel.SetText(fmt.Sprintf("Centre %.1f, %.1f  radius %.1f", c.Centre.X, c.Centre.Y, c.Radius))
}

// OnOptimiseCentre runs the centre search in the background.
func (sp *ShapesPanel) OnOptimiseCentre() {
	var res fit.CentreResult
	runBusy(sp.window, "Optimising centre", func() error {
		var err error
		res, err = sp.state.FitCentre(context.Background(), sp.search.Value())
		return err
	}, func() {
		msg := fmt.Sprintf("Beam centre moved by %d, %d pixels (%d evaluations)",
			res.Offset.X, res.Offset.Y, res.Evaluations)
		if sp.window != nil {
			dialog.ShowInformation("Centre", msg, sp.window)
		}
	})
}

func (sp *ShapesPanel) sync() {
	sp.syncing = true
	defer func() { sp.syncing = false }()

	st := sp.state.Status()
	sp.shapes = st.Shapes
	if sp.selected >= len(sp.shapes) {
		sp.selected = -1
		sp.list.UnselectAll()
	}
	sp.list.Refresh()
	sp.pointsLabel.SetText(fmt.Sprintf("%d points picked", len(st.FitPoints)))
	sp.frontView.SetChecked(st.FrontView)
	if st.Calibrant == "" {
		sp.calibrant.SetSelected(noCalibrant)
	} else {
		sp.calibrant.SetSelected(st.Calibrant)
	}
	sp.syncSize()
}

func (sp *ShapesPanel) syncSize() {
	if sp.selected < 0 || sp.selected >= len(sp.shapes) {
		sp.sizeText.SetText("")
		return
	}
	wasSyncing := sp.syncing
	sp.syncing = true
	size := sp.shapes[sp.selected].Size
	if size > sp.size.Max {
		sp.size.Max = size
	}
	sp.size.SetValue(size)
	sp.sizeText.SetText(fmt.Sprintf("%.0f", size))
	sp.syncing = wasSyncing
}
