// Package panels provides UI panels for the application.
package panels

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"

	"geo-assembler/internal/app"
	"geo-assembler/ui/prefs"
)

// SidePanel provides the main side panel with tabbed sections.
type SidePanel struct {
	state     *app.State
	container *container.AppTabs

	Run      *RunPanel
	Geometry *GeometryPanel
	Shapes   *ShapesPanel
}

// NewSidePanel creates a new side panel.
func NewSidePanel(state *app.State, p *prefs.Prefs) *SidePanel {
	sp := &SidePanel{
		state:    state,
		Run:      NewRunPanel(state, p),
		Geometry: NewGeometryPanel(state, p),
		Shapes:   NewShapesPanel(state),
	}

	sp.container = container.NewAppTabs(
		container.NewTabItem("Run", container.NewVScroll(sp.Run.Container())),
		container.NewTabItem("Geometry", container.NewVScroll(sp.Geometry.Container())),
		container.NewTabItem("Tools", container.NewVScroll(sp.Shapes.Container())),
	)
	return sp
}

// Container returns the panel container.
func (sp *SidePanel) Container() fyne.CanvasObject {
	return sp.container
}

// SetWindow sets the parent window for dialogs.
func (sp *SidePanel) SetWindow(w fyne.Window) {
	sp.Run.SetWindow(w)
	sp.Geometry.SetWindow(w)
	sp.Shapes.SetWindow(w)
}
