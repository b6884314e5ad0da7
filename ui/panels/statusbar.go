package panels

import (
	"fmt"
	"math"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"geo-assembler/internal/app"
	"geo-assembler/pkg/geometry"
)

// StatusBar shows the last message, the pixel under the pointer and the
// zoom level.
type StatusBar struct {
	state     *app.State
	message   *widget.Label
	pixel     *widget.Label
	zoom      *widget.Label
	container fyne.CanvasObject
}

// NewStatusBar creates the status bar.
func NewStatusBar(state *app.State) *StatusBar {
	sb := &StatusBar{
		state:   state,
		message: widget.NewLabel("Ready"),
		pixel:   widget.NewLabel(""),
		zoom:    widget.NewLabel("100%"),
	}
	sb.container = container.NewBorder(nil, nil, nil,
		container.NewHBox(sb.pixel, widget.NewSeparator(), sb.zoom),
		sb.message)
	return sb
}

// Container returns the status bar widget.
func (sb *StatusBar) Container() fyne.CanvasObject {
	return sb.container
}

// SetMessage shows text on the left of the bar.
func (sb *StatusBar) SetMessage(text string) {
	sb.message.SetText(text)
}

// SetZoom shows the zoom level.
func (sb *StatusBar) SetZoom(zoom float64) {
	sb.zoom.SetText(fmt.Sprintf("%.0f%%", zoom*100))
}

// SetPointer shows the geometry position and value under the pointer.
func (sb *StatusBar) SetPointer(p geometry.PointInt, inside bool) {
	sb.pixel.SetText(pointerText(sb.state, p, inside))
}

func pointerText(state *app.State, p geometry.PointInt, inside bool) string {
	if !inside {
		return ""
	}
	g, ok := state.DisplayToGeometry(p)
	if !ok {
		return ""
	}
	v, ok := state.PixelValue(p)
	if !ok || math.IsNaN(v) {
		return fmt.Sprintf("x=%d y=%d", g.X, g.Y)
	}
	return fmt.Sprintf("x=%d y=%d  %.1f", g.X, g.Y, v)
}
