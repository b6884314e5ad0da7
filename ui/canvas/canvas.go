// Package canvas provides an image canvas with pan and zoom.
package canvas

import (
	"image"
	"math"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"geo-assembler/internal/render"
	"geo-assembler/pkg/geometry"
)

const (
	minZoom  = 0.1
	maxZoom  = 10.0
	zoomStep = 1.25
)

// emptySize is the canvas size before an image is set.
var emptySize = fyne.NewSize(400, 300)

// ImageCanvas displays the rendered detector view with pan and zoom.
type ImageCanvas struct {
	widget.BaseWidget

	img *image.RGBA

	// Display state
	raster *fynecanvas.Raster
	zoom   float64

	// Container
	scroll  *zoomScroll
	content *draggableContent
	imgSize fyne.Size

	// Fit to window
	fitToWindow    bool
	lastScrollSize fyne.Size

	// Callbacks, all in image pixel coordinates
	onZoomChange func(zoom float64)
	onLeftClick  func(p geometry.PointInt)
	onRightClick func(p geometry.PointInt)
	onHover      func(p geometry.PointInt, inside bool)
}

// zoomScroll is a widget that wraps a scroll container but intercepts wheel for zoom.
type zoomScroll struct {
	widget.BaseWidget
	scroll *container.Scroll
	canvas *ImageCanvas
}

func newZoomScroll(content fyne.CanvasObject, canvas *ImageCanvas) *zoomScroll {
	scroll := container.NewScroll(content)
	scroll.Direction = container.ScrollBoth
	zs := &zoomScroll{scroll: scroll, canvas: canvas}
	zs.ExtendBaseWidget(zs)
	return zs
}

func (zs *zoomScroll) Scrolled(ev *fyne.ScrollEvent) {
	if ev.Scrolled.DY > 0 {
		zs.canvas.ZoomIn()
	} else if ev.Scrolled.DY < 0 {
		zs.canvas.ZoomOut()
	}
}

func (zs *zoomScroll) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(zs.scroll)
}

// Offset returns the scroll container's current offset.
func (zs *zoomScroll) Offset() fyne.Position {
	return zs.scroll.Offset
}

// Size returns the scroll container's size.
func (zs *zoomScroll) Size() fyne.Size {
	return zs.scroll.Size()
}

// Refresh refreshes the scroll container.
func (zs *zoomScroll) Refresh() {
	zs.scroll.Refresh()
	zs.BaseWidget.Refresh()
}

// Resize sets the size of the scroll container.
func (zs *zoomScroll) Resize(size fyne.Size) {
	zs.scroll.Resize(size)
	zs.BaseWidget.Resize(size)
	zs.canvas.CheckResize(size)
}

// pan shifts the scroll offset, clamped to the content.
func (zs *zoomScroll) pan(dx, dy float32) {
	content := zs.scroll.Content.Size()
	view := zs.scroll.Size()
	off := zs.scroll.Offset
	off.X = clamp32(off.X-dx, 0, content.Width-view.Width)
	off.Y = clamp32(off.Y-dy, 0, content.Height-view.Height)
	zs.scroll.Offset = off
	zs.scroll.Refresh()
}

func clamp32(v, lo, hi float32) float32 {
	if hi < lo {
		hi = lo
	}
	return float32(math.Max(float64(lo), math.Min(float64(v), float64(hi))))
}

// draggableContent wraps the raster to handle mouse events.
type draggableContent struct {
	widget.BaseWidget
	canvas *ImageCanvas
	raster *fynecanvas.Raster
}

var (
	_ fyne.Draggable         = (*draggableContent)(nil)
	_ fyne.Tappable          = (*draggableContent)(nil)
	_ fyne.SecondaryTappable = (*draggableContent)(nil)
	_ desktop.Hoverable      = (*draggableContent)(nil)
)

func newDraggableContent(ic *ImageCanvas, raster *fynecanvas.Raster) *draggableContent {
	dc := &draggableContent{
		canvas: ic,
		raster: raster,
	}
	dc.ExtendBaseWidget(dc)
	return dc
}

func (dc *draggableContent) CreateRenderer() fyne.WidgetRenderer {
	return &draggableContentRenderer{content: dc}
}

func (dc *draggableContent) MinSize() fyne.Size {
	return dc.raster.MinSize()
}

// Dragged pans the view.
func (dc *draggableContent) Dragged(ev *fyne.DragEvent) {
	dc.canvas.scroll.pan(ev.Dragged.DX, ev.Dragged.DY)
}

func (dc *draggableContent) DragEnd() {}

func (dc *draggableContent) Scrolled(ev *fyne.ScrollEvent) {
	if ev.Scrolled.DY > 0 {
		dc.canvas.ZoomIn()
	} else if ev.Scrolled.DY < 0 {
		dc.canvas.ZoomOut()
	}
}

// inside rejects events outside the widget. Fyne occasionally delivers them
// after a resize.
func (dc *draggableContent) inside(pos fyne.Position) bool {
	size := dc.Size()
	return pos.X >= 0 && pos.Y >= 0 && pos.X <= size.Width && pos.Y <= size.Height
}

// Tapped handles left-click events.
func (dc *draggableContent) Tapped(ev *fyne.PointEvent) {
	if dc.canvas.onLeftClick == nil || !dc.inside(ev.Position) {
		return
	}
	if p, ok := dc.canvas.imagePoint(ev.Position); ok {
		dc.canvas.onLeftClick(p)
	}
}

// TappedSecondary handles right-click events.
func (dc *draggableContent) TappedSecondary(ev *fyne.PointEvent) {
	if dc.canvas.onRightClick == nil || !dc.inside(ev.Position) {
		return
	}
	if p, ok := dc.canvas.imagePoint(ev.Position); ok {
		dc.canvas.onRightClick(p)
	}
}

func (dc *draggableContent) MouseIn(ev *desktop.MouseEvent) {}

func (dc *draggableContent) MouseMoved(ev *desktop.MouseEvent) {
	if dc.canvas.onHover == nil {
		return
	}
	p, ok := dc.canvas.imagePoint(ev.Position)
	dc.canvas.onHover(p, ok)
}

func (dc *draggableContent) MouseOut() {
	if dc.canvas.onHover != nil {
		dc.canvas.onHover(geometry.PointInt{}, false)
	}
}

type draggableContentRenderer struct {
	content *draggableContent
}

func (r *draggableContentRenderer) Layout(size fyne.Size) {
	r.content.raster.Resize(size)
}

func (r *draggableContentRenderer) MinSize() fyne.Size {
	return r.content.raster.MinSize()
}

func (r *draggableContentRenderer) Refresh() {
	r.content.raster.Refresh()
}

func (r *draggableContentRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.content.raster}
}

func (r *draggableContentRenderer) Destroy() {}

// NewImageCanvas creates a new image canvas.
func NewImageCanvas() *ImageCanvas {
	ic := &ImageCanvas{
		zoom:    1.0,
		imgSize: emptySize,
	}

	ic.raster = fynecanvas.NewRaster(ic.draw)
	ic.raster.ScaleMode = fynecanvas.ImageScalePixels
	ic.raster.SetMinSize(ic.imgSize)

	ic.content = newDraggableContent(ic, ic.raster)

	// Wheel zooms, drag pans
	ic.scroll = newZoomScroll(ic.content, ic)

	ic.ExtendBaseWidget(ic)
	return ic
}

func (ic *ImageCanvas) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(ic.scroll)
}

// Container returns the canvas container for embedding in layouts.
func (ic *ImageCanvas) Container() fyne.CanvasObject {
	return ic.scroll
}

// SetImage sets the image to display. The zoom is kept.
func (ic *ImageCanvas) SetImage(img *image.RGBA) {
	resized := ic.img == nil || img == nil || ic.img.Bounds() != img.Bounds()
	ic.img = img
	if resized {
		ic.updateContentSize()
		if ic.fitToWindow {
			ic.FitToWindow()
		}
		return
	}
	ic.raster.Refresh()
}

// Image returns the displayed image.
func (ic *ImageCanvas) Image() *image.RGBA {
	return ic.img
}

// SetZoom sets the zoom level.
func (ic *ImageCanvas) SetZoom(zoom float64) {
	if zoom < minZoom {
		zoom = minZoom
	}
	if zoom > maxZoom {
		zoom = maxZoom
	}
	ic.zoom = zoom
	ic.updateContentSize()

	if ic.onZoomChange != nil {
		ic.onZoomChange(zoom)
	}
}

// GetZoom returns the current zoom level.
func (ic *ImageCanvas) GetZoom() float64 {
	return ic.zoom
}

// ZoomIn increases the zoom level.
func (ic *ImageCanvas) ZoomIn() {
	ic.SetZoom(ic.zoom * zoomStep)
}

// ZoomOut decreases the zoom level.
func (ic *ImageCanvas) ZoomOut() {
	ic.SetZoom(ic.zoom / zoomStep)
}

// FitToWindow adjusts zoom to fit the image in the visible area.
func (ic *ImageCanvas) FitToWindow() {
	if ic.img == nil {
		return
	}
	viewSize := ic.scroll.Size()
	if zoom, ok := fitZoom(ic.img.Bounds(), viewSize.Width, viewSize.Height); ok {
		ic.SetZoom(zoom)
	}
}

// fitZoom returns the zoom showing all of bounds in a w x h viewport with a
// small margin.
func fitZoom(bounds image.Rectangle, w, h float32) (float64, bool) {
	if bounds.Dx() == 0 || bounds.Dy() == 0 || w <= 0 || h <= 0 {
		return 0, false
	}
	zoom := math.Min(float64(w)/float64(bounds.Dx()), float64(h)/float64(bounds.Dy()))
	return zoom * 0.95, true
}

// SetFitToWindow enables or disables auto-fit on resize.
func (ic *ImageCanvas) SetFitToWindow(fit bool) {
	ic.fitToWindow = fit
	if fit {
		ic.FitToWindow()
	}
}

// GetFitToWindow returns the current fit-to-window state.
func (ic *ImageCanvas) GetFitToWindow() bool {
	return ic.fitToWindow
}

// CheckResize checks if scroll container was resized and auto-fits if enabled.
func (ic *ImageCanvas) CheckResize(size fyne.Size) {
	if !ic.fitToWindow {
		return
	}
	if size.Width > 0 && size.Height > 0 && size != ic.lastScrollSize {
		ic.lastScrollSize = size
		ic.FitToWindow()
	}
}

// OnZoomChange sets a callback for zoom changes.
func (ic *ImageCanvas) OnZoomChange(callback func(zoom float64)) {
	ic.onZoomChange = callback
}

// OnLeftClick sets a callback for left-click events.
func (ic *ImageCanvas) OnLeftClick(callback func(p geometry.PointInt)) {
	ic.onLeftClick = callback
}

// OnRightClick sets a callback for right-click events.
func (ic *ImageCanvas) OnRightClick(callback func(p geometry.PointInt)) {
	ic.onRightClick = callback
}

// OnHover sets a callback for mouse movement. inside is false when the
// pointer is off the image.
func (ic *ImageCanvas) OnHover(callback func(p geometry.PointInt, inside bool)) {
	ic.onHover = callback
}

// Refresh refreshes the canvas display.
func (ic *ImageCanvas) Refresh() {
	ic.raster.Refresh()
}

// imagePoint converts a position on the content widget to an image pixel.
// Content positions already include the scroll offset.
func (ic *ImageCanvas) imagePoint(pos fyne.Position) (geometry.PointInt, bool) {
	p := geometry.Pt(
		int(math.Floor(float64(pos.X)/ic.zoom)),
		int(math.Floor(float64(pos.Y)/ic.zoom)),
	)
	if ic.img == nil {
		return p, false
	}
	b := ic.img.Bounds()
	return p, p.X >= 0 && p.Y >= 0 && p.X < b.Dx() && p.Y < b.Dy()
}

// updateContentSize updates the content size based on image and zoom.
func (ic *ImageCanvas) updateContentSize() {
	if ic.img == nil {
		ic.imgSize = emptySize
	} else {
		b := ic.img.Bounds()
		ic.imgSize = fyne.NewSize(float32(float64(b.Dx())*ic.zoom), float32(float64(b.Dy())*ic.zoom))
	}

	ic.raster.SetMinSize(ic.imgSize)
	ic.raster.Resize(ic.imgSize)
	if ic.content != nil {
		ic.content.Resize(ic.imgSize)
		ic.content.Refresh()
	}
	ic.raster.Refresh()
	if ic.scroll != nil {
		ic.scroll.Refresh()
	}
}

// draw is the raster drawing function. w and h are in device pixels, which
// differ from canvas units on scaled displays.
func (ic *ImageCanvas) draw(w, h int) image.Image {
	if ic.img == nil || ic.img.Bounds().Dx() == 0 {
		return scaleNearest(nil, w, h, 1)
	}
	return scaleNearest(ic.img, w, h, float64(w)/float64(ic.img.Bounds().Dx()))
}

// scaleNearest renders src at zoom into a w x h image with nearest-neighbour
// sampling. Pixels beyond src are background.
func scaleNearest(src *image.RGBA, w, h int, zoom float64) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	bg := render.Background
	for i := 0; i+3 < len(out.Pix); i += 4 {
		out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = bg.R, bg.G, bg.B, 255
	}
	if src == nil || zoom <= 0 {
		return out
	}
	b := src.Bounds()

	// Column lookup shared by every row
	xs := make([]int, w)
	for x := range xs {
		xs[x] = int(float64(x) / zoom)
	}
	for y := 0; y < h; y++ {
		sy := int(float64(y) / zoom)
		if sy >= b.Dy() {
			break
		}
		srow := src.Pix[sy*src.Stride:]
		drow := out.Pix[y*out.Stride:]
		for x, sx := range xs {
			if sx >= b.Dx() {
				break
			}
			copy(drow[x*4:x*4+4], srow[sx*4:sx*4+4])
		}
	}
	return out
}
