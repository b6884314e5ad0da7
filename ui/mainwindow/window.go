// Package mainwindow provides the main application window.
package mainwindow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"geo-assembler/internal/app"
	"geo-assembler/internal/render"
	"geo-assembler/internal/session"
	"geo-assembler/internal/version"
	"geo-assembler/pkg/colorutil"
	"geo-assembler/pkg/geometry"
	"geo-assembler/ui/canvas"
	"geo-assembler/ui/dialogs"
	"geo-assembler/ui/panels"
	"geo-assembler/ui/prefs"
)

// selfWriteGrace is how long after saving the geometry a change of the file
// is taken to be our own write.
const selfWriteGrace = time.Second

// MainWindow is the primary application window.
type MainWindow struct {
	fyne.Window
	app       fyne.App
	state     *app.State
	prefs     *prefs.Prefs
	logs      *app.LogBuffer
	canvas    *canvas.ImageCanvas
	sidePanel *panels.SidePanel
	statusBar *panels.StatusBar

	// Menu items that need state tracking
	fitToWindowItem *fyne.MenuItem
	frontViewItem   *fyne.MenuItem
	recentItem      *fyne.MenuItem

	watchMu   sync.Mutex
	watcher   *app.FileWatcher
	lastSaved time.Time
}

// New creates a new main window.
func New(fyneApp fyne.App, state *app.State, p *prefs.Prefs, logs *app.LogBuffer) *MainWindow {
	win := fyneApp.NewWindow(version.AppName)

	mw := &MainWindow{
		Window: win,
		app:    fyneApp,
		state:  state,
		prefs:  p,
		logs:   logs,
	}

	mw.setupUI()
	mw.setupMenus()
	mw.setupShortcuts()
	mw.setupEventHandlers()

	w := float32(p.FloatWithFallback(prefs.KeyWindowW, 1280))
	h := float32(p.FloatWithFallback(prefs.KeyWindowH, 860))
	win.Resize(fyne.NewSize(w, h))
	win.SetCloseIntercept(mw.onClose)
	mw.updateTitle()

	return mw
}

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	mw.canvas = canvas.NewImageCanvas()
	mw.canvas.OnLeftClick(mw.onCanvasClick)
	mw.canvas.OnRightClick(func(geometry.PointInt) {
		_ = mw.state.SelectQuadrant(app.NoQuadrant)
	})

	mw.sidePanel = panels.NewSidePanel(mw.state, mw.prefs)
	mw.sidePanel.SetWindow(mw.Window)
	mw.sidePanel.Shapes.OnShowLog(mw.onShowLog)
	mw.sidePanel.Geometry.OnRecentChanged(mw.refreshRecent)

	mw.statusBar = panels.NewStatusBar(mw.state)
	mw.canvas.OnHover(mw.statusBar.SetPointer)
	mw.canvas.OnZoomChange(mw.statusBar.SetZoom)

	toolbar := mw.createToolbar()

	canvasArea := container.NewBorder(
		toolbar,               // top
		nil,                   // bottom
		nil,                   // left
		nil,                   // right
		mw.canvas.Container(), // center
	)

	split := container.NewHSplit(
		mw.sidePanel.Container(),
		canvasArea,
	)
	split.SetOffset(0.25)

	content := container.NewBorder(
		nil,                                           // top
		container.NewPadded(mw.statusBar.Container()), // bottom
		nil,                                           // left
		nil,                                           // right
		split,                                         // center
	)

	mw.SetContent(content)
}

// createToolbar creates the toolbar with zoom controls.
func (mw *MainWindow) createToolbar() fyne.CanvasObject {
	return container.NewHBox(
		widget.NewLabel("Zoom:"),
		widget.NewButton("-", mw.onZoomOut),
		widget.NewButton("+", mw.onZoomIn),
		widget.NewButton("Fit", mw.onToggleFitToWindow),
		widget.NewButton("1:1", mw.onActualSize),
	)
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	mw.recentItem = fyne.NewMenuItem("Recent Geometry", nil)
	mw.recentItem.ChildMenu = mw.recentMenu()

	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Run...", mw.onOpenRun),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Load Geometry...", mw.sidePanel.Geometry.OnLoad),
		mw.recentItem,
		fyne.NewMenuItem("Save Geometry...", mw.sidePanel.Geometry.OnSave),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Export Image...", mw.onExportImage),
		fyne.NewMenuItem("Export Data TIFF...", mw.onExportData),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Open Session...", mw.onOpenSession),
		fyne.NewMenuItem("Save Session", mw.onSaveSession),
		fyne.NewMenuItem("Save Session As...", mw.onSaveSessionAs),
	)

	mw.fitToWindowItem = fyne.NewMenuItem("Fit to Window", mw.onToggleFitToWindow)
	mw.frontViewItem = fyne.NewMenuItem("Front View", func() {
		mw.state.SetFrontView(!mw.state.Status().FrontView)
	})
	mw.frontViewItem.Checked = mw.state.Status().FrontView

	var colormapItems []*fyne.MenuItem
	for _, name := range colorutil.Colormaps() {
		name := name
		colormapItems = append(colormapItems, fyne.NewMenuItem(name, func() {
			mw.showError(mw.state.SetColormap(name))
		}))
	}
	colormapItem := fyne.NewMenuItem("Colormap", nil)
	colormapItem.ChildMenu = fyne.NewMenu("", colormapItems...)

	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", mw.onZoomIn),
		fyne.NewMenuItem("Zoom Out", mw.onZoomOut),
		mw.fitToWindowItem,
		fyne.NewMenuItem("Actual Size", mw.onActualSize),
		fyne.NewMenuItemSeparator(),
		colormapItem,
		fyne.NewMenuItem("Auto Levels", func() { mw.showError(mw.state.AutoLevels()) }),
		mw.frontViewItem,
	)

	toolsMenu := fyne.NewMenu("Tools",
		fyne.NewMenuItem("Add Circle", func() { mw.state.AddShape(session.ShapeCircle) }),
		fyne.NewMenuItem("Add Square", func() { mw.state.AddShape(session.ShapeSquare) }),
		fyne.NewMenuItem("Clear Shapes", mw.state.ClearShapes),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Fit Circle", mw.sidePanel.Shapes.OnFitCircle),
		fyne.NewMenuItem("Optimise Centre", mw.sidePanel.Shapes.OnOptimiseCentre),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quadrant Positions...", mw.sidePanel.Geometry.OnEditPositions),
		fyne.NewMenuItem("Log...", mw.onShowLog),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("Keyboard Shortcuts", mw.onShortcutsHelp),
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, viewMenu, toolsMenu, helpMenu))
}

// recentMenu lists the recently used geometry files, newest first.
func (mw *MainWindow) recentMenu() *fyne.Menu {
	var items []*fyne.MenuItem
	for _, path := range mw.prefs.Strings(prefs.KeyRecent) {
		path := path
		items = append(items, fyne.NewMenuItem(path, func() {
			mw.showError(mw.LoadGeometry(path))
		}))
	}
	if len(items) == 0 {
		none := fyne.NewMenuItem("(none)", nil)
		none.Disabled = true
		items = append(items, none)
	}
	return fyne.NewMenu("", items...)
}

func (mw *MainWindow) refreshRecent() {
	mw.recentItem.ChildMenu = mw.recentMenu()
	mw.MainMenu().Refresh()
}

// moveKeys maps keys to quadrant moves. Arrows and vi keys both work with
// Ctrl held.
var moveKeys = map[fyne.KeyName]geometry.Direction{
	fyne.KeyUp:    geometry.Up,
	fyne.KeyDown:  geometry.Down,
	fyne.KeyLeft:  geometry.Left,
	fyne.KeyRight: geometry.Right,
	fyne.KeyK:     geometry.Up,
	fyne.KeyJ:     geometry.Down,
	fyne.KeyH:     geometry.Left,
	fyne.KeyL:     geometry.Right,
}

// setupShortcuts registers the keyboard shortcuts.
func (mw *MainWindow) setupShortcuts() {
	c := mw.Canvas()
	for key, dir := range moveKeys {
		dir := dir
		c.AddShortcut(&desktop.CustomShortcut{KeyName: key, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) {
			mw.moveSelected(dir)
		})
	}
	c.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyS, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) {
		mw.onSaveSession()
	})
	c.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyO, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) {
		mw.onOpenRun()
	})
	c.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyF, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) {
		mw.state.SetFrontView(!mw.state.Status().FrontView)
	})
	c.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyEqual, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) {
		mw.onZoomIn()
	})
	c.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyMinus, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) {
		mw.onZoomOut()
	})
}

// setupEventHandlers registers for application events.
func (mw *MainWindow) setupEventHandlers() {
	redraw := func(interface{}) { mw.refreshView() }
	for _, ev := range []app.EventType{
		app.EventImageChanged, app.EventViewChanged, app.EventQuadrantSelected,
		app.EventShapesChanged, app.EventDetectorChanged, app.EventSessionLoaded,
	} {
		mw.state.On(ev, redraw)
	}

	mw.state.On(app.EventViewChanged, func(interface{}) {
		mw.frontViewItem.Checked = mw.state.Status().FrontView
		mw.MainMenu().Refresh()
	})

	mw.state.On(app.EventRunOpened, func(data interface{}) {
		if dir, ok := data.(string); ok {
			mw.updateStatus("Run opened: " + dir)
		}
	})

	mw.state.On(app.EventGeometryLoaded, func(data interface{}) {
		if path, ok := data.(string); ok {
			mw.watch(path)
			mw.updateStatus("Geometry loaded: " + path)
		}
		mw.updateTitle()
	})

	mw.state.On(app.EventGeometrySaved, func(data interface{}) {
		if path, ok := data.(string); ok {
			mw.watchMu.Lock()
			mw.lastSaved = time.Now()
			mw.watchMu.Unlock()
			mw.watch(path)
			mw.updateStatus("Geometry saved: " + path)
		}
		mw.updateTitle()
	})

	mw.state.On(app.EventGeometryChanged, func(data interface{}) {
		if q, ok := data.(int); ok {
			pos := mw.state.QuadPositions()[q-1]
			mw.updateStatus(fmt.Sprintf("Quadrant %d at %d, %d", q, pos.X, pos.Y))
		}
		mw.updateTitle()
	})

	mw.state.On(app.EventQuadrantSelected, func(data interface{}) {
		if q, ok := data.(int); ok && q > 0 {
			mw.updateStatus(fmt.Sprintf("Quadrant %d selected, Ctrl+arrows to move", q))
		}
	})

	mw.state.On(app.EventDetectorChanged, func(interface{}) {
		mw.watch("")
		mw.updateTitle()
	})

	mw.state.On(app.EventSessionLoaded, func(data interface{}) {
		mw.watch(mw.state.GeometryFile())
		if path, ok := data.(string); ok {
			mw.updateStatus("Session loaded: " + path)
		}
		mw.updateTitle()
	})

	mw.state.On(app.EventSessionSaved, func(data interface{}) {
		if path, ok := data.(string); ok {
			mw.updateStatus("Session saved: " + path)
		}
	})
}

// refreshView renders the state into the canvas.
func (mw *MainWindow) refreshView() {
	img, err := mw.state.View()
	if errors.Is(err, app.ErrNoFrame) {
		mw.canvas.SetImage(nil)
		return
	}
	if err != nil {
		log.Printf("UI: render failed: %v", err)
		return
	}
	mw.canvas.SetImage(img)
}

func (mw *MainWindow) updateTitle() {
	st := mw.state.Status()
	title := fmt.Sprintf("%s - %s", version.AppName, st.Detector.Name)
	if p := st.GeometryPath; p != "" {
		title += " - " + filepath.Base(p)
	}
	if st.Modified {
		title += " *"
	}
	mw.SetTitle(title)
}

// updateStatus updates the status bar text.
func (mw *MainWindow) updateStatus(text string) {
	mw.statusBar.SetMessage(text)
}

func (mw *MainWindow) showError(err error) {
	if err == nil {
		return
	}
	log.Printf("UI: %v", err)
	dialog.ShowError(err, mw.Window)
}

// OpenRun opens a run directory in the background.
func (mw *MainWindow) OpenRun(dir string) {
	mw.sidePanel.Run.OpenRun(dir)
}

// LoadGeometry loads a geometry file and remembers it.
func (mw *MainWindow) LoadGeometry(path string) error {
	return mw.sidePanel.Geometry.LoadGeometry(path)
}

// watch follows path for external changes. An empty path stops watching.
func (mw *MainWindow) watch(path string) {
	mw.watchMu.Lock()
	old := mw.watcher
	if old != nil {
		if abs, err := filepath.Abs(path); err == nil && abs == old.Path() {
			mw.watchMu.Unlock()
			return
		}
	}
	mw.watcher = nil
	mw.watchMu.Unlock()

	// Stopped without watchMu held; a running callback may need it.
	if old != nil {
		old.Stop()
	}
	if path == "" {
		return
	}
	w, err := app.NewFileWatcher(path, app.DefaultSettle)
	if err != nil {
		log.Printf("UI: not watching %s: %v", path, err)
		return
	}
	w.OnChange(mw.onGeometryFileChanged)
	w.Start()

	mw.watchMu.Lock()
	if mw.watcher != nil {
		// Another watch call won the race.
		mw.watchMu.Unlock()
		w.Stop()
		return
	}
	mw.watcher = w
	mw.watchMu.Unlock()
}

func (mw *MainWindow) onGeometryFileChanged(path string) {
	mw.watchMu.Lock()
	own := time.Since(mw.lastSaved) < selfWriteGrace
	mw.watchMu.Unlock()
	if own {
		return
	}
	log.Printf("UI: %s changed on disk, reloading", path)
	if err := mw.state.ReloadGeometry(); err != nil {
		mw.showError(err)
		return
	}
	mw.updateStatus("Geometry reloaded: " + path)
}

func (mw *MainWindow) onCanvasClick(p geometry.PointInt) {
	if mw.sidePanel.Shapes.PickingPoints() {
		mw.showError(mw.state.AddFitPoint(p))
		return
	}
	mw.state.SelectAt(p)
}

func (mw *MainWindow) moveSelected(dir geometry.Direction) {
	err := mw.state.MoveSelected(dir)
	if errors.Is(err, app.ErrNoSelection) {
		mw.updateStatus("Click a quadrant first")
		return
	}
	mw.showError(err)
}

func (mw *MainWindow) lastDir(key string) fyne.ListableURI {
	path := mw.prefs.String(key)
	if path == "" {
		return nil
	}
	listable, err := storage.ListerForURI(storage.NewFileURI(path))
	if err != nil {
		return nil
	}
	return listable
}

// Menu action handlers

func (mw *MainWindow) onOpenRun() {
	fd := dialog.NewFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil || uri == nil {
			return
		}
		mw.OpenRun(uri.Path())
	}, mw.Window)
	if loc := mw.lastDir(prefs.KeyRunDir); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onExportImage() {
	img, err := mw.state.View()
	if err != nil {
		mw.showError(err)
		return
	}
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := withDefaultExt(writer.URI().Path(), ".png", ".png", ".tif", ".tiff")
		mw.prefs.SetString(prefs.KeyExportDir, filepath.Dir(path))
		if err := render.Export(path, img); err != nil {
			mw.showError(err)
			return
		}
		log.Printf("UI: exported view to %s", path)
		mw.updateStatus("Exported " + path)
	}, mw.Window)
	fd.SetFileName("assembled.png")
	if loc := mw.lastDir(prefs.KeyExportDir); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onExportData() {
	st := mw.state.Status()
	img := st.Image
	if img == nil {
		mw.showError(app.ErrNoFrame)
		return
	}
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := withDefaultExt(writer.URI().Path(), ".tif", ".tif", ".tiff")
		mw.prefs.SetString(prefs.KeyExportDir, filepath.Dir(path))
		if err := render.SaveGrey16TIFF(path, img.Data, st.Levels, st.FrontView); err != nil {
			mw.showError(err)
			return
		}
		mw.updateStatus("Exported " + path)
	}, mw.Window)
	fd.SetFileName("assembled.tif")
	if loc := mw.lastDir(prefs.KeyExportDir); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

// withDefaultExt appends def unless path already has one of allowed.
func withDefaultExt(path, def string, allowed ...string) string {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range allowed {
		if ext == a {
			return path
		}
	}
	return path + def
}

func (mw *MainWindow) onOpenSession() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		path := reader.URI().Path()
		mw.prefs.SetString(prefs.KeySessionDir, filepath.Dir(path))
		mw.LoadSession(path)
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{session.Extension}))
	if loc := mw.lastDir(prefs.KeySessionDir); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

// LoadSession restores a session in the background.
func (mw *MainWindow) LoadSession(path string) {
	bar := widget.NewProgressBarInfinite()
	dlg := dialog.NewCustomWithoutButtons("Loading session", bar, mw.Window)
	dlg.Show()
	go func() {
		err := mw.state.LoadSession(context.Background(), path)
		dlg.Hide()
		mw.showError(err)
	}()
}

func (mw *MainWindow) onSaveSession() {
	path := mw.state.Status().SessionPath
	if path == "" {
		mw.onSaveSessionAs()
		return
	}
	mw.showError(mw.state.SaveSession(path))
}

func (mw *MainWindow) onSaveSessionAs() {
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := withDefaultExt(writer.URI().Path(), session.Extension, session.Extension)
		mw.prefs.SetString(prefs.KeySessionDir, filepath.Dir(path))
		mw.showError(mw.state.SaveSession(path))
	}, mw.Window)
	fd.SetFileName("calibration" + session.Extension)
	if loc := mw.lastDir(prefs.KeySessionDir); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onShowLog() {
	if mw.logs == nil {
		return
	}
	dialogs.ShowLog(mw.Window, mw.logs)
}

func (mw *MainWindow) onZoomIn() {
	mw.disableFitToWindow()
	mw.canvas.ZoomIn()
}

func (mw *MainWindow) onZoomOut() {
	mw.disableFitToWindow()
	mw.canvas.ZoomOut()
}

func (mw *MainWindow) onToggleFitToWindow() {
	enabled := !mw.canvas.GetFitToWindow()
	mw.canvas.SetFitToWindow(enabled)
	mw.fitToWindowItem.Checked = enabled
	mw.MainMenu().Refresh()
}

func (mw *MainWindow) onActualSize() {
	mw.disableFitToWindow()
	mw.canvas.SetZoom(1.0)
}

func (mw *MainWindow) disableFitToWindow() {
	if mw.canvas.GetFitToWindow() {
		mw.canvas.SetFitToWindow(false)
		mw.fitToWindowItem.Checked = false
		mw.MainMenu().Refresh()
	}
}

func (mw *MainWindow) onShortcutsHelp() {
	dialog.ShowInformation("Keyboard Shortcuts",
		"Click           select quadrant\n"+
			"Right click     clear selection\n"+
			"Ctrl+arrows     move selected quadrant\n"+
			"Ctrl+H/J/K/L    move left/down/up/right\n"+
			"Ctrl+F          toggle front view\n"+
			"Ctrl+O          open run\n"+
			"Ctrl+S          save session\n"+
			"Ctrl+=/-        zoom",
		mw.Window)
}

func (mw *MainWindow) onAbout() {
	dialog.ShowInformation("About "+version.AppName,
		fmt.Sprintf("%s v%s\n\n"+
			"Detector geometry assembler for AGIPD and LPD.\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			version.AppName, version.Version, version.BuildTime, version.GitCommit),
		mw.Window)
}

// onClose saves preferences and asks before discarding geometry changes.
func (mw *MainWindow) onClose() {
	quit := func() {
		mw.SavePreferences()
		mw.watch("")
		mw.Window.Close()
	}
	if !mw.state.Status().Modified {
		quit()
		return
	}
	dialog.ShowConfirm("Unsaved geometry",
		"The geometry has unsaved changes. Quit anyway?",
		func(ok bool) {
			if ok {
				quit()
			}
		}, mw.Window)
}

// SavePreferences stores the window size and view settings and writes the
// preferences file.
func (mw *MainWindow) SavePreferences() {
	size := mw.Canvas().Size()
	if size.Width > 0 && size.Height > 0 {
		mw.prefs.SetFloat(prefs.KeyWindowW, float64(size.Width))
		mw.prefs.SetFloat(prefs.KeyWindowH, float64(size.Height))
	}
	st := mw.state.Status()
	mw.prefs.SetString(prefs.KeyCalibrant, st.Calibrant)
	mw.prefs.SetBool(prefs.KeyFrontView, st.FrontView)
	if err := mw.prefs.Save(); err != nil {
		log.Printf("UI: failed to save preferences: %v", err)
	}
}
