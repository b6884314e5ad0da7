package dialogs

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"geo-assembler/internal/app"
)

// ShowLog displays the buffered log lines. The view follows new lines while
// the dialog is open.
func ShowLog(window fyne.Window, buf *app.LogBuffer) {
	grid := widget.NewTextGrid()
	grid.SetText(buf.String())
	scroll := container.NewScroll(grid)

	follow := func(string) {
		grid.SetText(buf.String())
		scroll.ScrollToBottom()
	}
	buf.OnLine(follow)

	copyButton := widget.NewButton("Copy", func() {
		window.Clipboard().SetContent(buf.String())
	})

	dlg := dialog.NewCustom("Log", "Close", container.NewBorder(nil, copyButton, nil, nil, scroll), window)
	dlg.SetOnClosed(func() { buf.OnLine(nil) })
	dlg.Resize(fyne.NewSize(760, 480))
	dlg.Show()
	scroll.ScrollToBottom()
}
