// Package dialogs provides application dialogs.
package dialogs

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"geo-assembler/internal/detector"
	"geo-assembler/pkg/geometry"
)

// QuadPositionsDialog is a table of the quadrant corner positions.
type QuadPositionsDialog struct {
	positions [detector.QuadrantCount]geometry.PointInt
	window    fyne.Window

	xEntries [detector.QuadrantCount]*widget.Entry
	yEntries [detector.QuadrantCount]*widget.Entry

	onApply func([detector.QuadrantCount]geometry.PointInt)
}

// ShowQuadPositions opens the table for pos and calls onApply with the
// edited positions.
func ShowQuadPositions(window fyne.Window, pos [detector.QuadrantCount]geometry.PointInt, onApply func([detector.QuadrantCount]geometry.PointInt)) {
	d := &QuadPositionsDialog{positions: pos, window: window, onApply: onApply}
	d.Show()
}

// Show displays the dialog.
func (d *QuadPositionsDialog) Show() {
	content := d.createContent()

	dlg := dialog.NewCustomConfirm(
		"Quadrant Positions",
		"Apply",
		"Cancel",
		content,
		func(apply bool) {
			if !apply {
				return
			}
			pos, err := d.read()
			if err != nil {
				dialog.ShowError(err, d.window)
				return
			}
			if d.onApply != nil {
				d.onApply(pos)
			}
		},
		d.window,
	)
	dlg.Resize(fyne.NewSize(360, 320))
	dlg.Show()
}

func (d *QuadPositionsDialog) createContent() fyne.CanvasObject {
	grid := container.NewGridWithColumns(3,
		widget.NewLabelWithStyle("Quadrant", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewLabelWithStyle("X", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewLabelWithStyle("Y", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
	)
	for i, p := range d.positions {
		d.xEntries[i] = widget.NewEntry()
		d.xEntries[i].SetText(strconv.Itoa(p.X))
		d.yEntries[i] = widget.NewEntry()
		d.yEntries[i].SetText(strconv.Itoa(p.Y))
		grid.Add(widget.NewLabel(fmt.Sprintf("Q%d", i+1)))
		grid.Add(d.xEntries[i])
		grid.Add(d.yEntries[i])
	}

	copyButton := widget.NewButton("Copy", func() {
		pos, err := d.read()
		if err != nil {
			dialog.ShowError(err, d.window)
			return
		}
		var buf bytes.Buffer
		if err := detector.WriteQuadPositions(&buf, pos); err != nil {
			dialog.ShowError(err, d.window)
			return
		}
		d.window.Clipboard().SetContent(buf.String())
	})
	pasteButton := widget.NewButton("Paste", func() {
		pos, err := detector.ReadQuadPositions(strings.NewReader(d.window.Clipboard().Content()))
		if err != nil {
			dialog.ShowError(err, d.window)
			return
		}
		d.set(pos)
	})

	return container.NewVBox(grid, container.NewGridWithColumns(2, copyButton, pasteButton))
}

func (d *QuadPositionsDialog) set(pos [detector.QuadrantCount]geometry.PointInt) {
	for i, p := range pos {
		d.xEntries[i].SetText(strconv.Itoa(p.X))
		d.yEntries[i].SetText(strconv.Itoa(p.Y))
	}
}

func (d *QuadPositionsDialog) read() ([detector.QuadrantCount]geometry.PointInt, error) {
	var cells [detector.QuadrantCount][2]string
	for i := range cells {
		cells[i] = [2]string{d.xEntries[i].Text, d.yEntries[i].Text}
	}
	return parsePositions(cells)
}

// parsePositions converts the table cells to positions.
func parsePositions(cells [detector.QuadrantCount][2]string) ([detector.QuadrantCount]geometry.PointInt, error) {
	var pos [detector.QuadrantCount]geometry.PointInt
	for i, c := range cells {
		x, err := strconv.Atoi(strings.TrimSpace(c[0]))
		if err != nil {
			return pos, fmt.Errorf("quadrant %d: invalid x %q", i+1, c[0])
		}
		y, err := strconv.Atoi(strings.TrimSpace(c[1]))
		if err != nil {
			return pos, fmt.Errorf("quadrant %d: invalid y %q", i+1, c[1])
		}
		pos[i] = geometry.Pt(x, y)
	}
	return pos, nil
}
