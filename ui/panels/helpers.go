package panels

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
)

// IntSpinner is an integer entry with decrement and increment buttons.
type IntSpinner struct {
	entry    *widget.Entry
	box      fyne.CanvasObject
	value    int
	lo, hi   int
	onChange func(int)
}

// NewIntSpinner creates a spinner limited to [lo, hi].
func NewIntSpinner(lo, hi int, onChange func(int)) *IntSpinner {
	s := &IntSpinner{lo: lo, hi: hi, value: lo, onChange: onChange}
	s.entry = widget.NewEntry()
	s.entry.SetText(strconv.Itoa(lo))
	s.entry.OnSubmitted = func(text string) {
		v, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			s.entry.SetText(strconv.Itoa(s.value))
			return
		}
		s.set(v, true)
	}
	dec := widget.NewButton("-", func() { s.set(s.value-1, true) })
	inc := widget.NewButton("+", func() { s.set(s.value+1, true) })
	s.box = container.NewBorder(nil, nil, dec, inc, s.entry)
	return s
}

// Container returns the spinner widget.
func (s *IntSpinner) Container() fyne.CanvasObject {
	return s.box
}

// Value returns the current value.
func (s *IntSpinner) Value() int {
	return s.value
}

// SetValue sets the value without calling the change callback.
func (s *IntSpinner) SetValue(v int) {
	s.set(v, false)
}

// SetRange changes the limits and clamps the value.
func (s *IntSpinner) SetRange(lo, hi int) {
	s.lo, s.hi = lo, hi
	s.set(s.value, false)
}

func (s *IntSpinner) set(v int, notify bool) {
	v = max(s.lo, min(v, s.hi))
	changed := v != s.value
	s.value = v
	s.entry.SetText(strconv.Itoa(v))
	if notify && changed && s.onChange != nil {
		s.onChange(v)
	}
}

// parseFloat reads a float from an entry.
func parseFloat(e *widget.Entry) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(e.Text), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", e.Text)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// runBusy runs fn in the background behind a progress dialog and reports
// its error. done, if set, runs after fn succeeds.
func runBusy(win fyne.Window, title string, fn func() error, done func()) {
	if win == nil {
		if err := fn(); err != nil {
			log.Printf("%s: %v", title, err)
		} else if done != nil {
			done()
		}
		return
	}
	bar := widget.NewProgressBarInfinite()
	dlg := dialog.NewCustomWithoutButtons(title, bar, win)
	dlg.Show()
	go func() {
		err := fn()
		dlg.Hide()
		if err != nil {
			log.Printf("%s: %v", title, err)
			dialog.ShowError(err, win)
			return
		}
		if done != nil {
			done()
		}
	}()
}

// showError logs err and shows it in a dialog when a window is set.
func showError(win fyne.Window, err error) {
	if err == nil {
		return
	}
	log.Printf("UI: %v", err)
	if win != nil {
		dialog.ShowError(err, win)
	}
}
