package app

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"

	"geo-assembler/pkg/colorutil"
)

// Theme is the application's fyne theme. Selected widgets take the colour
// of the quadrant frame drawn on the image, so the panel and the canvas agree
// on what is being moved.
type Theme struct{}

var _ fyne.Theme = Theme{}

func (Theme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNamePrimary, theme.ColorNameFocus:
		return colorutil.QuadrantFrame
	case theme.ColorNameSelection:
		return colorutil.WithAlpha(colorutil.QuadrantFrame, 0x60)
	case theme.ColorNameHyperlink:
		return colorutil.RingColor
	default:
		return theme.DefaultTheme().Color(name, variant)
	}
}

func (Theme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (Theme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

// Size narrows the padding so the side panels leave more room for the image.
func (Theme) Size(name fyne.ThemeSizeName) float32 {
	switch name {
	case theme.SizeNamePadding:
		return 3
	case theme.SizeNameInnerPadding:
		return 6
	default:
		return theme.DefaultTheme().Size(name)
	}
}
