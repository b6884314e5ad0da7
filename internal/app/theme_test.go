package app

import (
	"testing"

	"fyne.io/fyne/v2/theme"
	"github.com/stretchr/testify/assert"

	"geo-assembler/pkg/colorutil"
)

func TestThemeMatchesQuadrantFrame(t *testing.T) {
	th := Theme{}
	assert.Equal(t, colorutil.QuadrantFrame, th.Color(theme.ColorNamePrimary, theme.VariantDark))
	assert.Equal(t, colorutil.WithAlpha(colorutil.QuadrantFrame, 0x60),
		th.Color(theme.ColorNameSelection, theme.VariantLight))

	assert.Equal(t, theme.DefaultTheme().Color(theme.ColorNameBackground, theme.VariantDark),
		th.Color(theme.ColorNameBackground, theme.VariantDark))
	assert.Less(t, th.Size(theme.SizeNamePadding), theme.DefaultTheme().Size(theme.SizeNamePadding))
}
