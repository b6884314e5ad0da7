package colorutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreyLUTEndpoints(t *testing.T) {
	lut, err := NewLUT("gray")
	require.NoError(t, err)
	assert.Equal(t, Black, lut[0])
	assert.Equal(t, White, lut[255])
	assert.Equal(t, uint8(128), lut[128].R)
}

func TestEveryColormapBuilds(t *testing.T) {
	for _, name := range Colormaps() {
		lut, err := NewLUT(name)
		require.NoError(t, err, name)
		assert.Equal(t, uint8(255), lut[0].A, name)
		assert.Equal(t, uint8(255), lut[255].A, name)
	}
}

func TestHotRisesMonotonically(t *testing.T) {
	lut, err := NewLUT("hot")
	require.NoError(t, err)
	for i := 1; i < 256; i++ {
		prev := int(lut[i-1].R) + int(lut[i-1].G) + int(lut[i-1].B)
		cur := int(lut[i].R) + int(lut[i].G) + int(lut[i].B)
		assert.GreaterOrEqual(t, cur, prev, "index %d", i)
	}
}

func TestUnknownColormap(t *testing.T) {
	_, err := NewLUT("rainbow-unicorn")
	assert.Error(t, err)
	name, err := CanonicalName(" Binary_R ")
	require.NoError(t, err)
	assert.Equal(t, "grey", name)
}

func TestWithAlpha(t *testing.T) {
	c := WithAlpha(Cyan, 0x40)
	assert.Equal(t, uint8(0), c.R)
	assert.Equal(t, uint8(255), c.B)
	assert.Equal(t, uint8(0x40), c.A)
}
