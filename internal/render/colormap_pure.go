//go:build purego || js

package render

import "image"

func colorize(name string, idx []uint8, rows, cols int, img *image.RGBA) error {
	return lutColorize(name, idx, img)
}
