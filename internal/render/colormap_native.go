//go:build !purego && !js

package render

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// OpenCV's own tables are used where it has them.
var nativeColormaps = map[string]gocv.ColormapTypes{
	"hot":    gocv.ColormapHot,
	"winter": gocv.ColormapWinter,
	"summer": gocv.ColormapSummer,
	"ocean":  gocv.ColormapOcean,
}

func colorize(name string, idx []uint8, rows, cols int, img *image.RGBA) error {
	cm, ok := nativeColormaps[name]
	if !ok {
		return lutColorize(name, idx, img)
	}

	src, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC1, idx)
	if err != nil {
		return fmt.Errorf("failed to wrap image: %w", err)
	}
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	gocv.ApplyColorMap(src, &dst, cm)
	bgr := dst.ToBytes()
	if len(bgr) != rows*cols*3 {
		return fmt.Errorf("colormap %s: unexpected output size %d", name, len(bgr))
	}
	for k := 0; k < rows*cols; k++ {
		o := k * 4
		img.Pix[o] = bgr[k*3+2]
		img.Pix[o+1] = bgr[k*3+1]
		img.Pix[o+2] = bgr[k*3]
		img.Pix[o+3] = 255
	}
	return nil
}
