package render

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownFormat is returned for file extensions without an encoder.
var ErrUnknownFormat = errors.New("unknown image format")

func save(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// SavePNG writes img as PNG.
func SavePNG(path string, img image.Image) error {
	return save(path, func(w io.Writer) error { return png.Encode(w, img) })
}

// SaveTIFF writes img as deflate-compressed TIFF.
func SaveTIFF(path string, img image.Image) error {
	return save(path, func(w io.Writer) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	})
}

// SaveGrey16TIFF writes m as a 16-bit grey TIFF scaled by the levels.
func SaveGrey16TIFF(path string, m mat.Matrix, lv Levels, frontView bool) error {
	return SaveTIFF(path, Grey16(m, lv, frontView))
}

// Export picks the encoder from the file extension.
func Export(path string, img image.Image) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return SavePNG(path, img)
	case ".tif", ".tiff":
		return SaveTIFF(path, img)
	}
	return fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(path))
}
