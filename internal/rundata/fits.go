package rundata

import (
	"fmt"
	"os"

	"github.com/astrogo/fitsio"
)

// Header cards of a module file.
const (
	cardFirstTrain     = "FIRSTTID"
	cardFramesPerTrain = "FPT"
	cardSource         = "DETSRC"
)

// moduleHeader is the metadata of one module file.
type moduleHeader struct {
	FS, SS, Frames int
	FirstTrain     int
	FramesPerTrain int
	Source         string
}

func (h moduleHeader) trains() int {
	if h.FramesPerTrain <= 0 {
		return 0
	}
	return h.Frames / h.FramesPerTrain
}

func cardInt(hdr *fitsio.Header, name string) (int, error) {
	c := hdr.Get(name)
	if c == nil {
		return 0, fmt.Errorf("missing header card %s", name)
	}
	switch v := c.Value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	case float64:
		return int(v), nil
	case interface{ Int64() int64 }:
		return int(v.Int64()), nil
	}
	return 0, fmt.Errorf("header card %s has unexpected type %T", name, c.Value)
}

func parseHeader(hdr *fitsio.Header) (moduleHeader, error) {
	var h moduleHeader
	axes := hdr.Axes()
	if len(axes) != 3 {
		return h, fmt.Errorf("%w: want a 3-axis cube, got %d axes", ErrBadModuleFile, len(axes))
	}
	h.FS, h.SS, h.Frames = axes[0], axes[1], axes[2]
	var err error
	if h.FirstTrain, err = cardInt(hdr, cardFirstTrain); err != nil {
		return h, fmt.Errorf("%w: %v", ErrBadModuleFile, err)
	}
	if h.FramesPerTrain, err = cardInt(hdr, cardFramesPerTrain); err != nil {
		return h, fmt.Errorf("%w: %v", ErrBadModuleFile, err)
	}
	if h.FramesPerTrain <= 0 || h.Frames%h.FramesPerTrain != 0 {
		return h, fmt.Errorf("%w: %d frames is not a whole number of %d-frame trains",
			ErrBadModuleFile, h.Frames, h.FramesPerTrain)
	}
	if c := hdr.Get(cardSource); c != nil {
		h.Source, _ = c.Value.(string)
	}
	return h, nil
}

// readModule decodes a module file. The cube is ordered frame by frame, each
// frame row by row (slow scan), each row along the fast scan.
func readModule(path string) (moduleHeader, []float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return moduleHeader{}, nil, fmt.Errorf("failed to open module file: %w", err)
	}
	defer f.Close()

	fits, err := fitsio.Open(f)
	if err != nil {
		return moduleHeader{}, nil, fmt.Errorf("%w: %s: %v", ErrBadModuleFile, path, err)
	}
	defer fits.Close()

	img, ok := fits.HDU(0).(fitsio.Image)
	if !ok {
		return moduleHeader{}, nil, fmt.Errorf("%w: %s: primary HDU is not an image", ErrBadModuleFile, path)
	}
	h, err := parseHeader(img.Header())
	if err != nil {
		return h, nil, fmt.Errorf("%s: %w", path, err)
	}
	if img.Header().Bitpix() != -32 {
		return h, nil, fmt.Errorf("%w: %s: want 32-bit float data, got BITPIX %d",
			ErrBadModuleFile, path, img.Header().Bitpix())
	}
	data := make([]float32, h.FS*h.SS*h.Frames)
	if err := img.Read(&data); err != nil {
		return h, nil, fmt.Errorf("%w: %s: %v", ErrBadModuleFile, path, err)
	}
	return h, data, nil
}

// writeModule encodes a module cube as a FITS file.
func writeModule(path string, h moduleHeader, data []float32) error {
	if len(data) != h.FS*h.SS*h.Frames {
		return fmt.Errorf("module cube has %d values, want %d", len(data), h.FS*h.SS*h.Frames)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create module file: %w", err)
	}

	fits, err := fitsio.Create(out)
	if err != nil {
		out.Close()
		return err
	}
	img := fitsio.NewImage(-32, []int{h.FS, h.SS, h.Frames})
	err = img.Header().Append(
		fitsio.Card{Name: cardFirstTrain, Value: h.FirstTrain, Comment: "first train id"},
		fitsio.Card{Name: cardFramesPerTrain, Value: h.FramesPerTrain, Comment: "frames per train"},
		fitsio.Card{Name: cardSource, Value: h.Source, Comment: "data source"},
	)
	if err == nil {
		err = img.Write(data)
	}
	if err == nil {
		err = fits.Write(img)
	}
	if cerr := fits.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write module file %s: %w", path, err)
	}
	return nil
}
