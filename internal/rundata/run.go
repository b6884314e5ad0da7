// Package rundata reads detector frames from a run directory.
//
// A run directory holds one FITS file per detector module. The module number
// is taken from the file name (for example CORR-R0273-AGIPD07-S00000.fits).
// Each file holds a cube of fast scan x slow scan x frames 32-bit floats and
// the header cards FIRSTTID (first train id) and FPT (frames per train).
package rundata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"

	"geo-assembler/internal/detector"
)

// MinModules is the smallest number of module files a usable run must have.
const MinModules = 9

var (
	ErrNoData        = errors.New("no module files found")
	ErrTooFewModules = errors.New("too few module files")
	ErrBadModuleFile = errors.New("bad module file")
	ErrNoTrain       = errors.New("train not in run")
	ErrPulseRange    = errors.New("pulse out of range")
)

// Method selects how the frames of a train are reduced to one image.
type Method int

const (
	Pulse Method = iota
	Mean
	Sum
	Max
)

func (m Method) String() string {
	switch m {
	case Pulse:
		return "pulse"
	case Mean:
		return "mean"
	case Sum:
		return "sum"
	case Max:
		return "max"
	}
	return "unknown"
}

// Methods lists every reduction method in display order.
func Methods() []Method {
	return []Method{Pulse, Mean, Sum, Max}
}

// ParseMethod is the inverse of Method.String.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods() {
		if strings.EqualFold(m.String(), strings.TrimSpace(s)) {
			return m, nil
		}
	}
	return Pulse, fmt.Errorf("unknown method %q", s)
}

// Selection picks the frame to display.
type Selection struct {
	Train  int    `json:"train" yaml:"train"`
	Pulse  int    `json:"pulse" yaml:"pulse"`
	Method Method `json:"method" yaml:"method"`
}

// Run is an opened run directory.
type Run struct {
	Dir      string
	Detector *detector.Spec

	files  map[int]string
	header moduleHeader

	mu         sync.Mutex
	cacheTrain int
	cache      [][]*mat.Dense
}

// Open scans dir for module files of the given detector.
func Open(ctx context.Context, dir string, spec *detector.Spec) (*Run, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.fits"))
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(spec.ModuleTag) + `(\d{2})`)
	files := make(map[int]string)
	for _, p := range paths {
		m := re.FindStringSubmatch(filepath.Base(p))
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if n >= detector.PanelCount {
			continue
		}
		if prev, dup := files[n]; dup {
			log.Printf("Run: module %d found twice, using %s over %s", n, prev, p)
			continue
		}
		files[n] = p
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w for %s in %s", ErrNoData, spec.Name, dir)
	}
	if len(files) < MinModules {
		return nil, fmt.Errorf("%w: %d of %d in %s, need at least %d",
			ErrTooFewModules, len(files), detector.PanelCount, dir, MinModules)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	first := files[firstModule(files)]
	h, _, err := readModule(first)
	if err != nil {
		return nil, err
	}
	if h.SS != spec.PanelRows || h.FS != spec.PanelCols {
		return nil, fmt.Errorf("%w: %s holds %dx%d frames, %s modules are %dx%d",
			ErrBadModuleFile, first, h.SS, h.FS, spec.Name, spec.PanelRows, spec.PanelCols)
	}

	r := &Run{
		Dir:        dir,
		Detector:   spec,
		files:      files,
		header:     h,
		cacheTrain: -1,
	}
	log.Printf("Run: opened %s (%d modules, %d trains from %d, %d frames per train)",
		dir, len(files), h.trains(), h.FirstTrain, h.FramesPerTrain)
	return r, nil
}

func firstModule(files map[int]string) int {
	best := -1
	for n := range files {
		if best < 0 || n < best {
			best = n
		}
	}
	return best
}

// Modules returns the module numbers present in the run, sorted.
func (r *Run) Modules() []int {
	mods := make([]int, 0, len(r.files))
	for n := range r.files {
		mods = append(mods, n)
	}
	sort.Ints(mods)
	return mods
}

// TrainIDs returns the ids of all trains in the run.
func (r *Run) TrainIDs() []int {
	ids := make([]int, r.header.trains())
	for i := range ids {
		ids[i] = r.header.FirstTrain + i
	}
	return ids
}

// FramesPerTrain returns the number of pulses recorded per train.
func (r *Run) FramesPerTrain() int {
	return r.header.FramesPerTrain
}

func (r *Run) trainIndex(tid int) (int, error) {
	n := tid - r.header.FirstTrain
	if n < 0 || n >= r.header.trains() {
		return 0, fmt.Errorf("%w: %d (run has %d..%d)", ErrNoTrain, tid,
			r.header.FirstTrain, r.header.FirstTrain+r.header.trains()-1)
	}
	return n, nil
}

func nanPanel(rows, cols int) *mat.Dense {
	buf := make([]float64, rows*cols)
	for i := range buf {
		buf[i] = math.NaN()
	}
	return mat.NewDense(rows, cols, buf)
}

// TrainStack returns every pulse of a train as 16 module arrays. Negative
// values are clipped to zero and missing modules are NaN. The most recent
// train is cached; callers must not modify the returned arrays.
func (r *Run) TrainStack(ctx context.Context, tid int) ([][]*mat.Dense, error) {
	n, err := r.trainIndex(tid)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cacheTrain == tid && r.cache != nil {
		return r.cache, nil
	}

	spec := r.Detector
	fpt := r.header.FramesPerTrain
	stack := make([][]*mat.Dense, fpt)
	for p := range stack {
		stack[p] = make([]*mat.Dense, detector.PanelCount)
	}

	frameSize := spec.PanelRows * spec.PanelCols
	for mod := 0; mod < detector.PanelCount; mod++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, ok := r.files[mod]
		if !ok {
			for p := range stack {
				stack[p][mod] = nanPanel(spec.PanelRows, spec.PanelCols)
			}
			continue
		}
		h, data, err := readModule(path)
		if err != nil {
			return nil, err
		}
		if h.SS != spec.PanelRows || h.FS != spec.PanelCols ||
			h.FirstTrain != r.header.FirstTrain || h.Frames != r.header.Frames ||
			h.FramesPerTrain != fpt {
			return nil, fmt.Errorf("%w: %s does not match the other modules of the run", ErrBadModuleFile, path)
		}
		for p := 0; p < fpt; p++ {
			start := (n*fpt + p) * frameSize
			buf := make([]float64, frameSize)
			for i, v := range data[start : start+frameSize] {
				if v < 0 {
					v = 0
				}
				buf[i] = float64(v)
			}
			stack[p][mod] = mat.NewDense(spec.PanelRows, spec.PanelCols, buf)
		}
	}

	r.cacheTrain = tid
	r.cache = stack
	log.Printf("Run: loaded train %d (%d pulses)", tid, fpt)
	return stack, nil
}

// Frame reduces the selected train to one array per module. NaN values of
// recorded modules become zero; missing modules stay NaN.
func (r *Run) Frame(ctx context.Context, sel Selection) ([]*mat.Dense, error) {
	stack, err := r.TrainStack(ctx, sel.Train)
	if err != nil {
		return nil, err
	}
	spec := r.Detector
	out := make([]*mat.Dense, detector.PanelCount)

	if sel.Method == Pulse {
		if sel.Pulse < 0 || sel.Pulse >= len(stack) {
			return nil, fmt.Errorf("%w: %d (train has %d pulses)", ErrPulseRange, sel.Pulse, len(stack))
		}
	}

	for mod := range out {
		if _, ok := r.files[mod]; !ok {
			out[mod] = nanPanel(spec.PanelRows, spec.PanelCols)
			continue
		}
		var m *mat.Dense
		switch sel.Method {
		case Pulse:
			m = mat.DenseCopyOf(stack[sel.Pulse][mod])
		case Mean, Sum:
			m = mat.NewDense(spec.PanelRows, spec.PanelCols, nil)
			for p := range stack {
				m.Add(m, nanToZero(stack[p][mod]))
			}
			if sel.Method == Mean {
				m.Scale(1/float64(len(stack)), m)
			}
		case Max:
			m = mat.DenseCopyOf(nanToZero(stack[0][mod]))
			for p := 1; p < len(stack); p++ {
				m.Apply(func(i, j int, v float64) float64 {
					return math.Max(v, nanToZeroValue(stack[p][mod].At(i, j)))
				}, m)
			}
		default:
			return nil, fmt.Errorf("unknown method %d", sel.Method)
		}
		out[mod] = nanToZero(m)
	}
	return out, nil
}

func nanToZeroValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func nanToZero(m *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(m)
	out.Apply(func(_, _ int, v float64) float64 { return nanToZeroValue(v) }, out)
	return out
}
