package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"geo-assembler/internal/assembly"
	"geo-assembler/internal/crystfel"
	"geo-assembler/internal/detector"
	"geo-assembler/internal/fit"
	"geo-assembler/internal/render"
	"geo-assembler/internal/rundata"
	"geo-assembler/pkg/geometry"
)

// defaultGeometry names the built-in layout of a detector in place of a file.
const defaultGeometry = "default"

// autoLevels are the quantiles used when no -level is given.
var autoLevels = [2]float64{0.01, 0.995}

func newFlagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: geoassemble %s [flags]%s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args and checks the number of positional arguments.
func parse(fs *flag.FlagSet, args []string, nargs int) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != nargs {
		fs.Usage()
		return fmt.Errorf("%w: %s expects %d argument(s), got %d", errUsage, fs.Name(), nargs, fs.NArg())
	}
	return nil
}

// geometryFlags are shared by the commands that read a geometry.
type geometryFlags struct {
	det      string
	geometry string
}

func (f *geometryFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.det, "det", detector.AGIPD.Name, "detector type ("+strings.Join(detector.Names(), ", ")+")")
	fs.StringVar(&f.geometry, "geometry", "", "geometry file (.geom or .csv), or \""+defaultGeometry+"\"")
}

// load returns the detector, its geometry and the experiment parameters.
// Tables and the default layout carry no parameters and get the defaults.
func (f *geometryFlags) load() (*detector.Spec, *detector.Geometry, crystfel.Meta, error) {
	meta := crystfel.DefaultMeta()
	spec, err := detector.Lookup(f.det)
	if err != nil {
		return nil, nil, meta, err
	}
	if f.geometry == "" || f.geometry == defaultGeometry {
		return spec, detector.Default(spec), meta, nil
	}
	g, m, err := crystfel.Load(f.geometry, spec)
	if err != nil {
		return nil, nil, meta, err
	}
	if m != nil {
		meta = *m
	}
	return spec, g, meta, nil
}

// frameFlags select the frame of a run.
type frameFlags struct {
	method string
	train  int
	pulse  int
}

func (f *frameFlags) register(fs *flag.FlagSet) {
	names := make([]string, 0, len(rundata.Methods()))
	for _, m := range rundata.Methods() {
		names = append(names, m.String())
	}
	fs.StringVar(&f.method, "method", rundata.Mean.String(), "frame reduction ("+strings.Join(names, ", ")+")")
	fs.IntVar(&f.train, "train", 0, "train ID (first train when 0)")
	fs.IntVar(&f.pulse, "pulse", 0, "pulse index for -method pulse")
}

// assemble opens dir and assembles the selected frame with g.
func (f *frameFlags) assemble(ctx context.Context, dir string, spec *detector.Spec, g *detector.Geometry) (*assembly.Image, error) {
	method, err := rundata.ParseMethod(f.method)
	if err != nil {
		return nil, err
	}
	run, err := rundata.Open(ctx, dir, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to open run %s: %w", dir, err)
	}
	sel := rundata.Selection{Train: f.train, Pulse: f.pulse, Method: method}
	if sel.Train == 0 {
		trains := run.TrainIDs()
		if len(trains) == 0 {
			return nil, fmt.Errorf("run %s: %w", dir, rundata.ErrNoTrain)
		}
		sel.Train = trains[0]
	}
	frame, err := run.Frame(ctx, sel)
	if err != nil {
		return nil, err
	}
	log.Printf("Run: %s train %d %s (%d modules)", dir, sel.Train, method, len(run.Modules()))
	return assembly.Assemble(g, assembly.Dense(frame))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func printQuadPositions(w io.Writer, g *detector.Geometry) error {
	return detector.WriteQuadPositions(w, g.QuadPositions())
}

func runRender(args []string, stdout io.Writer) error {
	var (
		gf       geometryFlags
		ff       frameFlags
		level    string
		colormap string
		front    bool
		out      string
		data     bool
	)
	fs := newFlagSet("render", " RUNDIR")
	gf.register(fs)
	ff.register(fs)
	fs.StringVar(&level, "level", "", "display levels as min,max (quantiles when empty)")
	fs.StringVar(&colormap, "colormap", "grey", "colormap")
	fs.BoolVar(&front, "front", false, "show the detector as seen from the sample")
	fs.StringVar(&out, "out", "frame.png", "output image (.png, .tif or .tiff)")
	fs.BoolVar(&data, "data", false, "write 16-bit greyscale TIFF scaled to the levels")
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	spec, g, _, err := gf.load()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	img, err := ff.assemble(ctx, fs.Arg(0), spec, g)
	if err != nil {
		return err
	}

	lv := render.AutoLevels(img.Data, autoLevels[0], autoLevels[1])
	if level != "" {
		if lv, err = render.ParseLevels(level); err != nil {
			return err
		}
	}
	if data {
		if err := render.SaveGrey16TIFF(out, img.Data, lv, front); err != nil {
			return err
		}
	} else {
		rgba, err := render.Render(img.Data, render.Options{Levels: lv, Colormap: colormap, FrontView: front})
		if err != nil {
			return err
		}
		if err := render.Export(out, rgba); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "wrote %s (levels %s)\n", out, lv)
	return nil
}

func runConvert(args []string, stdout io.Writer) error {
	var (
		det    string
		clen   float64
		energy float64
	)
	fs := newFlagSet("convert", " IN OUT")
	fs.StringVar(&det, "det", detector.AGIPD.Name, "detector type ("+strings.Join(detector.Names(), ", ")+")")
	fs.Float64Var(&clen, "clen", 0, "detector distance in m (kept when 0)")
	fs.Float64Var(&energy, "energy", 0, "photon energy in eV (kept when 0)")
	if err := parse(fs, args, 2); err != nil {
		return err
	}
	gf := geometryFlags{det: det, geometry: fs.Arg(0)}
	_, g, meta, err := gf.load()
	if err != nil {
		return err
	}
	setExperiment(&meta, clen, energy)
	if err := crystfel.Save(fs.Arg(1), g, meta); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", fs.Arg(1))
	return nil
}

// setExperiment overrides the numbers given as non-zero.
func setExperiment(meta *crystfel.Meta, clen, energy float64) {
	if clen != 0 {
		meta.Clen, meta.ClenPath = clen, ""
	}
	if energy != 0 {
		meta.PhotonEnergy, meta.EnergyPath = energy, ""
	}
}

func runMove(args []string, stdout io.Writer) error {
	var (
		gf       geometryFlags
		quadrant int
		dir      string
		inc      int
		front    bool
		out      string
	)
	fs := newFlagSet("move", "")
	gf.register(fs)
	fs.IntVar(&quadrant, "quadrant", 1, "quadrant to move (1-4)")
	fs.StringVar(&dir, "dir", "", "direction (up, down, left, right)")
	fs.IntVar(&inc, "inc", 1, "pixels to move")
	fs.BoolVar(&front, "front", false, "left and right as seen from the sample")
	fs.StringVar(&out, "out", "", "geometry file to write (.geom or .csv)")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	if out == "" {
		return fmt.Errorf("%w: move needs -out", errUsage)
	}
	if inc < 1 {
		return fmt.Errorf("%w: -inc must be at least 1", errUsage)
	}
	d, err := geometry.ParseDirection(dir)
	if err != nil {
		return err
	}
	if front {
		d = d.Mirror()
	}

	_, g, meta, err := gf.load()
	if err != nil {
		return err
	}
	if err := g.Move(quadrant, d, inc); err != nil {
		return err
	}
	if err := crystfel.Save(out, g, meta); err != nil {
		return err
	}
	log.Printf("Run: moved quadrant %d %s by %d", quadrant, d, inc)
	return printQuadPositions(stdout, g)
}

func runCentre(args []string, stdout io.Writer) error {
	var (
		gf     geometryFlags
		ff     frameFlags
		clen   float64
		energy float64
		search int
		out    string
	)
	fs := newFlagSet("centre", " RUNDIR")
	gf.register(fs)
	ff.register(fs)
	fs.Float64Var(&clen, "clen", 0, "detector distance in m written to the output")
	fs.Float64Var(&energy, "energy", 0, "photon energy in eV written to the output")
	fs.IntVar(&search, "search", 20, "search range in pixels")
	fs.StringVar(&out, "out", "", "geometry file to write (.geom or .csv)")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	if search < 1 {
		return fmt.Errorf("%w: -search must be at least 1", errUsage)
	}

	spec, g, meta, err := gf.load()
	if err != nil {
		return err
	}
	setExperiment(&meta, clen, energy)
	ctx, cancel := signalContext()
	defer cancel()
	img, err := ff.assemble(ctx, fs.Arg(0), spec, g)
	if err != nil {
		return err
	}

	o := &fit.CentreOptimiser{Image: img.Data, Centre: img.Centre(), Geometry: g}
	res, err := o.Optimise(ctx, search)
	if err != nil {
		return fmt.Errorf("centre search failed: %w", err)
	}
	g.SetQuadPositions(res.QuadPositions)
	fmt.Fprintf(stdout, "offset %v after %d evaluations\n", res.Offset, res.Evaluations)
	if err := printQuadPositions(stdout, g); err != nil {
		return err
	}
	if out != "" {
		if err := crystfel.Save(out, g, meta); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", out)
	}
	return nil
}

func runQuads(args []string, stdout io.Writer) error {
	var gf geometryFlags
	fs := newFlagSet("quads", "")
	gf.register(fs)
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	_, g, _, err := gf.load()
	if err != nil {
		return err
	}
	return printQuadPositions(stdout, g)
}

func runMock(args []string, stdout io.Writer) error {
	var (
		gf     geometryFlags
		trains int
		frames int
		first  int
		seed   int64
		skip   string
	)
	fs := newFlagSet("mock", " DIR")
	gf.register(fs)
	fs.IntVar(&trains, "trains", 0, "number of trains (default when 0)")
	fs.IntVar(&frames, "frames", 0, "frames per train (default when 0)")
	fs.IntVar(&first, "first", 0, "first train ID (default when 0)")
	fs.Int64Var(&seed, "seed", 1, "noise seed")
	fs.StringVar(&skip, "skip", "", "comma separated modules to leave out")
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	spec, g, _, err := gf.load()
	if err != nil {
		return err
	}
	opts := rundata.DefaultMockOptions(spec)
	opts.Geometry, opts.Seed = g, seed
	if trains > 0 {
		opts.Trains = trains
	}
	if frames > 0 {
		opts.FramesPerTrain = frames
	}
	if first > 0 {
		opts.FirstTrain = first
	}
	if opts.Skip, err = parseModules(skip); err != nil {
		return err
	}

	dir := filepath.Clean(fs.Arg(0))
	if err := rundata.WriteMock(dir, spec, opts); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s run to %s\n", spec, dir)
	return nil
}

func parseModules(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var mods []int
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || n < 0 || n >= detector.PanelCount {
			return nil, fmt.Errorf("invalid module %q", f)
		}
		mods = append(mods, n)
	}
	return mods, nil
}
