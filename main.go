// Package main provides the entry point for the geo-assembler application.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	fyneapp "fyne.io/fyne/v2/app"

	"geo-assembler/internal/app"
	"geo-assembler/internal/config"
	"geo-assembler/internal/detector"
	"geo-assembler/internal/notebook"
	"geo-assembler/internal/render"
	"geo-assembler/internal/rundata"
	"geo-assembler/internal/session"
	"geo-assembler/internal/version"
	"geo-assembler/ui/mainwindow"
	"geo-assembler/ui/prefs"
)

// options are the command line flags.
type options struct {
	configPath string
	runDir     string
	geometry   string
	clen       float64
	energy     float64
	level      string
	det        string
	notebook   bool
	nbDir      string
	nbFile     string
	test       bool
	session    string

	set map[string]bool // flags given explicitly
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet(version.AppName, flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", config.DefaultPath(), "YAML file with default settings")
	fs.StringVar(&o.runDir, "rundir", "", "run directory to open")
	fs.StringVar(&o.geometry, "geometry", "", "geometry file (.geom or .csv) to start from")
	fs.Float64Var(&o.clen, "clen", 0, "detector distance in m")
	fs.Float64Var(&o.energy, "energy", 0, "photon energy in eV")
	fs.StringVar(&o.level, "level", "", "display levels as min,max")
	fs.StringVar(&o.det, "det", "", "detector type ("+strings.Join(detector.Names(), ", ")+")")
	fs.BoolVar(&o.notebook, "notebook", false, "write a Jupyter notebook for the run and exit")
	fs.StringVar(&o.nbDir, "nb-dir", "", "directory of the notebook")
	fs.StringVar(&o.nbFile, "nb-file", "", "file name of the notebook")
	fs.BoolVar(&o.test, "test", false, "open a synthetic run")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] [session%s]\n", version.AppName, session.Extension)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 1 {
		return nil, fmt.Errorf("expected at most one session file, got %d arguments", fs.NArg())
	}
	o.session = fs.Arg(0)
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// apply overrides the configuration with the flags given.
func (o *options) apply(cfg *config.Config) error {
	if o.set["det"] {
		spec, err := detector.Lookup(o.det)
		if err != nil {
			return err
		}
		cfg.Detector = spec.Name
	}
	if o.set["clen"] {
		cfg.Experiment.Clen = o.clen
	}
	if o.set["energy"] {
		cfg.Experiment.PhotonEnergy = o.energy
	}
	if o.set["level"] {
		lv, err := render.ParseLevels(o.level)
		if err != nil {
			return err
		}
		cfg.Display.Levels = lv
	}
	if o.set["nb-dir"] {
		cfg.Notebook.Dir = o.nbDir
	}
	if o.set["nb-file"] {
		cfg.Notebook.File = o.nbFile
	}
	return cfg.Validate()
}

// notebookOptions builds the notebook parameters. Levels are only passed on
// when given on the command line.
func (o *options) notebookOptions(cfg *config.Config) notebook.Options {
	nb := notebook.Options{
		RunDir:   o.runDir,
		Geometry: o.geometry,
		Detector: cfg.Detector,
		Clen:     cfg.Experiment.Clen,
		Energy:   cfg.Experiment.PhotonEnergy,
		Dir:      cfg.Notebook.Dir,
		File:     cfg.Notebook.File,
	}
	if o.set["level"] {
		lv := cfg.Display.Levels
		nb.Levels = &lv
	}
	return nb
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	if err := opts.apply(cfg); err != nil {
		log.Fatalf("Config: %v", err)
	}

	if opts.notebook {
		_, msg, err := notebook.Create(opts.notebookOptions(cfg))
		if err != nil {
			log.Fatalf("Notebook: %v", err)
		}
		fmt.Println(msg)
		return
	}

	logs := app.NewLogBuffer(app.DefaultLogLines)
	logs.Install()
	defer logs.Uninstall()
	log.Printf("Starting %s", version.String())

	fyneApp := fyneapp.NewWithID("eu.xfel." + version.AppName)
	fyneApp.Settings().SetTheme(app.Theme{})

	appState := app.NewState(cfg)
	appPrefs := prefs.Load()

	calibrant := appPrefs.String(prefs.KeyCalibrant)
	if calibrant == "" {
		calibrant = cfg.Calibrant
	}
	if err := appState.SetCalibrant(calibrant); err != nil {
		log.Printf("App: %v", err)
	}

	appState.SetFrontView(appPrefs.Bool(prefs.KeyFrontView, false))

	win := mainwindow.New(fyneApp, appState, appPrefs, logs)

	if opts.session != "" {
		win.LoadSession(opts.session)
	} else {
		startRun(win, appState, opts)
	}

	win.ShowAndRun()
}

// startRun loads the geometry and the run named on the command line.
func startRun(win *mainwindow.MainWindow, state *app.State, opts *options) {
	if opts.geometry != "" {
		if err := win.LoadGeometry(opts.geometry); err != nil {
			log.Printf("App: %v", err)
		}
	}

	dir := opts.runDir
	if opts.test {
		tmp, err := os.MkdirTemp("", version.AppName+"-mock-")
		if err != nil {
			log.Printf("App: %v", err)
			return
		}
		dir = filepath.Join(tmp, "r0001")
		spec := state.Status().Detector
		if err := rundata.WriteMock(dir, spec, rundata.DefaultMockOptions(spec)); err != nil {
			log.Printf("App: failed to write mock run: %v", err)
			return
		}
		log.Printf("App: mock run written to %s", dir)
	}
	if dir != "" {
		win.OpenRun(dir)
	}
}
