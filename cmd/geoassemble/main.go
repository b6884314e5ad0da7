// Command geoassemble assembles detector frames and edits geometry files
// without the GUI.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"geo-assembler/internal/version"
)

// command is a subcommand. args exclude the command name.
type command struct {
	summary string
	run     func(args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"render":  {"assemble a frame and write PNG or TIFF", runRender},
	"convert": {"convert between CrystFEL .geom and .csv panel tables", runConvert},
	"move":    {"move a quadrant and write the geometry", runMove},
	"centre":  {"optimise the beam centre from the rings of a run", runCentre},
	"quads":   {"print the quadrant positions of a geometry", runQuads},
	"mock":    {"write a synthetic run", runMock},
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: geoassemble <command> [flags] [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "  %-8s %s\n", "version", "print the version")
	fmt.Fprintf(w, "\nRun 'geoassemble <command> -h' for the flags of a command.\n")
}

// run dispatches args[0] to its command.
func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		usage(os.Stderr)
		return errUsage
	}
	name := args[0]
	switch name {
	case "version", "-version", "--version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		usage(os.Stderr)
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	return cmd.run(args[1:], stdout)
}

var errUsage = errors.New("usage")

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	err := run(os.Args[1:], os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		if err != errUsage {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "geoassemble: %v\n", err)
		os.Exit(1)
	}
}
