// horn is the command line front end of the horn Prolog engine.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/horn/image"
	"github.com/chazu/horn/lib/sqlite"
	"github.com/chazu/horn/manifest"
	"github.com/chazu/horn/reader"
	"github.com/chazu/horn/term"
	"github.com/chazu/horn/vm"
)

var log = commonlog.GetLogger("horn")

type config struct {
	interactive   bool
	goal          string
	output        string
	includeSource bool
	imagePath     string
	disasm        string
	trace         bool
	profile       bool
	verbosity     int
	logFile       string
	projectDir    string
	noManifest    bool
	files         []string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line args and returns the exit status.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "deps":
			return runDeps(args[1:], stdout, stderr)
		case "build":
			return runBuild(args[1:], stdout, stderr)
		case "lsp":
			return runLSP(args[1:], stderr)
		}
	}

	var cfg config
	fs := flag.NewFlagSet("horn", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&cfg.interactive, "i", false, "Start the interactive top level after loading")
	fs.StringVar(&cfg.goal, "g", "", "Run goal after loading and exit")
	fs.StringVar(&cfg.output, "o", "", "Write the loaded program to an image file")
	fs.BoolVar(&cfg.includeSource, "include-source", false, "Keep clause source of static predicates in the image")
	fs.StringVar(&cfg.imagePath, "image", "", "Load a program image before consulting files")
	fs.StringVar(&cfg.disasm, "disasm", "", "Print the bytecode of a user predicate (name/arity)")
	fs.BoolVar(&cfg.trace, "trace", false, "Trace every call")
	fs.BoolVar(&cfg.profile, "profile", false, "Print per-predicate port counts on exit")
	fs.IntVar(&cfg.verbosity, "v", -1, "Log verbosity (default from horn.toml, else 0)")
	fs.StringVar(&cfg.logFile, "log", "", "Log to file instead of stderr")
	fs.StringVar(&cfg.projectDir, "project", ".", "Directory to search for horn.toml")
	fs.BoolVar(&cfg.noManifest, "no-manifest", false, "Ignore horn.toml")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: horn [options] [files...]\n")
		fmt.Fprintf(stderr, "       horn deps [-project dir]\n")
		fmt.Fprintf(stderr, "       horn build [-project dir]\n")
		fmt.Fprintf(stderr, "       horn lsp [-v n] [-log file]\n\n")
		fmt.Fprintf(stderr, "Consults Prolog files, or the project described by horn.toml, and runs a goal or the top level.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  horn family.pl -i              # consult, then start the top level\n")
		fmt.Fprintf(stderr, "  horn queens.pl -g 'main'       # consult and run main\n")
		fmt.Fprintf(stderr, "  horn -o app.hornimg            # compile the project to an image\n")
		fmt.Fprintf(stderr, "  horn -image app.hornimg -g go   # run a goal from an image\n")
		fmt.Fprintf(stderr, "  horn lib.pl -disasm append/3   # show compiled code\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	cfg.files = fs.Args()

	var proj *manifest.Manifest
	if !cfg.noManifest {
		var err error
		if proj, err = manifest.FindAndLoad(cfg.projectDir); err != nil {
			fmt.Fprintf(stderr, "Error loading %s: %v\n", manifest.FileName, err)
			return 1
		}
	}
	configureLog(cfg, proj)

	opts := vm.Options{}
	if proj != nil {
		opts = proj.Engine.Options()
	}
	if cfg.trace {
		opts.Trace = true
	}
	reg := vm.NewRegistry()
	m := vm.NewMachine(reg, opts)
	m.Out = stdout
	lib := sqlite.Register(reg)
	defer lib.Close()
	// ports are reported only for traced frames, so trace/0 and spy/1
	// need the writer in place from the start
	m.Tracer = vm.NewPortWriter(stderr)
	if cfg.profile {
		m.Profiler = vm.NewProfiler()
		defer printProfile(stderr, m.Profiler)
	}

	entry, status := load(m, cfg, proj, stderr)
	if status >= 0 {
		return status
	}

	if cfg.output != "" {
		if proj != nil && proj.Image.IncludeSource {
			cfg.includeSource = true
		}
		if err := writeImage(reg, cfg, entry); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	if cfg.disasm != "" {
		if err := disassemble(stdout, reg, cfg.disasm); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	switch {
	case cfg.goal != "":
		return runGoal(m, cfg.goal, stderr)
	case entry != "" && !cfg.interactive && cfg.output == "":
		return runGoal(m, entry, stderr)
	case cfg.interactive || (cfg.output == "" && cfg.disasm == ""):
		return runREPL(m, stdout, stderr)
	}
	return 0
}

func configureLog(cfg config, proj *manifest.Manifest) {
	verbosity, path := 0, cfg.logFile
	if proj != nil {
		verbosity = proj.Log.Verbosity
		if path == "" {
			path = proj.Log.File
		}
	}
	if cfg.verbosity >= 0 {
		verbosity = cfg.verbosity
	}
	if path == "" {
		commonlog.Configure(verbosity, nil)
	} else {
		commonlog.Configure(verbosity, &path)
	}
}

// load installs the image, the project with its dependencies, and the
// files named on the command line. It returns the entry goal, and an exit
// status when loading must stop the command (-1 otherwise).
func load(m *vm.Machine, cfg config, proj *manifest.Manifest, stderr io.Writer) (string, int) {
	var entry string
	if cfg.imagePath != "" {
		img, err := image.ReadFile(cfg.imagePath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return "", 1
		}
		if err := image.Install(m.Registry(), img); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return "", 1
		}
		entry = img.Entry
	}

	var files []string
	if proj != nil {
		deps, err := manifest.NewResolver(proj).Resolve()
		if err != nil {
			fmt.Fprintf(stderr, "Error resolving dependencies: %v\n", err)
			return "", 1
		}
		for _, d := range deps {
			df, err := d.SourceFiles()
			if err != nil {
				fmt.Fprintf(stderr, "Error: %s: %v\n", d.Name, err)
				return "", 1
			}
			files = append(files, df...)
		}
		pf, err := proj.SourceFiles()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return "", 1
		}
		files = append(files, pf...)
		if proj.Source.Entry != "" {
			entry = proj.Source.Entry
		}
	}
	files = append(files, cfg.files...)

	status := -1
	for _, path := range files {
		log.Infof("consulting %s", path)
		err := m.ConsultFile(path)
		if err == nil {
			continue
		}
		var h *vm.HaltError
		if errors.As(err, &h) {
			return "", h.Code
		}
		fmt.Fprintf(stderr, "Warning: %s: %v\n", path, err)
		status = 1
	}
	if status > 0 && cfg.goal == "" && entry == "" && !cfg.interactive {
		return "", status
	}
	return entry, -1
}

// parseGoal reads goal text, terminated by a full stop or not.
func parseGoal(reg *vm.Registry, src string) (term.Term, []reader.VarBinding, error) {
	src = strings.TrimSpace(src)
	if !strings.HasSuffix(src, ".") {
		src += " ."
	}
	return reader.NewParserWithOps(src, reg.Ops()).Next()
}

// runGoal proves goal once. It exits 0 on success, 1 on failure or error,
// and with the requested code on halt.
func runGoal(m *vm.Machine, src string, stderr io.Writer) int {
	goal, _, err := parseGoal(m.Registry(), src)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, ok, err := m.Once(goal)
	var h *vm.HaltError
	switch {
	case errors.As(err, &h):
		return h.Code
	case err != nil:
		fmt.Fprintf(stderr, "Error: goal %s: %v\n", term.Format(goal), err)
		return 1
	case !ok:
		fmt.Fprintf(stderr, "Warning: goal %s failed\n", term.Format(goal))
		return 1
	}
	return 0
}

func writeImage(reg *vm.Registry, cfg config, entry string) error {
	img, err := image.Build(reg, image.Options{IncludeSource: cfg.includeSource, Entry: entry})
	if err != nil {
		return err
	}
	return image.WriteFile(cfg.output, img)
}
