package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/chazu/horn/manifest"
)

// findProject parses the -project flag shared by the subcommands and
// loads the manifest it points at.
func findProject(name string, args []string, stderr io.Writer) (*manifest.Manifest, []string, int) {
	fs := flag.NewFlagSet("horn "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("project", ".", "Directory to search for horn.toml")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil, 0
		}
		return nil, nil, 2
	}
	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading %s: %v\n", manifest.FileName, err)
		return nil, nil, 1
	}
	if m == nil {
		fmt.Fprintf(stderr, "Error: no %s found\n", manifest.FileName)
		return nil, nil, 1
	}
	return m, fs.Args(), -1
}

// runDeps handles `horn deps`: fetch dependencies and refresh the lock
// file.
func runDeps(args []string, stdout, stderr io.Writer) int {
	m, _, status := findProject("deps", args, stderr)
	if status >= 0 {
		return status
	}
	deps, err := manifest.NewResolver(m).Resolve()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(deps) == 0 {
		fmt.Fprintln(stdout, "No dependencies")
		return 0
	}
	for _, d := range deps {
		fmt.Fprintf(stdout, "%s\t%s\n", d.Name, d.LocalPath)
	}
	return 0
}

// runBuild handles `horn build`: consult the project and write its image
// to the path configured in [image].
func runBuild(args []string, stdout, stderr io.Writer) int {
	m, rest, status := findProject("build", args, stderr)
	if status >= 0 {
		return status
	}
	out := m.ImagePath()
	if out == "" {
		fmt.Fprintln(stderr, "Error: set [image] output or [project] name")
		return 1
	}
	code := run(append([]string{"-project", m.Dir, "-o", out}, rest...), stdout, stderr)
	if code == 0 {
		fmt.Fprintf(stdout, "Wrote %s\n", out)
	}
	return code
}
