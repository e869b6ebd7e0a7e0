// Package manifest handles horn.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/horn/vm"
)

// FileName is the name of the project file.
const FileName = "horn.toml"

// Manifest represents a horn.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Source       Source                `toml:"source"`
	Dependencies map[string]Dependency `toml:"dependencies"`
	Engine       Engine                `toml:"engine"`
	Log          Log                   `toml:"log"`
	Image        ImageConfig           `toml:"image"`

	// Dir is the directory containing the horn.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures which Prolog files are consulted and what runs after.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
	Entry string   `toml:"entry"` // goal text, e.g. "main"
}

// Dependency is another horn project whose sources load before ours.
type Dependency struct {
	Git  string `toml:"git"`
	Tag  string `toml:"tag"`
	Path string `toml:"path"`
}

// Engine holds machine limits and policies. Limits are in words; zero
// means the machine default.
type Engine struct {
	GlobalLimit   int    `toml:"global-limit"`
	LocalLimit    int    `toml:"local-limit"`
	TrailLimit    int    `toml:"trail-limit"`
	ArgumentLimit int    `toml:"argument-limit"`
	Spare         int    `toml:"spare"`
	Unknown       string `toml:"unknown"` // error, fail or warning
	ArithDepth    int    `toml:"arith-depth"`
	Trace         bool   `toml:"trace"`
}

// Log configures commonlog output.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// ImageConfig configures image output.
type ImageConfig struct {
	Output        string `toml:"output"`
	IncludeSource bool   `toml:"include-source"`
}

// Load parses a horn.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if _, err := m.Engine.unknownPolicy(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if len(m.Source.Dirs) == 0 && len(m.Source.Files) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Image.Output == "" && m.Project.Name != "" {
		m.Image.Output = m.Project.Name + ".hornimg"
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a horn.toml file, then loads
// and returns the manifest. It returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// SourceFiles lists the files to consult: the explicit files in order,
// then the .pl files of each source directory sorted by name. Missing
// directories are skipped.
func (m *Manifest) SourceFiles() ([]string, error) {
	var files []string
	for _, f := range m.Source.Files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(m.Dir, f)
		}
		files = append(files, f)
	}
	for _, dir := range m.SourceDirPaths() {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading source dir: %w", err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".pl") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			files = append(files, filepath.Join(dir, n))
		}
	}
	return files, nil
}

// DepsDir returns the path to the .horn/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".horn", "deps")
}

// LockFilePath returns the path to .horn/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".horn", "lock.toml")
}

// ImagePath returns the absolute image output path.
func (m *Manifest) ImagePath() string {
	if m.Image.Output == "" || filepath.IsAbs(m.Image.Output) {
		return m.Image.Output
	}
	return filepath.Join(m.Dir, m.Image.Output)
}

// Options converts the engine section to machine options.
func (e Engine) Options() vm.Options {
	unknown, _ := e.unknownPolicy()
	return vm.Options{
		GlobalLimit:   e.GlobalLimit,
		LocalLimit:    e.LocalLimit,
		TrailLimit:    e.TrailLimit,
		ArgumentLimit: e.ArgumentLimit,
		Spare:         e.Spare,
		Unknown:       unknown,
		ArithDepth:    e.ArithDepth,
		Trace:         e.Trace,
	}
}

func (e Engine) unknownPolicy() (vm.UnknownPolicy, error) {
	switch e.Unknown {
	case "", "error":
		return vm.UnknownError, nil
	case "fail":
		return vm.UnknownFail, nil
	case "warning":
		return vm.UnknownWarning, nil
	}
	return 0, fmt.Errorf("engine.unknown: want error, fail or warning, got %q", e.Unknown)
}
