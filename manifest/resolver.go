package manifest

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("horn.manifest")

// ResolvedDep is a dependency resolved to a local directory.
type ResolvedDep struct {
	Name      string
	Spec      Dependency // as declared by the manifest that named it
	LocalPath string
	Manifest  *Manifest // the dependency's own manifest (may be nil)
}

// SourceFiles lists the files the dependency contributes: those named by
// its manifest, or every .pl file at its root when it has none.
func (d ResolvedDep) SourceFiles() ([]string, error) {
	m := d.Manifest
	if m == nil {
		m = &Manifest{Dir: d.LocalPath, Source: Source{Dirs: []string{"."}}}
	}
	return m.SourceFiles()
}

// Resolver fetches dependencies and orders them for loading.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
	visiting map[string]bool

	// git runs a git command in dir. Tests replace it.
	git func(dir string, args ...string) (string, error)
}

// NewResolver creates a resolver for the dependencies of m.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m, visiting: make(map[string]bool), git: runGit}
}

// Resolve resolves all dependencies and returns them in load order,
// dependencies before their dependents, and rewrites the lock file.
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(r.manifest, resolved)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, nil
	}
	if err := r.writeLock(resolved); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return order, nil
}

func (r *Resolver) resolveAll(owner *Manifest, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	names := make([]string, 0, len(owner.Dependencies))
	for name := range owner.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue
		}
		if r.visiting[name] {
			return nil, fmt.Errorf("dependency cycle through %s", name)
		}
		r.visiting[name] = true
		rd, err := r.resolveOne(owner, name, owner.Dependencies[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(rd.Manifest, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		delete(r.visiting, name)
		resolved[name] = rd
		order = append(order, *rd)
	}
	return order, nil
}

func (r *Resolver) resolveOne(owner *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	var dir string
	switch {
	case dep.Path != "":
		dir = dep.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(owner.Dir, dir)
		}
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, dir, err)
		}
	case dep.Git != "":
		dir = filepath.Join(r.manifest.DepsDir(), name)
		if err := r.fetch(dir, name, dep); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	rd := &ResolvedDep{Name: name, Spec: dep, LocalPath: dir}
	if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
		m, err := Load(dir)
		if err != nil {
			return nil, err
		}
		rd.Manifest = m
	}
	return rd, nil
}

// fetch clones or updates a git dependency and checks out its tag.
func (r *Resolver) fetch(dir, name string, dep Dependency) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return fmt.Errorf("creating deps dir: %w", err)
		}
		log.Infof("cloning %s from %s", name, dep.Git)
		if _, err := r.git("", "clone", "--quiet", dep.Git, dir); err != nil {
			return err
		}
	} else if locked := r.lock.FindLockedDep(name); locked == nil || locked.Tag != dep.Tag {
		log.Infof("fetching %s", name)
		if _, err := r.git(dir, "fetch", "--quiet", "--all", "--tags"); err != nil {
			return err
		}
	}
	if dep.Tag != "" {
		if _, err := r.git(dir, "checkout", "--quiet", dep.Tag); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) writeLock(resolved map[string]*ResolvedDep) error {
	lf := &LockFile{}
	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rd := resolved[name]
		ld := LockedDep{Name: name}
		dep := rd.Spec
		switch {
		case dep.Git != "":
			ld.Git, ld.Tag = dep.Git, dep.Tag
			if commit, err := r.git(rd.LocalPath, "rev-parse", "HEAD"); err == nil {
				ld.Commit = commit
			}
		case dep.Path != "":
			ld.Path = dep.Path
		}
		lf.Deps = append(lf.Deps, ld)
	}
	if err := os.MkdirAll(filepath.Dir(r.manifest.LockFilePath()), 0o755); err != nil {
		return err
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}
