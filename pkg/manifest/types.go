package manifest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/cargo"
)

// FileName is the name of the cargo manifest file.
const FileName = "Cargo.toml"

type Polarity string

const (
	PolarityInclude Polarity = "include"
	PolarityExclude Polarity = "exclude"
)

// Rule is one `package.include` or `package.exclude` pattern.
type Rule struct {
	Pattern  string
	Polarity Polarity
}

// Package is the declared metadata of the package being published. It is
// loaded once per run and must not be mutated afterwards; accessors return
// copies of the slices.
type Package struct {
	Name         string
	Version      string
	Root         string // directory containing the manifest
	ManifestPath string
	TargetDir    string

	rules            []Rule
	declaredIncludes []string
}

// Reader loads the manifest of the package to publish.
type Reader interface {
	Read(ctx context.Context) (Package, error)
}

// NewPackage builds a Package from include and exclude patterns in
// declaration order. Include rules precede exclude rules.
func NewPackage(name, version, root, manifestPath, targetDir string, includes, excludes []string) Package {
	p := Package{
		Name:         name,
		Version:      version,
		Root:         root,
		ManifestPath: manifestPath,
		TargetDir:    targetDir,
	}
	for _, pat := range includes {
		p.rules = append(p.rules, Rule{Pattern: pat, Polarity: PolarityInclude})
		if lit, ok := literalPath(pat); ok {
			p.declaredIncludes = append(p.declaredIncludes, lit)
		}
	}
	for _, pat := range excludes {
		p.rules = append(p.rules, Rule{Pattern: pat, Polarity: PolarityExclude})
	}
	return p
}

func (p Package) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// DeclaredIncludes lists include rules that name a concrete path rather than a glob.
func (p Package) DeclaredIncludes() []string {
	return append([]string(nil), p.declaredIncludes...)
}

func (p Package) HasIncludes() bool {
	return p.count(PolarityInclude) > 0
}

func (p Package) HasExcludes() bool {
	return p.count(PolarityExclude) > 0
}

func (p Package) count(pol Polarity) int {
	n := 0
	for _, r := range p.rules {
		if r.Polarity == pol {
			n++
		}
	}
	return n
}

// String renders "name version (root)", as shown at the start of a run.
func (p Package) String() string {
	return p.Name + " " + p.Version + " (" + p.Root + ")"
}

// ResolvedTargetDir is TargetDir, or the default target directory of the
// package when cargo did not report one.
func (p Package) ResolvedTargetDir() string {
	if p.TargetDir == "" {
		return filepath.Join(p.Root, "target")
	}
	return p.TargetDir
}

// ArchiveBaseName is "<name>-<version>".
func (p Package) ArchiveBaseName() string {
	return cargo.ArchiveBaseName(p.Name, p.Version)
}

// literalPath returns the path named by a pattern without glob syntax.
func literalPath(pattern string) (string, bool) {
	p := strings.TrimSpace(pattern)
	if p == "" || strings.HasPrefix(p, "!") || strings.HasPrefix(p, "#") {
		return "", false
	}
	if strings.ContainsAny(p, "*?[]{}\\") {
		return "", false
	}
	p = strings.Trim(p, "/")
	if p == "" {
		return "", false
	}
	return p, true
}
