// Package integrity cross-checks the files a manifest would package against
// the version-control status of the working tree.
//
// Check is a pure function of its inputs: it reads neither package files nor
// the repository, so the same manifest and status always produce the same
// expected file set and the same violations.
package integrity

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/failure"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/matcher"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/vcs"
)

type ViolationKind string

const (
	ViolationUnexpectedFile      ViolationKind = "unexpected-file"
	ViolationMissingExpectedFile ViolationKind = "missing-expected-file"
	ViolationUncommittedChange   ViolationKind = "uncommitted-change"
)

type Violation struct {
	Path   string
	Kind   ViolationKind
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s (%s: %s)", v.Path, v.Kind, v.Detail)
}

type Result struct {
	Expected   FileSet
	Violations []Violation
	Warnings   []string
}

// Check computes the expected file set of pkg and every way it disagrees with
// status. A non-empty violation list is returned as an IntegrityViolation
// error alongside the populated Result.
func Check(pkg manifest.Package, status vcs.Status, m matcher.Matcher) (Result, error) {
	if !sameDir(pkg.Root, status.Root) {
		return Result{}, failure.Config(fmt.Sprintf(
			"repository status was captured for %s but the manifest belongs to %s", status.Root, pkg.Root)).Build()
	}

	var res Result
	if pkg.HasIncludes() && pkg.HasExcludes() {
		res.Warnings = append(res.Warnings,
			"both `package.include` and `package.exclude` are set; cargo ignores `package.exclude` in this case")
	}

	skip := neverPackaged(pkg, status)

	candidates := vcs.NewPathSet()
	for p := range status.Tracked {
		candidates.Add(p)
	}
	for p := range status.Untracked {
		candidates.Add(p)
	}
	// without an include list cargo honours the VCS ignore files
	if pkg.HasIncludes() {
		for p := range status.Ignored {
			candidates.Add(p)
		}
	}

	var selected []string
	for _, p := range candidates.Sorted() {
		if p == manifest.FileName || (!skip(p) && m.Selected(p)) {
			selected = append(selected, p)
		}
	}
	res.Expected = NewFileSet(selected...)

	for _, p := range res.Expected.Paths() {
		switch {
		case status.Untracked.Has(p):
			res.Violations = append(res.Violations, Violation{Path: p, Kind: ViolationUnexpectedFile, Detail: "untracked"})
		case status.Ignored.Has(p):
			res.Violations = append(res.Violations, Violation{Path: p, Kind: ViolationUnexpectedFile, Detail: "ignored"})
		case status.Modified.Has(p):
			res.Violations = append(res.Violations, Violation{Path: p, Kind: ViolationUncommittedChange, Detail: "modified"})
		}
	}

	for _, declared := range pkg.DeclaredIncludes() {
		if !hasTrackedUnder(res.Expected, status.Tracked, declared) {
			res.Violations = append(res.Violations, Violation{
				Path:   declared,
				Kind:   ViolationMissingExpectedFile,
				Detail: "declared in package.include but no tracked file is packaged",
			})
		}
	}

	sort.SliceStable(res.Violations, func(i, j int) bool {
		if res.Violations[i].Path != res.Violations[j].Path {
			return res.Violations[i].Path < res.Violations[j].Path
		}
		return res.Violations[i].Kind < res.Violations[j].Kind
	})

	if len(res.Violations) > 0 {
		return res, failure.Integrity(fmt.Sprintf(
			"%d problems found in the files that would be published", len(res.Violations))).Build()
	}
	return res, nil
}

// neverPackaged returns the paths cargo always leaves out: VCS metadata, the
// target directory and nested packages.
func neverPackaged(pkg manifest.Package, status vcs.Status) func(string) bool {
	var prefixes []string

	targetDir := pkg.ResolvedTargetDir()
	if rel, err := filepath.Rel(pkg.Root, targetDir); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		prefixes = append(prefixes, filepath.ToSlash(rel)+"/")
	}

	for p := range status.All() {
		dir, file := splitLast(p)
		if file == manifest.FileName && dir != "" {
			prefixes = append(prefixes, dir+"/")
		}
	}

	return func(p string) bool {
		if p == ".git" || strings.HasPrefix(p, ".git/") || strings.Contains(p, "/.git/") {
			return true
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(p, prefix) {
				return true
			}
		}
		return false
	}
}

func hasTrackedUnder(expected FileSet, tracked vcs.PathSet, dir string) bool {
	if !expected.HasUnder(dir) {
		return false
	}
	prefix := dir + "/"
	for _, p := range expected.Paths() {
		if (p == dir || strings.HasPrefix(p, prefix)) && tracked.Has(p) {
			return true
		}
	}
	return false
}

func splitLast(p string) (dir, file string) {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

func sameDir(a, b string) bool {
	return clean(a) == clean(b)
}

func clean(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	return filepath.Clean(dir)
}
