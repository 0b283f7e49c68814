// Package vcs captures the version-control state of a package's working tree.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrNotRepository is returned when the package is not inside a repository.
var ErrNotRepository = errors.New("package is not inside a git repository")

// PathSet is a set of slash-separated paths relative to the package root.
type PathSet map[string]struct{}

func NewPathSet(paths ...string) PathSet {
	s := make(PathSet, len(paths))
	for _, p := range paths {
		s[p] = struct{}{}
	}
	return s
}

func (s PathSet) Add(p string) { s[p] = struct{}{} }

func (s PathSet) Has(p string) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the paths in lexical order.
func (s PathSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Status is a point-in-time snapshot of the working tree. Tracked, Untracked
// and Ignored are disjoint; Modified is the subset of Tracked with changes
// that are not committed.
type Status struct {
	Root      string
	Tracked   PathSet
	Untracked PathSet
	Ignored   PathSet
	Modified  PathSet
}

// NewStatus returns an empty snapshot for root.
func NewStatus(root string) Status {
	return Status{
		Root:      root,
		Tracked:   PathSet{},
		Untracked: PathSet{},
		Ignored:   PathSet{},
		Modified:  PathSet{},
	}
}

// Validate checks the disjointness invariants.
func (s Status) Validate() error {
	for p := range s.Untracked {
		if s.Tracked.Has(p) {
			return fmt.Errorf("path %q is both tracked and untracked", p)
		}
		if s.Ignored.Has(p) {
			return fmt.Errorf("path %q is both untracked and ignored", p)
		}
	}
	for p := range s.Ignored {
		if s.Tracked.Has(p) {
			return fmt.Errorf("path %q is both tracked and ignored", p)
		}
	}
	for p := range s.Modified {
		if !s.Tracked.Has(p) {
			return fmt.Errorf("modified path %q is not tracked", p)
		}
	}
	return nil
}

// All returns every known path.
func (s Status) All() PathSet {
	all := make(PathSet, len(s.Tracked)+len(s.Untracked)+len(s.Ignored))
	for _, set := range []PathSet{s.Tracked, s.Untracked, s.Ignored} {
		for p := range set {
			all.Add(p)
		}
	}
	return all
}

// Backend snapshots the working tree containing root. Paths in the returned
// Status are relative to root, which must be the package directory. Files
// below the prune directories are only reported when the index tracks them.
type Backend interface {
	Snapshot(ctx context.Context, root string, prune ...string) (Status, error)
}
