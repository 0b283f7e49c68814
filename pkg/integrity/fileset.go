package integrity

import (
	"sort"
	"strings"
)

// FileSet is the sorted, read-only set of package-relative paths that are
// expected in the published archive.
type FileSet struct {
	paths []string
}

// NewFileSet builds a FileSet from paths in any order; duplicates collapse.
func NewFileSet(paths ...string) FileSet {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, p := range sorted {
		if i > 0 && p == sorted[i-1] {
			continue
		}
		out = append(out, p)
	}
	return FileSet{paths: out}
}

func (s FileSet) Len() int { return len(s.paths) }

func (s FileSet) Has(path string) bool {
	i := sort.SearchStrings(s.paths, path)
	return i < len(s.paths) && s.paths[i] == path
}

// HasUnder reports whether the set contains dir itself or any path below it.
func (s FileSet) HasUnder(dir string) bool {
	if s.Has(dir) {
		return true
	}
	prefix := dir + "/"
	i := sort.SearchStrings(s.paths, prefix)
	return i < len(s.paths) && strings.HasPrefix(s.paths[i], prefix)
}

// Paths returns a copy of the paths in lexical order.
func (s FileSet) Paths() []string {
	return append([]string(nil), s.paths...)
}
