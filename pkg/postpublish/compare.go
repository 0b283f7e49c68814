package postpublish

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/integrity"
)

type DiscrepancyKind string

const (
	MissingLocally       DiscrepancyKind = "missing-locally"
	MissingRemotely      DiscrepancyKind = "missing-remotely"
	ContentMismatch      DiscrepancyKind = "content-mismatch"
	UnexpectedRemoteFile DiscrepancyKind = "unexpected-remote-file"
)

type Discrepancy struct {
	Path string
	Kind DiscrepancyKind
	Diff string `json:",omitempty"`
}

func (d Discrepancy) String() string {
	return fmt.Sprintf("%s (%s)", d.Path, d.Kind)
}

// Report lists every difference between the published archive and the
// expected files, ordered by path then kind. An empty report means the
// registry serves exactly what was verified.
type Report struct {
	Discrepancies []Discrepancy
}

func (r Report) Empty() bool { return len(r.Discrepancies) == 0 }

// CompareMode selects how file contents are compared.
type CompareMode string

const (
	CompareExact      CompareMode = "exact"
	CompareWhitespace CompareMode = "whitespace"
)

func ParseCompareMode(s string) (CompareMode, error) {
	switch CompareMode(s) {
	case "":
		return CompareExact, nil
	case CompareExact, CompareWhitespace:
		return CompareMode(s), nil
	default:
		return "", fmt.Errorf("unknown compare mode %q (want exact or whitespace)", s)
	}
}

func (m CompareMode) equal(a, b []byte) bool {
	if m == CompareWhitespace {
		return normalizeWhitespace(a) == normalizeWhitespace(b)
	}
	return bytes.Equal(a, b)
}

func normalizeWhitespace(b []byte) string {
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	return strings.Join(strings.Fields(s), " ")
}

// ReadFunc returns the local content of a package-relative path.
type ReadFunc func(path string) ([]byte, error)

// Compare checks the published files against the expected set, reading
// local contents through read.
func Compare(expected integrity.FileSet, pub *Published, read ReadFunc, mode CompareMode) (Report, error) {
	var r Report
	add := func(p string, k DiscrepancyKind, diff string) {
		r.Discrepancies = append(r.Discrepancies, Discrepancy{Path: p, Kind: k, Diff: diff})
	}

	for _, p := range expected.Paths() {
		remote, ok := pub.Files[p]
		if !ok {
			add(p, MissingRemotely, "")
			continue
		}
		local, err := read(p)
		if errors.Is(err, fs.ErrNotExist) {
			add(p, MissingLocally, "")
			continue
		}
		if err != nil {
			return Report{}, fmt.Errorf("read local %s: %w", p, err)
		}
		if !mode.equal(local, remote) {
			add(p, ContentMismatch, unifiedDiff(p, local, remote))
		}
	}

	for _, p := range pub.Paths() {
		if expected.Has(p) || p == LockFile {
			continue
		}
		add(p, UnexpectedRemoteFile, "")
	}

	sort.SliceStable(r.Discrepancies, func(i, j int) bool {
		a, b := r.Discrepancies[i], r.Discrepancies[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Kind < b.Kind
	})
	return r, nil
}

func unifiedDiff(p string, local, remote []byte) string {
	if isBinary(local) || isBinary(remote) {
		return fmt.Sprintf("Binary files local/%s and published/%s differ\n", p, p)
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(local)),
		B:        difflib.SplitLines(string(remote)),
		FromFile: "local/" + p,
		ToFile:   "published/" + p,
		Context:  3,
	})
	if err != nil || diff == "" {
		// SplitLines hides a missing final newline
		return fmt.Sprintf("local/%s and published/%s differ\n", p, p)
	}
	return diff
}

func isBinary(b []byte) bool {
	return !utf8.Valid(b) || bytes.IndexByte(b, 0) >= 0
}
