package matcher

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
)

// pattern is one compiled gitignore-style rule.
type pattern struct {
	raw         string
	glob        string
	negate      bool
	dirOnly     bool
	polarity    manifest.Polarity
	specificity int
}

// compile converts a gitignore-style pattern into a doublestar glob.
// ok is false for blank lines and comments.
func compile(rule manifest.Rule) (p pattern, ok bool, err error) {
	s := strings.TrimSpace(rule.Pattern)
	if s == "" || strings.HasPrefix(s, "#") {
		return pattern{}, false, nil
	}

	p = pattern{raw: rule.Pattern, polarity: rule.Polarity}

	if strings.HasPrefix(s, "!") {
		p.negate = true
		s = s[1:]
	} else if strings.HasPrefix(s, `\!`) || strings.HasPrefix(s, `\#`) {
		s = s[1:]
	}

	if strings.HasSuffix(s, "/") {
		p.dirOnly = true
		s = strings.TrimRight(s, "/")
	}

	// a slash anywhere but the end anchors the pattern to the package root
	anchored := strings.Contains(s, "/")
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return pattern{}, false, fmt.Errorf("pattern %q matches nothing", rule.Pattern)
	}
	if !anchored && !strings.HasPrefix(s, "**") {
		s = "**/" + s
	}

	if !doublestar.ValidatePattern(s) {
		return pattern{}, false, fmt.Errorf("invalid pattern %q", rule.Pattern)
	}

	p.glob = s
	p.specificity = literalChars(s)
	return p, true, nil
}

// matches reports whether the pattern matches path or any of its parent
// directories, so that a directory rule covers every file below it.
func (p pattern) matches(path string) bool {
	parts := strings.Split(path, "/")
	for i := 1; i <= len(parts); i++ {
		isDir := i < len(parts)
		if p.dirOnly && !isDir {
			continue
		}
		sub := strings.Join(parts[:i], "/")
		if ok, _ := doublestar.Match(p.glob, sub); ok {
			return true
		}
	}
	return false
}

// selects is the decision a matching rule makes: include rules select,
// exclude rules deselect, and a leading ! inverts either.
func (p pattern) selects() bool {
	return (p.polarity == manifest.PolarityInclude) != p.negate
}

func literalChars(glob string) int {
	n := 0
	for _, r := range glob {
		switch r {
		case '*', '?', '[', ']', '{', '}', '/', '\\':
		default:
			n++
		}
	}
	return n
}
