// Package matcher decides which paths the package manifest selects.
//
// Patterns use gitignore syntax, as cargo documents for `package.include` and
// `package.exclude`. How overlapping include and exclude rules combine is a
// convention of the wrapped ecosystem, so it is selected through Precedence.
package matcher

import (
	"fmt"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/manifest"
)

type Precedence string

const (
	// PrecedenceCargo follows cargo: when include rules exist exclude rules
	// are ignored, otherwise everything not excluded is selected. Within
	// each list the last matching rule wins.
	PrecedenceCargo Precedence = "cargo"
	// PrecedenceLastMatch evaluates include rules then exclude rules in
	// declaration order; the last matching rule wins.
	PrecedenceLastMatch Precedence = "last-match"
	// PrecedenceMostSpecific lets the matching rule with the most literal
	// characters win, the later rule on ties.
	PrecedenceMostSpecific Precedence = "most-specific"
)

func ParsePrecedence(s string) (Precedence, error) {
	switch Precedence(s) {
	case "":
		return PrecedenceCargo, nil
	case PrecedenceCargo, PrecedenceLastMatch, PrecedenceMostSpecific:
		return Precedence(s), nil
	default:
		return "", fmt.Errorf("unknown precedence %q (want cargo, last-match or most-specific)", s)
	}
}

// Matcher reports whether a package-relative path is selected for packaging.
type Matcher interface {
	Selected(path string) bool
}

type ruleMatcher struct {
	precedence Precedence
	includes   []pattern
	excludes   []pattern
}

// New compiles rules under the given precedence.
func New(rules []manifest.Rule, precedence Precedence) (Matcher, error) {
	if _, err := ParsePrecedence(string(precedence)); err != nil {
		return nil, err
	}
	if precedence == "" {
		precedence = PrecedenceCargo
	}

	m := &ruleMatcher{precedence: precedence}
	for _, r := range rules {
		p, ok, err := compile(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if r.Polarity == manifest.PolarityInclude {
			m.includes = append(m.includes, p)
		} else {
			m.excludes = append(m.excludes, p)
		}
	}
	return m, nil
}

func (m *ruleMatcher) Selected(path string) bool {
	switch m.precedence {
	case PrecedenceLastMatch:
		return lastMatch(m.all(), path, len(m.includes) == 0)
	case PrecedenceMostSpecific:
		return mostSpecific(m.all(), path, len(m.includes) == 0)
	default:
		if len(m.includes) > 0 {
			return lastMatch(m.includes, path, false)
		}
		return lastMatch(m.excludes, path, true)
	}
}

func (m *ruleMatcher) all() []pattern {
	all := make([]pattern, 0, len(m.includes)+len(m.excludes))
	all = append(all, m.includes...)
	return append(all, m.excludes...)
}

func lastMatch(patterns []pattern, path string, def bool) bool {
	decision := def
	for _, p := range patterns {
		if p.matches(path) {
			decision = p.selects()
		}
	}
	return decision
}

func mostSpecific(patterns []pattern, path string, def bool) bool {
	decision := def
	best := -1
	for _, p := range patterns {
		if !p.matches(path) {
			continue
		}
		if p.specificity >= best {
			best = p.specificity
			decision = p.selects()
		}
	}
	return decision
}
