// Package pathspec compiles the glob dialect spec.md's GLOSSARY defines
// for path patterns: a comma-separated list of expressions using "*" for
// one path segment and "**" for any depth. The Credential Store does not
// use this package: it compiles its hostname patterns with gobwas/glob
// directly.
package pathspec

import (
	"strings"

	"github.com/gobwas/glob"
)

// Pattern is a compiled, comma-separated alternative list of globs.
type Pattern struct {
	raw  string
	alts []glob.Glob
}

// Compile parses a comma-separated pattern. An empty pattern matches
// nothing; "**" (or "/**") matches everything.
func Compile(pattern string) (*Pattern, error) {
	p := &Pattern{raw: pattern}
	for _, part := range splitAlternatives(pattern) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		g, err := glob.Compile(part, '/')
		if err != nil {
			return nil, err
		}
		p.alts = append(p.alts, g)
	}
	return p, nil
}

// MustCompile is Compile but panics on error, for package-level patterns.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether path matches any alternative in the pattern.
func (p *Pattern) Match(path string) bool {
	for _, g := range p.alts {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// String returns the original, uncompiled pattern text.
func (p *Pattern) String() string { return p.raw }

// splitAlternatives splits on top-level commas. Path patterns never
// contain a comma inside a segment in this grammar, so a plain split is
// sufficient.
func splitAlternatives(pattern string) []string {
	return strings.Split(pattern, ",")
}
