package excluder

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/gobwas/glob"
)

// Excluder matches file paths against a list of glob patterns.
type Excluder struct {
	globs []glob.Glob
}

// New creates an Excluder from a list of glob patterns.
// Patterns use '/' as the path separator.
func New(patterns []string) (*Excluder, error) {
	var globs []glob.Glob
	for _, pat := range patterns {
		g, err := glob.Compile(pat, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pat, err)
		}
		globs = append(globs, g)
	}
	return &Excluder{globs: globs}, nil
}

// IsExcluded returns true if rel, a path relative to the source root, or its
// base name matches any exclude pattern. A nil Excluder excludes nothing.
func (e *Excluder) IsExcluded(rel string) bool {
	if e == nil {
		return false
	}

	slashed := filepath.ToSlash(rel)
	base := path.Base(slashed)
	for _, g := range e.globs {
		if g.Match(slashed) || g.Match(base) {
			return true
		}
	}
	return false
}
