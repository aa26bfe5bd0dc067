package filter

import (
	"strings"

	"github.com/mahyarmirrashed/fileorg/internal/excluder"
	"github.com/mahyarmirrashed/fileorg/internal/traverser"
)

// Filter decides which traversed files take part in a run.
type Filter struct {
	extensions map[string]struct{}
	names      map[string]struct{}
	ex         *excluder.Excluder
}

// New builds a Filter. Extensions may be given with or without the leading
// dot and blank values are ignored. ex may be nil.
func New(extensions, names []string, ex *excluder.Excluder) *Filter {
	f := &Filter{
		extensions: make(map[string]struct{}, len(extensions)),
		names:      make(map[string]struct{}, len(names)),
		ex:         ex,
	}
	for _, e := range extensions {
		if e = strings.TrimPrefix(strings.TrimSpace(e), "."); e != "" {
			f.extensions[e] = struct{}{}
		}
	}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			f.names[n] = struct{}{}
		}
	}
	return f
}

// Accept reports whether entry should be transferred. Excluded paths are
// always rejected. With no extension or name configured every file is
// accepted; otherwise a file matching either set is. Matching is exact and
// case-sensitive.
func (f *Filter) Accept(entry traverser.FileEntry) bool {
	if f.ex.IsExcluded(entry.Rel) {
		return false
	}

	if len(f.extensions) == 0 && len(f.names) == 0 {
		return true
	}

	if _, ok := f.names[entry.Name]; ok {
		return true
	}
	if entry.Extension == "" {
		return false
	}
	_, ok := f.extensions[entry.Extension]
	return ok
}
