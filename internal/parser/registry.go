package parser

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Registry resolves filenames to parsers by case-insensitive extension.
// It is built once at startup and read-only afterwards, so lookups need
// no locking.
type Registry struct {
	byExt map[string]Parser
	exts  []string
}

// NewRegistry indexes the given parsers by their extensions. A later
// parser claiming an extension an earlier one already covers wins, which
// lets callers override a default.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{byExt: make(map[string]Parser)}
	for _, p := range parsers {
		for _, ext := range p.Extensions() {
			ext = strings.ToLower(ext)
			if _, dup := r.byExt[ext]; !dup {
				r.exts = append(r.exts, ext)
			}
			r.byExt[ext] = p
		}
	}
	sort.Strings(r.exts)
	return r
}

// DefaultRegistry covers every built-in format.
func DefaultRegistry() *Registry {
	return NewRegistry(NewDelimitedParser(), NewWorkbookParser())
}

// Resolve returns the parser for a filename's extension, or an
// ErrUnsupportedFormat naming the accepted extensions.
func (r *Registry) Resolve(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if p, ok := r.byExt[ext]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(r.exts, ", "))
}

// Extensions returns the sorted union of supported extensions.
func (r *Registry) Extensions() []string {
	out := make([]string, len(r.exts))
	copy(out, r.exts)
	return out
}
