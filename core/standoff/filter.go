package standoff

import (
	"slices"
	"strings"

	"github.com/antchfx/xmlquery"

	sxml "github.com/FocuswithJustin/standoffconverter/core/xml"
)

// Result is one element of a filter's working set together with its text,
// minus every excluded character.
type Result struct {
	Text       string
	Annotation *Annotation
}

// Filter narrows a Store down by tag. It holds a working set of
// annotations, initially the root, and a mask of excluded text positions.
// Filters share their Store; the working set and mask are their own.
type Filter struct {
	store     *Store
	namespace string
	working   []*Annotation
	mask      []bool
}

// NewFilter starts a query at the root of s. With a non-empty namespace,
// tags are matched by namespace URI and local name; otherwise by the
// qualified tag.
func NewFilter(s *Store, namespace string) *Filter {
	f := &Filter{
		store:     s,
		namespace: namespace,
		mask:      make([]bool, len(s.plain)),
	}
	if root := s.Root(); root != nil {
		f.working = []*Annotation{root}
	}
	return f
}

// Find replaces the working set with the descendants of its members that
// match tag, in document order.
func (f *Filter) Find(tag string) *Filter {
	seen := make(map[*Annotation]bool)
	var next []*Annotation
	for _, a := range f.working {
		n := f.store.Node(a)
		if n == nil {
			continue
		}
		sxml.WalkElements(n, false, func(child *xmlquery.Node) {
			if !f.matches(child, tag) {
				return
			}
			if c := f.store.AnnotationOf(child); c != nil && !seen[c] {
				seen[c] = true
				next = append(next, c)
			}
		})
	}
	f.working = next
	return f
}

// Exclude masks the text of every element matching tag at or below the
// working set. The working set is unchanged and masked positions stay
// masked.
func (f *Filter) Exclude(tag string) *Filter {
	for _, a := range f.working {
		n := f.store.Node(a)
		if n == nil {
			continue
		}
		sxml.WalkElements(n, true, func(child *xmlquery.Node) {
			if !f.matches(child, tag) {
				return
			}
			if c := f.store.AnnotationOf(child); c != nil {
				for p := c.Begin; p < c.End && p < len(f.mask); p++ {
					f.mask[p] = true
				}
			}
		})
	}
	return f
}

// Results returns the working set with filtered text.
func (f *Filter) Results() []Result {
	results := make([]Result, 0, len(f.working))
	for _, a := range f.working {
		results = append(results, Result{Text: f.text(a), Annotation: a})
	}
	return results
}

// First returns the first result. ok is false when the working set is
// empty.
func (f *Filter) First() (r Result, ok bool) {
	if len(f.working) == 0 {
		return Result{}, false
	}
	a := f.working[0]
	return Result{Text: f.text(a), Annotation: a}, true
}

// Len returns the size of the working set.
func (f *Filter) Len() int {
	return len(f.working)
}

// Copy returns a filter with its own working set and mask over the same
// Store.
func (f *Filter) Copy() *Filter {
	return &Filter{
		store:     f.store,
		namespace: f.namespace,
		working:   slices.Clone(f.working),
		mask:      slices.Clone(f.mask),
	}
}

func (f *Filter) text(a *Annotation) string {
	var sb strings.Builder
	for p := a.Begin; p < a.End; p++ {
		if p < len(f.mask) && f.mask[p] {
			continue
		}
		sb.WriteRune(f.store.plain[p])
	}
	return sb.String()
}

func (f *Filter) matches(n *xmlquery.Node, tag string) bool {
	if f.namespace != "" {
		return n.NamespaceURI == f.namespace && n.Data == tag
	}
	return sxml.Name(n) == tag
}
