package standoff

import "slices"

// Locate finds the closest annotation that encloses the span [begin,end)
// at depth, together with every annotation nested inside that parent. It
// returns a nil parent when nothing encloses the span.
func Locate(begin, end, depth int, anns []*Annotation) (*Annotation, []*Annotation) {
	ordered := slices.Clone(anns)
	SortCanonical(ordered)
	return locate(begin, end, depth, ordered)
}

// locate scans annotations in canonical order, which moves from broad to
// narrow. Each enclosing annotation replaces the current parent; once a
// parent is fixed, its nested annotations follow contiguously and the first
// unrelated one ends the scan.
func locate(begin, end, depth int, ordered []*Annotation) (*Annotation, []*Annotation) {
	var (
		parent   *Annotation
		children []*Annotation
	)
	for _, a := range ordered {
		if IsParent(begin, end, depth, a) {
			parent = a
			children = children[:0]
			continue
		}
		if parent == nil {
			continue
		}
		if !IsParent(a.Begin, a.End, a.Depth, parent) {
			break
		}
		children = append(children, a)
	}
	return parent, children
}
