package standoff

import (
	"fmt"
	"slices"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/FocuswithJustin/standoffconverter/core/errors"
	sxml "github.com/FocuswithJustin/standoffconverter/core/xml"
	"github.com/FocuswithJustin/standoffconverter/internal/logging"
)

// AddAnnotation inserts a new annotation over [begin,end) and rebuilds the
// subtree of its closest enclosing annotation. depth orders it against
// annotations with the same span: a lower depth nests outside.
//
// With unique set, an annotation that duplicates an existing one (same
// span, tag and attribute set) is skipped and AddAnnotation returns nil
// without error. The edit is refused with an UnsupportedError when the
// enclosing annotation is missing or is the document root; the store is
// unchanged after any error.
func (s *Store) AddAnnotation(begin, end int, tag string, depth int, attrib Attrib, unique bool) (*Annotation, error) {
	if err := s.checkSpan(begin, end); err != nil {
		logging.EditRejected("add", tag, begin, end, err)
		return nil, err
	}
	if tag == "" {
		err := errors.NewValidation("tag", "empty tag")
		logging.EditRejected("add", tag, begin, end, err)
		return nil, err
	}
	if unique && s.IsDuplicate(begin, end, tag, attrib) {
		logging.DuplicateSuppressed(tag, begin, end)
		return nil, nil
	}

	a := &Annotation{
		Begin:  begin,
		End:    end,
		Tag:    tag,
		Attrib: attrib.Clone(),
		Depth:  depth,
	}
	parent, children := locate(begin, end, depth, s.annotations)
	children = s.nested(parent, children)
	if parent != nil {
		a.Namespace = s.inheritedNamespace(tag, parent)
	}

	members := make([]*Annotation, 0, len(children)+2)
	members = append(members, children...)
	members = append(members, a, parent)

	frag, err := s.rebuildSubtree(parent, children, members)
	if err != nil {
		logging.EditRejected("add", tag, begin, end, err)
		return nil, err
	}
	s.commit(parent, frag)
	s.insert(a)

	logging.EditApplied("add", tag, begin, end, len(members))
	return a, nil
}

// RemoveAnnotation deletes a and rebuilds the subtree of its closest
// enclosing annotation. The same location rules as AddAnnotation apply, so
// the root and its direct children cannot be removed.
func (s *Store) RemoveAnnotation(a *Annotation) error {
	if !s.Contains(a) {
		id := ""
		if a != nil {
			id = a.String()
		}
		err := errors.NewNotFound("annotation", id)
		if a != nil {
			logging.EditRejected("remove", a.Tag, a.Begin, a.End, err)
		}
		return err
	}

	parent, children := locate(a.Begin, a.End, a.Depth, s.annotations)
	if n := s.nodes[a]; n != nil {
		// locate matches empty siblings at a parent's edge by span alone
		parent = s.anns[sxml.ElementParent(n)]
		children = s.descendants(parent)
	}
	i := slices.Index(children, a)
	if parent != nil && i < 0 {
		err := errors.NewCorruption("remove",
			fmt.Sprintf("%s is not nested in its enclosing annotation %s", a, parent))
		logging.EditRejected("remove", a.Tag, a.Begin, a.End, err)
		return err
	}

	var members []*Annotation
	if parent != nil {
		members = make([]*Annotation, 0, len(children))
		members = append(members, children[:i]...)
		members = append(members, children[i+1:]...)
		members = append(members, parent)
	}

	frag, err := s.rebuildSubtree(parent, children, members)
	if err != nil {
		logging.EditRejected("remove", a.Tag, a.Begin, a.End, err)
		return err
	}
	s.commit(parent, frag)
	delete(s.nodes, a)
	j := s.indexOf(a)
	s.annotations = slices.Delete(s.annotations, j, j+1)

	logging.EditApplied("remove", a.Tag, a.Begin, a.End, len(members))
	return nil
}

// nested keeps the candidates whose elements lie inside parent's element.
// Empty siblings just before or after parent match its span but are not
// nested in it.
func (s *Store) nested(parent *Annotation, candidates []*Annotation) []*Annotation {
	pnode := s.nodes[parent]
	if pnode == nil {
		return candidates
	}
	var kept []*Annotation
	for _, c := range candidates {
		if n := s.nodes[c]; n != nil && sxml.IsAncestor(pnode, n) {
			kept = append(kept, c)
		}
	}
	return kept
}

// descendants returns the annotations of the elements below parent's.
func (s *Store) descendants(parent *Annotation) []*Annotation {
	pnode := s.nodes[parent]
	if pnode == nil {
		return nil
	}
	var out []*Annotation
	sxml.WalkElements(pnode, false, func(n *xmlquery.Node) {
		if c := s.anns[n]; c != nil {
			out = append(out, c)
		}
	})
	return out
}

// rebuildSubtree builds the replacement for parent's element from members
// without touching the store. current lists the annotations now nested in
// parent, which must be exactly the annotations of its descendants.
func (s *Store) rebuildSubtree(parent *Annotation, current, members []*Annotation) (*Fragment, error) {
	if parent == nil {
		return nil, errors.NewUnsupported("edit location", "no enclosing annotation")
	}
	pnode := s.nodes[parent]
	if pnode == nil {
		return nil, errors.NewUnsupported("edit location", "document has no tree")
	}
	if sxml.ElementParent(pnode) == nil {
		return nil, errors.NewUnsupported("edit location",
			fmt.Sprintf("enclosing annotation %s is the document root", parent))
	}

	want := make(map[*Annotation]bool, len(current))
	for _, c := range current {
		want[c] = true
	}
	found := 0
	consistent := true
	sxml.WalkElements(pnode, false, func(n *xmlquery.Node) {
		if want[s.anns[n]] {
			found++
		} else {
			consistent = false
		}
	})
	if !consistent || found != len(current) {
		return nil, errors.NewUnsupported("edit location",
			fmt.Sprintf("annotations cross the boundary of %s", parent))
	}

	frag, err := rebuild(s.plain, members)
	if err != nil {
		return nil, err
	}
	if frag.Annotations[0] != parent {
		return nil, errors.NewCorruption("rebuild",
			fmt.Sprintf("fragment root %s is not %s", frag.Annotations[0], parent))
	}
	if fixes := frag.mismatches(parent.Begin); len(fixes) > 0 {
		fix := fixes[0]
		return nil, errors.NewUnsupported("overlap",
			fmt.Sprintf("%s would cover [%d,%d)", fix.ann, fix.begin, fix.end))
	}
	return frag, nil
}

// commit swaps frag in for parent's element and relinks the touched
// annotations. Text after the old element stays where it was.
func (s *Store) commit(parent *Annotation, frag *Fragment) {
	old := s.nodes[parent]
	sxml.Replace(old, frag.Root)
	sxml.WalkElements(old, true, func(n *xmlquery.Node) {
		delete(s.anns, n)
	})
	for a, n := range frag.nodes {
		s.link(a, n)
	}
}

// inheritedNamespace gives an unprefixed tag the default namespace of its
// parent element, and a prefixed tag the parent's namespace when the
// prefixes agree.
func (s *Store) inheritedNamespace(tag string, parent *Annotation) string {
	pnode := s.nodes[parent]
	if pnode == nil {
		return ""
	}
	prefix := ""
	if i := strings.IndexByte(tag, ':'); i > 0 {
		prefix = tag[:i]
	}
	if pnode.Prefix == prefix {
		return pnode.NamespaceURI
	}
	return ""
}
