package standoff

import (
	"fmt"
	"slices"

	"github.com/antchfx/xmlquery"

	"github.com/FocuswithJustin/standoffconverter/core/errors"
	sxml "github.com/FocuswithJustin/standoffconverter/core/xml"
)

// Fragment is a tree rebuilt from standoff annotations.
type Fragment struct {
	Root        *xmlquery.Node
	Annotations []*Annotation // canonical order
	nodes       map[*Annotation]*xmlquery.Node
}

// Node returns the element built for a.
func (f *Fragment) Node(a *Annotation) *xmlquery.Node {
	return f.nodes[a]
}

// Rebuild builds a tree from plain text and annotations. The annotations
// need not be sorted and may overlap; a span that crosses an earlier one is
// moved under the last enclosing parent that claims it. Empty plain text
// yields a nil fragment.
func Rebuild(plain string, anns []*Annotation) (*Fragment, error) {
	return rebuild([]rune(plain), anns)
}

func rebuild(plain []rune, anns []*Annotation) (*Fragment, error) {
	if len(plain) == 0 || len(anns) == 0 {
		return nil, nil
	}

	order := slices.Clone(anns)
	SortCanonical(order)
	for _, a := range order {
		if a.Begin < 0 || a.Begin > a.End || a.End > len(plain) {
			return nil, errors.NewValidation("span",
				fmt.Sprintf("%s outside text of length %d", a, len(plain)))
		}
	}

	f := &Fragment{
		Annotations: order,
		nodes:       make(map[*Annotation]*xmlquery.Node, len(order)),
	}
	for _, a := range order {
		f.nodes[a] = sxml.NewElement(a.Tag, a.Namespace, attrsOf(a))
	}

	lo, hi := order[0].Begin, order[0].End
	for _, a := range order {
		hi = max(hi, a.End)
	}

	// owners[p-lo] holds, outermost first, the order indexes of the
	// non-empty annotations covering position p.
	owners := make([][]int, hi-lo)
	milestones := make(map[int][]int)
	for i, a := range order {
		if a.Begin == a.End {
			milestones[a.Begin] = append(milestones[a.Begin], i)
			continue
		}
		for p := a.Begin; p < a.End; p++ {
			owners[p-lo] = append(owners[p-lo], i)
		}
	}

	var (
		target   *xmlquery.Node
		runStart = lo
	)
	flush := func(p int) {
		if target != nil && p > runStart {
			sxml.AppendText(target, string(plain[runStart:p]))
		}
		runStart = p
	}

	for p := lo; p <= hi; p++ {
		for _, i := range milestones[p] {
			flush(p)
			if i == 0 {
				continue
			}
			parent := milestoneParent(order, owners, milestones[p], lo, hi, i)
			if parent < 0 {
				return nil, errors.NewCorruption("rebuild",
					fmt.Sprintf("%s has no enclosing annotation", order[i]))
			}
			sxml.AppendChild(f.nodes[order[parent]], f.nodes[order[i]])
		}
		if p == hi {
			break
		}

		stack := owners[p-lo]
		if len(stack) == 0 {
			return nil, errors.NewCorruption("rebuild",
				fmt.Sprintf("position %d is not covered by any annotation", p))
		}
		for k := 0; k+1 < len(stack); k++ {
			parent, child := f.nodes[order[stack[k]]], f.nodes[order[stack[k+1]]]
			if child.Parent != parent {
				flush(p)
				sxml.AppendChild(parent, child)
			}
		}
		if inner := f.nodes[order[stack[len(stack)-1]]]; inner != target {
			flush(p)
			target = inner
		}
	}
	flush(hi)

	f.Root = f.nodes[order[0]]
	for _, a := range order[1:] {
		if topOf(f.nodes[a]) != f.Root {
			return nil, errors.NewCorruption("rebuild",
				fmt.Sprintf("%s is not reachable from root %s", a, order[0]))
		}
	}
	return f, nil
}

// milestoneParent picks the innermost earlier annotation that encloses the
// zero-width annotation order[i]. Candidates are those covering its
// position, those closing at it, and earlier milestones at the same spot.
// A candidate with a lower depth wins over one that is not, so a milestone
// following a closed sibling is not pulled into it.
func milestoneParent(order []*Annotation, owners [][]int, same []int, lo, hi, i int) int {
	a := order[i]
	p := a.Begin
	best, shallow := -1, -1
	consider := func(j int) {
		if j >= i || !IsParent(p, p, a.Depth, order[j]) {
			return
		}
		best = max(best, j)
		if order[j].Depth < a.Depth {
			shallow = max(shallow, j)
		}
	}
	if p < hi {
		for _, j := range owners[p-lo] {
			consider(j)
		}
	}
	if p > lo {
		for _, j := range owners[p-1-lo] {
			if order[j].End == p {
				consider(j)
			}
		}
	}
	for _, j := range same {
		consider(j)
	}
	if shallow >= 0 {
		return shallow
	}
	return best
}

func topOf(n *xmlquery.Node) *xmlquery.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// spanFix records where an annotation actually landed in a rebuilt tree.
type spanFix struct {
	ann        *Annotation
	begin, end int
}

// mismatches re-flattens the fragment and reports every annotation whose
// element does not cover exactly its declared span. offset is the text
// position of the fragment root.
func (f *Fragment) mismatches(offset int) []spanFix {
	byNode := make(map[*xmlquery.Node]*Annotation, len(f.nodes))
	for a, n := range f.nodes {
		byNode[n] = a
	}
	_, links := flatten(f.Root)
	var fixes []spanFix
	for _, l := range links {
		a := byNode[l.node]
		begin, end := l.ann.Begin+offset, l.ann.End+offset
		if a != nil && (a.Begin != begin || a.End != end) {
			fixes = append(fixes, spanFix{ann: a, begin: begin, end: end})
		}
	}
	return fixes
}
