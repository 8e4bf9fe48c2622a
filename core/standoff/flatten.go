package standoff

import (
	"github.com/antchfx/xmlquery"

	sxml "github.com/FocuswithJustin/standoffconverter/core/xml"
)

// link pairs an annotation with the element it stands for.
type link struct {
	ann  *Annotation
	node *xmlquery.Node
}

// Flattened is the standoff form of a tree.
type Flattened struct {
	Plain       string
	Annotations []*Annotation // document order
	nodes       map[*Annotation]*xmlquery.Node
}

// Node returns the element a was produced from.
func (f *Flattened) Node(a *Annotation) *xmlquery.Node {
	return f.nodes[a]
}

// Flatten converts the tree under root into plain text and one annotation
// per element. Text following an element is attributed to its parent.
func Flatten(root *xmlquery.Node) *Flattened {
	plain, links := flatten(sxml.RootElement(root))
	f := &Flattened{
		Plain:       string(plain),
		Annotations: make([]*Annotation, len(links)),
		nodes:       make(map[*Annotation]*xmlquery.Node, len(links)),
	}
	for i, l := range links {
		f.Annotations[i] = l.ann
		f.nodes[l.ann] = l.node
	}
	return f
}

// flatten walks root in pre-order. Depth counts from 0 at root.
func flatten(root *xmlquery.Node) ([]rune, []link) {
	if root == nil {
		return nil, nil
	}
	var plain []rune
	var links []link

	var visit func(n *xmlquery.Node, depth int)
	visit = func(n *xmlquery.Node, depth int) {
		a := &Annotation{
			Begin:     len(plain),
			Tag:       sxml.Name(n),
			Attrib:    attribOf(n),
			Depth:     depth,
			Namespace: n.NamespaceURI,
		}
		links = append(links, link{ann: a, node: n})
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			switch {
			case sxml.IsText(child):
				plain = append(plain, []rune(child.Data)...)
			case sxml.IsElement(child):
				visit(child, depth+1)
			}
		}
		a.End = len(plain)
	}
	visit(root, 0)

	return plain, links
}

func attribOf(n *xmlquery.Node) Attrib {
	var a Attrib
	for _, attr := range sxml.Attrs(n) {
		a.Set(attr.Name, attr.Value)
	}
	return a
}

func attrsOf(a *Annotation) []sxml.Attr {
	keys := a.Attrib.Keys()
	attrs := make([]sxml.Attr, 0, len(keys))
	for _, k := range keys {
		v, _ := a.Attrib.Get(k)
		attrs = append(attrs, sxml.Attr{Name: k, Value: v})
	}
	return attrs
}
