// Package xml is the document tree layer of the standoff converter. It wraps
// antchfx/xmlquery nodes with the handful of primitives the converter needs:
// parsing, element construction, text appends, subtree replacement, XPath
// selection and compact serialization.
//
// Security Notes:
//   - XXE (External Entity) attacks are mitigated by Go's xml.Decoder, which
//     xmlquery uses internally and which never fetches external entities.
package xml

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/FocuswithJustin/standoffconverter/core/cache"
	"github.com/FocuswithJustin/standoffconverter/core/encoding"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// xmlNamespace is the URI encoding/xml reports for the reserved "xml" prefix.
const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// compiled holds recently used XPath expressions.
var compiled = cache.NewCompiled(128, xpath.Compile)

// Document represents a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Attr is a qualified attribute name and its value.
type Attr struct {
	Name  string
	Value string
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader parses XML from r and returns a Document.
func ParseReader(r io.Reader) (*Document, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Node returns the document node holding the root element.
func (d *Document) Node() *xmlquery.Node {
	return d.root
}

// Root returns the root element of the document.
func (d *Document) Root() *xmlquery.Node {
	if d.root == nil {
		return nil
	}
	return RootElement(d.root)
}

// RootElement returns n itself when it is an element, otherwise its first
// element child. It returns nil when there is none.
func RootElement(n *xmlquery.Node) *xmlquery.Node {
	if n == nil {
		return nil
	}
	if n.Type == xmlquery.ElementNode {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return child
		}
	}
	return nil
}

// IsElement reports whether n is an element node.
func IsElement(n *xmlquery.Node) bool {
	return n != nil && n.Type == xmlquery.ElementNode
}

// IsText reports whether n carries character data.
func IsText(n *xmlquery.Node) bool {
	return n != nil && (n.Type == xmlquery.TextNode || n.Type == xmlquery.CharDataNode)
}

// ElementParent returns the parent element of n, or nil when n is the
// document root.
func ElementParent(n *xmlquery.Node) *xmlquery.Node {
	if n == nil || !IsElement(n.Parent) {
		return nil
	}
	return n.Parent
}

// Name returns the qualified element name (prefix:local).
func Name(n *xmlquery.Node) string {
	if n.Prefix != "" {
		return n.Prefix + ":" + n.Data
	}
	return n.Data
}

// Attrs returns the attributes of n with qualified names, in document order.
func Attrs(n *xmlquery.Node) []Attr {
	attrs := make([]Attr, 0, len(n.Attr))
	for _, a := range n.Attr {
		attrs = append(attrs, Attr{Name: attrName(a), Value: a.Value})
	}
	return attrs
}

func attrName(a xmlquery.Attr) string {
	switch {
	case a.Name.Space == "":
		return a.Name.Local
	case a.Name.Space == xmlNamespace:
		return "xml:" + a.Name.Local
	case strings.ContainsAny(a.Name.Space, "/:"):
		// unresolved namespace URI, no usable prefix
		return a.Name.Local
	default:
		return a.Name.Space + ":" + a.Name.Local
	}
}

// NewElement creates a detached element. name may carry a prefix.
func NewElement(name, namespaceURI string, attrs []Attr) *xmlquery.Node {
	n := &xmlquery.Node{
		Type:         xmlquery.ElementNode,
		NamespaceURI: namespaceURI,
	}
	n.Prefix, n.Data = splitName(name)
	for _, a := range attrs {
		space, local := splitName(a.Name)
		attr := xmlquery.Attr{Value: a.Value}
		attr.Name.Space = space
		attr.Name.Local = local
		n.Attr = append(n.Attr, attr)
	}
	return n
}

func splitName(name string) (prefix, local string) {
	if i := strings.IndexByte(name, ':'); i > 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// AppendChild appends child as the last child of parent, detaching it from
// any previous parent first.
func AppendChild(parent, child *xmlquery.Node) {
	Detach(child)
	child.Parent = parent
	if parent.LastChild == nil {
		parent.FirstChild = child
	} else {
		parent.LastChild.NextSibling = child
		child.PrevSibling = parent.LastChild
	}
	parent.LastChild = child
}

// Detach unlinks n from its parent and siblings.
func Detach(n *xmlquery.Node) {
	if n.Parent == nil {
		return
	}
	xmlquery.RemoveFromTree(n)
}

// AppendText appends s at the end of n's content. If n has no element
// children this extends n's own text, otherwise it extends the tail of the
// last child element.
func AppendText(n *xmlquery.Node, s string) {
	if s == "" {
		return
	}
	if last := n.LastChild; last != nil && last.Type == xmlquery.TextNode {
		last.Data += s
		return
	}
	AppendChild(n, &xmlquery.Node{Type: xmlquery.TextNode, Data: s})
}

// Replace puts replacement where old is. The text following old (its tail)
// stays in place and therefore now follows replacement.
func Replace(old, replacement *xmlquery.Node) {
	Detach(replacement)
	parent := old.Parent
	replacement.Parent = parent
	replacement.PrevSibling = old.PrevSibling
	replacement.NextSibling = old.NextSibling
	if old.PrevSibling != nil {
		old.PrevSibling.NextSibling = replacement
	} else if parent != nil {
		parent.FirstChild = replacement
	}
	if old.NextSibling != nil {
		old.NextSibling.PrevSibling = replacement
	} else if parent != nil {
		parent.LastChild = replacement
	}
	old.Parent, old.PrevSibling, old.NextSibling = nil, nil, nil
}

// WalkElements visits n's descendant elements in document order. If self is
// true n itself is visited first.
func WalkElements(n *xmlquery.Node, self bool, fn func(*xmlquery.Node)) {
	if self && IsElement(n) {
		fn(n)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			WalkElements(child, true, fn)
		}
	}
}

// IsAncestor reports whether anc is a proper ancestor of n.
func IsAncestor(anc, n *xmlquery.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == anc {
			return true
		}
	}
	return false
}

// Select executes an XPath expression relative to top and returns the
// matching element nodes.
func Select(top *xmlquery.Node, expr string) ([]*xmlquery.Node, error) {
	e, err := compiled.Get(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	var result []*xmlquery.Node
	for _, n := range xmlquery.QuerySelectorAll(top, e) {
		if n.Type == xmlquery.ElementNode {
			result = append(result, n)
		}
	}
	return result, nil
}

// Serialize writes n and its subtree as compact XML. Empty elements are
// written self-closing, as libxml2 does.
func Serialize(n *xmlquery.Node) []byte {
	if n == nil {
		return nil
	}
	var buf bytes.Buffer
	writeNode(&buf, n)
	return buf.Bytes()
}

// Write serializes n to w.
func Write(w io.Writer, n *xmlquery.Node) error {
	_, err := w.Write(Serialize(n))
	return err
}

func writeNode(w *bytes.Buffer, n *xmlquery.Node) {
	switch n.Type {
	case xmlquery.DocumentNode:
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			writeNode(w, child)
		}

	case xmlquery.DeclarationNode:
		w.WriteString("<?")
		w.WriteString(n.Data)
		for _, attr := range n.Attr {
			w.WriteString(" ")
			w.WriteString(attrName(attr))
			w.WriteString("=\"")
			w.WriteString(encoding.EscapeXMLAttr(attr.Value))
			w.WriteString("\"")
		}
		w.WriteString("?>\n")

	case xmlquery.ElementNode:
		w.WriteString("<")
		w.WriteString(Name(n))
		for _, attr := range n.Attr {
			w.WriteString(" ")
			w.WriteString(attrName(attr))
			w.WriteString("=\"")
			w.WriteString(encoding.EscapeXMLAttr(attr.Value))
			w.WriteString("\"")
		}
		if n.FirstChild == nil {
			w.WriteString("/>")
			return
		}
		w.WriteString(">")
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			writeNode(w, child)
		}
		w.WriteString("</")
		w.WriteString(Name(n))
		w.WriteString(">")

	case xmlquery.TextNode:
		w.WriteString(encoding.EscapeXMLText(n.Data))

	case xmlquery.CharDataNode:
		w.WriteString("<![CDATA[")
		w.WriteString(n.Data)
		w.WriteString("]]>")

	case xmlquery.CommentNode:
		w.WriteString("<!--")
		w.WriteString(n.Data)
		w.WriteString("-->")

	case xmlquery.ProcessingInstruction:
		w.WriteString("<?")
		w.WriteString(n.Data)
		if n.ProcInst != nil && n.ProcInst.Inst != "" {
			w.WriteString(" ")
			w.WriteString(n.ProcInst.Inst)
		}
		w.WriteString("?>")
	}
}
