package standoff

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"github.com/antchfx/xmlquery"

	"github.com/FocuswithJustin/standoffconverter/core/cas"
	"github.com/FocuswithJustin/standoffconverter/core/errors"
	sxml "github.com/FocuswithJustin/standoffconverter/core/xml"
	"github.com/FocuswithJustin/standoffconverter/internal/logging"
)

// Store holds a document as a tree and as standoff annotations over its
// plain text, with every element linked to its annotation. A Store is not
// safe for concurrent use.
type Store struct {
	plain       []rune
	annotations []*Annotation // canonical order
	doc         *xmlquery.Node
	root        *xmlquery.Node
	nodes       map[*Annotation]*xmlquery.Node
	anns        map[*xmlquery.Node]*Annotation
}

// Document is the JSON form of a Store.
type Document struct {
	Plain       string   `json:"plain"`
	Annotations []Record `json:"annotations"`
}

func newStore(plain []rune) *Store {
	return &Store{
		plain: plain,
		nodes: make(map[*Annotation]*xmlquery.Node),
		anns:  make(map[*xmlquery.Node]*Annotation),
	}
}

// Load parses XML from r and converts it.
func Load(r io.Reader) (*Store, error) {
	doc, err := sxml.ParseReader(r)
	if err != nil {
		return nil, errors.NewParse("XML", "", err.Error())
	}
	return FromTree(doc.Node())
}

// LoadFile parses the XML file at path and converts it.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	doc, err := sxml.ParseReader(f)
	if err != nil {
		return nil, errors.NewParse("XML", path, err.Error())
	}
	return FromTree(doc.Node())
}

// FromTree converts an existing tree. n may be a document node or a
// detached root element; the tree is adopted, not copied.
func FromTree(n *xmlquery.Node) (*Store, error) {
	root := sxml.RootElement(n)
	if root == nil {
		return nil, errors.NewValidation("tree", "no root element")
	}
	if root.Parent != nil && root.Parent.Type != xmlquery.DocumentNode {
		return nil, errors.NewValidation("tree", fmt.Sprintf("<%s> is not a document root", sxml.Name(root)))
	}

	plain, links := flatten(root)
	s := newStore(plain)
	s.root = root
	s.doc = root.Parent
	if s.doc == nil {
		s.doc = &xmlquery.Node{Type: xmlquery.DocumentNode}
		sxml.AppendChild(s.doc, root)
	}
	s.annotations = make([]*Annotation, 0, len(links))
	for _, l := range links {
		s.link(l.ann, l.node)
		s.annotations = append(s.annotations, l.ann)
	}
	SortCanonical(s.annotations)

	logging.Conversion("tree_to_standoff", len(s.annotations), len(s.plain))
	return s, nil
}

// FromRecords rebuilds a Store from plain text and annotation records.
// Records whose span cannot be realised in a single tree, because they
// cross another span, take the span they actually cover in the rebuilt
// tree. Empty plain text yields a Store without a tree.
func FromRecords(plain string, records []Record) (*Store, error) {
	s := newStore([]rune(plain))
	s.annotations = make([]*Annotation, 0, len(records))
	for _, r := range records {
		a := r.Annotation()
		if err := s.checkSpan(a.Begin, a.End); err != nil {
			return nil, err
		}
		s.annotations = append(s.annotations, a)
	}
	SortCanonical(s.annotations)

	frag, err := rebuild(s.plain, s.annotations)
	if err != nil {
		return nil, err
	}
	if frag == nil {
		logging.Conversion("standoff_to_tree", len(s.annotations), len(s.plain), "tree", false)
		return s, nil
	}

	if top := frag.Annotations[0]; top.Begin != 0 || top.End != len(s.plain) {
		return nil, errors.NewCorruption("rebuild",
			fmt.Sprintf("root %s does not cover the text [0,%d)", top, len(s.plain)))
	}
	if fixes := frag.mismatches(0); len(fixes) > 0 {
		for _, fix := range fixes {
			logging.SpanReconciled(fix.ann.Tag, fix.ann.Begin, fix.ann.End, fix.begin, fix.end)
			fix.ann.Begin, fix.ann.End = fix.begin, fix.end
		}
		SortCanonical(s.annotations)
	}

	s.root = frag.Root
	s.doc = &xmlquery.Node{Type: xmlquery.DocumentNode}
	sxml.AppendChild(s.doc, s.root)
	for a, n := range frag.nodes {
		s.link(a, n)
	}

	logging.Conversion("standoff_to_tree", len(s.annotations), len(s.plain))
	return s, nil
}

// FromDocument rebuilds a Store from its JSON form.
func FromDocument(d Document) (*Store, error) {
	return FromRecords(d.Plain, d.Annotations)
}

// Save writes the tree as compact XML.
func (s *Store) Save(w io.Writer) error {
	if s.root == nil {
		return nil
	}
	if err := sxml.Write(w, s.root); err != nil {
		return errors.NewIO("write", "", err)
	}
	return nil
}

// SaveFile writes the tree as compact XML to path.
func (s *Store) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.NewIO("create", path, err)
	}
	if err := s.Save(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.NewIO("close", path, err)
	}
	return nil
}

// ToTree returns the live root element, or nil when there is no tree.
func (s *Store) ToTree() *xmlquery.Node {
	return s.root
}

// Records returns the annotations as records in canonical order.
func (s *Store) Records() []Record {
	records := make([]Record, len(s.annotations))
	for i, a := range s.annotations {
		records[i] = a.Record()
	}
	return records
}

// Document returns the JSON form of s.
func (s *Store) Document() Document {
	return Document{Plain: string(s.plain), Annotations: s.Records()}
}

// MarshalJSON encodes s as {"plain": ..., "annotations": [...]}.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

// Plain returns the plain text.
func (s *Store) Plain() string {
	return string(s.plain)
}

// Len returns the length of the plain text in characters.
func (s *Store) Len() int {
	return len(s.plain)
}

// Text returns the text covered by a.
func (s *Store) Text(a *Annotation) string {
	return string(s.plain[a.Begin:a.End])
}

// Annotations returns the annotations in canonical order. The slice is a
// copy; the annotations are shared.
func (s *Store) Annotations() []*Annotation {
	return slices.Clone(s.annotations)
}

// Node returns the element linked to a.
func (s *Store) Node(a *Annotation) *xmlquery.Node {
	return s.nodes[a]
}

// AnnotationOf returns the annotation linked to the element n.
func (s *Store) AnnotationOf(n *xmlquery.Node) *Annotation {
	return s.anns[n]
}

// Root returns the annotation of the root element.
func (s *Store) Root() *Annotation {
	return s.anns[s.root]
}

// Contains reports whether a belongs to s.
func (s *Store) Contains(a *Annotation) bool {
	return s.indexOf(a) >= 0
}

// IsDuplicate reports whether an annotation with this span, tag and
// attribute set already exists.
func (s *Store) IsDuplicate(begin, end int, tag string, attrib Attrib) bool {
	i := sort.Search(len(s.annotations), func(i int) bool {
		return s.annotations[i].Begin >= begin
	})
	for ; i < len(s.annotations) && s.annotations[i].Begin == begin; i++ {
		if s.annotations[i].Matches(begin, end, tag, attrib) {
			return true
		}
	}
	return false
}

// Select evaluates an XPath expression against the document and returns the
// annotations of the matching elements in document order.
func (s *Store) Select(expr string) ([]*Annotation, error) {
	if s.doc == nil {
		return nil, nil
	}
	nodes, err := sxml.Select(s.doc, expr)
	if err != nil {
		return nil, errors.NewParse("xpath", "", err.Error())
	}
	var result []*Annotation
	for _, n := range nodes {
		if a, ok := s.anns[n]; ok {
			result = append(result, a)
		}
	}
	return result, nil
}

// Fingerprint hashes the UTF-8 plain text.
func (s *Store) Fingerprint() cas.HashResult {
	return cas.Sum([]byte(string(s.plain)))
}

func (s *Store) checkSpan(begin, end int) error {
	switch {
	case begin < 0:
		return errors.NewValidation("begin", fmt.Sprintf("negative offset %d", begin))
	case end < begin:
		return errors.NewValidation("end", fmt.Sprintf("end %d before begin %d", end, begin))
	case end > len(s.plain):
		return errors.NewValidation("end", fmt.Sprintf("end %d exceeds text length %d", end, len(s.plain)))
	}
	return nil
}

func (s *Store) link(a *Annotation, n *xmlquery.Node) {
	s.nodes[a] = n
	s.anns[n] = a
}

// insert places a after every annotation that compares equal to it.
func (s *Store) insert(a *Annotation) {
	i := sort.Search(len(s.annotations), func(i int) bool {
		return Compare(s.annotations[i], a) > 0
	})
	s.annotations = slices.Insert(s.annotations, i, a)
}

func (s *Store) indexOf(a *Annotation) int {
	if a == nil {
		return -1
	}
	i := sort.Search(len(s.annotations), func(i int) bool {
		return Compare(s.annotations[i], a) >= 0
	})
	for ; i < len(s.annotations) && Compare(s.annotations[i], a) == 0; i++ {
		if s.annotations[i] == a {
			return i
		}
	}
	return -1
}
