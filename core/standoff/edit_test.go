package standoff

import (
	"errors"
	"testing"

	serrors "github.com/FocuswithJustin/standoffconverter/core/errors"
)

var machine = NewAttrib("resp", "machine")

func TestAddAnnotation(t *testing.T) {
	type add struct {
		begin, end int
		tag        string
		depth      int
	}
	tests := []struct {
		name string
		adds []add
		want string
	}{
		{
			name: "single",
			adds: []add{{0, 1, "xx", 0}},
			want: `<W><text type="a"><xx resp="machine">A</xx> B C</text></W>`,
		},
		{
			name: "middle",
			adds: []add{{2, 3, "xx", 0}},
			want: `<W><text type="a">A <xx resp="machine">B</xx> C</text></W>`,
		},
		{
			name: "sequential siblings",
			adds: []add{{0, 1, "xx", 0}, {2, 3, "xx", 0}},
			want: `<W><text type="a"><xx resp="machine">A</xx> <xx resp="machine">B</xx> C</text></W>`,
		},
		{
			name: "same span nests by depth",
			adds: []add{{2, 3, "xx", 0}, {2, 3, "vv", 1}},
			want: `<W><text type="a">A <xx resp="machine"><vv resp="machine">B</vv></xx> C</text></W>`,
		},
		{
			name: "wrapping existing annotations",
			adds: []add{{0, 1, "xx", 0}, {2, 3, "xx", 0}, {0, 3, "seg", 0}},
			want: `<W><text type="a"><seg resp="machine"><xx resp="machine">A</xx> <xx resp="machine">B</xx></seg> C</text></W>`,
		},
		{
			name: "zero width",
			adds: []add{{2, 2, "anchor", 0}},
			want: `<W><text type="a">A <anchor resp="machine"/>B C</text></W>`,
		},
		{
			name: "full span inside text",
			adds: []add{{0, 5, "s", 2}},
			want: `<W><text type="a"><s resp="machine">A B C</s></text></W>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustLoad(t, xmlABC)
			for _, a := range tt.adds {
				got, err := s.AddAnnotation(a.begin, a.end, a.tag, a.depth, machine, false)
				if err != nil {
					t.Fatalf("AddAnnotation(%v) error = %v", a, err)
				}
				if got == nil || !got.Matches(a.begin, a.end, a.tag, machine) {
					t.Fatalf("AddAnnotation(%v) = %v", a, got)
				}
				if s.Node(got) == nil || s.AnnotationOf(s.Node(got)) != got {
					t.Fatalf("%v is not linked to a node", got)
				}
			}
			if got := serialize(t, s); got != tt.want {
				t.Errorf("tree = %s\nwant   %s", got, tt.want)
			}
			checkConsistent(t, s)
		})
	}
}

// checkConsistent verifies that the store's annotations are exactly what
// flattening its tree produces, and that every link is live.
func checkConsistent(t *testing.T, s *Store) {
	t.Helper()
	fresh := mustLoad(t, serialize(t, s))
	if fresh.Plain() != s.Plain() {
		t.Errorf("plain text drifted: %q vs %q", fresh.Plain(), s.Plain())
	}
	if !sameSet(recordSet(fresh), recordSet(s)) {
		t.Errorf("annotations drifted:\nstore %v\ntree  %v", recordSet(s), recordSet(fresh))
	}
	anns := s.Annotations()
	for i, a := range anns {
		if i > 0 && Compare(anns[i-1], a) > 0 {
			t.Errorf("annotations out of order at %d: %v before %v", i, anns[i-1], a)
		}
		n := s.Node(a)
		if n == nil {
			t.Errorf("%v has no node", a)
			continue
		}
		if s.AnnotationOf(n) != a {
			t.Errorf("%v is linked to the wrong node", a)
		}
		if topOf(n) != topOf(s.ToTree()) {
			t.Errorf("%v is linked to a detached node", a)
		}
	}
	if len(s.anns) != len(anns) || len(s.nodes) != len(anns) {
		t.Errorf("index sizes = %d/%d, want %d", len(s.anns), len(s.nodes), len(anns))
	}
}

func TestAddAnnotationKeepsIdentity(t *testing.T) {
	s := mustLoad(t, xmlABC)
	first, err := s.AddAnnotation(0, 1, "xx", 0, machine, false)
	if err != nil {
		t.Fatal(err)
	}
	text := s.Annotations()[1]
	oldNode := s.Node(text)

	if _, err := s.AddAnnotation(2, 3, "xx", 0, machine, false); err != nil {
		t.Fatal(err)
	}
	if !s.Contains(first) || !s.Contains(text) {
		t.Error("existing annotations were replaced")
	}
	if s.Node(text) == oldNode {
		t.Error("rebuilt parent should have a new node")
	}
	if s.AnnotationOf(oldNode) != nil {
		t.Error("old node is still linked")
	}
}

func TestAddAnnotationUnique(t *testing.T) {
	s := mustLoad(t, xmlABC)
	if _, err := s.AddAnnotation(0, 1, "xx", 0, machine, true); err != nil {
		t.Fatal(err)
	}
	before := serialize(t, s)

	got, err := s.AddAnnotation(0, 1, "xx", 0, NewAttrib("resp", "machine"), true)
	if err != nil {
		t.Fatalf("duplicate add error = %v", err)
	}
	if got != nil {
		t.Errorf("duplicate add returned %v, want nil", got)
	}
	if after := serialize(t, s); after != before {
		t.Errorf("duplicate add changed the tree: %s", after)
	}

	got, err = s.AddAnnotation(0, 1, "xx", 0, machine, false)
	if err != nil || got == nil {
		t.Fatalf("non-unique add = %v, %v", got, err)
	}
	if want := `<W><text type="a"><xx resp="machine"><xx resp="machine">A</xx></xx> B C</text></W>`; serialize(t, s) != want {
		t.Errorf("tree = %s, want %s", serialize(t, s), want)
	}
}

func TestAddAnnotationNamespace(t *testing.T) {
	s := mustLoad(t, `<TEI xmlns="http://www.tei-c.org/ns/1.0"><text><p>ab</p></text></TEI>`)
	a, err := s.AddAnnotation(0, 1, "hi", 3, Attrib{}, false)
	if err != nil {
		t.Fatalf("AddAnnotation() error = %v", err)
	}
	if a.Namespace != "http://www.tei-c.org/ns/1.0" {
		t.Errorf("Namespace = %q", a.Namespace)
	}
	if got, want := serialize(t, s), `<TEI xmlns="http://www.tei-c.org/ns/1.0"><text><p><hi>a</hi>b</p></text></TEI>`; got != want {
		t.Errorf("tree = %s, want %s", got, want)
	}

	f := NewFilter(s, "http://www.tei-c.org/ns/1.0").Find("hi")
	if r, ok := f.First(); !ok || r.Text != "a" {
		t.Errorf("namespaced find = %v, %v", r, ok)
	}
}

func TestEditRefusals(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		edit    func(s *Store) error
		wantErr error
	}{
		{
			name: "no enclosing annotation",
			src:  xmlABC,
			edit: func(s *Store) error {
				_, err := s.AddAnnotation(0, 5, "yy", 0, Attrib{}, false)
				return err
			},
			wantErr: serrors.ErrUnsupported,
		},
		{
			name: "parent is the root",
			src:  xmlABC,
			edit: func(s *Store) error {
				_, err := s.AddAnnotation(0, 5, "yy", 1, Attrib{}, false)
				return err
			},
			wantErr: serrors.ErrUnsupported,
		},
		{
			name: "remove child of root",
			src:  xmlABC,
			edit: func(s *Store) error {
				return s.RemoveAnnotation(s.Annotations()[1])
			},
			wantErr: serrors.ErrUnsupported,
		},
		{
			name: "remove root",
			src:  xmlABC,
			edit: func(s *Store) error {
				return s.RemoveAnnotation(s.Root())
			},
			wantErr: serrors.ErrUnsupported,
		},
		{
			name: "crossing overlap",
			src:  `<W><t><a>AB</a><b>CD</b></t></W>`,
			edit: func(s *Store) error {
				_, err := s.AddAnnotation(1, 3, "x", 5, Attrib{}, false)
				return err
			},
			wantErr: serrors.ErrUnsupported,
		},
		{
			name: "end past text",
			src:  xmlABC,
			edit: func(s *Store) error {
				_, err := s.AddAnnotation(0, 6, "x", 0, Attrib{}, false)
				return err
			},
			wantErr: serrors.ErrInvalidInput,
		},
		{
			name: "begin after end",
			src:  xmlABC,
			edit: func(s *Store) error {
				_, err := s.AddAnnotation(3, 2, "x", 0, Attrib{}, false)
				return err
			},
			wantErr: serrors.ErrInvalidInput,
		},
		{
			name: "empty tag",
			src:  xmlABC,
			edit: func(s *Store) error {
				_, err := s.AddAnnotation(0, 1, "", 0, Attrib{}, false)
				return err
			},
			wantErr: serrors.ErrInvalidInput,
		},
		{
			name: "remove unknown",
			src:  xmlABC,
			edit: func(s *Store) error {
				return s.RemoveAnnotation(&Annotation{Begin: 0, End: 1, Tag: "xx"})
			},
			wantErr: serrors.ErrNotFound,
		},
		{
			name: "remove nil",
			src:  xmlABC,
			edit: func(s *Store) error {
				return s.RemoveAnnotation(nil)
			},
			wantErr: serrors.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustLoad(t, tt.src)
			beforeXML := serialize(t, s)
			beforeAnns := s.Annotations()

			err := tt.edit(s)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got := serialize(t, s); got != beforeXML {
				t.Errorf("tree changed to %s", got)
			}
			after := s.Annotations()
			if len(after) != len(beforeAnns) {
				t.Fatalf("annotation count changed: %d -> %d", len(beforeAnns), len(after))
			}
			for i := range after {
				if after[i] != beforeAnns[i] {
					t.Errorf("annotation %d changed: %v -> %v", i, beforeAnns[i], after[i])
				}
			}
			checkConsistent(t, s)
		})
	}
}

func TestRemoveAnnotation(t *testing.T) {
	s := mustLoad(t, xmlABC)
	xx, err := s.AddAnnotation(0, 1, "xx", 0, machine, false)
	if err != nil {
		t.Fatal(err)
	}
	yy, err := s.AddAnnotation(2, 3, "xx", 0, machine, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RemoveAnnotation(xx); err != nil {
		t.Fatalf("RemoveAnnotation() error = %v", err)
	}
	if want := `<W><text type="a">A <xx resp="machine">B</xx> C</text></W>`; serialize(t, s) != want {
		t.Errorf("tree = %s, want %s", serialize(t, s), want)
	}
	if s.Contains(xx) || s.Node(xx) != nil {
		t.Error("removed annotation is still present")
	}
	checkConsistent(t, s)

	if err := s.RemoveAnnotation(xx); !errors.Is(err, serrors.ErrNotFound) {
		t.Errorf("second remove error = %v, want ErrNotFound", err)
	}

	if err := s.RemoveAnnotation(yy); err != nil {
		t.Fatalf("RemoveAnnotation() error = %v", err)
	}
	if serialize(t, s) != xmlABC {
		t.Errorf("tree = %s, want %s", serialize(t, s), xmlABC)
	}
	checkConsistent(t, s)
}

func TestRemoveKeepsNestedChildren(t *testing.T) {
	s := mustLoad(t, `<W><text><p>The <seg><w>big</w> <w>dog</w></seg> ran</p></text></W>`)
	var seg *Annotation
	for _, a := range s.Annotations() {
		if a.Tag == "seg" {
			seg = a
		}
	}
	if err := s.RemoveAnnotation(seg); err != nil {
		t.Fatalf("RemoveAnnotation() error = %v", err)
	}
	if got, want := serialize(t, s), `<W><text><p>The <w>big</w> <w>dog</w> ran</p></text></W>`; got != want {
		t.Errorf("tree = %s, want %s", got, want)
	}
	checkConsistent(t, s)
}

func TestEditNextToEmptySiblings(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		begin, end int
		added      string
		empty      string
		removed    string
	}{
		{
			name:    "following lb",
			src:     `<W><text><p>ab</p><lb/>cd</text></W>`,
			begin:   0,
			end:     1,
			added:   `<W><text><p><hi resp="machine">a</hi>b</p><lb/>cd</text></W>`,
			empty:   "lb",
			removed: `<W><text><p>ab</p>cd</text></W>`,
		},
		{
			name:    "preceding pb",
			src:     `<W><text><pb/><p>ab</p>cd</text></W>`,
			begin:   1,
			end:     2,
			added:   `<W><text><pb/><p>a<hi resp="machine">b</hi></p>cd</text></W>`,
			empty:   "pb",
			removed: `<W><text><p>ab</p>cd</text></W>`,
		},
		{
			name:    "pb and lb around p",
			src:     `<W><text><pb/><p>ab</p><lb/>cd</text></W>`,
			begin:   0,
			end:     2,
			added:   `<W><text><pb/><p><hi resp="machine">ab</hi></p><lb/>cd</text></W>`,
			empty:   "lb",
			removed: `<W><text><pb/><p>ab</p>cd</text></W>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustLoad(t, tt.src)
			hi, err := s.AddAnnotation(tt.begin, tt.end, "hi", 5, machine, false)
			if err != nil {
				t.Fatalf("AddAnnotation() error = %v", err)
			}
			if got := serialize(t, s); got != tt.added {
				t.Errorf("tree = %s\nwant   %s", got, tt.added)
			}
			checkConsistent(t, s)

			if err := s.RemoveAnnotation(hi); err != nil {
				t.Fatalf("RemoveAnnotation(hi) error = %v", err)
			}
			if got := serialize(t, s); got != tt.src {
				t.Errorf("tree = %s\nwant   %s", got, tt.src)
			}
			checkConsistent(t, s)

			var empty *Annotation
			for _, a := range s.Annotations() {
				if a.Tag == tt.empty {
					empty = a
				}
			}
			if err := s.RemoveAnnotation(empty); err != nil {
				t.Fatalf("RemoveAnnotation(%s) error = %v", tt.empty, err)
			}
			if got := serialize(t, s); got != tt.removed {
				t.Errorf("tree = %s\nwant   %s", got, tt.removed)
			}
			checkConsistent(t, s)
		})
	}
}

func TestManyEdits(t *testing.T) {
	s := mustLoad(t, xmlAnswers)
	var added []*Annotation
	for _, r := range NewFilter(s, "").Find("p").Results() {
		a, err := s.AddAnnotation(r.Annotation.Begin+4, r.Annotation.Begin+10, "w", 9, Attrib{}, true)
		if err != nil {
			t.Fatalf("AddAnnotation() error = %v", err)
		}
		added = append(added, a)
	}
	for _, a := range added {
		if got := s.Text(a); got != "answer" {
			t.Errorf("Text(%v) = %q, want %q", a, got, "answer")
		}
	}
	checkConsistent(t, s)

	for _, a := range added {
		if err := s.RemoveAnnotation(a); err != nil {
			t.Fatalf("RemoveAnnotation(%v) error = %v", a, err)
		}
	}
	fresh := mustLoad(t, xmlAnswers)
	if serialize(t, s) != serialize(t, fresh) {
		t.Errorf("tree after removing all edits differs:\n%s", serialize(t, s))
	}
	checkConsistent(t, s)
}
