package standoff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Attrib is an ordered string-to-string attribute mapping. The zero value is
// an empty mapping ready to use. Equality ignores order.
type Attrib struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewAttrib builds an Attrib from alternating key/value strings.
func NewAttrib(kv ...string) Attrib {
	var a Attrib
	for i := 0; i+1 < len(kv); i += 2 {
		a.Set(kv[i], kv[i+1])
	}
	return a
}

// AttribFromMap builds an Attrib from a Go map. Keys are sorted so the
// result is deterministic.
func AttribFromMap(m map[string]string) Attrib {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var a Attrib
	for _, k := range keys {
		a.Set(k, m[k])
	}
	return a
}

// Get returns the value stored under key.
func (a Attrib) Get(key string) (string, bool) {
	if a.m == nil {
		return "", false
	}
	return a.m.Get(key)
}

// Set stores value under key, keeping the original position of an
// existing key.
func (a *Attrib) Set(key, value string) {
	if a.m == nil {
		a.m = orderedmap.New[string, string]()
	}
	a.m.Set(key, value)
}

// Len returns the number of keys.
func (a Attrib) Len() int {
	if a.m == nil {
		return 0
	}
	return a.m.Len()
}

// Keys returns the keys in insertion order.
func (a Attrib) Keys() []string {
	if a.m == nil {
		return nil
	}
	keys := make([]string, 0, a.m.Len())
	for pair := a.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Map returns a plain Go map copy.
func (a Attrib) Map() map[string]string {
	out := make(map[string]string, a.Len())
	if a.m == nil {
		return out
	}
	for pair := a.m.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

// Equal reports whether both mappings hold the same key/value set.
func (a Attrib) Equal(b Attrib) bool {
	if a.Len() != b.Len() {
		return false
	}
	if a.m == nil {
		return true
	}
	for pair := a.m.Oldest(); pair != nil; pair = pair.Next() {
		if v, ok := b.Get(pair.Key); !ok || v != pair.Value {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (a Attrib) Clone() Attrib {
	var c Attrib
	if a.m == nil {
		return c
	}
	for pair := a.m.Oldest(); pair != nil; pair = pair.Next() {
		c.Set(pair.Key, pair.Value)
	}
	return c
}

// MarshalJSON encodes the mapping as a JSON object in insertion order.
func (a Attrib) MarshalJSON() ([]byte, error) {
	if a.m == nil {
		return []byte("{}"), nil
	}
	return a.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object, keeping key order. null decodes to an
// empty mapping.
func (a *Attrib) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		a.m = nil
		return nil
	}
	m := orderedmap.New[string, string]()
	if err := m.UnmarshalJSON(data); err != nil {
		return err
	}
	a.m = m
	return nil
}

// Annotation is a standoff span [Begin, End) over the plain text, carrying
// an element tag, its attributes and a depth used to order identical spans.
type Annotation struct {
	Begin  int    `json:"begin"`
	End    int    `json:"end"`
	Tag    string `json:"tag"`
	Attrib Attrib `json:"attrib"`
	Depth  int    `json:"depth"`

	// Namespace is the element's namespace URI, if any. It is not part of
	// annotation identity.
	Namespace string `json:"namespace,omitempty"`
}

// Len returns the span length in characters.
func (a *Annotation) Len() int {
	return a.End - a.Begin
}

// Matches reports whether a has the given span, tag and attribute set.
func (a *Annotation) Matches(begin, end int, tag string, attrib Attrib) bool {
	return a.Begin == begin && a.End == end && a.Tag == tag && a.Attrib.Equal(attrib)
}

// Record returns the flat serializable form of a.
func (a *Annotation) Record() Record {
	return Record{
		Begin:     a.Begin,
		End:       a.End,
		Tag:       a.Tag,
		Attrib:    a.Attrib.Clone(),
		Depth:     a.Depth,
		Namespace: a.Namespace,
	}
}

func (a *Annotation) String() string {
	return fmt.Sprintf("%s[%d,%d)@%d", a.Tag, a.Begin, a.End, a.Depth)
}

// Record is the serialized form of an annotation, one JSON object per
// annotation.
type Record struct {
	Begin     int    `json:"begin"`
	End       int    `json:"end"`
	Tag       string `json:"tag"`
	Attrib    Attrib `json:"attrib"`
	Depth     int    `json:"depth"`
	Namespace string `json:"namespace,omitempty"`
}

// Annotation returns a fresh annotation holding the record's values.
func (r Record) Annotation() *Annotation {
	return &Annotation{
		Begin:     r.Begin,
		End:       r.End,
		Tag:       r.Tag,
		Attrib:    r.Attrib.Clone(),
		Depth:     r.Depth,
		Namespace: r.Namespace,
	}
}

// MarshalRecords encodes records as a JSON array of objects.
func MarshalRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(records)
}

// UnmarshalRecords decodes a JSON array of record objects.
func UnmarshalRecords(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Compare orders annotations canonically: begin ascending, then longer
// spans first, then lower depth first. An annotation always sorts before
// any annotation it can contain.
func Compare(a, b *Annotation) int {
	if a.Begin != b.Begin {
		return a.Begin - b.Begin
	}
	if la, lb := a.Len(), b.Len(); la != lb {
		return lb - la
	}
	return a.Depth - b.Depth
}

// SortCanonical sorts anns in place in canonical order. Equal keys keep
// their relative order.
func SortCanonical(anns []*Annotation) {
	slices.SortStableFunc(anns, Compare)
}

// IsParent reports whether s encloses the span [begin,end) at the given
// depth: s strictly widens it on at least one side, or the spans are
// identical and s has the lower depth.
func IsParent(begin, end, depth int, s *Annotation) bool {
	return (begin > s.Begin && end <= s.End) ||
		(begin >= s.Begin && end < s.End) ||
		(begin == s.Begin && end == s.End && depth > s.Depth)
}
