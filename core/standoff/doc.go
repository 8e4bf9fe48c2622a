// Package standoff converts between XML element trees and standoff
// annotations.
//
// A standoff representation is one plain-text string plus a set of
// annotations. Each annotation covers a character span [Begin, End) of the
// text and carries the tag and attributes of the element it stands for.
// Offsets count Unicode code points.
//
// # Conversion
//
//   - Flatten walks a tree depth-first and emits the plain text and one
//     annotation per element.
//   - Rebuild builds a tree back from plain text and annotations. Identical
//     spans nest by Depth: the lower depth encloses the higher.
//
// # Editing
//
// A Store keeps the plain text, the annotations, the tree and the links
// between annotations and nodes. AddAnnotation and RemoveAnnotation locate
// the closest enclosing annotation of the edited span and rebuild only that
// subtree, so an edit costs time proportional to the subtree rather than the
// document. Edits whose enclosing annotation is the document root are
// refused.
//
// # Querying
//
// A Filter walks the tree by tag (Find) and masks out the text of matching
// elements (Exclude):
//
//	f := standoff.NewFilter(store, "").Find("p").Exclude("del")
//	for _, r := range f.Results() {
//	    fmt.Println(r.Text)
//	}
package standoff
