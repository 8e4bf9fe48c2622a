// Package encoding provides the XML escaping used when serializing trees.
package encoding

import (
	"bytes"
	"encoding/xml"
	"strings"
)

var (
	textReplacer = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\r", "&#13;",
	)
	attrReplacer = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"\n", "&#10;",
		"\r", "&#13;",
		"\t", "&#9;",
	)
)

// EscapeXML escapes special characters for XML content.
// Uses the standard library's xml.EscapeText, which also escapes quotes.
func EscapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// EscapeXMLText escapes character data the way libxml2 serializes it:
// markup characters and carriage returns only, so newlines and quotes survive.
func EscapeXMLText(s string) string {
	return textReplacer.Replace(s)
}

// EscapeXMLAttr escapes text for use in a double-quoted attribute value.
// Whitespace control characters are written as character references so
// they are not normalized away on reparse.
func EscapeXMLAttr(s string) string {
	return attrReplacer.Replace(s)
}
