// Package xmlutil escapes untrusted text before it is placed between XML-style
// delimiters in model prompts.
package xmlutil

import (
	"encoding/xml"
	"strings"
)

// Escape returns s with XML metacharacters replaced by entities, so that a
// message cannot close the tag it is embedded in. Invalid UTF-8 is returned
// unchanged.
func Escape(s string) string {
	var buf strings.Builder
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}

// Element renders <tag>escaped content</tag>. tag is trusted.
func Element(tag, content string) string {
	return "<" + tag + ">" + Escape(content) + "</" + tag + ">"
}
