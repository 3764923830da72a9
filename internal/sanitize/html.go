// Package sanitize strips markup from user supplied text before it is stored.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// maxPasses bounds re-sanitizing of entity-encoded markup such as
// "&lt;script&gt;".
const maxPasses = 3

// Text removes all HTML from input and returns plain text. Entities are
// decoded, so "Tom &amp; Jerry" and "Tom & Jerry" both come back as the latter.
func Text(input string) string {
	out := input
	for range maxPasses {
		out = html.UnescapeString(strict.Sanitize(out))
		if !strings.ContainsAny(out, "<>") {
			break
		}
	}
	return strings.TrimSpace(out)
}

// Fields sanitizes each referenced string in place. Nil pointers are skipped.
func Fields(fields ...*string) {
	for _, f := range fields {
		if f != nil {
			*f = Text(*f)
		}
	}
}
