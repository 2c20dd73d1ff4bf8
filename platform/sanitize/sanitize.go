// Package sanitize cleans operator-entered text before it is stored on a job
// and relayed to every connected client.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	tagRegex   = regexp.MustCompile(`<[^>]*>`)
	spaceRegex = regexp.MustCompile(`\s+`)
)

var entities = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
	"&quot;", "\"",
	"&#39;", "'",
	"&nbsp;", " ",
)

// Text strips markup and control characters from a free-text field such as
// a rejection reason or QC note, and collapses runs of whitespace.
func Text(s string) string {
	out := tagRegex.ReplaceAllString(s, "")
	out = entities.Replace(out)
	// encoded tags survive the first pass
	out = tagRegex.ReplaceAllString(out, "")
	out = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, out)
	return strings.TrimSpace(spaceRegex.ReplaceAllString(out, " "))
}

// Names cleans a worker list, dropping blanks and repeats while keeping the
// first-seen order.
func Names(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = Text(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
