// Package decor renders chat text for display. Decorate is a pure function:
// deterministic, no side effects, safe to call from any goroutine.
package decor

import (
	"html"
	"strings"
)

var markerTags = map[byte]string{
	'*': "b",
	'_': "i",
	'`': "code",
}

// Decorate maps marker sequences to display spans: *text* becomes bold,
// _text_ italic, and backtick-wrapped text code. HTML metacharacters are
// escaped first, so user input can never inject markup. An unpaired or
// empty marker is kept literally.
func Decorate(text string) string {
	s := html.EscapeString(text)

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		tag, ok := markerTags[c]
		if !ok {
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(s[i+1:], c)
		if end <= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteString("<")
		b.WriteString(tag)
		b.WriteString(">")
		b.WriteString(s[i+1 : i+1+end])
		b.WriteString("</")
		b.WriteString(tag)
		b.WriteString(">")
		i += end + 1
	}
	return b.String()
}
