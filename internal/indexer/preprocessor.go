package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes text before it is embedded: trims it and collapses runs of
// whitespace (including newlines and tabs in catalog descriptions) to one space.
// Indexed product text and query text go through the same normalization.
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		wasSpace = false
	}
	return b.String()
}
