package content

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/unicode/norm"
)

var deaccent = runes.Remove(runes.In(unicode.Mn))

// Slugify folds a title into a URL-safe slug.
func Slugify(title string) string {
	decomposed := norm.NFD.String(title)
	flattened := deaccent.String(decomposed)
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(flattened) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
