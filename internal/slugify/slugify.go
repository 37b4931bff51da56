// Package slugify derives URL-safe identifiers from titles and taxonomy names.
package slugify

import (
	"strings"
	"unicode"

	gosimple "github.com/gosimple/slug"
	"github.com/goliatone/go-slug"
)

// Make returns a lowercase, hyphen-separated ASCII slug for s. Non-ASCII
// letters are transliterated ("Linux 命令" becomes "linux-ming-ling"), so no
// part of the title is dropped. Input with nothing to transliterate falls
// back to its raw letters and digits.
func Make(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if normalized, err := slug.Normalize(gosimple.Make(s)); err == nil && normalized != "" {
		return normalized
	}
	return hyphenate(s)
}

func hyphenate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
