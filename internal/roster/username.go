// Package roster derives facemark identities from legacy SIS rows.
package roster

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// Username builds a login name from a student's full name and roll
// number. The roll number suffix keeps it unique even when two
// students share a name.
func Username(fullName, rollNo string) string {
	name := strings.ToLower(RemoveDiacritics(fullName))
	name = strings.ReplaceAll(name, "-", " ")

	var parts []string
	for _, f := range strings.Fields(name) {
		var b strings.Builder
		for _, r := range f {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			parts = append(parts, b.String())
		}
	}
	parts = append(parts, strings.ToLower(rollNo))
	return strings.Join(parts, ".")
}
