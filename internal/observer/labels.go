package observer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// removeDiacritics strips combining marks ("Jiří" -> "Jiri").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// normalizeLabel turns an identity label into an attribute token:
// lower case, no diacritics, inner whitespace collapsed to dashes.
func normalizeLabel(label string) string {
	label = strings.ToLower(removeDiacritics(label))
	return strings.Join(strings.Fields(label), "-")
}

// labelsAttr renders matched labels as a space-separated token list.
func labelsAttr(labels []string) string {
	tokens := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		tok := normalizeLabel(l)
		if tok == "" {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return strings.Join(tokens, " ")
}
