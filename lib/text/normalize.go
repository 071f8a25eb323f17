package text

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the case-insensitive form of a token: NFKC normalised and lowercased.
func Normalize(token string) string {
	return strings.ToLower(norm.NFKC.String(token))
}

// NormalizeKey joins the normalised form of each token with single spaces. It is the exact-match
// key used for gazetteer lookups.
func NormalizeKey(tokens []string) string {
	var sb strings.Builder
	for i, token := range tokens {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(Normalize(token))
	}
	return sb.String()
}
