package asks

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeText lowercases, drops punctuation, and collapses whitespace so trivially
// different renderings of the same words compare equal.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// ContentHash is the exact-dedup key of a fact: sha256 over normalized title and description.
func ContentHash(title, description string) string {
	sum := sha256.Sum256([]byte(NormalizeText(title) + "\n" + NormalizeText(description)))
	return hex.EncodeToString(sum[:])
}

// ThemeKey is the case-insensitive lookup key for a theme name.
func ThemeKey(name string) string {
	return NormalizeText(name)
}
