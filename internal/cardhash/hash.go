// Package cardhash derives a stable content identity for cards so that
// repeated sync runs recognize unchanged cards regardless of whitespace,
// casing or line-ending differences in the source files.
package cardhash

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/kioku-app/kioku/internal/domain"
)

// Normalize joins the card's front, back and context after cleaning each
// part: lowercased, trimmed, line endings unified. The parts are joined with
// a newline so adjacent fields can never merge into each other.
func Normalize(card domain.Card) string {
	clean := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		return strings.ReplaceAll(p, "\r\n", "\n")
	}
	return strings.Join([]string{clean(card.Front), clean(card.Back), clean(card.Context)}, "\n")
}

// Hash returns the SHA-256 of the normalized card content as a hex string.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum)
}
