package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conorfennell/flashstudy/internal/domain"
)

// idBytes is how much of the digest is kept for a card ID.
const idBytes = 12

// Normalize reduces a card's content to a canonical form. Each field is
// lowercased and its whitespace collapsed to single spaces, so reformatting a
// card file does not change the card's identity. The deck is not part of it.
func Normalize(card domain.Card) string {
	part := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return strings.Join([]string{part(card.Question), part(card.Answer), part(card.Context)}, "\n")
}

// ID returns the stable identifier of a card: a truncated SHA-256 of its
// normalized content, hex encoded.
func ID(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(sum[:idBytes])
}
