package payment

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strings"
)

// Ambiguous glyphs (0/O, 1/I/L) are left out so codes survive being read aloud.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const codeLength = 6

// NewConfirmationCode returns a short human-enterable code.
func NewConfirmationCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func codesMatch(stored, supplied string) bool {
	supplied = strings.ToUpper(strings.TrimSpace(supplied))
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
