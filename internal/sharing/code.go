package sharing

import (
	"crypto/rand"
	"strings"
)

// codeAlphabet is the 36-symbol set share codes are drawn from. Uppercase
// plus digits keeps codes easy to read aloud and type on a phone.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// codeLength is the fixed share-code length. Six symbols over a 36-character
// alphabet gives roughly 31 bits, enough for a low-volume sharing feature
// backed by a uniqueness constraint.
const codeLength = 6

// rejectionBound is the largest multiple of the alphabet size below 256.
// Bytes at or above it are discarded so every symbol is equally likely.
const rejectionBound = 256 - 256%len(codeAlphabet)

// GenerateCode mints a share code from a cryptographically strong source.
// Symbols are drawn uniformly via rejection sampling.
func GenerateCode() (string, error) {
	out := make([]byte, 0, codeLength)
	buf := make([]byte, 2*codeLength)
	for len(out) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= rejectionBound {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return string(out), nil
}

// NormalizeCode uppercases and trims a user-entered code so resolution is
// case-insensitive.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
