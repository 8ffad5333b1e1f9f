// Package session generates the identifiers that correlate a progress stream
// with the prompt dispatched under it.
package session

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// IDLength is the number of characters in a session identifier.
	IDLength = 10

	// Alphabet holds the characters a session identifier is drawn from.
	Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// acceptBelow is the largest multiple of len(Alphabet) that fits in a byte.
// Bytes at or above it are rejected so every character is equally likely.
const acceptBelow = 256 - 256%len(Alphabet)

// NewID returns a fresh random session identifier.
func NewID() string {
	var b strings.Builder
	b.Grow(IDLength)

	for b.Len() < IDLength {
		for _, c := range randomBytes() {
			if int(c) >= acceptBelow {
				continue
			}
			b.WriteByte(Alphabet[int(c)%len(Alphabet)])
			if b.Len() == IDLength {
				break
			}
		}
	}
	return b.String()
}

// Valid reports whether id has the shape produced by NewID.
func Valid(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(Alphabet, id[i]) < 0 {
			return false
		}
	}
	return true
}

// randomBytes returns the fully random bytes of a v4 UUID. Byte 6 carries the
// version and byte 8 the variant, so both are dropped.
func randomBytes() []byte {
	u := uuid.New()
	out := make([]byte, 0, len(u)-2)
	for i, c := range u {
		if i == 6 || i == 8 {
			continue
		}
		out = append(out, c)
	}
	return out
}
