// Package idgen generates entity identifiers and short display aliases for
// them. Entity IDs need to be globally unique without coordination (peers
// mint them offline), so generation is random rather than content-derived;
// content-derived IDs are reserved for events (eventdag.NewEvent hashes
// their operations and parent clock).
package idgen

import (
	"math/big"
	"strings"

	"github.com/ankurah/ankurah/internal/value"
	"github.com/google/uuid"
)

// base36Alphabet is the character set used for short display aliases.
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewEntityID mints a fresh, globally-unique entity identifier. EntityID is
// a 16-byte array, the same width as a UUID, so a v4 UUID's bytes are used
// directly rather than inventing a separate random source.
func NewEntityID() value.EntityID {
	return value.EntityID(uuid.New())
}

// EncodeBase36 converts a byte slice to a base36 string of the given length,
// used to render short, copy-pasteable aliases for entity and event IDs in
// CLI output. Truncating to a handful of characters trades collision
// resistance for readability; callers needing the real identifier should use
// the full hex/base64 form instead.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	var result strings.Builder
	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	for i := len(chars) - 1; i >= 0; i-- {
		result.WriteByte(chars[i])
	}

	str := result.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// ShortEntityID renders a short base36 alias for an entity ID, for
// human-facing CLI output where the full identifier would be noise.
func ShortEntityID(id value.EntityID) string {
	return EncodeBase36(id[:], 8)
}

// ShortEventID renders a short base36 alias for an event ID.
func ShortEventID(id [32]byte) string {
	return EncodeBase36(id[:], 8)
}
