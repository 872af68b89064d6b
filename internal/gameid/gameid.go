// Package gameid generates table identifiers: UUIDv7 values encoded as 26
// characters of Crockford base32, so identifiers sort by creation time and
// are safe to use in URLs, NATS subjects and file names.
package gameid

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Crockford's base32, lower case as used by TypeID.
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length of every identifier.
const Length = 26

// Generator creates identifiers. A nil random source means crypto/rand.
type Generator struct {
	rand io.Reader
}

// NewGenerator creates a generator reading randomness from r. Tests pass a
// deterministic reader.
func NewGenerator(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// Generate returns a new identifier from the default generator.
func Generate() string {
	return NewGenerator(nil).Generate()
}

// Generate returns a new identifier.
func (g *Generator) Generate() string {
	var (
		id  uuid.UUID
		err error
	)
	if g.rand == nil {
		id, err = uuid.NewV7()
	} else {
		id, err = uuid.NewV7FromReader(g.rand)
	}
	if err != nil {
		// Only a failing random source gets here.
		panic("gameid: " + err.Error())
	}
	return Encode(id)
}

// Encode writes a UUID as 130 bits (two leading zero bits) in base32.
func Encode(id uuid.UUID) string {
	var b strings.Builder
	b.Grow(Length)
	// Two zero bits pad 128 to 130; the first character carries the top 3.
	b.WriteByte(alphabet[id[0]>>5])
	var acc uint16
	bits := 5
	acc = uint16(id[0] & 0x1f)
	for _, c := range id[1:] {
		acc = acc<<8 | uint16(c)
		bits += 8
		for bits >= 5 {
			bits -= 5
			b.WriteByte(alphabet[(acc>>bits)&0x1f])
		}
	}
	return b.String()
}

// Decode parses an identifier back into its UUID.
func Decode(id string) (uuid.UUID, error) {
	var out uuid.UUID
	if err := Validate(id); err != nil {
		return out, err
	}
	var acc uint32
	bits := 0
	n := 0
	for i := 0; i < Length; i++ {
		v := uint32(strings.IndexByte(alphabet, id[i]))
		if i == 0 {
			acc = v
			bits = 3
			continue
		}
		acc = acc<<5 | v
		bits += 5
		if bits >= 8 {
			bits -= 8
			out[n] = byte(acc >> bits)
			n++
		}
	}
	return out, nil
}

// Validate checks that id is 26 base32 characters representing at most 128
// bits.
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("game ID must be exactly %d characters, got %d", Length, len(id))
	}
	if id[0] > '7' {
		return fmt.Errorf("game ID first character must be 0-7, got %c", id[0])
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(alphabet, id[i]) < 0 {
			return fmt.Errorf("invalid character %c at position %d", id[i], i)
		}
	}
	return nil
}
