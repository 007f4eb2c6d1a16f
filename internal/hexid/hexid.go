// Package hexid mints the short random identifiers that name runs and
// debug logs.
package hexid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// New returns an 8-character lowercase hex string (32 random bits).
func New() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("hexid: rand.Read failed: " + err.Error())
	}
	return fmt.Sprintf("%08x", binary.BigEndian.Uint32(b[:]))
}
