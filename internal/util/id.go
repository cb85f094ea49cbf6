package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a URL-safe random hex token. Used for session tokens and
// request ids; persistent record ids use uuid instead.
func NewID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
