package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a prefixed random identifier, e.g. "tsk_3f2a…".
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewToken returns an opaque token for refresh and reset flows. Longer than
// an id so it is never guessable from the id space.
func NewToken() string {
	bytes := make([]byte, 32)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
