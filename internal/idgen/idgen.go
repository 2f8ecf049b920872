// Package idgen generates random, prefixed identifiers.
package idgen

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// New generates a random UUID (v4) string.
func New() string {
	return uuid.NewString()
}

// WithPrefix generates a random ID with a prefix (e.g. "agc_", "cli_", "add_").
// Result is prefix + 32 hex chars.
func WithPrefix(prefix string) string {
	id := uuid.New()
	return prefix + hex.EncodeToString(id[:])
}
