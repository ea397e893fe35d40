package util

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// NewID returns a random 22 character URL-safe identifier, the shape used
// for annotation ids.
func NewID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// NewPrefixedID returns a UUID string with an optional prefix, e.g. for
// request ids and token ids.
func NewPrefixedID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "_" + uuid.NewString()
}
