package common

import (
	"github.com/google/uuid"
)

// NewID generates a unique identifier with the given prefix.
// Format: <prefix>_<uuid>
func NewID(prefix string) string {
	if prefix == "" {
		return uuid.New().String()
	}
	return prefix + "_" + uuid.New().String()
}
