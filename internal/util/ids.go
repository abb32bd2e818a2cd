package util

import "github.com/google/uuid"

// NewID returns a fresh random identifier suitable for request IDs and
// OAuth state nonces.
func NewID() string {
	return uuid.NewString()
}
