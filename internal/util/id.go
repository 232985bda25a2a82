package util

import "github.com/google/uuid"

// NewID returns a random identifier suitable for records and request ids.
func NewID() string {
	return uuid.NewString()
}
