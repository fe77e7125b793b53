package uuidx

import "github.com/google/uuid"

// New returns a fresh V7 UUID. V7 ids sort by creation time, which keeps
// event ids roughly ordered in logs and dead-letter dumps. Panics if the
// random source fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns a fresh V7 UUID rendered as a string. Convenience for
// the common case of stamping event and chunk identifiers.
func NewString() string {
	return New().String()
}
