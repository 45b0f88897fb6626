package ids

import (
	"github.com/google/uuid"
)

// Generator issues identifiers for new entities
type Generator interface {
	// NewID returns a fresh unique identifier
	NewID() string
}

// UUIDGenerator issues random (v4) UUIDs
type UUIDGenerator struct{}

// New creates a new UUIDGenerator
func New() *UUIDGenerator {
	return &UUIDGenerator{}
}

// NewID returns a new random UUID string
func (g *UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// Valid reports whether s is a well-formed UUID
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
