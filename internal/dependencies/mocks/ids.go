package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/noughts/internal/dependencies/ids"
)

// MockIDs is a mock implementation of ids.Generator for testing
// Queued values are returned first, then sequential "id-N" values
type MockIDs struct {
	mu      sync.Mutex
	queued  []string
	counter int
}

// Ensure MockIDs implements Generator
var _ ids.Generator = (*MockIDs)(nil)

// NewMockIDs creates a new MockIDs
func NewMockIDs() *MockIDs {
	return &MockIDs{}
}

// NewID returns the next queued id, or a sequential fallback
func (m *MockIDs) NewID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queued) > 0 {
		id := m.queued[0]
		m.queued = m.queued[1:]
		return id
	}
	m.counter++
	return fmt.Sprintf("id-%d", m.counter)
}

// Queue adds values to the result queue
func (m *MockIDs) Queue(values ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, values...)
}

// Reset clears queued values and the counter
func (m *MockIDs) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = nil
	m.counter = 0
}
