package cursor

import (
	"fmt"
	"sync"
)

// MockMouse records pointer actions for tests.
type MockMouse struct {
	mu      sync.Mutex
	width   int
	height  int
	actions []string
}

// NewMockMouse creates a MockMouse with the given screen size.
func NewMockMouse(width, height int) *MockMouse {
	return &MockMouse{width: width, height: height}
}

// ScreenSize returns the configured screen size.
func (m *MockMouse) ScreenSize() (int, int) {
	return m.width, m.height
}

// Move records a move to (x, y).
func (m *MockMouse) Move(x, y int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, fmt.Sprintf("move %d,%d", x, y))
}

// Click records a click.
func (m *MockMouse) Click() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, "click")
}

// Actions returns the recorded actions in order.
func (m *MockMouse) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.actions))
	copy(out, m.actions)
	return out
}
