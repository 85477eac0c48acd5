package capture

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockSource is a scripted Source for tests.
//
// In auto mode every Grab yields a fresh frame. Otherwise frames only become
// available through Push. Frames carry a clone of the configured Mat, or no
// Mat at all when none is set.
type MockSource struct {
	mu       sync.Mutex
	width    int
	height   int
	mat      *gocv.Mat
	auto     bool
	seq      uint64
	running  bool
	openErr  error
	closeErr error
	grabs    int
}

// NewMockSource creates a MockSource reporting the given frame size.
func NewMockSource(width, height int) *MockSource {
	return &MockSource{width: width, height: height}
}

// SetAuto toggles producing a new frame on every Grab.
func (m *MockSource) SetAuto(auto bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auto = auto
}

// SetMat sets the image cloned into every frame.
func (m *MockSource) SetMat(mat *gocv.Mat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mat = mat
}

// SetOpenError makes Open fail with err.
func (m *MockSource) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// SetCloseError makes Close fail with err after stopping the source.
func (m *MockSource) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

// Push makes one new frame available and returns its sequence number.
func (m *MockSource) Push() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq
}

// Open starts the source.
func (m *MockSource) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.running = true
	return nil
}

// Close stops the source.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return m.closeErr
}

// Grab returns the newest frame if it is newer than after.
func (m *MockSource) Grab(after uint64) (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil, ErrCameraNotOpen
	}
	m.grabs++
	if m.auto && m.seq <= after {
		m.seq = after + 1
	}
	if m.seq <= after {
		return nil, ErrNoFrame
	}

	f := &Frame{
		Seq:        m.seq,
		CapturedAt: time.Now(),
		Width:      m.width,
		Height:     m.height,
	}
	if m.mat != nil {
		mat := m.mat.Clone()
		f.Mat = &mat
	}
	return f, nil
}

// Grabs returns the number of Grab calls made while open.
func (m *MockSource) Grabs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grabs
}

// IsOpen reports whether Open has been called without a following Close.
func (m *MockSource) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
