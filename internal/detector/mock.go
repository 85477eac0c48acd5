package detector

import (
	"context"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results per call.
type MockDetector struct {
	mu          sync.Mutex
	hands       []Hand
	queue       [][]Hand
	err         error
	delay       time.Duration
	calls       int
	inFlight    int
	maxInFlight int
	lastOpts    Options
	warmed      bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands returned by Detect once the queue is drained.
func (m *MockDetector) SetHands(hands []Hand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// Enqueue appends per-call results. Each Detect call consumes one entry.
func (m *MockDetector) Enqueue(frames ...[]Hand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, frames...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes every Detect call block for d, simulating inference latency.
func (m *MockDetector) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Detect returns the next queued result, the configured hands, or the configured error.
func (m *MockDetector) Detect(frame *gocv.Mat, opts Options) ([]Hand, error) {
	m.mu.Lock()
	m.calls++
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.lastOpts = opts
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--

	if m.err != nil {
		return nil, m.err
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next, nil
	}
	return m.hands, nil
}

// Warmup marks the detector as warmed.
func (m *MockDetector) Warmup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warmed = true
	return nil
}

// Warmed reports whether Warmup has been called.
func (m *MockDetector) Warmed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warmed
}

// Calls returns the number of Detect calls made so far.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MaxConcurrent returns the highest number of Detect calls observed in flight at once.
func (m *MockDetector) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// LastOptions returns the options passed to the most recent Detect call.
func (m *MockDetector) LastOptions() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// HandAt builds a right hand in pixel coordinates with the wrist at wrist,
// a wrist-to-middle-MCP length of scale, and thumb and index tips gap pixels
// apart. The thumb/index contact point is at wrist + (0, -1.2*scale).
func HandAt(wrist Point, scale, gap float64) Hand {
	at := func(dx, dy float64) Point {
		return Point{X: wrist.X + dx*scale, Y: wrist.Y + dy*scale}
	}

	pts := make([]Point, NumLandmarks)
	pts[Wrist] = wrist

	// Thumb reaches across toward the index tip.
	pts[ThumbCMC] = at(-0.30, -0.20)
	pts[ThumbMCP] = at(-0.45, -0.50)
	pts[ThumbIP] = at(-0.35, -0.85)

	pts[IndexMCP] = at(-0.25, -0.95)
	pts[IndexPIP] = at(-0.15, -1.25)
	pts[IndexDIP] = at(-0.05, -1.30)

	pts[MiddleMCP] = at(0, -1.0)
	pts[MiddlePIP] = at(0.05, -1.45)
	pts[MiddleDIP] = at(0.05, -1.75)
	pts[MiddleTip] = at(0.05, -2.0)

	pts[RingMCP] = at(0.25, -0.95)
	pts[RingPIP] = at(0.30, -1.35)
	pts[RingDIP] = at(0.32, -1.60)
	pts[RingTip] = at(0.34, -1.80)

	pts[PinkyMCP] = at(0.45, -0.85)
	pts[PinkyPIP] = at(0.52, -1.15)
	pts[PinkyDIP] = at(0.56, -1.35)
	pts[PinkyTip] = at(0.60, -1.50)

	contact := at(0, -1.2)
	pts[ThumbTip] = Point{X: contact.X - gap/2, Y: contact.Y}
	pts[IndexTip] = Point{X: contact.X + gap/2, Y: contact.Y}

	return Hand{
		Keypoints:  pts,
		Handedness: "Right",
		Score:      0.95,
	}
}

// PinchingHand returns a hand whose thumb and index tips touch.
func PinchingHand(wrist Point) Hand {
	return HandAt(wrist, 100, 4)
}

// OpenHand returns a hand whose thumb and index tips are well apart.
func OpenHand(wrist Point) Hand {
	return HandAt(wrist, 100, 90)
}
