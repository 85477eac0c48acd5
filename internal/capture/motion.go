package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame differencing constants
const (
	// BlurKernel is the Gaussian blur kernel size used before differencing.
	BlurKernel = 21
	// PixelDiffThreshold is the per-pixel intensity change that counts as motion.
	PixelDiffThreshold = 25
)

// MotionGate decides whether a frame is worth sending to the hand estimator.
// It opens on motion and stays open for idleTimeout after the last motion.
type MotionGate struct {
	threshold   float64
	idleTimeout time.Duration

	mu         sync.Mutex
	prevGray   gocv.Mat
	primed     bool
	lastMotion time.Time
}

// NewMotionGate creates a MotionGate. threshold is the percentage of pixels
// that must change between frames to count as motion; 1.0 means 1%.
func NewMotionGate(threshold float64, idleTimeout time.Duration) *MotionGate {
	return &MotionGate{
		threshold:   threshold,
		idleTimeout: idleTimeout,
		prevGray:    gocv.NewMat(),
	}
}

// Allow reports whether estimation should run for frame captured at now.
// The first frame is always allowed.
func (g *MotionGate) Allow(frame *gocv.Mat, now time.Time) bool {
	moved, _ := g.Measure(frame)

	g.mu.Lock()
	defer g.mu.Unlock()

	if moved || g.lastMotion.IsZero() {
		g.lastMotion = now
		return true
	}
	return now.Sub(g.lastMotion) < g.idleTimeout
}

// Measure compares frame with the previous one and returns whether motion
// was detected and the percentage of changed pixels.
//
// Algorithm:
// 1. Grayscale and blur to suppress sensor noise
// 2. The first frame becomes the baseline
// 3. Absolute difference with the baseline, binary threshold
// 4. changed = non-zero pixels / total pixels
func (g *MotionGate) Measure(frame *gocv.Mat) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: BlurKernel, Y: BlurKernel}, 0, 0, gocv.BorderDefault)

	if !g.primed || blurred.Rows() != g.prevGray.Rows() || blurred.Cols() != g.prevGray.Cols() {
		blurred.CopyTo(&g.prevGray)
		g.primed = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, PixelDiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&g.prevGray)

	return changed > g.threshold, changed
}

// Reset forgets the baseline frame and the last motion time.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prevGray.Close()
	g.prevGray = gocv.NewMat()
	g.primed = false
	g.lastMotion = time.Time{}
}

// Close releases the baseline frame.
func (g *MotionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prevGray.Close()
	g.prevGray = gocv.NewMat()
	g.primed = false
}
