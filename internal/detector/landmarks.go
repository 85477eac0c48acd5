// Package detector provides hand detection interfaces and types for gesture extraction.
package detector

import "math"

// Hand landmark indices following the MediaPipe hand landmarker convention.
// The gesture core only consumes the indices it is configured with; these are
// the defaults for MediaPipe-compatible estimators.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point is a 2D position in frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Midpoint returns the point halfway between p and q.
func (p Point) Midpoint(q Point) Point {
	return Point{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2}
}

// Hand is one detected hand in a single frame. It carries no identity across
// frames; correspondence is established by the gesture tracker.
type Hand struct {
	Keypoints  []Point `json:"keypoints"`
	Handedness string  `json:"handedness,omitempty"` // "Left" or "Right"
	Score      float64 `json:"score"`
}

// Keypoint returns the keypoint at index i and whether it exists.
func (h *Hand) Keypoint(i int) (Point, bool) {
	if h == nil || i < 0 || i >= len(h.Keypoints) {
		return Point{}, false
	}
	return h.Keypoints[i], true
}

// Mirror returns a copy of the hand flipped horizontally within a frame of the given width.
func (h Hand) Mirror(width float64) Hand {
	out := Hand{
		Keypoints:  make([]Point, len(h.Keypoints)),
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	for i, p := range h.Keypoints {
		out.Keypoints[i] = Point{X: width - p.X, Y: p.Y}
	}
	return out
}
