package detector

import (
	"context"
	"errors"

	"gocv.io/x/gocv"
)

// ErrDetectorUnavailable is returned when the backing estimator cannot be started.
var ErrDetectorUnavailable = errors.New("detector unavailable")

// Options controls a single estimation call.
type Options struct {
	// Mirror reports keypoints as if the frame had been flipped horizontally,
	// matching a selfie-style preview.
	Mirror bool
}

// Detector defines the interface for hand pose estimators.
type Detector interface {
	// Detect analyzes a video frame and returns detected hands in frame pixel
	// coordinates. Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat, opts Options) ([]Hand, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Warmer is implemented by detectors with an expensive model load that can be
// performed ahead of the first frame.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence passed to the model (0.0-1.0).
	// The pipeline applies its own, stricter confidence filter afterwards.
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}
