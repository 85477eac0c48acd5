// Package capture provides video frame sources using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when grabbing from a source that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrNoFrame is returned when no frame newer than the requested sequence exists.
	ErrNoFrame = errors.New("no new frame")
)

// Frame is one sampled video frame with metadata.
// Mat is owned by the Frame; release it with Close.
type Frame struct {
	Mat        *gocv.Mat
	Seq        uint64
	CapturedAt time.Time
	Width      int
	Height     int
}

// Close releases the frame's image. Safe on nil frames and frames without a Mat.
func (f *Frame) Close() {
	if f == nil || f.Mat == nil {
		return
	}
	f.Mat.Close()
	f.Mat = nil
}

// Source is a live video source that always offers its newest frame.
type Source interface {
	Open() error
	Close() error
	// Grab returns a copy of the newest frame if its Seq is greater than
	// after, or ErrNoFrame. It never blocks waiting for the device.
	Grab(after uint64) (*Frame, error)
}

// CameraConfig holds capture device settings.
type CameraConfig struct {
	Device int
	Width  int
	Height int
	FPS    int
}

// DefaultCameraConfig returns the default 640x480 capture settings.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
	}
}

// Camera reads a capture device in a background goroutine and keeps only
// the latest frame. Older frames are overwritten, never queued.
type Camera struct {
	config CameraConfig
	logger *slog.Logger

	mu         sync.Mutex
	capture    *gocv.VideoCapture
	latest     gocv.Mat
	seq        uint64
	capturedAt time.Time
	running    bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCamera creates a new Camera. It does not touch the device until Open.
func NewCamera(config CameraConfig, logger *slog.Logger) *Camera {
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = DefaultWidth, DefaultHeight
	}
	if config.FPS <= 0 {
		config.FPS = DefaultFPS
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Camera{config: config, logger: logger}
}

// Open opens the device and starts the reader goroutine.
func (c *Camera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.config.Device)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.config.Device, err)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.config.FPS))

	c.capture = capture
	c.latest = gocv.NewMat()
	c.running = true
	c.stopCh = make(chan struct{})

	c.wg.Add(1)
	go c.readLoop(capture, c.stopCh)

	c.logger.Info("camera opened", "device", c.config.Device,
		"width", c.config.Width, "height", c.config.Height)

	return nil
}

// Close stops the reader and releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.capture.Close()
	c.capture = nil
	c.latest.Close()
	c.logger.Info("camera closed", "device", c.config.Device)

	return err
}

// Grab returns a copy of the newest frame if it is newer than after.
func (c *Camera) Grab(after uint64) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}
	if c.seq <= after || c.latest.Empty() {
		return nil, ErrNoFrame
	}

	mat := c.latest.Clone()
	return &Frame{
		Mat:        &mat,
		Seq:        c.seq,
		CapturedAt: c.capturedAt,
		Width:      mat.Cols(),
		Height:     mat.Rows(),
	}, nil
}

// IsOpen returns true if the camera is currently open and running.
func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

func (c *Camera) readLoop(capture *gocv.VideoCapture, stopCh <-chan struct{}) {
	defer c.wg.Done()

	buf := gocv.NewMat()
	defer buf.Close()

	failures := 0
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		// Read blocks at the device's own frame rate.
		if ok := capture.Read(&buf); !ok || buf.Empty() {
			failures++
			if failures == 1 || failures%100 == 0 {
				c.logger.Warn("camera read failed", "device", c.config.Device, "failures", failures)
			}
			select {
			case <-stopCh:
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		failures = 0

		c.mu.Lock()
		buf.CopyTo(&c.latest)
		c.seq++
		c.capturedAt = time.Now()
		c.mu.Unlock()
	}
}
