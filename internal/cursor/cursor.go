// Package cursor drives the OS pointer from gesture events.
package cursor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
)

// DefaultHandoff is how long the controlling hand may go without events
// before another hand can take over.
const DefaultHandoff = time.Second

// Mouse is the OS pointer.
type Mouse interface {
	ScreenSize() (width, height int)
	Move(x, y int)
	Click()
}

// Config holds the controller settings.
type Config struct {
	// FrameWidth and FrameHeight are the dimensions event coordinates refer to.
	FrameWidth  int
	FrameHeight int
	Handoff     time.Duration
}

// Controller maps Pinch events to clicks and Drag events to pointer moves.
//
// Only one hand controls the pointer at a time: the first one to pinch keeps
// control until it releases or stays silent for Handoff.
type Controller struct {
	config Config
	mouse  Mouse
	logger *slog.Logger

	owner    uuid.UUID
	lastSeen time.Time
}

// New creates a Controller.
func New(config Config, mouse Mouse, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Handoff <= 0 {
		config.Handoff = DefaultHandoff
	}
	return &Controller{config: config, mouse: mouse, logger: logger}
}

// Run applies events from sub until ctx ends or the log closes.
func (c *Controller) Run(ctx context.Context, sub *events.Subscription) error {
	defer sub.Close()

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, events.ErrClosed) {
				return nil
			}
			return err
		}
		c.Apply(ev)
	}
}

// Apply moves or clicks the pointer for one event. It reports whether the
// pointer was touched.
func (c *Controller) Apply(ev gesture.Event) bool {
	if !c.claim(ev) {
		return false
	}

	switch ev.Kind {
	case gesture.KindPinch:
		x, y := c.toScreen(ev.Point)
		c.mouse.Move(x, y)
		c.mouse.Click()
		c.logger.Debug("pointer click", "hand_id", ev.HandID, "x", x, "y", y)

	case gesture.KindDrag:
		end := ev.Point
		if ev.Line != nil {
			end = ev.Line.End
		}
		x, y := c.toScreen(end)
		c.mouse.Move(x, y)

	case gesture.KindRelease:
		c.owner = uuid.Nil

	default:
		return false
	}
	return true
}

// claim decides whether ev's hand controls the pointer, taking control for it
// when the pointer is free.
func (c *Controller) claim(ev gesture.Event) bool {
	free := c.owner == uuid.Nil || ev.Timestamp.Sub(c.lastSeen) > c.config.Handoff
	switch {
	case ev.HandID == c.owner:
	case free && ev.Kind == gesture.KindPinch:
		if c.owner != uuid.Nil {
			c.logger.Debug("pointer handoff", "from", c.owner, "to", ev.HandID)
		}
		c.owner = ev.HandID
	default:
		return false
	}
	c.lastSeen = ev.Timestamp
	return true
}

// toScreen scales a frame coordinate to the screen, clamped to its bounds.
func (c *Controller) toScreen(p detector.Point) (int, int) {
	sw, sh := c.mouse.ScreenSize()
	return scale(p.X, c.config.FrameWidth, sw), scale(p.Y, c.config.FrameHeight, sh)
}

func scale(v float64, from, to int) int {
	if from <= 0 || to <= 0 {
		return 0
	}
	s := int(math.Round(v * float64(to) / float64(from)))
	return max(0, min(s, to-1))
}
