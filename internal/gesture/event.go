// Package gesture turns per-frame hand detections into discrete pinch and drag events.
package gesture

import (
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/detector"
)

// Kind identifies the type of a gesture event.
type Kind string

const (
	// KindPinch marks the start of a thumb-index contact.
	KindPinch Kind = "pinch"
	// KindDrag is one segment of motion while a pinch is held.
	KindDrag Kind = "drag"
	// KindRelease marks the end of a contact. Only emitted when enabled.
	KindRelease Kind = "release"
)

// Line is a drag segment between two contact points.
type Line struct {
	Start detector.Point `json:"start"`
	End   detector.Point `json:"end"`
}

// Event is an immutable gesture event attributed to a tracked hand.
//
// Point is the contact position: the pinch location, the drag end point, or the
// release location. Line is set for drag events only.
type Event struct {
	Seq       uint64         `json:"seq"`
	Kind      Kind           `json:"kind"`
	HandID    uuid.UUID      `json:"hand_id"`
	Point     detector.Point `json:"point"`
	Line      *Line          `json:"line,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func pinchEvent(hand uuid.UUID, at detector.Point, ts time.Time) Event {
	return Event{Kind: KindPinch, HandID: hand, Point: at, Timestamp: ts}
}

func dragEvent(hand uuid.UUID, from, to detector.Point, ts time.Time) Event {
	return Event{
		Kind:      KindDrag,
		HandID:    hand,
		Point:     to,
		Line:      &Line{Start: from, End: to},
		Timestamp: ts,
	}
}

func releaseEvent(hand uuid.UUID, at detector.Point, ts time.Time) Event {
	return Event{Kind: KindRelease, HandID: hand, Point: at, Timestamp: ts}
}
