package events

import (
	"context"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// Hands is the filtered hand list of one processed frame.
type Hands struct {
	FrameSeq  uint64          `json:"frame_seq"`
	Timestamp time.Time       `json:"timestamp"`
	Hands     []detector.Hand `json:"hands"`
}

// Count returns the number of hands in the frame.
func (h Hands) Count() int {
	return len(h.Hands)
}

// HandFeed holds the latest Hands and wakes watchers when it changes.
//
// Unlike Log it keeps no history: a slow watcher skips to the newest frame.
type HandFeed struct {
	mu      sync.Mutex
	latest  Hands
	version uint64
	notify  chan struct{}
	closed  bool
}

// NewHandFeed creates an empty HandFeed.
func NewHandFeed() *HandFeed {
	return &HandFeed{notify: make(chan struct{})}
}

// Publish replaces the latest frame. Publishing to a closed feed is a no-op.
func (f *HandFeed) Publish(h Hands) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.latest = h
	f.version++

	close(f.notify)
	f.notify = make(chan struct{})
}

// Latest returns the most recent frame and its version. Version 0 means
// nothing has been published yet.
func (f *HandFeed) Latest() (Hands, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.version
}

// Next blocks until a frame newer than version is published and returns it
// with its version. It returns ctx.Err() if ctx ends first, or ErrClosed once
// the feed is closed.
func (f *HandFeed) Next(ctx context.Context, version uint64) (Hands, uint64, error) {
	for {
		f.mu.Lock()
		if f.version > version {
			h, v := f.latest, f.version
			f.mu.Unlock()
			return h, v, nil
		}
		if f.closed {
			f.mu.Unlock()
			return Hands{}, version, ErrClosed
		}
		notify := f.notify
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return Hands{}, version, ctx.Err()
		case <-notify:
		}
	}
}

// Close wakes all watchers with ErrClosed.
func (f *HandFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	close(f.notify)
}
