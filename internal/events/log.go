// Package events holds the append-only log of gesture events and lets
// consumers replay or follow it.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/ayusman/mudra/internal/gesture"
)

// ErrClosed is returned by Next once a subscription or its log is closed and
// every available event has been delivered.
var ErrClosed = errors.New("event log closed")

// Log is an append-only, in-order sequence of gesture events.
//
// Appends never block on consumers. Subscribers keep their own cursor into
// the log, so a slow subscriber lags but never loses events.
type Log struct {
	mu     sync.Mutex
	events []gesture.Event
	notify chan struct{} // closed and replaced on every append
	closed bool
}

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{notify: make(chan struct{})}
}

// Append stamps each event with the next sequence number, starting at 1, and
// appends them in order. It returns the stamped events.
// Appending to a closed log is a no-op.
func (l *Log) Append(evs ...gesture.Event) []gesture.Event {
	if len(evs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	stamped := make([]gesture.Event, len(evs))
	for i, e := range evs {
		e.Seq = uint64(len(l.events)) + 1
		l.events = append(l.events, e)
		stamped[i] = e
	}

	close(l.notify)
	l.notify = make(chan struct{})

	return stamped
}

// Replay returns a copy of every event appended so far.
func (l *Log) Replay() []gesture.Event {
	return l.Since(0)
}

// Since returns a copy of the events with Seq greater than seq.
func (l *Log) Since(seq uint64) []gesture.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq >= uint64(len(l.events)) {
		return []gesture.Event{}
	}
	out := make([]gesture.Event, uint64(len(l.events))-seq)
	copy(out, l.events[seq:])
	return out
}

// Len returns the number of events in the log, which is also the Seq of the
// latest event.
func (l *Log) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.events))
}

// Subscribe returns a subscription that yields every event with Seq greater
// than from, followed by live events as they are appended.
func (l *Log) Subscribe(from uint64) *Subscription {
	return &Subscription{
		log:    l,
		cursor: from,
		done:   make(chan struct{}),
	}
}

// SubscribeNow returns a subscription that only yields events appended after
// the call.
func (l *Log) SubscribeNow() *Subscription {
	return l.Subscribe(l.Len())
}

// Close stops accepting events. Subscribers drain what is left and then
// receive ErrClosed.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	close(l.notify)
}

// Subscription is a cursor over a Log.
type Subscription struct {
	log       *Log
	cursor    uint64
	done      chan struct{}
	closeOnce sync.Once
}

// Next blocks until the event after the cursor is available and returns it.
// It returns ctx.Err() if ctx ends first, or ErrClosed once the subscription
// or the log is closed and nothing remains to deliver.
func (s *Subscription) Next(ctx context.Context) (gesture.Event, error) {
	for {
		select {
		case <-s.done:
			return gesture.Event{}, ErrClosed
		default:
		}

		s.log.mu.Lock()
		if s.cursor < uint64(len(s.log.events)) {
			e := s.log.events[s.cursor]
			s.cursor++
			s.log.mu.Unlock()
			return e, nil
		}
		if s.log.closed {
			s.log.mu.Unlock()
			return gesture.Event{}, ErrClosed
		}
		wait := s.log.notify
		s.log.mu.Unlock()

		select {
		case <-ctx.Done():
			return gesture.Event{}, ctx.Err()
		case <-s.done:
			return gesture.Event{}, ErrClosed
		case <-wait:
		}
	}
}

// NextBatch blocks like Next for the first event, then returns it together
// with whatever else is already available, up to max events in total.
func (s *Subscription) NextBatch(ctx context.Context, max int) ([]gesture.Event, error) {
	first, err := s.Next(ctx)
	if err != nil {
		return nil, err
	}

	batch := []gesture.Event{first}

	s.log.mu.Lock()
	defer s.log.mu.Unlock()

	for len(batch) < max && s.cursor < uint64(len(s.log.events)) {
		batch = append(batch, s.log.events[s.cursor])
		s.cursor++
	}
	return batch, nil
}

// Cursor returns the Seq of the last event delivered by Next.
func (s *Subscription) Cursor() uint64 {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	return s.cursor
}

// Close ends the subscription and wakes a pending Next.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
