package gesture

import (
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/detector"
)

// Phase is the gesture phase of a tracked hand.
type Phase int

const (
	// PhaseIdle means the hand is not pinching.
	PhaseIdle Phase = iota
	// PhasePinching means thumb and index tips are in contact.
	PhasePinching
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePinching:
		return "pinching"
	default:
		return "unknown"
	}
}

// Landmarks holds the keypoint indices the tracker reads from each hand.
// They are estimator specific and therefore injected.
type Landmarks struct {
	Wrist    int
	ThumbTip int
	IndexTip int
	// ScaleRef is the keypoint whose distance from the wrist defines the
	// hand's own scale for the pinch threshold.
	ScaleRef int
}

// DefaultLandmarks returns the MediaPipe hand landmark indices.
func DefaultLandmarks() Landmarks {
	return Landmarks{
		Wrist:    detector.Wrist,
		ThumbTip: detector.ThumbTip,
		IndexTip: detector.IndexTip,
		ScaleRef: detector.MiddleMCP,
	}
}

// Config holds the tracker thresholds.
type Config struct {
	// PinchThresholdFraction is the maximum thumb-index distance, as a
	// fraction of the hand scale, that counts as contact.
	PinchThresholdFraction float64
	// MotionNoiseThreshold is the contact point movement in pixels that must
	// be exceeded to produce a drag segment.
	MotionNoiseThreshold float64
	// MaxJump is the wrist movement in pixels between frames below which a
	// hand is associated with an existing slot.
	MaxJump float64
	// GraceFrames is the number of consecutive missed frames a slot survives.
	GraceFrames int
	// EmitRelease enables release events on contact end and on loss while pinching.
	EmitRelease bool
	Landmarks   Landmarks
}

// DefaultConfig returns a Config with sensible default values for 640x480 input.
func DefaultConfig() Config {
	return Config{
		PinchThresholdFraction: 0.35,
		MotionNoiseThreshold:   2.0,
		MaxJump:                120,
		GraceFrames:            5,
		Landmarks:              DefaultLandmarks(),
	}
}

// Slot is a snapshot of one tracked hand.
type Slot struct {
	ID     uuid.UUID
	Phase  Phase
	Wrist  detector.Point
	Last   detector.Point // last emitted contact position, valid while pinching
	Misses int
}

// observation is the part of a detected hand the tracker needs.
type observation struct {
	wrist   detector.Point
	contact detector.Point
	gap     float64
	scale   float64
}

// Tracker is the gesture state machine. It associates hands across frames
// and emits pinch and drag events per tracked hand.
//
// A Tracker is not safe for concurrent use; Update must be called with one
// frame at a time in arrival order.
type Tracker struct {
	cfg    Config
	slots  []*Slot
	newID  func() uuid.UUID
	logger *slog.Logger
}

// NewTracker creates a Tracker with the given configuration.
func NewTracker(cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tracker{
		cfg:    cfg,
		newID:  uuid.New,
		logger: logger,
	}
}

// Update consumes one frame's filtered hands and returns the events produced.
// Every event is stamped with ts.
//
// Steps:
// 1. Associate hands to slots by nearest wrist below MaxJump
// 2. Step matched slots through the pinch state machine
// 3. Age unmatched slots and drop those past GraceFrames
// 4. Open an Idle slot for each unmatched hand and step it
func (t *Tracker) Update(hands []detector.Hand, ts time.Time) []Event {
	obs := t.observe(hands)
	matched, used := t.associate(obs)

	var events []Event

	kept := t.slots[:0]
	for i, s := range t.slots {
		if j := matched[i]; j >= 0 {
			s.Misses = 0
			s.Wrist = obs[j].wrist
			events = t.step(s, obs[j], ts, events)
			kept = append(kept, s)
			continue
		}

		s.Misses++
		if s.Misses > t.cfg.GraceFrames {
			t.logger.Debug("tracked hand lost", "hand_id", s.ID, "phase", s.Phase.String())
			if s.Phase == PhasePinching && t.cfg.EmitRelease {
				events = append(events, releaseEvent(s.ID, s.Last, ts))
			}
			continue
		}
		kept = append(kept, s)
	}
	t.slots = kept

	for j, o := range obs {
		if used[j] {
			continue
		}
		s := &Slot{ID: t.newID(), Phase: PhaseIdle, Wrist: o.wrist}
		t.logger.Debug("tracked hand added", "hand_id", s.ID)
		t.slots = append(t.slots, s)
		events = t.step(s, o, ts, events)
	}

	return events
}

// step applies one frame of the pinch state machine to s.
func (t *Tracker) step(s *Slot, o observation, ts time.Time, events []Event) []Event {
	contact := o.scale > 0 && o.gap <= t.cfg.PinchThresholdFraction*o.scale

	switch {
	case s.Phase == PhaseIdle && contact:
		s.Phase = PhasePinching
		s.Last = o.contact
		events = append(events, pinchEvent(s.ID, o.contact, ts))

	case s.Phase == PhasePinching && contact:
		if s.Last.Distance(o.contact) > t.cfg.MotionNoiseThreshold {
			events = append(events, dragEvent(s.ID, s.Last, o.contact, ts))
			s.Last = o.contact
		}

	case s.Phase == PhasePinching && !contact:
		s.Phase = PhaseIdle
		if t.cfg.EmitRelease {
			events = append(events, releaseEvent(s.ID, s.Last, ts))
		}
	}

	return events
}

// Slots returns a snapshot of the currently tracked hands in creation order.
func (t *Tracker) Slots() []Slot {
	out := make([]Slot, len(t.slots))
	for i, s := range t.slots {
		out[i] = *s
	}
	return out
}

// Reset discards all tracked state without emitting events.
func (t *Tracker) Reset() {
	t.slots = nil
}

// observe extracts the tracker's view of each hand, skipping hands that lack
// any configured landmark.
func (t *Tracker) observe(hands []detector.Hand) []observation {
	lm := t.cfg.Landmarks
	obs := make([]observation, 0, len(hands))
	for i := range hands {
		h := &hands[i]
		wrist, okW := h.Keypoint(lm.Wrist)
		thumb, okT := h.Keypoint(lm.ThumbTip)
		index, okI := h.Keypoint(lm.IndexTip)
		ref, okR := h.Keypoint(lm.ScaleRef)
		if !okW || !okT || !okI || !okR {
			t.logger.Debug("hand missing landmarks", "keypoints", len(h.Keypoints))
			continue
		}
		obs = append(obs, observation{
			wrist:   wrist,
			contact: thumb.Midpoint(index),
			gap:     thumb.Distance(index),
			scale:   wrist.Distance(ref),
		})
	}
	return obs
}

// associate greedily pairs slots and observations by ascending wrist distance.
// matched[i] is the observation index for slot i, or -1; used[j] reports
// whether observation j was claimed.
func (t *Tracker) associate(obs []observation) (matched []int, used []bool) {
	type pair struct {
		slot, obs int
		dist      float64
	}

	var pairs []pair
	for i, s := range t.slots {
		for j := range obs {
			if d := s.Wrist.Distance(obs[j].wrist); d < t.cfg.MaxJump {
				pairs = append(pairs, pair{slot: i, obs: j, dist: d})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		return pairs[a].dist < pairs[b].dist
	})

	matched = make([]int, len(t.slots))
	for i := range matched {
		matched[i] = -1
	}
	used = make([]bool, len(obs))

	for _, p := range pairs {
		if matched[p.slot] >= 0 || used[p.obs] {
			continue
		}
		matched[p.slot] = p.obs
		used[p.obs] = true
	}

	return matched, used
}
