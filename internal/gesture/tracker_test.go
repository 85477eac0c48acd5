package gesture

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/detector"
)

// newTestTracker returns a tracker with a 10px pinch threshold for scale-100
// hands and deterministic hand identifiers.
func newTestTracker(mutate func(*Config)) *Tracker {
	cfg := DefaultConfig()
	cfg.PinchThresholdFraction = 0.1
	if mutate != nil {
		mutate(&cfg)
	}
	tr := NewTracker(cfg, nil)
	n := 0
	tr.newID = func() uuid.UUID {
		n++
		return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
	}
	return tr
}

func contactOf(h detector.Hand) detector.Point {
	return h.Keypoints[detector.ThumbTip].Midpoint(h.Keypoints[detector.IndexTip])
}

func kinds(events []Event) []Kind {
	out := make([]Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestPhase_String(t *testing.T) {
	if PhaseIdle.String() != "idle" || PhasePinching.String() != "pinching" {
		t.Errorf("unexpected phase names: %s, %s", PhaseIdle, PhasePinching)
	}
	if Phase(42).String() != "unknown" {
		t.Errorf("Phase(42).String() = %s, want unknown", Phase(42))
	}
}

func TestTracker_DistanceSequence(t *testing.T) {
	wrist := detector.Point{X: 300, Y: 400}
	ts := time.Unix(1700000000, 0)

	t.Run("stationary contact", func(t *testing.T) {
		tr := newTestTracker(nil)

		var all [][]Event
		for _, gap := range []float64{50, 8, 6, 30} {
			all = append(all, tr.Update([]detector.Hand{detector.HandAt(wrist, 100, gap)}, ts))
		}

		if len(all[0]) != 0 {
			t.Errorf("frame 1 events = %v, want none", kinds(all[0]))
		}
		if len(all[1]) != 1 || all[1][0].Kind != KindPinch {
			t.Fatalf("frame 2 events = %v, want [pinch]", kinds(all[1]))
		}
		if want := contactOf(detector.HandAt(wrist, 100, 8)); all[1][0].Point != want {
			t.Errorf("pinch at %+v, want %+v", all[1][0].Point, want)
		}
		if !all[1][0].Timestamp.Equal(ts) {
			t.Errorf("pinch timestamp = %v, want %v", all[1][0].Timestamp, ts)
		}
		if len(all[2]) != 0 {
			t.Errorf("frame 3 events = %v, want none without motion", kinds(all[2]))
		}
		if len(all[3]) != 0 {
			t.Errorf("frame 4 events = %v, want none", kinds(all[3]))
		}

		slots := tr.Slots()
		if len(slots) != 1 || slots[0].Phase != PhaseIdle {
			t.Errorf("slots = %+v, want one idle slot", slots)
		}
	})

	t.Run("contact moves while pinched", func(t *testing.T) {
		tr := newTestTracker(nil)
		moved := detector.Point{X: wrist.X + 5, Y: wrist.Y}

		tr.Update([]detector.Hand{detector.HandAt(wrist, 100, 50)}, ts)
		pinch := tr.Update([]detector.Hand{detector.HandAt(wrist, 100, 8)}, ts)
		drag := tr.Update([]detector.Hand{detector.HandAt(moved, 100, 6)}, ts)
		release := tr.Update([]detector.Hand{detector.HandAt(moved, 100, 30)}, ts)

		if len(pinch) != 1 {
			t.Fatalf("expected one pinch, got %v", kinds(pinch))
		}
		if len(drag) != 1 || drag[0].Kind != KindDrag {
			t.Fatalf("frame 3 events = %v, want [drag]", kinds(drag))
		}
		if drag[0].Line.Start != pinch[0].Point {
			t.Errorf("drag start = %+v, want pinch point %+v", drag[0].Line.Start, pinch[0].Point)
		}
		if drag[0].Line.End != contactOf(detector.HandAt(moved, 100, 6)) {
			t.Errorf("drag end = %+v", drag[0].Line.End)
		}
		if drag[0].Point != drag[0].Line.End {
			t.Error("drag point must equal line end")
		}
		if drag[0].HandID != pinch[0].HandID {
			t.Error("drag attributed to a different hand")
		}
		if len(release) != 0 {
			t.Errorf("frame 4 events = %v, want none", kinds(release))
		}
	})
}

func TestTracker_FirstFramePinching(t *testing.T) {
	tr := newTestTracker(nil)

	events := tr.Update([]detector.Hand{detector.PinchingHand(detector.Point{X: 200, Y: 400})}, time.Now())

	if len(events) != 1 || events[0].Kind != KindPinch {
		t.Fatalf("events = %v, want [pinch]", kinds(events))
	}
}

func TestTracker_NoDragWhileIdle(t *testing.T) {
	tr := newTestTracker(nil)

	for i := 0; i < 10; i++ {
		wrist := detector.Point{X: 100 + float64(i*20), Y: 400}
		if events := tr.Update([]detector.Hand{detector.OpenHand(wrist)}, time.Now()); len(events) != 0 {
			t.Fatalf("frame %d events = %v, want none", i, kinds(events))
		}
	}
	if len(tr.Slots()) != 1 {
		t.Errorf("expected a single tracked hand, got %d", len(tr.Slots()))
	}
}

func TestTracker_PolylineConnectivity(t *testing.T) {
	tr := newTestTracker(nil)

	var events []Event
	for i := 0; i < 8; i++ {
		wrist := detector.Point{X: 100 + float64(i*15), Y: 400 - float64(i*7)}
		events = append(events, tr.Update([]detector.Hand{detector.PinchingHand(wrist)}, time.Now())...)
	}

	if len(events) != 8 {
		t.Fatalf("got %d events, want 1 pinch and 7 drags", len(events))
	}
	if events[0].Kind != KindPinch {
		t.Fatalf("first event = %s, want pinch", events[0].Kind)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Kind != KindDrag {
			t.Fatalf("event %d = %s, want drag", i, events[i].Kind)
		}
		if events[i].Line.Start != events[i-1].Point {
			t.Errorf("event %d starts at %+v, previous ended at %+v", i, events[i].Line.Start, events[i-1].Point)
		}
	}
}

func TestTracker_MotionNoise(t *testing.T) {
	tr := newTestTracker(nil)
	start := detector.Point{X: 200, Y: 400}

	pinch := tr.Update([]detector.Hand{detector.PinchingHand(start)}, time.Now())

	// Each step moves 1px, below the 2px noise threshold.
	var drags []Event
	for i := 1; i <= 3; i++ {
		wrist := detector.Point{X: start.X + float64(i), Y: start.Y}
		drags = append(drags, tr.Update([]detector.Hand{detector.PinchingHand(wrist)}, time.Now())...)
	}

	if len(drags) != 1 {
		t.Fatalf("got %d drags, want 1 once accumulated motion exceeds the threshold", len(drags))
	}
	if drags[0].Line.Start != pinch[0].Point {
		t.Errorf("drag start = %+v, want %+v", drags[0].Line.Start, pinch[0].Point)
	}
	if got := drags[0].Line.End.X - drags[0].Line.Start.X; got != 3 {
		t.Errorf("drag length = %f, want 3", got)
	}
}

func TestTracker_GracePeriod(t *testing.T) {
	wrist := detector.Point{X: 300, Y: 400}

	t.Run("lost after grace", func(t *testing.T) {
		tr := newTestTracker(nil)

		first := tr.Update([]detector.Hand{detector.PinchingHand(wrist)}, time.Now())
		for i := 0; i < 6; i++ {
			if events := tr.Update(nil, time.Now()); len(events) != 0 {
				t.Fatalf("missed frame %d events = %v, want none", i, kinds(events))
			}
		}
		if len(tr.Slots()) != 0 {
			t.Fatalf("expected slot to be dropped, got %+v", tr.Slots())
		}

		tr.Update([]detector.Hand{detector.OpenHand(wrist)}, time.Now())

		slots := tr.Slots()
		if len(slots) != 1 {
			t.Fatalf("expected one slot, got %d", len(slots))
		}
		if slots[0].ID == first[0].HandID {
			t.Error("reappearing hand must get a new identifier")
		}
		if slots[0].Phase != PhaseIdle {
			t.Errorf("phase = %s, want idle", slots[0].Phase)
		}
	})

	t.Run("reappearing pinch is a new pinch", func(t *testing.T) {
		tr := newTestTracker(nil)

		first := tr.Update([]detector.Hand{detector.PinchingHand(wrist)}, time.Now())
		for i := 0; i < 6; i++ {
			tr.Update(nil, time.Now())
		}
		again := tr.Update([]detector.Hand{detector.PinchingHand(wrist)}, time.Now())

		if len(again) != 1 || again[0].Kind != KindPinch {
			t.Fatalf("events = %v, want [pinch]", kinds(again))
		}
		if again[0].HandID == first[0].HandID {
			t.Error("expected a new hand identifier")
		}
	})

	t.Run("resumed within grace", func(t *testing.T) {
		tr := newTestTracker(nil)

		first := tr.Update([]detector.Hand{detector.PinchingHand(wrist)}, time.Now())
		for i := 0; i < 5; i++ {
			tr.Update(nil, time.Now())
		}
		moved := detector.Point{X: wrist.X + 20, Y: wrist.Y}
		resumed := tr.Update([]detector.Hand{detector.PinchingHand(moved)}, time.Now())

		if len(resumed) != 1 || resumed[0].Kind != KindDrag {
			t.Fatalf("events = %v, want [drag]", kinds(resumed))
		}
		if resumed[0].HandID != first[0].HandID {
			t.Error("resumed hand must keep its identifier")
		}
		if tr.Slots()[0].Misses != 0 {
			t.Errorf("misses = %d, want 0 after match", tr.Slots()[0].Misses)
		}
	})
}

func TestTracker_TwoHands(t *testing.T) {
	left := detector.Point{X: 120, Y: 400}
	right := detector.Point{X: 480, Y: 400}

	tr := newTestTracker(nil)
	tr.Update([]detector.Hand{detector.OpenHand(left), detector.OpenHand(right)}, time.Now())

	slots := tr.Slots()
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	var leftID uuid.UUID
	for _, s := range slots {
		if s.Wrist == left {
			leftID = s.ID
		}
	}

	// Input order is swapped; association must follow position.
	events := tr.Update([]detector.Hand{detector.OpenHand(right), detector.PinchingHand(left)}, time.Now())

	if len(events) != 1 {
		t.Fatalf("events = %v, want exactly one pinch", kinds(events))
	}
	if events[0].Kind != KindPinch {
		t.Errorf("kind = %s, want pinch", events[0].Kind)
	}
	if events[0].HandID != leftID {
		t.Errorf("pinch attributed to %s, want %s", events[0].HandID, leftID)
	}
}

func TestTracker_MaxJump(t *testing.T) {
	tr := newTestTracker(nil)

	tr.Update([]detector.Hand{detector.OpenHand(detector.Point{X: 100, Y: 400})}, time.Now())
	tr.Update([]detector.Hand{detector.OpenHand(detector.Point{X: 500, Y: 400})}, time.Now())

	slots := tr.Slots()
	if len(slots) != 2 {
		t.Fatalf("expected a far jump to open a second slot, got %d slots", len(slots))
	}
	if slots[0].Misses != 1 {
		t.Errorf("original slot misses = %d, want 1", slots[0].Misses)
	}
}

func TestTracker_Release(t *testing.T) {
	wrist := detector.Point{X: 300, Y: 400}

	t.Run("on contact end", func(t *testing.T) {
		tr := newTestTracker(func(c *Config) { c.EmitRelease = true })

		pinch := tr.Update([]detector.Hand{detector.PinchingHand(wrist)}, time.Now())
		events := tr.Update([]detector.Hand{detector.OpenHand(wrist)}, time.Now())

		if len(events) != 1 || events[0].Kind != KindRelease {
			t.Fatalf("events = %v, want [release]", kinds(events))
		}
		if events[0].Point != pinch[0].Point {
			t.Errorf("release at %+v, want %+v", events[0].Point, pinch[0].Point)
		}
	})

	t.Run("on loss while pinching", func(t *testing.T) {
		tr := newTestTracker(func(c *Config) { c.EmitRelease = true })

		tr.Update([]detector.Hand{detector.PinchingHand(wrist)}, time.Now())
		var events []Event
		for i := 0; i < 6; i++ {
			events = append(events, tr.Update(nil, time.Now())...)
		}

		if len(events) != 1 || events[0].Kind != KindRelease {
			t.Fatalf("events = %v, want [release]", kinds(events))
		}
	})

	t.Run("disabled by default", func(t *testing.T) {
		tr := newTestTracker(nil)

		tr.Update([]detector.Hand{detector.PinchingHand(wrist)}, time.Now())
		if events := tr.Update([]detector.Hand{detector.OpenHand(wrist)}, time.Now()); len(events) != 0 {
			t.Errorf("events = %v, want none", kinds(events))
		}
	})
}

func TestTracker_SkipsIncompleteHands(t *testing.T) {
	tr := newTestTracker(nil)

	partial := detector.PinchingHand(detector.Point{X: 200, Y: 400})
	partial.Keypoints = partial.Keypoints[:detector.IndexTip+1]

	if events := tr.Update([]detector.Hand{partial}, time.Now()); len(events) != 0 {
		t.Errorf("events = %v, want none", kinds(events))
	}
	if len(tr.Slots()) != 0 {
		t.Errorf("expected no slots, got %d", len(tr.Slots()))
	}
}

func TestTracker_DegenerateScale(t *testing.T) {
	tr := newTestTracker(nil)

	h := detector.HandAt(detector.Point{X: 200, Y: 400}, 0, 0)
	if events := tr.Update([]detector.Hand{h}, time.Now()); len(events) != 0 {
		t.Errorf("events = %v, want none for zero-scale hand", kinds(events))
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := newTestTracker(func(c *Config) { c.EmitRelease = true })
	tr.Update([]detector.Hand{detector.PinchingHand(detector.Point{X: 200, Y: 400})}, time.Now())

	tr.Reset()

	if len(tr.Slots()) != 0 {
		t.Errorf("expected no slots after Reset, got %d", len(tr.Slots()))
	}
	if events := tr.Update(nil, time.Now()); len(events) != 0 {
		t.Errorf("events after Reset = %v, want none", kinds(events))
	}
}

func TestTracker_PinchThresholdScalesWithHand(t *testing.T) {
	wrist := detector.Point{X: 300, Y: 400}

	tests := []struct {
		name      string
		fraction  float64
		scale     float64
		gap       float64
		wantPinch bool
	}{
		{"large hand 8px gap", 0.1, 200, 8, true},
		{"small hand 8px gap", 0.1, 50, 8, false},
		{"gap equals threshold", 0.25, 40, 10, true},
		{"gap just over threshold", 0.25, 40, 12, false},
		{"far hand wide gap", 0.25, 200, 48, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(func(c *Config) { c.PinchThresholdFraction = tt.fraction })

			events := tr.Update([]detector.Hand{detector.HandAt(wrist, tt.scale, tt.gap)}, time.Now())

			gotPinch := len(events) == 1 && events[0].Kind == KindPinch
			if gotPinch != tt.wantPinch {
				t.Errorf("events = %v, want pinch = %v", kinds(events), tt.wantPinch)
			}
			if phase := tr.Slots()[0].Phase; (phase == PhasePinching) != tt.wantPinch {
				t.Errorf("phase = %s, want pinching = %v", phase, tt.wantPinch)
			}
		})
	}
}
