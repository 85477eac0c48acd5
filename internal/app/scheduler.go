package app

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
)

const statsLogInterval = 5 * time.Second

// SchedulerConfig holds frame scheduling settings.
type SchedulerConfig struct {
	// FPSGoal bounds how often the estimator is invoked.
	FPSGoal int
	// Mirror is passed to the estimator on every call.
	Mirror bool
	// ConfidenceThreshold drops hands scoring at or below it.
	ConfidenceThreshold float64
}

// DefaultSchedulerConfig returns the default 30 fps, mirrored configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		FPSGoal:             30,
		Mirror:              true,
		ConfidenceThreshold: 0.85,
	}
}

// Interval returns the time between estimator invocations.
func (c SchedulerConfig) Interval() time.Duration {
	if c.FPSGoal <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.FPSGoal)
}

// Stats summarises scheduler behaviour for instrumentation.
type Stats struct {
	Cycles           uint64        `json:"cycles"`
	SkippedInFlight  uint64        `json:"skipped_in_flight"`
	SkippedNoFrame   uint64        `json:"skipped_no_frame"`
	SkippedDisabled  uint64        `json:"skipped_disabled"`
	SkippedIdle      uint64        `json:"skipped_idle"`
	EstimatorErrors  uint64        `json:"estimator_errors"`
	FramesProcessed  uint64        `json:"frames_processed"`
	EventsEmitted    uint64        `json:"events_emitted"`
	AvgEstimate      time.Duration `json:"avg_estimate_ns"`
	LastFrameSeq     uint64        `json:"last_frame_seq"`
	EstimateInFlight bool          `json:"estimate_in_flight"`
}

// Scheduler drives the estimator at a bounded rate and feeds its output
// through the confidence filter and the tracker into the event log. The
// filtered hands of every processed frame are also published to the hand feed.
//
// At most one cycle (grab, estimate, filter, update, append) runs at a time.
// A tick that finds a cycle still running is skipped, so estimator latency
// never queues work and the tracker sees frames strictly in order.
type Scheduler struct {
	config   SchedulerConfig
	source   capture.Source
	detector detector.Detector
	tracker  *gesture.Tracker
	log      *events.Log
	hands    *events.HandFeed
	gate     *capture.MotionGate
	logger   *slog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup

	enabled      atomic.Bool
	resetPending atomic.Bool
	inFlight     atomic.Bool
	lastSeq      atomic.Uint64

	cycles          atomic.Uint64
	skippedInFlight atomic.Uint64
	skippedNoFrame  atomic.Uint64
	skippedDisabled atomic.Uint64
	skippedIdle     atomic.Uint64
	estimatorErrors atomic.Uint64
	framesProcessed atomic.Uint64
	eventsEmitted   atomic.Uint64
	estimateNanos   atomic.Uint64
}

// NewScheduler creates a Scheduler. hands may be nil to skip publishing
// per-frame hands; gate may be nil to estimate every frame.
func NewScheduler(
	config SchedulerConfig,
	source capture.Source,
	det detector.Detector,
	tracker *gesture.Tracker,
	log *events.Log,
	hands *events.HandFeed,
	gate *capture.MotionGate,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Scheduler{
		config:   config,
		source:   source,
		detector: det,
		tracker:  tracker,
		log:      log,
		hands:    hands,
		gate:     gate,
		logger:   logger,
	}
	s.enabled.Store(true)
	return s
}

// Start begins the scheduling loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		return
	}

	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.stopCh)

	s.logger.Info("scheduler started", "fps_goal", s.config.FPSGoal, "interval", s.config.Interval())
}

// Stop halts rescheduling and waits for the cycle in flight, if any.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logStats()
	s.logger.Info("scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

// SetEnabled pauses or resumes estimation without stopping the loop.
// Tracked hands are forgotten on resume.
func (s *Scheduler) SetEnabled(enabled bool) {
	if s.enabled.Swap(enabled) != enabled && enabled {
		s.resetPending.Store(true)
	}
}

// Enabled reports whether estimation is enabled.
func (s *Scheduler) Enabled() bool {
	return s.enabled.Load()
}

// ResetTracking forgets all tracked hands before the next cycle.
func (s *Scheduler) ResetTracking() {
	s.resetPending.Store(true)
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	processed := s.framesProcessed.Load()
	errs := s.estimatorErrors.Load()
	var avg time.Duration
	if calls := processed + errs; calls > 0 {
		avg = time.Duration(s.estimateNanos.Load() / calls)
	}
	return Stats{
		Cycles:           s.cycles.Load(),
		SkippedInFlight:  s.skippedInFlight.Load(),
		SkippedNoFrame:   s.skippedNoFrame.Load(),
		SkippedDisabled:  s.skippedDisabled.Load(),
		SkippedIdle:      s.skippedIdle.Load(),
		EstimatorErrors:  errs,
		FramesProcessed:  processed,
		EventsEmitted:    s.eventsEmitted.Load(),
		AvgEstimate:      avg,
		LastFrameSeq:     s.lastSeq.Load(),
		EstimateInFlight: s.inFlight.Load(),
	}
}

func (s *Scheduler) loop(stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval())
	defer ticker.Stop()

	statsTicker := time.NewTicker(statsLogInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-statsTicker.C:
			s.logStats()
		case <-ticker.C:
			if !s.enabled.Load() {
				s.skippedDisabled.Add(1)
				continue
			}
			if !s.inFlight.CompareAndSwap(false, true) {
				s.skippedInFlight.Add(1)
				continue
			}
			s.wg.Add(1)
			go s.cycle()
		}
	}
}

// cycle runs one grab, estimate, filter, update, append pass.
// Only one cycle runs at a time, guarded by inFlight.
func (s *Scheduler) cycle() {
	defer s.wg.Done()
	defer s.inFlight.Store(false)

	s.cycles.Add(1)

	if s.resetPending.Swap(false) {
		s.tracker.Reset()
		if s.gate != nil {
			s.gate.Reset()
		}
	}

	frame, err := s.source.Grab(s.lastSeq.Load())
	if err != nil {
		s.skippedNoFrame.Add(1)
		if !errors.Is(err, capture.ErrNoFrame) {
			s.logger.Debug("frame unavailable", "error", err)
		}
		return
	}
	defer frame.Close()
	s.lastSeq.Store(frame.Seq)

	ts := frame.CapturedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	if s.gate != nil && !s.gate.Allow(frame.Mat, ts) {
		s.skippedIdle.Add(1)
		return
	}

	start := time.Now()
	hands, err := s.detector.Detect(frame.Mat, detector.Options{Mirror: s.config.Mirror})
	s.estimateNanos.Add(uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		// Transient; tracked hands are not aged.
		s.estimatorErrors.Add(1)
		s.logger.Warn("hand estimation failed", "error", err, "seq", frame.Seq)
		return
	}
	s.framesProcessed.Add(1)

	hands = gesture.Filter(hands, s.config.ConfidenceThreshold)
	if s.hands != nil {
		s.hands.Publish(events.Hands{FrameSeq: frame.Seq, Timestamp: ts, Hands: hands})
	}
	emitted := s.log.Append(s.tracker.Update(hands, ts)...)
	s.eventsEmitted.Add(uint64(len(emitted)))

	for _, e := range emitted {
		s.logger.Debug("gesture event", "seq", e.Seq, "kind", e.Kind, "hand_id", e.HandID,
			"x", e.Point.X, "y", e.Point.Y)
	}
}

func (s *Scheduler) logStats() {
	st := s.Stats()
	s.logger.Debug("scheduler stats",
		"cycles", st.Cycles,
		"skipped_in_flight", st.SkippedInFlight,
		"skipped_no_frame", st.SkippedNoFrame,
		"skipped_idle", st.SkippedIdle,
		"estimator_errors", st.EstimatorErrors,
		"frames", st.FramesProcessed,
		"events", st.EventsEmitted,
		"avg_estimate", st.AvgEstimate,
	)
}
