// Package app wires the frame source, hand estimator, gesture tracker and
// event log into a running mudra pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/store"
)

const (
	// DefaultStartTimeout bounds how long Start waits for camera and model.
	DefaultStartTimeout = 30 * time.Second
	// persistBatchSize is the maximum number of events written per transaction.
	persistBatchSize = 64
	// enabledSetting is the settings key holding the pipeline toggle.
	enabledSetting = "pipeline.enabled"
)

// Config holds configuration options for the application.
type Config struct {
	Scheduler SchedulerConfig
	Tracker   gesture.Config

	// MotionGate enables skipping estimation while the scene is still.
	MotionGate      bool
	MotionThreshold float64
	IdleTimeout     time.Duration

	// Store persists sessions and events. Optional.
	Store        *store.Store
	StartTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Scheduler:       DefaultSchedulerConfig(),
		Tracker:         gesture.DefaultConfig(),
		MotionThreshold: 1.0,
		IdleTimeout:     2 * time.Second,
		StartTimeout:    DefaultStartTimeout,
	}
}

// App is the main application that owns the pipeline lifecycle.
type App struct {
	config    Config
	source    capture.Source
	detector  detector.Detector
	log       *events.Log
	hands     *events.HandFeed
	gate      *capture.MotionGate
	scheduler *Scheduler
	logger    *slog.Logger

	mu          sync.RWMutex
	onEnabled   []func(enabled bool)
	running     bool
	sessionID   string
	stopPersist context.CancelFunc
	persistDone chan struct{}
}

// New creates a new App instance. The source and detector are owned by the
// App from here on.
func New(config Config, source capture.Source, det detector.Detector, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = DefaultStartTimeout
	}

	a := &App{
		config:   config,
		source:   source,
		detector: det,
		log:      events.NewLog(),
		hands:    events.NewHandFeed(),
		logger:   logger,
	}

	if config.MotionGate {
		a.gate = capture.NewMotionGate(config.MotionThreshold, config.IdleTimeout)
	}

	tracker := gesture.NewTracker(config.Tracker, logger.With("component", "tracker"))
	a.scheduler = NewScheduler(config.Scheduler, source, det, tracker, a.log, a.hands, a.gate,
		logger.With("component", "scheduler"))

	if config.Store != nil {
		if v, err := config.Store.Settings().Get(enabledSetting); err == nil {
			if enabled, err := strconv.ParseBool(v); err == nil {
				a.scheduler.SetEnabled(enabled)
			}
		}
	}

	return a
}

// Start opens the frame source and warms up the estimator concurrently, and
// begins scheduling only once both are ready. If either fails, the other is
// cancelled and nothing is started.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.StartTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.source.Open(); err != nil {
			return fmt.Errorf("open frame source: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		w, ok := a.detector.(detector.Warmer)
		if !ok {
			return nil
		}
		if err := w.Warmup(gctx); err != nil {
			return fmt.Errorf("warm up detector: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if cerr := a.source.Close(); cerr != nil {
			a.logger.Warn("close frame source", "error", cerr)
		}
		return fmt.Errorf("start pipeline: %w", err)
	}

	if err := a.beginSession(); err != nil {
		if cerr := a.source.Close(); cerr != nil {
			a.logger.Warn("close frame source", "error", cerr)
		}
		return err
	}

	a.scheduler.ResetTracking()
	a.scheduler.Start()
	a.running = true

	a.logger.Info("pipeline started", "session_id", a.sessionID)
	return nil
}

// Stop halts scheduling, waits for the cycle in flight, flushes pending
// events to the store and releases the source and detector.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}

	a.scheduler.Stop()

	if err := a.source.Close(); err != nil {
		a.logger.Warn("close frame source", "error", err)
	}
	if err := a.detector.Close(); err != nil {
		a.logger.Warn("close detector", "error", err)
	}

	a.endSession()
	a.running = false

	a.logger.Info("pipeline stopped", "stats", a.scheduler.Stats())
}

// Close stops the pipeline and releases everything the App owns.
func (a *App) Close() {
	a.Stop()
	a.log.Close()
	a.hands.Close()
	if a.gate != nil {
		a.gate.Close()
	}
}

// SetEnabled pauses or resumes gesture detection, persists the choice and
// notifies OnEnabledChange hooks.
func (a *App) SetEnabled(enabled bool) {
	a.scheduler.SetEnabled(enabled)

	if a.config.Store != nil {
		if err := a.config.Store.Settings().Set(enabledSetting, strconv.FormatBool(enabled)); err != nil {
			a.logger.Warn("persist enabled setting", "error", err)
		}
	}

	a.mu.RLock()
	hooks := a.onEnabled
	a.mu.RUnlock()
	for _, fn := range hooks {
		fn(enabled)
	}
}

// OnEnabledChange registers fn to be called after every SetEnabled, whatever
// its origin.
func (a *App) OnEnabledChange(fn func(enabled bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEnabled = append(a.onEnabled, fn)
}

// IsEnabled returns whether gesture detection is currently enabled.
func (a *App) IsEnabled() bool {
	return a.scheduler.Enabled()
}

// IsRunning reports whether the pipeline is started.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// SessionID returns the current session, or "" when stopped or unpersisted.
func (a *App) SessionID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionID
}

// Events returns the live event log.
func (a *App) Events() *events.Log {
	return a.log
}

// Hands returns the feed of filtered hands per processed frame.
func (a *App) Hands() *events.HandFeed {
	return a.hands
}

// Source returns the frame source.
func (a *App) Source() capture.Source {
	return a.source
}

// Stats returns the scheduler counters.
func (a *App) Stats() Stats {
	return a.scheduler.Stats()
}

// beginSession records a new session and starts copying events appended from
// now on into the store. Called with a.mu held.
func (a *App) beginSession() error {
	a.sessionID = ""
	if a.config.Store == nil {
		return nil
	}

	sess := &store.Session{
		ID:      uuid.NewString(),
		FPSGoal: a.config.Scheduler.FPSGoal,
		Mirror:  a.config.Scheduler.Mirror,
	}
	if err := a.config.Store.Sessions().Create(sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	a.sessionID = sess.ID

	ctx, cancel := context.WithCancel(context.Background())
	a.stopPersist = cancel
	a.persistDone = make(chan struct{})

	sub := a.log.SubscribeNow()
	go a.persist(ctx, sess.ID, sub, a.persistDone)

	return nil
}

// endSession flushes the persister and marks the session ended.
// Called with a.mu held after the scheduler has stopped.
func (a *App) endSession() {
	if a.sessionID == "" {
		return
	}

	a.stopPersist()
	<-a.persistDone

	if err := a.config.Store.Sessions().End(a.sessionID, time.Now()); err != nil {
		a.logger.Warn("end session", "session_id", a.sessionID, "error", err)
	}
	a.sessionID = ""
}

// persist writes every event delivered by sub to the session until ctx ends,
// then writes whatever the log still holds past the subscription cursor.
func (a *App) persist(ctx context.Context, sessionID string, sub *events.Subscription, done chan<- struct{}) {
	defer close(done)
	defer sub.Close()

	repo := a.config.Store.Events()
	write := func(batch []gesture.Event) {
		if err := repo.Append(sessionID, batch...); err != nil {
			a.logger.Warn("persist events", "session_id", sessionID, "count", len(batch), "error", err)
		}
	}

	for {
		batch, err := sub.NextBatch(ctx, persistBatchSize)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, events.ErrClosed) {
				a.logger.Warn("event subscription", "error", err)
			}
			break
		}
		write(batch)
	}

	if rest := a.log.Since(sub.Cursor()); len(rest) > 0 {
		write(rest)
	}
}
