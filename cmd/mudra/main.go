package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/cursor"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mudra: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env file may supply MUDRA_* overrides.
	envErr := godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger := NewLogger(parseLevel(cfg.LogLevel))
	if envErr == nil {
		logger.Info("loaded environment from .env")
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	cam := capture.NewCamera(cameraConfig(cfg), logger.With("component", "camera"))

	a := app.New(appConfig(cfg, st), cam, newDetector(logger), logger)
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		logger.Info("serving static files", "dir", staticDir)
	}

	srv := server.New(server.Config{
		StaticDir: staticDir,
		Store:     st,
		Pipeline:  a,
		Logger:    logger.With("component", "server"),
	})
	httpSrv := srv.HTTPServer(cfg.Server.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		return httpSrv.Shutdown(sctx)
	})

	if cfg.Cursor.Enabled {
		ctrl := cursor.New(cursor.Config{
			FrameWidth:  cfg.Camera.Width,
			FrameHeight: cfg.Camera.Height,
		}, cursor.RobotMouse{}, logger.With("component", "cursor"))
		sub := a.Events().SubscribeNow()
		g.Go(func() error {
			return ignoreCanceled(ctrl.Run(gctx, sub))
		})
	}

	if cfg.Tray.Enabled {
		t := tray.New(a.IsEnabled())
		t.OnToggle(a.SetEnabled)
		a.OnEnabledChange(t.SetEnabled)
		t.OnDashboard(func() {
			openBrowser(dashboardURL(cfg.Server.Addr), logger)
		})
		t.OnQuit(cancel)

		sub := a.Events().SubscribeNow()
		g.Go(func() error {
			return ignoreCanceled(t.Follow(gctx, sub))
		})
		go func() {
			<-gctx.Done()
			t.Quit()
		}()

		// systray needs the main goroutine on macOS.
		t.Run()
		cancel()
	}

	err = g.Wait()
	logger.Info("shutting down", "stats", a.Stats())
	return err
}

// cameraConfig overrides the capture defaults with whatever cfg sets.
func cameraConfig(cfg config.Config) capture.CameraConfig {
	c := capture.DefaultCameraConfig()
	c.Device = cfg.Camera.Device
	if cfg.Camera.Width > 0 && cfg.Camera.Height > 0 {
		c.Width, c.Height = cfg.Camera.Width, cfg.Camera.Height
	}
	if cfg.Pipeline.FPSGoal > 0 {
		c.FPS = cfg.Pipeline.FPSGoal
	}
	return c
}

func appConfig(cfg config.Config, st *store.Store) app.Config {
	c := app.DefaultConfig()
	c.Scheduler = app.SchedulerConfig{
		FPSGoal:             cfg.Pipeline.FPSGoal,
		Mirror:              cfg.Pipeline.Mirror,
		ConfidenceThreshold: cfg.Gesture.ConfidenceThreshold,
	}
	c.Tracker = cfg.TrackerConfig()
	c.MotionGate = cfg.Pipeline.MotionGate
	c.MotionThreshold = cfg.Pipeline.MotionThreshold
	c.IdleTimeout = cfg.Pipeline.IdleTimeout
	c.Store = st
	return c
}

// newDetector returns the MediaPipe detector, or a MockDetector that never
// reports hands when the hand service is not installed.
func newDetector(logger *slog.Logger) detector.Detector {
	det, err := detector.NewMediaPipeDetector(detector.DefaultConfig(), logger.With("component", "detector"))
	if err != nil {
		logger.Warn("hand detector unavailable, gestures disabled", "error", err)
		return detector.NewMockDetector()
	}
	return det
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string, logger *slog.Logger) {
	name := "xdg-open"
	if runtime.GOOS == "darwin" {
		name = "open"
	}
	if err := exec.Command(name, url).Start(); err != nil {
		logger.Warn("open browser", "url", url, "error", err)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.mudra/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".mudra", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
