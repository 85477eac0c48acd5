package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points HOME at an empty directory so no user config is read.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("MUDRA_CONFIG", "")
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pipeline.FPSGoal != 30 {
		t.Errorf("FPSGoal = %d, want 30", cfg.Pipeline.FPSGoal)
	}
	if !cfg.Pipeline.Mirror {
		t.Error("Mirror should default to true")
	}
	if cfg.Pipeline.IdleTimeout != 2*time.Second {
		t.Errorf("IdleTimeout = %s, want 2s", cfg.Pipeline.IdleTimeout)
	}
	if cfg.Gesture.ConfidenceThreshold != 0.85 {
		t.Errorf("ConfidenceThreshold = %f, want 0.85", cfg.Gesture.ConfidenceThreshold)
	}
	if cfg.Gesture.TrackingGraceFrames != 5 {
		t.Errorf("TrackingGraceFrames = %d, want 5", cfg.Gesture.TrackingGraceFrames)
	}
	if cfg.Landmarks.ThumbTip != 4 || cfg.Landmarks.IndexTip != 8 {
		t.Errorf("landmarks = %+v, want thumb 4 index 8", cfg.Landmarks)
	}
	if cfg.Camera.Width != 640 || cfg.Camera.Height != 480 {
		t.Errorf("camera = %dx%d, want 640x480", cfg.Camera.Width, cfg.Camera.Height)
	}
	if want := filepath.Join(home, ".mudra", "mudra.db"); cfg.Store.Path != want {
		t.Errorf("Store.Path = %s, want %s", cfg.Store.Path, want)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %s, want :8080", cfg.Server.Addr)
	}
	if cfg.Tray.Enabled || cfg.Cursor.Enabled {
		t.Error("tray and cursor should be disabled by default")
	}
}

func TestLoad_File(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "mudra.toml")
	content := `
[pipeline]
fps_goal = 15
idle_timeout = "500ms"

[gesture]
emit_release = true
tracking_max_jump = 80.5

[server]
addr = "127.0.0.1:9090"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Run("flag", func(t *testing.T) {
		cfg, err := Load([]string{"--config", path})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Pipeline.FPSGoal != 15 {
			t.Errorf("FPSGoal = %d, want 15", cfg.Pipeline.FPSGoal)
		}
		if cfg.Pipeline.IdleTimeout != 500*time.Millisecond {
			t.Errorf("IdleTimeout = %s, want 500ms", cfg.Pipeline.IdleTimeout)
		}
		if !cfg.Gesture.EmitRelease {
			t.Error("EmitRelease should be true")
		}
		if cfg.Gesture.TrackingMaxJump != 80.5 {
			t.Errorf("TrackingMaxJump = %f, want 80.5", cfg.Gesture.TrackingMaxJump)
		}
		if cfg.Server.Addr != "127.0.0.1:9090" {
			t.Errorf("Server.Addr = %s", cfg.Server.Addr)
		}
		if cfg.Gesture.ConfidenceThreshold != 0.85 {
			t.Error("unset keys should keep their defaults")
		}
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("MUDRA_CONFIG", path)
		cfg, err := Load(nil)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Pipeline.FPSGoal != 15 {
			t.Errorf("FPSGoal = %d, want 15", cfg.Pipeline.FPSGoal)
		}
	})

	t.Run("missing explicit file", func(t *testing.T) {
		if _, err := Load([]string{"--config", filepath.Join(t.TempDir(), "nope.toml")}); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestLoad_Precedence(t *testing.T) {
	isolate(t)
	t.Setenv("MUDRA_PIPELINE_FPS_GOAL", "10")
	t.Setenv("MUDRA_SERVER_ADDR", ":7000")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.FPSGoal != 10 {
		t.Errorf("env FPSGoal = %d, want 10", cfg.Pipeline.FPSGoal)
	}

	cfg, err = Load([]string{"--fps", "12", "--cursor"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.FPSGoal != 12 {
		t.Errorf("flag FPSGoal = %d, want 12", cfg.Pipeline.FPSGoal)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("Server.Addr = %s, want env value :7000", cfg.Server.Addr)
	}
	if !cfg.Cursor.Enabled {
		t.Error("--cursor should enable the cursor consumer")
	}
}

func TestLoad_InvalidFailsFast(t *testing.T) {
	isolate(t)
	t.Setenv("MUDRA_PIPELINE_FPS_GOAL", "0")

	if _, err := Load(nil); !errors.Is(err, ErrInvalid) {
		t.Errorf("Load() error = %v, want ErrInvalid", err)
	}
}

func TestLoad_UnknownFlag(t *testing.T) {
	isolate(t)

	if _, err := Load([]string{"--no-such-flag"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func validConfig(t *testing.T) Config {
	t.Helper()
	isolate(t)
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero fps", func(c *Config) { c.Pipeline.FPSGoal = 0 }},
		{"fps too high", func(c *Config) { c.Pipeline.FPSGoal = 241 }},
		{"negative confidence", func(c *Config) { c.Gesture.ConfidenceThreshold = -0.1 }},
		{"confidence of one", func(c *Config) { c.Gesture.ConfidenceThreshold = 1 }},
		{"zero pinch fraction", func(c *Config) { c.Gesture.PinchThresholdFraction = 0 }},
		{"negative noise", func(c *Config) { c.Gesture.MotionNoiseThreshold = -1 }},
		{"zero max jump", func(c *Config) { c.Gesture.TrackingMaxJump = 0 }},
		{"negative grace", func(c *Config) { c.Gesture.TrackingGraceFrames = -1 }},
		{"negative landmark", func(c *Config) { c.Landmarks.Wrist = -1 }},
		{"duplicate landmark", func(c *Config) { c.Landmarks.IndexTip = c.Landmarks.ThumbTip }},
		{"zero camera width", func(c *Config) { c.Camera.Width = 0 }},
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"motion gate without threshold", func(c *Config) {
			c.Pipeline.MotionGate = true
			c.Pipeline.MotionThreshold = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}

	t.Run("boundaries accepted", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Pipeline.FPSGoal = 240
		cfg.Gesture.ConfidenceThreshold = 0
		cfg.Gesture.MotionNoiseThreshold = 0
		cfg.Gesture.TrackingGraceFrames = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})
}

func TestConfig_TrackerConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Gesture.EmitRelease = true
	cfg.Landmarks.ScaleRef = 5

	tc := cfg.TrackerConfig()

	if tc.PinchThresholdFraction != cfg.Gesture.PinchThresholdFraction {
		t.Errorf("PinchThresholdFraction = %f", tc.PinchThresholdFraction)
	}
	if tc.MaxJump != cfg.Gesture.TrackingMaxJump || tc.GraceFrames != cfg.Gesture.TrackingGraceFrames {
		t.Errorf("tracking settings not copied: %+v", tc)
	}
	if !tc.EmitRelease {
		t.Error("EmitRelease not copied")
	}
	if tc.Landmarks.ScaleRef != 5 || tc.Landmarks.ThumbTip != 4 {
		t.Errorf("landmarks = %+v", tc.Landmarks)
	}
}
