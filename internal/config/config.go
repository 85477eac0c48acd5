// Package config loads mudra's configuration from defaults, an optional TOML
// file, environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ayusman/mudra/internal/gesture"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds application configuration.
type Config struct {
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Gesture   GestureConfig   `mapstructure:"gesture"`
	Landmarks LandmarksConfig `mapstructure:"landmarks"`
	Camera    CameraConfig    `mapstructure:"camera"`
	Store     StoreConfig     `mapstructure:"store"`
	Server    ServerConfig    `mapstructure:"server"`
	Tray      ToggleConfig    `mapstructure:"tray"`
	Cursor    ToggleConfig    `mapstructure:"cursor"`
	LogLevel  string          `mapstructure:"log_level"`
}

// PipelineConfig holds frame scheduling settings.
type PipelineConfig struct {
	FPSGoal         int           `mapstructure:"fps_goal"`
	Mirror          bool          `mapstructure:"mirror"`
	MotionGate      bool          `mapstructure:"motion_gate"`
	MotionThreshold float64       `mapstructure:"motion_threshold"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
}

// GestureConfig holds confidence filter and state machine thresholds.
type GestureConfig struct {
	ConfidenceThreshold    float64 `mapstructure:"confidence_threshold"`
	PinchThresholdFraction float64 `mapstructure:"pinch_threshold_fraction"`
	MotionNoiseThreshold   float64 `mapstructure:"motion_noise_threshold"`
	TrackingMaxJump        float64 `mapstructure:"tracking_max_jump"`
	TrackingGraceFrames    int     `mapstructure:"tracking_grace_frames"`
	EmitRelease            bool    `mapstructure:"emit_release"`
}

// LandmarksConfig holds the estimator's keypoint indices.
type LandmarksConfig struct {
	Wrist    int `mapstructure:"wrist"`
	ThumbTip int `mapstructure:"thumb_tip"`
	IndexTip int `mapstructure:"index_tip"`
	ScaleRef int `mapstructure:"scale_ref"`
}

// CameraConfig holds capture device settings.
type CameraConfig struct {
	Device int `mapstructure:"device"`
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// StoreConfig holds sqlite settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
}

// ToggleConfig enables an optional component.
type ToggleConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("pipeline.fps_goal", 30)
	v.SetDefault("pipeline.mirror", true)
	v.SetDefault("pipeline.motion_gate", false)
	v.SetDefault("pipeline.motion_threshold", 1.0)
	v.SetDefault("pipeline.idle_timeout", 2*time.Second)

	v.SetDefault("gesture.confidence_threshold", 0.85)
	v.SetDefault("gesture.pinch_threshold_fraction", 0.35)
	v.SetDefault("gesture.motion_noise_threshold", 2.0)
	v.SetDefault("gesture.tracking_max_jump", 120.0)
	v.SetDefault("gesture.tracking_grace_frames", 5)
	v.SetDefault("gesture.emit_release", false)

	v.SetDefault("landmarks.wrist", 0)
	v.SetDefault("landmarks.thumb_tip", 4)
	v.SetDefault("landmarks.index_tip", 8)
	v.SetDefault("landmarks.scale_ref", 9)

	v.SetDefault("camera.device", 0)
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)

	v.SetDefault("store.path", filepath.Join(home, ".mudra", "mudra.db"))
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("tray.enabled", false)
	v.SetDefault("cursor.enabled", false)
	v.SetDefault("log_level", "info")
}

// Flags returns the command line flags understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("mudra", pflag.ContinueOnError)
	fs.String("config", "", "path to a TOML config file (env MUDRA_CONFIG)")
	fs.String("addr", "", "HTTP listen address")
	fs.Int("fps", 0, "frame sampling goal per second")
	fs.Int("device", 0, "camera device index")
	fs.Bool("tray", false, "show the system tray icon")
	fs.Bool("cursor", false, "drive the OS cursor from gestures")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	return fs
}

var flagKeys = map[string]string{
	"addr":      "server.addr",
	"fps":       "pipeline.fps_goal",
	"device":    "camera.device",
	"tray":      "tray.enabled",
	"cursor":    "cursor.enabled",
	"log-level": "log_level",
}

// Load reads configuration from defaults, file, env and args, in increasing
// precedence. Env var overrides use prefix MUDRA_, e.g. MUDRA_PIPELINE_FPS_GOAL.
// The result is validated.
func Load(args []string) (Config, error) {
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")

	cfgPath, _ := fs.GetString("config")
	if cfgPath == "" {
		cfgPath = os.Getenv("MUDRA_CONFIG")
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".mudra"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("MUDRA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// An explicitly named file must exist; the default location is optional.
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks value ranges. Every error wraps ErrInvalid.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}

	p, g, l := c.Pipeline, c.Gesture, c.Landmarks

	if p.FPSGoal <= 0 || p.FPSGoal > 240 {
		return invalid("pipeline.fps_goal must be in (0, 240], got %d", p.FPSGoal)
	}
	if p.MotionGate && p.MotionThreshold <= 0 {
		return invalid("pipeline.motion_threshold must be positive, got %g", p.MotionThreshold)
	}
	if p.MotionGate && p.IdleTimeout <= 0 {
		return invalid("pipeline.idle_timeout must be positive, got %s", p.IdleTimeout)
	}
	if g.ConfidenceThreshold < 0 || g.ConfidenceThreshold >= 1 {
		return invalid("gesture.confidence_threshold must be in [0, 1), got %g", g.ConfidenceThreshold)
	}
	if g.PinchThresholdFraction <= 0 {
		return invalid("gesture.pinch_threshold_fraction must be positive, got %g", g.PinchThresholdFraction)
	}
	if g.MotionNoiseThreshold < 0 {
		return invalid("gesture.motion_noise_threshold must not be negative, got %g", g.MotionNoiseThreshold)
	}
	if g.TrackingMaxJump <= 0 {
		return invalid("gesture.tracking_max_jump must be positive, got %g", g.TrackingMaxJump)
	}
	if g.TrackingGraceFrames < 0 {
		return invalid("gesture.tracking_grace_frames must not be negative, got %d", g.TrackingGraceFrames)
	}

	seen := make(map[int]string, 4)
	for _, lm := range []struct {
		name  string
		index int
	}{
		{"wrist", l.Wrist},
		{"thumb_tip", l.ThumbTip},
		{"index_tip", l.IndexTip},
		{"scale_ref", l.ScaleRef},
	} {
		if lm.index < 0 {
			return invalid("landmarks.%s must not be negative, got %d", lm.name, lm.index)
		}
		if other, ok := seen[lm.index]; ok {
			return invalid("landmarks.%s and landmarks.%s share index %d", other, lm.name, lm.index)
		}
		seen[lm.index] = lm.name
	}

	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return invalid("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Store.Path == "" {
		return invalid("store.path must be set")
	}
	return nil
}

// TrackerConfig converts the gesture and landmark settings for the tracker.
func (c Config) TrackerConfig() gesture.Config {
	return gesture.Config{
		PinchThresholdFraction: c.Gesture.PinchThresholdFraction,
		MotionNoiseThreshold:   c.Gesture.MotionNoiseThreshold,
		MaxJump:                c.Gesture.TrackingMaxJump,
		GraceFrames:            c.Gesture.TrackingGraceFrames,
		EmitRelease:            c.Gesture.EmitRelease,
		Landmarks: gesture.Landmarks{
			Wrist:    c.Landmarks.Wrist,
			ThumbTip: c.Landmarks.ThumbTip,
			IndexTip: c.Landmarks.IndexTip,
			ScaleRef: c.Landmarks.ScaleRef,
		},
	}
}
