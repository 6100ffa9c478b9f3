// Package config loads and validates the scand service configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML accepts "250ms" style strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the scand service configuration.
type Config struct {
	// Listen is the HTTP bind address.
	Listen string `yaml:"listen"`
	// Camera selects the capture device: an index like "0", a path, or a
	// stream URL.
	Camera string `yaml:"camera"`
	// Still, when set, serves a fixed image file instead of a camera.
	Still string `yaml:"still"`

	Log  LogConfig  `yaml:"log"`
	Scan ScanConfig `yaml:"scan"`
	Host HostConfig `yaml:"host"`
	Live LiveConfig `yaml:"live"`
}

// LogConfig selects logger verbosity and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ScanConfig sizes the detection pipeline.
type ScanConfig struct {
	DetectMaxDim int `yaml:"detect_max_dim"`
	LiveMaxDim   int `yaml:"live_max_dim"`
	MinOutputPx  int `yaml:"min_output_px"`
}

// HostConfig tunes the background host protocol.
type HostConfig struct {
	RequestTimeout Duration `yaml:"request_timeout"`
	LoadTimeout    Duration `yaml:"load_timeout"`
}

// LiveConfig tunes the live detection scheduler.
type LiveConfig struct {
	Interval     Duration `yaml:"interval"`
	MaxDim       int      `yaml:"max_dim"`
	SmoothWindow int      `yaml:"smooth_window"`
}

// Default returns the configuration scand starts from; a config file
// overrides individual fields.
func Default() Config {
	return Config{
		Listen: ":8080",
		Camera: "0",
		Log:    LogConfig{Level: "info", Format: "console"},
		Scan:   ScanConfig{DetectMaxDim: 640, LiveMaxDim: 480, MinOutputPx: 50},
		Host: HostConfig{
			RequestTimeout: Duration(5 * time.Second),
			LoadTimeout:    Duration(30 * time.Second),
		},
		Live: LiveConfig{
			Interval:     Duration(250 * time.Millisecond),
			MaxDim:       480,
			SmoothWindow: 5,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot start with.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address required")
	}
	if c.Camera == "" && c.Still == "" {
		return fmt.Errorf("camera or still source required")
	}
	if c.Scan.DetectMaxDim <= 0 || c.Scan.LiveMaxDim <= 0 {
		return fmt.Errorf("working dimensions must be positive")
	}
	if c.Scan.MinOutputPx <= 0 {
		return fmt.Errorf("min output size must be positive")
	}
	if c.Live.Interval.Std() <= 0 {
		return fmt.Errorf("live interval must be positive")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level %q: %w", c.Log.Level, err)
	}
	return nil
}

// Logger builds the process logger from the log settings.
func (c Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if c.Log.Format != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
