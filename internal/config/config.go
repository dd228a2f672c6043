// Package config loads the camscroll YAML configuration and watches it for
// changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/ayusman/camscroll/internal/logging"
)

// Actuator backends.
const (
	BackendWebSocket = "websocket"
	BackendPlugin    = "plugin"
)

// Config is the daemon configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`

	HTTP struct {
		Addr      string `yaml:"addr"`
		StaticDir string `yaml:"static_dir"`
	} `yaml:"http"`

	Camera struct {
		Device int `yaml:"device"`
		FPS    int `yaml:"fps"`
	} `yaml:"camera"`

	Classifier struct {
		K         int    `yaml:"k"`
		ModelPath string `yaml:"model_path"`
		CacheSize int    `yaml:"cache_size"`
	} `yaml:"classifier"`

	Loop struct {
		TickMs int `yaml:"tick_ms"`
	} `yaml:"loop"`

	Actuator struct {
		Backend   string `yaml:"backend"`
		StepPx    int    `yaml:"step_px"`
		TickMs    int    `yaml:"tick_ms"`
		PluginDir string `yaml:"plugin_dir"`
		Plugin    string `yaml:"plugin"`
	} `yaml:"actuator"`

	Training struct {
		PrepareMs int `yaml:"prepare_ms"`
		RecordMs  int `yaml:"record_ms"`
	} `yaml:"training"`

	Tray struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tray"`

	Log logging.Config `yaml:"log"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.DataDir = defaultDataDir()
	c.HTTP.Addr = "127.0.0.1:8080"
	c.Camera.FPS = 20
	c.Classifier.K = 5
	c.Classifier.CacheSize = 128
	c.Loop.TickMs = 50
	c.Actuator.Backend = BackendWebSocket
	c.Actuator.StepPx = 20
	c.Actuator.TickMs = 50
	c.Actuator.Plugin = "scroll"
	c.Training.PrepareMs = 2000
	c.Training.RecordMs = 5000
	c.Tray.Enabled = true
	c.Log.Level = "info"
	return c
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".camscroll"
	}
	return filepath.Join(home, ".camscroll")
}

// DefaultPath returns the config file location inside the default data dir.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Loop.TickMs <= 0 {
		return fmt.Errorf("loop.tick_ms must be positive, got %d", c.Loop.TickMs)
	}
	if c.Actuator.TickMs <= 0 {
		return fmt.Errorf("actuator.tick_ms must be positive, got %d", c.Actuator.TickMs)
	}
	if c.Actuator.StepPx <= 0 {
		return fmt.Errorf("actuator.step_px must be positive, got %d", c.Actuator.StepPx)
	}
	if c.Actuator.Backend != BackendWebSocket && c.Actuator.Backend != BackendPlugin {
		return fmt.Errorf("actuator.backend must be %q or %q, got %q", BackendWebSocket, BackendPlugin, c.Actuator.Backend)
	}
	if c.Classifier.K <= 0 {
		return fmt.Errorf("classifier.k must be positive, got %d", c.Classifier.K)
	}
	if c.Training.PrepareMs < 0 || c.Training.RecordMs <= 0 {
		return fmt.Errorf("training durations must be positive")
	}
	return nil
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DBPath returns the database file inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "camscroll.db")
}

// LoopPeriod returns the sampling tick period.
func (c *Config) LoopPeriod() time.Duration {
	return time.Duration(c.Loop.TickMs) * time.Millisecond
}

// ScrollPeriod returns the actuator's scroll tick period.
func (c *Config) ScrollPeriod() time.Duration {
	return time.Duration(c.Actuator.TickMs) * time.Millisecond
}

// PrepareDelay returns the pause before each recording phase.
func (c *Config) PrepareDelay() time.Duration {
	return time.Duration(c.Training.PrepareMs) * time.Millisecond
}

// RecordDelay returns the length of each recording phase.
func (c *Config) RecordDelay() time.Duration {
	return time.Duration(c.Training.RecordMs) * time.Millisecond
}
