package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/sdock/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	LogLevel  string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool   `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`

	// Title and AppID are set on the toplevel; AppID is also what the
	// placement rules match on.
	Title string `json:"title" yaml:"title" mapstructure:"title"`
	AppID string `json:"app_id" yaml:"app_id" mapstructure:"app_id"`

	Capture   CaptureConfig   `json:"capture" yaml:"capture" mapstructure:"capture"`
	Placement PlacementConfig `json:"placement" yaml:"placement" mapstructure:"placement"`
	Preview   PreviewConfig   `json:"preview" yaml:"preview" mapstructure:"preview"`
}

// CaptureConfig configures the screen capture backend used for the glass fill
type CaptureConfig struct {
	Backend       string `json:"backend" yaml:"backend" mapstructure:"backend"` // auto, x11, none
	InitAttempts  int    `json:"init_attempts" yaml:"init_attempts" mapstructure:"init_attempts"`
	InitBackoffMS int    `json:"init_backoff_ms" yaml:"init_backoff_ms" mapstructure:"init_backoff_ms"`
}

// InitBackoff returns the backoff between capture start attempts
func (c CaptureConfig) InitBackoff() time.Duration {
	return time.Duration(c.InitBackoffMS) * time.Millisecond
}

// PlacementConfig configures the one-shot window manager placement command.
// Percentages are of the output size.
type PlacementConfig struct {
	Backend       string `json:"backend" yaml:"backend" mapstructure:"backend"` // auto, sway, kwin, none
	WidthPercent  int    `json:"width_percent" yaml:"width_percent" mapstructure:"width_percent"`
	HeightPercent int    `json:"height_percent" yaml:"height_percent" mapstructure:"height_percent"`
	YPercent      int    `json:"y_percent" yaml:"y_percent" mapstructure:"y_percent"`
	TimeoutMS     int    `json:"timeout_ms" yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

// Timeout returns the upper bound on the placement command
func (p PlacementConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// PreviewConfig configures the optional HTTP preview server
type PreviewConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Port    int  `json:"port" yaml:"port" mapstructure:"port"`
	FPS     int  `json:"fps" yaml:"fps" mapstructure:"fps"`

	// Scale resizes streamed frames, 0.5 halves both dimensions
	Scale float64 `json:"scale" yaml:"scale" mapstructure:"scale"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		LogLevel:  "info",
		LogPretty: true,
		Title:     "sdock",
		AppID:     "sdock",
		Capture: CaptureConfig{
			Backend:       "auto",
			InitAttempts:  9,
			InitBackoffMS: 800,
		},
		Placement: PlacementConfig{
			Backend:       "auto",
			WidthPercent:  100,
			HeightPercent: 9,
			YPercent:      92,
			TimeoutMS:     2000,
		},
		Preview: PreviewConfig{
			Enabled: false,
			Port:    8765,
			FPS:     5,
			Scale:   1.0,
		},
	}
}

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	mu         sync.RWMutex
}

// DefaultPath returns $XDG_CONFIG_HOME/sdock/config.yaml (or ~/.config/...)
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, "sdock", "config.yaml"), nil
}

// NewManager creates a new configuration manager. A missing config file is
// not an error; built-in defaults are used until Save is called.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v, Defaults())

	m := &Manager{
		configPath: path,
		v:          v,
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
		logger.WithComponent("config").Debug().
			Str("path", path).
			Msg("Config file not found, using defaults")
		return m, nil
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	logger.WithComponent("config").Debug().
		Str("path", path).
		Msg("Config loaded")

	return m, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
	v.SetDefault("title", d.Title)
	v.SetDefault("app_id", d.AppID)

	v.SetDefault("capture.backend", d.Capture.Backend)
	v.SetDefault("capture.init_attempts", d.Capture.InitAttempts)
	v.SetDefault("capture.init_backoff_ms", d.Capture.InitBackoffMS)

	v.SetDefault("placement.backend", d.Placement.Backend)
	v.SetDefault("placement.width_percent", d.Placement.WidthPercent)
	v.SetDefault("placement.height_percent", d.Placement.HeightPercent)
	v.SetDefault("placement.y_percent", d.Placement.YPercent)
	v.SetDefault("placement.timeout_ms", d.Placement.TimeoutMS)

	v.SetDefault("preview.enabled", d.Preview.Enabled)
	v.SetDefault("preview.port", d.Preview.Port)
	v.SetDefault("preview.fps", d.Preview.FPS)
	v.SetDefault("preview.scale", d.Preview.Scale)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		logger.WithComponent("config").Warn().
			Err(err).
			Msg("Failed to decode config, using defaults")
		return Defaults()
	}
	return &cfg
}

// GetViper exposes the underlying viper instance for get/set by key
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// GetConfigPath returns the config file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// SetLogLevel overrides the log level for this process
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v.Set("log_level", strings.ToLower(level))
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}
