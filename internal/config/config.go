// Package config loads the winejs YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Every field is optional in the
// file; missing fields keep their Default values.
type Config struct {
	MaxSteps   int      `yaml:"max_steps"`
	GUIMarkers []string `yaml:"gui_markers"`
	Console    Console  `yaml:"console"`
	Imports    Imports  `yaml:"imports"`
	DirectX    DirectX  `yaml:"directx"`
	Winsock    Winsock  `yaml:"winsock"`
	Scripts    []string `yaml:"scripts"`
}

type Console struct {
	Enabled    bool   `yaml:"enabled"`
	LinePrefix string `yaml:"line_prefix"`
}

type Imports struct {
	LogMessageBoxes bool     `yaml:"log_message_boxes"`
	GUIKeywords     []string `yaml:"gui_keywords"`
	// Fallback completes unknown imports with rax=0 instead of jumping
	// into the IAT.
	Fallback bool `yaml:"fallback"`
	// JumpThunks returns a handled jmp through the IAT to the caller
	// instead of the next instruction.
	JumpThunks bool `yaml:"jump_thunks"`
}

type DirectX struct {
	Enabled  bool     `yaml:"enabled"`
	Keywords []string `yaml:"keywords"`
}

type Winsock struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	AutoConnect    bool          `yaml:"auto_connect"`
	LogTraffic     bool          `yaml:"log_traffic"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RecvTimeout    time.Duration `yaml:"recv_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MaxSteps:   50_000,
		GUIMarkers: []string{"user32"},
		Console: Console{
			Enabled:    true,
			LinePrefix: "[WineJS]",
		},
		Imports: Imports{
			LogMessageBoxes: true,
			GUIKeywords:     []string{"createwindow", "dialogbox", "registerclass"},
			Fallback:        true,
		},
		DirectX: DirectX{
			Enabled:  true,
			Keywords: []string{"d3d", "direct3d", "direct2d", "dxgi", "dxcore", "dxva", "dxguid", "d2d"},
		},
		Winsock: Winsock{
			URL:            "ws://127.0.0.1:8089",
			AutoConnect:    true,
			ConnectTimeout: 5 * time.Second,
			RecvTimeout:    50 * time.Millisecond,
		},
	}
}

// Load reads path and merges it over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("max_steps must not be negative, got %d", c.MaxSteps))
	}
	if c.Winsock.Enabled {
		u, err := url.Parse(c.Winsock.URL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("winsock.url: %w", err))
		case u.Scheme != "ws" && u.Scheme != "wss":
			errs = append(errs, fmt.Errorf("winsock.url: scheme must be ws or wss, got %q", u.Scheme))
		}
	}
	if c.Winsock.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("winsock.connect_timeout must be positive"))
	}
	if c.Winsock.RecvTimeout < 0 {
		errs = append(errs, errors.New("winsock.recv_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
