// Package config loads shotscript settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/shotscript/pkg/browser"
	"github.com/entrhq/shotscript/pkg/logging"
)

// Config is the full shotscript configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser" json:"browser"`
	Capture   CaptureConfig   `yaml:"capture" json:"capture"`
	Workspace WorkspaceConfig `yaml:"workspace" json:"workspace"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// BrowserConfig controls the shared browser process and context admission.
type BrowserConfig struct {
	// Engine is chromium, firefox or webkit
	Engine   string   `yaml:"engine" json:"engine"`
	Headless bool     `yaml:"headless" json:"headless"`
	Channel  string   `yaml:"channel" json:"channel"`
	Args     []string `yaml:"args" json:"args"`

	// Install downloads the driver and browser on first launch
	Install bool `yaml:"install" json:"install"`

	// Concurrency is the number of isolated contexts that may be open at once
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// DefaultTimeoutMS is the page default timeout for engine operations
	DefaultTimeoutMS float64 `yaml:"default_timeout_ms" json:"default_timeout_ms"`

	Viewport ViewportConfig `yaml:"viewport" json:"viewport"`
}

// ViewportConfig is the viewport used when a request does not set one.
type ViewportConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// CaptureConfig controls which pages may be captured and how previews are made.
type CaptureConfig struct {
	AllowedSchemes       []string `yaml:"allowed_schemes" json:"allowed_schemes"`
	BlockedHosts         []string `yaml:"blocked_hosts" json:"blocked_hosts"`
	AllowedHosts         []string `yaml:"allowed_hosts" json:"allowed_hosts"`
	BlockPrivateNetworks bool     `yaml:"block_private_networks" json:"block_private_networks"`

	// PreviewMaxDimension bounds the longest side of image previews in pixels
	PreviewMaxDimension int `yaml:"preview_max_dimension" json:"preview_max_dimension"`
}

// WorkspaceConfig sets where captures may be written.
type WorkspaceConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// LoggingConfig sets the log level: debug, info, warn or error.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Engine:           "chromium",
			Headless:         true,
			Concurrency:      browser.DefaultConcurrency,
			DefaultTimeoutMS: browser.DefaultTimeout,
			Viewport: ViewportConfig{
				Width:  browser.DefaultViewportWidth,
				Height: browser.DefaultViewportHeight,
			},
		},
		Capture: CaptureConfig{
			AllowedSchemes:       []string{"http", "https"},
			BlockPrivateNetworks: true,
			PreviewMaxDimension:  512,
		},
		Workspace: WorkspaceConfig{Dir: "."},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Browser.Engine {
	case "chromium", "firefox", "webkit":
	default:
		return fmt.Errorf("invalid browser engine: %s (must be 'chromium', 'firefox' or 'webkit')", c.Browser.Engine)
	}

	if c.Browser.Concurrency < 1 {
		return fmt.Errorf("browser concurrency must be at least 1, got %d", c.Browser.Concurrency)
	}
	if c.Browser.DefaultTimeoutMS < 0 {
		return fmt.Errorf("default_timeout_ms cannot be negative")
	}

	if err := c.Viewport().Validate(); err != nil {
		return fmt.Errorf("invalid default viewport: %w", err)
	}

	if len(c.Capture.AllowedSchemes) == 0 {
		return fmt.Errorf("at least one allowed scheme is required")
	}
	for _, s := range c.Capture.AllowedSchemes {
		if strings.EqualFold(s, "file") {
			return fmt.Errorf("the file scheme cannot be allowed")
		}
	}
	if c.Capture.PreviewMaxDimension < 0 {
		return fmt.Errorf("preview_max_dimension cannot be negative")
	}

	if c.Workspace.Dir == "" {
		return fmt.Errorf("workspace directory is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be 'debug', 'info', 'warn' or 'error')", c.Logging.Level)
	}
	return nil
}

// LogLevel returns the configured level for loggers.
func (c *Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Logging.Level)
}

// Viewport returns the configured default viewport.
func (c *Config) Viewport() browser.Viewport {
	return browser.Viewport{Width: c.Browser.Viewport.Width, Height: c.Browser.Viewport.Height}
}
