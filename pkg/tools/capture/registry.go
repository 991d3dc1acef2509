// Package capture exposes browser captures as tools.
package capture

import (
	"fmt"

	"github.com/entrhq/shotscript/pkg/browser"
	"github.com/entrhq/shotscript/pkg/logging"
	"github.com/entrhq/shotscript/pkg/metrics"
	"github.com/entrhq/shotscript/pkg/sandbox"
	"github.com/entrhq/shotscript/pkg/security/urlguard"
	"github.com/entrhq/shotscript/pkg/security/workspace"
	"github.com/entrhq/shotscript/pkg/tools"
)

// Config wires the capture tools to their collaborators. Only Factory is
// required.
type Config struct {
	Factory *browser.Factory

	// Runner executes caller scripts; defaults to sandbox.New with Logger and Metrics
	Runner *sandbox.Runner

	// URLs validates targets; defaults to http(s) only with private networks blocked
	URLs *urlguard.Guard

	// Workspace bounds output_path; nil disables saving captures
	Workspace *workspace.Guard

	Metrics *metrics.Metrics
	Logger  *logging.Logger

	// PreviewMaxDimension bounds image previews; 0 means DefaultPreviewDimension
	PreviewMaxDimension int
}

// Registry holds the capture tools.
type Registry struct {
	tools []tools.Tool
}

// NewRegistry creates the capture tools.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("capture tools require a browser context factory")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Runner == nil {
		cfg.Runner = sandbox.New(sandbox.WithLogger(cfg.Logger), sandbox.WithMetrics(cfg.Metrics))
	}
	if cfg.URLs == nil {
		guard, err := urlguard.New(urlguard.Config{BlockPrivateNetworks: true})
		if err != nil {
			return nil, err
		}
		cfg.URLs = guard
	}
	if cfg.PreviewMaxDimension <= 0 {
		cfg.PreviewMaxDimension = DefaultPreviewDimension
	}

	c := &capturer{
		factory:    cfg.Factory,
		runner:     cfg.Runner,
		urls:       cfg.URLs,
		workspace:  cfg.Workspace,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		previewMax: cfg.PreviewMaxDimension,
	}
	return &Registry{
		tools: []tools.Tool{
			&ScreenshotTool{capturer: c},
			&SnapshotTool{capturer: c},
		},
	}, nil
}

// Tools returns the screenshot and snapshot tools.
func (r *Registry) Tools() []tools.Tool {
	return r.tools
}

// Set returns the tools indexed by name.
func (r *Registry) Set() (*tools.Set, error) {
	return tools.NewSet(r.tools...)
}
