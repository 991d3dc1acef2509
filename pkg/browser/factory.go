package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/shotscript/pkg/gate"
	"github.com/entrhq/shotscript/pkg/logging"
	"github.com/entrhq/shotscript/pkg/metrics"
)

// Factory creates isolated contexts admitted through a concurrency gate.
type Factory struct {
	gate     *gate.Gate
	sessions *Manager
	logger   *logging.Logger
	metrics  *metrics.Metrics

	defaultTimeout float64
}

// NewFactory creates a context factory and adds an occupancy observer to g
// that feeds m. logger and m may be nil.
func NewFactory(g *gate.Gate, sessions *Manager, logger *logging.Logger, m *metrics.Metrics) *Factory {
	if logger == nil {
		logger = logging.Discard()
	}
	g.OnChange(func(s gate.Stats) {
		m.SetGate(s.InUse, s.Waiting)
	})
	return &Factory{
		gate:           g,
		sessions:       sessions,
		logger:         logger,
		metrics:        m,
		defaultTimeout: DefaultTimeout,
	}
}

// SetDefaultTimeout sets the default operation timeout, in milliseconds,
// applied to pages opened from created contexts.
func (f *Factory) SetDefaultTimeout(ms float64) {
	if ms > 0 {
		f.defaultTimeout = ms
	}
}

// Gate returns the admission gate.
func (f *Factory) Gate() *gate.Gate {
	return f.gate
}

// CreateContext waits for a permit, obtains a healthy browser handle and
// creates an isolated context. The returned Context must be closed exactly
// once; closing it returns the permit. If creation fails the permit is
// released before the error is returned.
func (f *Factory) CreateContext(ctx context.Context, opts ContextOptions) (*Context, error) {
	opts = opts.withDefaults()
	if err := opts.Viewport.Validate(); err != nil {
		return nil, err
	}

	permit, err := f.gate.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire browser context permit: %w", err)
	}

	// Released on every path that does not hand the permit to a Context,
	// including a panic inside the engine.
	handedOff := false
	defer func() {
		if !handedOff {
			permit.Release()
		}
	}()

	h, err := f.sessions.GetHandle(ctx)
	if err != nil {
		return nil, err
	}

	inner, err := h.newContext(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	handedOff = true
	f.metrics.ContextOpened()
	f.logger.Debugf("context opened: epoch=%d viewport=%dx%d", h.Epoch(), opts.Viewport.Width, opts.Viewport.Height)

	return &Context{
		inner:     inner,
		permit:    permit,
		handle:    h,
		options:   opts,
		factory:   f,
		createdAt: time.Now(),
	}, nil
}

// Context is an isolated, request-scoped browser context holding one
// concurrency permit.
type Context struct {
	inner     EngineContext
	permit    *gate.Permit
	handle    *Handle
	options   ContextOptions
	factory   *Factory
	createdAt time.Time

	closeOnce sync.Once
	closeErr  error
}

// NewPage opens a page in this context with the factory's default timeout.
func (c *Context) NewPage() (Page, error) {
	page, err := c.inner.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(c.factory.defaultTimeout)
	return page, nil
}

// Options returns the options the context was created with, defaults applied.
func (c *Context) Options() ContextOptions {
	return c.options
}

// HandleEpoch returns the epoch of the browser handle the context was carved from.
func (c *Context) HandleEpoch() uint64 {
	return c.handle.Epoch()
}

// Close disposes of the context and releases its permit. The permit is
// released even if the engine fails to close the context. Only the first call
// has any effect; later calls return the first result.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		defer c.factory.metrics.ContextClosed()
		defer c.permit.Release()

		if err := c.inner.Close(); err != nil {
			c.closeErr = fmt.Errorf("failed to close browser context: %w", err)
			c.factory.logger.Warnf("context close failed after %s: %v", time.Since(c.createdAt), err)
		}
	})
	return c.closeErr
}
