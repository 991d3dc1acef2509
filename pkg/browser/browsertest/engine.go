package browsertest

import (
	"sync"

	"github.com/entrhq/shotscript/pkg/browser"
)

// Engine is a fake browser process.
type Engine struct {
	mu         sync.Mutex
	connected  bool
	closes     int
	handlers   []func()
	contexts   []*Context
	version    string
	closeErr   error
	contextErr error

	// NewPage customizes pages opened from this engine's contexts
	NewPage func() *Page
}

// NewEngine creates a connected engine.
func NewEngine() *Engine {
	return &Engine{connected: true, version: "fake"}
}

// NewContext implements browser.Engine.
func (e *Engine) NewContext(opts browser.ContextOptions) (browser.EngineContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.contextErr != nil {
		return nil, e.contextErr
	}
	c := &Context{options: opts, engine: e}
	e.contexts = append(e.contexts, c)
	return c, nil
}

// IsConnected implements browser.Engine.
func (e *Engine) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// OnDisconnected implements browser.Engine.
func (e *Engine) OnDisconnected(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, fn)
}

// Version implements browser.Engine.
func (e *Engine) Version() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Close implements browser.Engine. Like a real browser it reports the
// disconnect synchronously the first time it goes down.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closes++
	err := e.closeErr
	e.mu.Unlock()

	e.Disconnect()
	return err
}

// Disconnect simulates the browser process going away.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	if !e.connected {
		e.mu.Unlock()
		return
	}
	e.connected = false
	handlers := append([]func(){}, e.handlers...)
	e.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// SilentlyDisconnect marks the engine unreachable without firing handlers,
// leaving the failure to be found by a health check.
func (e *Engine) SilentlyDisconnect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = false
}

// SetCloseError makes Close return err.
func (e *Engine) SetCloseError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeErr = err
}

// SetContextError makes NewContext fail with err.
func (e *Engine) SetContextError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.contextErr = err
}

// Closes returns how many times Close was called.
func (e *Engine) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

// Contexts returns every context created on this engine.
func (e *Engine) Contexts() []*Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Context(nil), e.contexts...)
}

// OpenContexts returns the number of contexts not yet closed.
func (e *Engine) OpenContexts() int {
	open := 0
	for _, c := range e.Contexts() {
		if c.Closes() == 0 {
			open++
		}
	}
	return open
}

// Context is a fake isolated browser context.
type Context struct {
	mu       sync.Mutex
	options  browser.ContextOptions
	engine   *Engine
	pages    []*Page
	closes   int
	closeErr error
	pageErr  error
}

// NewPage implements browser.EngineContext.
func (c *Context) NewPage() (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pageErr != nil {
		return nil, c.pageErr
	}
	var p *Page
	if c.engine.NewPage != nil {
		p = c.engine.NewPage()
	} else {
		p = NewPage()
	}
	c.pages = append(c.pages, p)
	return p, nil
}

// Close implements browser.EngineContext.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return c.closeErr
}

// Options returns the options the context was created with.
func (c *Context) Options() browser.ContextOptions {
	return c.options
}

// Closes returns how many times Close was called.
func (c *Context) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Pages returns the pages opened in this context.
func (c *Context) Pages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Page(nil), c.pages...)
}

// SetCloseError makes Close return err.
func (c *Context) SetCloseError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
}

// SetPageError makes NewPage fail with err.
func (c *Context) SetPageError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageErr = err
}

// Navigate simulates the engine starting a frame navigation to url, such as
// a redirect. It returns the error of the context's navigation filter.
func (c *Context) Navigate(url string) error {
	if c.options.NavigationFilter == nil {
		return nil
	}
	return c.options.NavigationFilter(url)
}

var (
	_ browser.Launcher      = (*Launcher)(nil)
	_ browser.Engine        = (*Engine)(nil)
	_ browser.EngineContext = (*Context)(nil)
	_ browser.Page          = (*Page)(nil)
	_ browser.Locator       = (*Locator)(nil)
)
