package browser

import (
	"context"

	"github.com/entrhq/shotscript/pkg/capture"
)

// Launcher starts browser processes.
type Launcher interface {
	// Launch starts a new browser process and returns a connection to it
	Launch(ctx context.Context) (Engine, error)
}

// Engine is a live connection to one browser process.
type Engine interface {
	// NewContext creates an isolated context with its own storage and viewport
	NewContext(opts ContextOptions) (EngineContext, error)

	// IsConnected reports whether the browser is still reachable
	IsConnected() bool

	// OnDisconnected registers fn to run when the connection is lost. fn may
	// be invoked from any goroutine.
	OnDisconnected(fn func())

	// Version returns the browser version string
	Version() string

	// Close terminates the browser
	Close() error
}

// EngineContext is an isolated browser context that owns pages.
type EngineContext interface {
	NewPage() (Page, error)
	Close() error
}

// Page is the typed automation surface of a single page. It only accepts
// and returns primitive or plain data; engine objects never escape it
// except as further restricted Locators.
type Page interface {
	Goto(url string, opts NavigateOptions) error
	Reload(opts NavigateOptions) error
	GoBack(opts NavigateOptions) error
	GoForward(opts NavigateOptions) error

	Click(selector string, opts ClickOptions) error
	DoubleClick(selector string, opts ClickOptions) error
	Fill(selector, value string, opts ActionOptions) error
	Type(selector, text string, opts TypeOptions) error
	Press(selector, key string, opts TypeOptions) error
	Hover(selector string, opts ActionOptions) error
	Focus(selector string, opts ActionOptions) error
	SelectOption(selector string, values []string, opts ActionOptions) ([]string, error)
	Check(selector string, opts ActionOptions) error
	Uncheck(selector string, opts ActionOptions) error

	WaitForSelector(selector string, opts WaitOptions) error
	WaitForLoadState(state string, opts ActionOptions) error
	WaitForURL(url string, opts NavigateOptions) error
	WaitForFunction(expression string, arg interface{}, opts WaitOptions) error

	Locator(selector string) Locator
	Evaluate(expression string, arg interface{}) (interface{}, error)

	Screenshot(opts capture.ImageOptions) ([]byte, error)
	Content() (string, error)
	URL() string
	Title() (string, error)

	SetDefaultTimeout(ms float64)
	Close() error
}

// Locator is a chainable, lazily resolved element query.
type Locator interface {
	Click(opts ClickOptions) error
	Fill(value string, opts ActionOptions) error
	IsVisible() (bool, error)
	TextContent(opts ActionOptions) (string, error)
	GetAttribute(name string, opts ActionOptions) (string, error)
	OuterHTML(opts ActionOptions) (string, error)
	Count() (int, error)

	First() Locator
	Last() Locator
	Nth(index int) Locator
	Filter(opts FilterOptions) Locator
	Locator(selector string) Locator

	Screenshot(opts capture.ImageOptions) ([]byte, error)
}
