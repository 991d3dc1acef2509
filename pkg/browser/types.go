package browser

import "fmt"

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// IsZero reports whether no dimension was set.
func (v Viewport) IsZero() bool {
	return v.Width == 0 && v.Height == 0
}

// Validate checks the viewport against the supported range.
func (v Viewport) Validate() error {
	if v.Width < MinViewportDimension || v.Width > MaxViewportWidth {
		return fmt.Errorf("viewport width %d out of range [%d, %d]", v.Width, MinViewportDimension, MaxViewportWidth)
	}
	if v.Height < MinViewportDimension || v.Height > MaxViewportHeight {
		return fmt.Errorf("viewport height %d out of range [%d, %d]", v.Height, MinViewportDimension, MaxViewportHeight)
	}
	return nil
}

// ContextOptions configures a new isolated context.
type ContextOptions struct {
	// Viewport sets the context viewport; zero means DefaultViewportWidth x DefaultViewportHeight
	Viewport Viewport

	// DeviceScaleFactor sets the device pixel ratio (0 leaves the engine default)
	DeviceScaleFactor float64

	// UserAgent overrides the context user agent when set
	UserAgent string

	// NavigationFilter, when set, is consulted for every frame navigation
	// the context makes, including redirects and history moves. Refused
	// navigations are aborted. Service workers are blocked so none escape it.
	NavigationFilter NavigationCheck
}

func (o ContextOptions) withDefaults() ContextOptions {
	if o.Viewport.IsZero() {
		o.Viewport = Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	return o
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle", "commit"
	WaitUntil string

	// Timeout in milliseconds (0 means default)
	Timeout float64
}

// ClickOptions configures element clicking behavior.
type ClickOptions struct {
	// Button specifies which mouse button to use (left, right, middle)
	Button string

	// ClickCount is the number of times to click
	ClickCount int

	// Delay between mousedown and mouseup in milliseconds
	Delay float64

	// Force skips actionability checks
	Force bool

	// Timeout in milliseconds
	Timeout float64
}

// ActionOptions carries the per-call timeout shared by simple actions.
type ActionOptions struct {
	// Timeout in milliseconds
	Timeout float64
}

// TypeOptions configures keyboard input.
type TypeOptions struct {
	// Delay between key presses in milliseconds
	Delay float64

	// Timeout in milliseconds
	Timeout float64
}

// WaitOptions configures waiting for an element or predicate.
type WaitOptions struct {
	// State to wait for: "attached", "detached", "visible", "hidden"
	State string

	// Polling interval in milliseconds for predicates (0 uses animation frames)
	Polling float64

	// Timeout in milliseconds
	Timeout float64
}

// FilterOptions narrows a locator.
type FilterOptions struct {
	HasText    string
	HasNotText string
}

// Default values for contexts and pages
const (
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultConcurrency    = 4

	MinViewportDimension = 1
	MaxViewportWidth     = 7680
	MaxViewportHeight    = 4320
)

// ValidLoadStates lists the load states accepted by navigation and waits.
var ValidLoadStates = map[string]bool{
	"load":             true,
	"domcontentloaded": true,
	"networkidle":      true,
	"commit":           true,
}
