package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/shotscript/pkg/capture"
)

// PlaywrightOptions configures how browsers are launched through Playwright.
type PlaywrightOptions struct {
	// Browser selects the engine: "chromium" (default), "firefox" or "webkit"
	Browser string

	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Channel selects a branded build such as "chrome" or "msedge"
	Channel string

	// Args are extra command line arguments for the browser process
	Args []string

	// Install downloads the driver and browser before the first launch
	Install bool

	// LaunchTimeout bounds a launch when the caller's context has no deadline
	LaunchTimeout time.Duration
}

// PlaywrightLauncher launches browsers through a lazily started Playwright
// driver. The driver is shared by every browser it launches and lives until
// Stop is called.
type PlaywrightLauncher struct {
	opts PlaywrightOptions

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightLauncher creates a launcher. The driver is not started until
// the first Launch.
func NewPlaywrightLauncher(opts PlaywrightOptions) *PlaywrightLauncher {
	if opts.Browser == "" {
		opts.Browser = "chromium"
	}
	if opts.LaunchTimeout == 0 {
		opts.LaunchTimeout = 30 * time.Second
	}
	return &PlaywrightLauncher{opts: opts}
}

func (l *PlaywrightLauncher) driver() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw != nil {
		return l.pw, nil
	}

	// Discard driver output so it does not interleave with CLI output
	runOpts := &playwright.RunOptions{
		Browsers: []string{l.opts.Browser},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if l.opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	l.pw = pw
	return pw, nil
}

// Launch starts a new browser process.
func (l *PlaywrightLauncher) Launch(ctx context.Context) (Engine, error) {
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}

	var browserType playwright.BrowserType
	switch l.opts.Browser {
	case "chromium":
		browserType = pw.Chromium
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		return nil, fmt.Errorf("unknown browser %q", l.opts.Browser)
	}

	timeout := l.opts.LaunchTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
		Args:     l.opts.Args,
		Timeout:  playwright.Float(float64(timeout.Milliseconds())),
	}
	if l.opts.Channel != "" {
		launchOpts.Channel = playwright.String(l.opts.Channel)
	}

	b, err := browserType.Launch(launchOpts)
	if err != nil {
		return nil, err
	}
	return &pwEngine{browser: b}, nil
}

// Stop shuts the Playwright driver down. Browsers launched by it must be
// closed first.
func (l *PlaywrightLauncher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

type pwEngine struct {
	browser playwright.Browser
}

func (e *pwEngine) NewContext(opts ContextOptions) (EngineContext, error) {
	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	}
	if opts.DeviceScaleFactor > 0 {
		contextOpts.DeviceScaleFactor = playwright.Float(opts.DeviceScaleFactor)
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(opts.UserAgent)
	}

	if opts.NavigationFilter != nil {
		contextOpts.ServiceWorkers = playwright.ServiceWorkerPolicyBlock
	}

	c, err := e.browser.NewContext(contextOpts)
	if err != nil {
		return nil, err
	}
	if opts.NavigationFilter != nil {
		if err := c.Route("**/*", navigationRoute(opts.NavigationFilter)); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to install navigation filter: %w", err)
		}
	}
	return &pwContext{context: c}, nil
}

// navigationRoute aborts frame navigations refused by check and lets
// everything else through.
func navigationRoute(check NavigationCheck) func(playwright.Route) {
	return func(route playwright.Route) {
		req := route.Request()
		if req.IsNavigationRequest() && check(req.URL()) != nil {
			_ = route.Abort("blockedbyclient")
			return
		}
		_ = route.Continue()
	}
}

func (e *pwEngine) IsConnected() bool {
	return e.browser.IsConnected()
}

func (e *pwEngine) OnDisconnected(fn func()) {
	e.browser.OnDisconnected(func(playwright.Browser) { fn() })
}

func (e *pwEngine) Version() string {
	return e.browser.Version()
}

func (e *pwEngine) Close() error {
	return e.browser.Close()
}

type pwContext struct {
	context playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	p, err := c.context.NewPage()
	if err != nil {
		return nil, err
	}
	return &pwPage{page: p}, nil
}

func (c *pwContext) Close() error {
	return c.context.Close()
}

// Option helpers: zero values map to nil so Playwright applies its defaults.

func optTimeout(ms float64) *float64 {
	if !(ms > 0) {
		return nil
	}
	return playwright.Float(ms)
}

func optWaitUntil(state string) *playwright.WaitUntilState {
	if state == "" {
		return nil
	}
	s := playwright.WaitUntilState(state)
	return &s
}

func optButton(button string) *playwright.MouseButton {
	if button == "" {
		return nil
	}
	b := playwright.MouseButton(button)
	return &b
}

func optInt(v int) *int {
	if v == 0 {
		return nil
	}
	return playwright.Int(v)
}

func optFloat(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return playwright.Float(v)
}

func optBool(v bool) *bool {
	if !v {
		return nil
	}
	return playwright.Bool(true)
}

func screenshotType(t capture.ImageType) *playwright.ScreenshotType {
	if t == "" {
		return nil
	}
	st := playwright.ScreenshotType(t)
	return &st
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(url string, opts NavigateOptions) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: optWaitUntil(opts.WaitUntil),
		Timeout:   optTimeout(opts.Timeout),
	})
	return err
}

func (p *pwPage) Reload(opts NavigateOptions) error {
	_, err := p.page.Reload(playwright.PageReloadOptions{
		WaitUntil: optWaitUntil(opts.WaitUntil),
		Timeout:   optTimeout(opts.Timeout),
	})
	return err
}

func (p *pwPage) GoBack(opts NavigateOptions) error {
	_, err := p.page.GoBack(playwright.PageGoBackOptions{
		WaitUntil: optWaitUntil(opts.WaitUntil),
		Timeout:   optTimeout(opts.Timeout),
	})
	return err
}

func (p *pwPage) GoForward(opts NavigateOptions) error {
	_, err := p.page.GoForward(playwright.PageGoForwardOptions{
		WaitUntil: optWaitUntil(opts.WaitUntil),
		Timeout:   optTimeout(opts.Timeout),
	})
	return err
}

func (p *pwPage) Click(selector string, opts ClickOptions) error {
	return p.page.Click(selector, playwright.PageClickOptions{
		Button:     optButton(opts.Button),
		ClickCount: optInt(opts.ClickCount),
		Delay:      optFloat(opts.Delay),
		Force:      optBool(opts.Force),
		Timeout:    optTimeout(opts.Timeout),
	})
}

func (p *pwPage) DoubleClick(selector string, opts ClickOptions) error {
	return p.page.Dblclick(selector, playwright.PageDblclickOptions{
		Button:  optButton(opts.Button),
		Delay:   optFloat(opts.Delay),
		Force:   optBool(opts.Force),
		Timeout: optTimeout(opts.Timeout),
	})
}

func (p *pwPage) Fill(selector, value string, opts ActionOptions) error {
	return p.page.Fill(selector, value, playwright.PageFillOptions{Timeout: optTimeout(opts.Timeout)})
}

func (p *pwPage) Type(selector, text string, opts TypeOptions) error {
	return p.page.Type(selector, text, playwright.PageTypeOptions{
		Delay:   optFloat(opts.Delay),
		Timeout: optTimeout(opts.Timeout),
	})
}

func (p *pwPage) Press(selector, key string, opts TypeOptions) error {
	return p.page.Press(selector, key, playwright.PagePressOptions{
		Delay:   optFloat(opts.Delay),
		Timeout: optTimeout(opts.Timeout),
	})
}

func (p *pwPage) Hover(selector string, opts ActionOptions) error {
	return p.page.Hover(selector, playwright.PageHoverOptions{Timeout: optTimeout(opts.Timeout)})
}

func (p *pwPage) Focus(selector string, opts ActionOptions) error {
	return p.page.Focus(selector, playwright.PageFocusOptions{Timeout: optTimeout(opts.Timeout)})
}

func (p *pwPage) SelectOption(selector string, values []string, opts ActionOptions) ([]string, error) {
	return p.page.SelectOption(selector, playwright.SelectOptionValues{Values: &values},
		playwright.PageSelectOptionOptions{Timeout: optTimeout(opts.Timeout)})
}

func (p *pwPage) Check(selector string, opts ActionOptions) error {
	return p.page.Check(selector, playwright.PageCheckOptions{Timeout: optTimeout(opts.Timeout)})
}

func (p *pwPage) Uncheck(selector string, opts ActionOptions) error {
	return p.page.Uncheck(selector, playwright.PageUncheckOptions{Timeout: optTimeout(opts.Timeout)})
}

func (p *pwPage) WaitForSelector(selector string, opts WaitOptions) error {
	waitOpts := playwright.PageWaitForSelectorOptions{Timeout: optTimeout(opts.Timeout)}
	if opts.State != "" {
		state := playwright.WaitForSelectorState(opts.State)
		waitOpts.State = &state
	}
	_, err := p.page.WaitForSelector(selector, waitOpts)
	return err
}

func (p *pwPage) WaitForLoadState(state string, opts ActionOptions) error {
	waitOpts := playwright.PageWaitForLoadStateOptions{Timeout: optTimeout(opts.Timeout)}
	if state != "" {
		s := playwright.LoadState(state)
		waitOpts.State = &s
	}
	return p.page.WaitForLoadState(waitOpts)
}

func (p *pwPage) WaitForURL(url string, opts NavigateOptions) error {
	return p.page.WaitForURL(url, playwright.PageWaitForURLOptions{
		WaitUntil: optWaitUntil(opts.WaitUntil),
		Timeout:   optTimeout(opts.Timeout),
	})
}

func (p *pwPage) WaitForFunction(expression string, arg interface{}, opts WaitOptions) error {
	waitOpts := playwright.PageWaitForFunctionOptions{Timeout: optTimeout(opts.Timeout)}
	if opts.Polling > 0 {
		waitOpts.Polling = opts.Polling
	}
	_, err := p.page.WaitForFunction(expression, arg, waitOpts)
	return err
}

func (p *pwPage) Locator(selector string) Locator {
	return &pwLocator{locator: p.page.Locator(selector)}
}

func (p *pwPage) Evaluate(expression string, arg interface{}) (interface{}, error) {
	return p.page.Evaluate(expression, arg)
}

func (p *pwPage) Screenshot(opts capture.ImageOptions) ([]byte, error) {
	shotOpts := playwright.PageScreenshotOptions{
		Type:           screenshotType(opts.Type),
		FullPage:       optBool(opts.FullPage),
		OmitBackground: optBool(opts.OmitBackground),
		Quality:        optInt(opts.Quality),
	}
	if opts.Clip != nil {
		shotOpts.Clip = &playwright.Rect{
			X:      opts.Clip.X,
			Y:      opts.Clip.Y,
			Width:  opts.Clip.Width,
			Height: opts.Clip.Height,
		}
	}
	return p.page.Screenshot(shotOpts)
}

func (p *pwPage) Content() (string, error) {
	return p.page.Content()
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Title() (string, error) {
	return p.page.Title()
}

func (p *pwPage) SetDefaultTimeout(ms float64) {
	p.page.SetDefaultTimeout(ms)
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

type pwLocator struct {
	locator playwright.Locator
}

func (l *pwLocator) Click(opts ClickOptions) error {
	return l.locator.Click(playwright.LocatorClickOptions{
		Button:     optButton(opts.Button),
		ClickCount: optInt(opts.ClickCount),
		Delay:      optFloat(opts.Delay),
		Force:      optBool(opts.Force),
		Timeout:    optTimeout(opts.Timeout),
	})
}

func (l *pwLocator) Fill(value string, opts ActionOptions) error {
	return l.locator.Fill(value, playwright.LocatorFillOptions{Timeout: optTimeout(opts.Timeout)})
}

func (l *pwLocator) IsVisible() (bool, error) {
	return l.locator.IsVisible()
}

func (l *pwLocator) TextContent(opts ActionOptions) (string, error) {
	return l.locator.TextContent(playwright.LocatorTextContentOptions{Timeout: optTimeout(opts.Timeout)})
}

func (l *pwLocator) GetAttribute(name string, opts ActionOptions) (string, error) {
	return l.locator.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: optTimeout(opts.Timeout)})
}

func (l *pwLocator) OuterHTML(opts ActionOptions) (string, error) {
	v, err := l.locator.Evaluate("el => el.outerHTML", nil, playwright.LocatorEvaluateOptions{Timeout: optTimeout(opts.Timeout)})
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (l *pwLocator) Count() (int, error) {
	return l.locator.Count()
}

func (l *pwLocator) First() Locator {
	return &pwLocator{locator: l.locator.First()}
}

func (l *pwLocator) Last() Locator {
	return &pwLocator{locator: l.locator.Last()}
}

func (l *pwLocator) Nth(index int) Locator {
	return &pwLocator{locator: l.locator.Nth(index)}
}

func (l *pwLocator) Filter(opts FilterOptions) Locator {
	filterOpts := playwright.LocatorFilterOptions{}
	if opts.HasText != "" {
		filterOpts.HasText = opts.HasText
	}
	if opts.HasNotText != "" {
		filterOpts.HasNotText = opts.HasNotText
	}
	return &pwLocator{locator: l.locator.Filter(filterOpts)}
}

func (l *pwLocator) Locator(selector string) Locator {
	return &pwLocator{locator: l.locator.Locator(selector)}
}

func (l *pwLocator) Screenshot(opts capture.ImageOptions) ([]byte, error) {
	return l.locator.Screenshot(playwright.LocatorScreenshotOptions{
		Type:           screenshotType(opts.Type),
		OmitBackground: optBool(opts.OmitBackground),
		Quality:        optInt(opts.Quality),
	})
}
