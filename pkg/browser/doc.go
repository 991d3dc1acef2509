// Package browser owns the shared browser process and carves isolated,
// request-scoped contexts out of it.
//
// # Architecture
//
// The package is built around three pieces:
//
//  1. Manager: owns the single Browser Handle. It launches the browser lazily,
//     health-checks it on every request, and serializes (re)creation so that
//     concurrent callers never launch duplicates. A disconnect observer flips
//     the handle's connectivity flag as soon as the engine reports it gone.
//  2. Factory: admits a request through a gate.Gate, asks the Manager for a
//     healthy handle, and creates an isolated Context sized to the requested
//     viewport. Closing a Context always returns its permit exactly once.
//  3. Page and Locator: the narrow, typed automation surface that the rest of
//     the module (direct captures, the script sandbox) is allowed to use.
//
// The automation engine itself sits behind the Launcher, Engine and
// EngineContext interfaces. PlaywrightLauncher implements them with
// playwright-go; tests substitute fakes from the browsertest package.
//
// # Example Usage
//
//	launcher := browser.NewPlaywrightLauncher(browser.PlaywrightOptions{Headless: true})
//	sessions := browser.NewManager(launcher, logger, nil)
//	defer sessions.Shutdown()
//
//	factory := browser.NewFactory(gate.New(4), sessions, logger, nil)
//	bctx, err := factory.CreateContext(ctx, browser.ContextOptions{})
//	if err != nil {
//	    return err
//	}
//	defer bctx.Close()
//
//	page, err := bctx.NewPage()
//	if err != nil {
//	    return err
//	}
//	if err := page.Goto("https://example.com", browser.NavigateOptions{WaitUntil: "load"}); err != nil {
//	    return err
//	}
//	shot, err := browser.CaptureImage(page, capture.ImageOptions{FullPage: true})
package browser
