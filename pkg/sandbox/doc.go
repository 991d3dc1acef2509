// Package sandbox runs untrusted capture scripts against a live browser page.
//
// A script is the body of an async function evaluated in a fresh goja
// runtime. The runtime holds the standard ECMAScript intrinsics plus a fixed
// set of host names and nothing else:
//
//	page            navigation, interaction, waits, locators and evaluate
//	captureImage    screenshot the page and finish the run
//	captureMarkup   snapshot the DOM and finish the run
//	sleep           delay, clamped to capture.MaxWait
//	console         accepted and discarded
//
// There is no module loader, process object, timer queue, filesystem or
// network in the runtime. Every page operation forwards to the browser.Page
// the run was started with and returns plain data or another restricted
// proxy, never the engine object.
//
// A capture call performs the capture and then interrupts the runtime, so it
// ends the script from any nesting depth and cannot be caught by the
// script's own try/catch. Run reports exactly one outcome:
//
//	result, err := sandbox.New().Run(ctx, `
//	    await page.click("#accept");
//	    await page.waitForSelector(".chart");
//	    await captureImage({ selector: ".chart" });
//	`, page, capture.KindImage)
//
// err, when set, is a *capture.Error of kind capture_kind_mismatch,
// no_capture_invoked, timeout or runtime_error.
package sandbox
