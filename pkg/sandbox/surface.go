package sandbox

import (
	"github.com/dop251/goja"

	"github.com/entrhq/shotscript/pkg/browser"
	"github.com/entrhq/shotscript/pkg/capture"
)

// hostFunc is a page operation. It returns plain data, a proxy object, or an
// error that is thrown into the script unchanged.
type hostFunc func(call goja.FunctionCall) (interface{}, error)

// install defines the only host names a script can see.
func (s *session) install() {
	s.vm.Set("page", s.pageObject())
	s.vm.Set("captureImage", s.async(s.captureImage))
	s.vm.Set("captureMarkup", s.async(s.captureMarkup))
	s.vm.Set("sleep", s.async(func(call goja.FunctionCall) (interface{}, error) {
		s.wait(s.clamp(call.Argument(0).ToFloat()))
		return nil, nil
	}))
	s.vm.Set("console", s.consoleObject())
}

// async wraps fn as a script function returning a settled promise.
func (s *session) async(fn hostFunc) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		s.alive()
		v, err := fn(call)
		if err != nil {
			panic(s.vm.NewGoError(err))
		}
		promise, resolve, _ := s.vm.NewPromise()
		resolve(v)
		return s.vm.ToValue(promise)
	}
}

// sync wraps fn as a script function returning its value directly.
func (s *session) sync(fn hostFunc) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		s.alive()
		v, err := fn(call)
		if err != nil {
			panic(s.vm.NewGoError(err))
		}
		return s.vm.ToValue(v)
	}
}

func (s *session) consoleObject() *goja.Object {
	console := s.vm.NewObject()
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"log", "info", "warn", "error", "debug", "trace"} {
		console.Set(name, noop)
	}
	return console
}

func navigateOptions(o options, s *session) browser.NavigateOptions {
	return browser.NavigateOptions{WaitUntil: o.str("waitUntil"), Timeout: s.clampTimeout(o.number("timeout"))}
}

func clickOptions(o options) browser.ClickOptions {
	return browser.ClickOptions{
		Button:     o.str("button"),
		ClickCount: o.integer("clickCount"),
		Delay:      o.number("delay"),
		Force:      o.boolean("force"),
		Timeout:    o.number("timeout"),
	}
}

func actionOptions(o options) browser.ActionOptions {
	return browser.ActionOptions{Timeout: o.number("timeout")}
}

func typeOptions(o options) browser.TypeOptions {
	return browser.TypeOptions{Delay: o.number("delay"), Timeout: o.number("timeout")}
}

func (s *session) waitOptions(o options) browser.WaitOptions {
	return browser.WaitOptions{
		State:   o.str("state"),
		Polling: o.number("polling"),
		Timeout: s.clampTimeout(o.number("timeout")),
	}
}

// pageObject builds the page proxy. Each entry forwards to one engine call.
func (s *session) pageObject() *goja.Object {
	p := s.page
	obj := s.vm.NewObject()

	navigation := func(name string, do func(browser.NavigateOptions) error) {
		obj.Set(name, s.async(func(call goja.FunctionCall) (interface{}, error) {
			o, err := optionsArg(call, 0)
			if err != nil {
				return nil, err
			}
			return nil, do(navigateOptions(o, s))
		}))
	}
	obj.Set("goto", s.async(func(call goja.FunctionCall) (interface{}, error) {
		url, err := requiredString(call, 0, "page.goto", "url")
		if err != nil {
			return nil, err
		}
		o, err := optionsArg(call, 1)
		if err != nil {
			return nil, err
		}
		return nil, p.Goto(url, navigateOptions(o, s))
	}))
	navigation("reload", p.Reload)
	navigation("goBack", p.GoBack)
	navigation("goForward", p.GoForward)

	clicks := func(name string, do func(string, browser.ClickOptions) error) {
		obj.Set(name, s.async(func(call goja.FunctionCall) (interface{}, error) {
			sel, err := requiredString(call, 0, "page."+name, "selector")
			if err != nil {
				return nil, err
			}
			o, err := optionsArg(call, 1)
			if err != nil {
				return nil, err
			}
			return nil, do(sel, clickOptions(o))
		}))
	}
	clicks("click", p.Click)
	clicks("dblclick", p.DoubleClick)

	actions := func(name string, do func(string, browser.ActionOptions) error) {
		obj.Set(name, s.async(func(call goja.FunctionCall) (interface{}, error) {
			sel, err := requiredString(call, 0, "page."+name, "selector")
			if err != nil {
				return nil, err
			}
			o, err := optionsArg(call, 1)
			if err != nil {
				return nil, err
			}
			return nil, do(sel, actionOptions(o))
		}))
	}
	actions("hover", p.Hover)
	actions("focus", p.Focus)
	actions("check", p.Check)
	actions("uncheck", p.Uncheck)

	obj.Set("fill", s.async(func(call goja.FunctionCall) (interface{}, error) {
		sel, err := requiredString(call, 0, "page.fill", "selector")
		if err != nil {
			return nil, err
		}
		o, err := optionsArg(call, 2)
		if err != nil {
			return nil, err
		}
		return nil, p.Fill(sel, stringArg(call, 1), actionOptions(o))
	}))

	keyboard := func(name string, do func(string, string, browser.TypeOptions) error) {
		obj.Set(name, s.async(func(call goja.FunctionCall) (interface{}, error) {
			sel, err := requiredString(call, 0, "page."+name, "selector")
			if err != nil {
				return nil, err
			}
			o, err := optionsArg(call, 2)
			if err != nil {
				return nil, err
			}
			return nil, do(sel, stringArg(call, 1), typeOptions(o))
		}))
	}
	keyboard("type", p.Type)
	keyboard("press", p.Press)

	obj.Set("selectOption", s.async(func(call goja.FunctionCall) (interface{}, error) {
		sel, err := requiredString(call, 0, "page.selectOption", "selector")
		if err != nil {
			return nil, err
		}
		o, err := optionsArg(call, 2)
		if err != nil {
			return nil, err
		}
		return p.SelectOption(sel, stringsArg(call, 1), actionOptions(o))
	}))

	obj.Set("waitForSelector", s.async(func(call goja.FunctionCall) (interface{}, error) {
		sel, err := requiredString(call, 0, "page.waitForSelector", "selector")
		if err != nil {
			return nil, err
		}
		o, err := optionsArg(call, 1)
		if err != nil {
			return nil, err
		}
		return nil, p.WaitForSelector(sel, s.waitOptions(o))
	}))
	obj.Set("waitForLoadState", s.async(func(call goja.FunctionCall) (interface{}, error) {
		o, err := optionsArg(call, 1)
		if err != nil {
			return nil, err
		}
		return nil, p.WaitForLoadState(stringArg(call, 0), browser.ActionOptions{Timeout: s.clampTimeout(o.number("timeout"))})
	}))
	obj.Set("waitForTimeout", s.async(func(call goja.FunctionCall) (interface{}, error) {
		s.wait(s.clamp(call.Argument(0).ToFloat()))
		return nil, nil
	}))
	obj.Set("waitForURL", s.async(func(call goja.FunctionCall) (interface{}, error) {
		url, err := requiredString(call, 0, "page.waitForURL", "url")
		if err != nil {
			return nil, err
		}
		o, err := optionsArg(call, 1)
		if err != nil {
			return nil, err
		}
		return nil, p.WaitForURL(url, navigateOptions(o, s))
	}))
	obj.Set("waitForFunction", s.async(func(call goja.FunctionCall) (interface{}, error) {
		src, err := sourceArg(call, 0, "page.waitForFunction")
		if err != nil {
			return nil, err
		}
		o, err := optionsArg(call, 2)
		if err != nil {
			return nil, err
		}
		return nil, p.WaitForFunction(src, dataArg(call, 1), s.waitOptions(o))
	}))

	obj.Set("evaluate", s.async(func(call goja.FunctionCall) (interface{}, error) {
		src, err := sourceArg(call, 0, "page.evaluate")
		if err != nil {
			return nil, err
		}
		return p.Evaluate(src, dataArg(call, 1))
	}))
	obj.Set("locator", s.sync(func(call goja.FunctionCall) (interface{}, error) {
		sel, err := requiredString(call, 0, "page.locator", "selector")
		if err != nil {
			return nil, err
		}
		return s.locatorObject(p.Locator(sel)), nil
	}))
	obj.Set("url", s.sync(func(goja.FunctionCall) (interface{}, error) {
		return p.URL(), nil
	}))
	obj.Set("title", s.async(func(goja.FunctionCall) (interface{}, error) {
		return p.Title()
	}))

	return obj
}

// locatorObject builds a locator proxy. Narrowing operations return new
// proxies synchronously; everything that talks to the page is async.
func (s *session) locatorObject(l browser.Locator) *goja.Object {
	obj := s.vm.NewObject()

	obj.Set("click", s.async(func(call goja.FunctionCall) (interface{}, error) {
		o, err := optionsArg(call, 0)
		if err != nil {
			return nil, err
		}
		return nil, l.Click(clickOptions(o))
	}))
	obj.Set("fill", s.async(func(call goja.FunctionCall) (interface{}, error) {
		o, err := optionsArg(call, 1)
		if err != nil {
			return nil, err
		}
		return nil, l.Fill(stringArg(call, 0), actionOptions(o))
	}))
	obj.Set("isVisible", s.async(func(goja.FunctionCall) (interface{}, error) {
		return l.IsVisible()
	}))
	obj.Set("textContent", s.async(func(call goja.FunctionCall) (interface{}, error) {
		o, err := optionsArg(call, 0)
		if err != nil {
			return nil, err
		}
		return l.TextContent(actionOptions(o))
	}))
	obj.Set("getAttribute", s.async(func(call goja.FunctionCall) (interface{}, error) {
		name, err := requiredString(call, 0, "locator.getAttribute", "name")
		if err != nil {
			return nil, err
		}
		o, err := optionsArg(call, 1)
		if err != nil {
			return nil, err
		}
		return l.GetAttribute(name, actionOptions(o))
	}))
	obj.Set("count", s.async(func(goja.FunctionCall) (interface{}, error) {
		return l.Count()
	}))

	obj.Set("first", s.sync(func(goja.FunctionCall) (interface{}, error) {
		return s.locatorObject(l.First()), nil
	}))
	obj.Set("last", s.sync(func(goja.FunctionCall) (interface{}, error) {
		return s.locatorObject(l.Last()), nil
	}))
	obj.Set("nth", s.sync(func(call goja.FunctionCall) (interface{}, error) {
		return s.locatorObject(l.Nth(int(call.Argument(0).ToInteger()))), nil
	}))
	obj.Set("filter", s.sync(func(call goja.FunctionCall) (interface{}, error) {
		o, err := optionsArg(call, 0)
		if err != nil {
			return nil, err
		}
		return s.locatorObject(l.Filter(browser.FilterOptions{
			HasText:    o.str("hasText"),
			HasNotText: o.str("hasNotText"),
		})), nil
	}))
	obj.Set("locator", s.sync(func(call goja.FunctionCall) (interface{}, error) {
		sel, err := requiredString(call, 0, "locator.locator", "selector")
		if err != nil {
			return nil, err
		}
		return s.locatorObject(l.Locator(sel)), nil
	}))

	return obj
}

func (s *session) captureImage(call goja.FunctionCall) (interface{}, error) {
	o, err := optionsArg(call, 0)
	if err != nil {
		return nil, err
	}
	opts := capture.ImageOptions{
		Type:           capture.ImageType(o.str("type")),
		Quality:        o.integer("quality"),
		FullPage:       o.boolean("fullPage"),
		OmitBackground: o.boolean("omitBackground"),
		Selector:       o.str("selector"),
	}
	if clip, ok := o.object("clip"); ok {
		opts.Clip = &capture.Clip{
			X:      clip.number("x"),
			Y:      clip.number("y"),
			Width:  clip.number("width"),
			Height: clip.number("height"),
		}
	}

	shot, err := browser.CaptureImage(s.page, opts)
	if err != nil {
		return nil, err
	}
	s.finish(capture.NewImageResult(shot))
	return nil, nil
}

func (s *session) captureMarkup(call goja.FunctionCall) (interface{}, error) {
	o, err := optionsArg(call, 0)
	if err != nil {
		return nil, err
	}
	markup, err := browser.CaptureMarkup(s.page, capture.MarkupOptions{
		Selector: o.str("selector"),
		Clean:    o.boolean("clean"),
	})
	if err != nil {
		return nil, err
	}
	s.finish(capture.NewMarkupResult(markup))
	return nil, nil
}
