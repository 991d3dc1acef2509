package browsertest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"

	"github.com/entrhq/shotscript/pkg/browser"
	"github.com/entrhq/shotscript/pkg/capture"
)

// DefaultContent is the document a fresh Page serves.
const DefaultContent = `<html><head><title>Fake Page</title></head><body><h1 id="title">Hello</h1><script>var x = 1;</script></body></html>`

// Element describes what a selector resolves to on a fake Page.
type Element struct {
	Text       string
	HTML       string
	Visible    bool
	Count      int
	Attributes map[string]string
}

// Page is a fake browser.Page that records every call it receives.
type Page struct {
	mu             sync.Mutex
	calls          []string
	url            string
	title          string
	content        string
	elements       map[string]*Element
	errs           map[string]error
	evaluate       func(expression string, arg interface{}) (interface{}, error)
	hook           func(method string)
	defaultTimeout float64
	image          []byte
	closed         bool
}

// NewPage creates a blank page serving DefaultContent.
func NewPage() *Page {
	return &Page{
		url:      "about:blank",
		title:    "Fake Page",
		content:  DefaultContent,
		elements: map[string]*Element{},
		errs:     map[string]error{},
	}
}

// SetContent replaces the document returned by Content.
func (p *Page) SetContent(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content = html
}

// SetElement registers what selector resolves to.
func (p *Page) SetElement(selector string, el Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el.Count == 0 {
		el.Count = 1
	}
	p.elements[selector] = &el
}

// SetError makes every call to method fail with err.
func (p *Page) SetError(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[method] = err
}

// SetImage overrides the bytes returned by screenshots.
func (p *Page) SetImage(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.image = data
}

// SetEvaluate installs the handler for Evaluate and WaitForFunction.
func (p *Page) SetEvaluate(fn func(expression string, arg interface{}) (interface{}, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evaluate = fn
}

// OnCall registers fn to run before every recorded call, outside the page
// lock. Tests use it to block or slow down engine operations.
func (p *Page) OnCall(fn func(method string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hook = fn
}

// Calls returns the recorded calls, formatted as "method arg...".
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// DefaultTimeout returns the last value passed to SetDefaultTimeout.
func (p *Page) DefaultTimeout() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.defaultTimeout
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) record(method string, args ...interface{}) error {
	p.mu.Lock()
	hook := p.hook
	p.mu.Unlock()
	if hook != nil {
		hook(method)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	call := method
	for _, a := range args {
		call += " " + fmt.Sprint(a)
	}
	p.calls = append(p.calls, call)
	return p.errs[method]
}

func (p *Page) element(selector string) (*Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	return el, ok
}

func (p *Page) Goto(url string, opts browser.NavigateOptions) error {
	if err := p.record("goto", url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *Page) Reload(opts browser.NavigateOptions) error {
	return p.record("reload")
}

func (p *Page) GoBack(opts browser.NavigateOptions) error {
	return p.record("goBack")
}

func (p *Page) GoForward(opts browser.NavigateOptions) error {
	return p.record("goForward")
}

func (p *Page) Click(selector string, opts browser.ClickOptions) error {
	return p.record("click", selector)
}

func (p *Page) DoubleClick(selector string, opts browser.ClickOptions) error {
	return p.record("dblclick", selector)
}

func (p *Page) Fill(selector, value string, opts browser.ActionOptions) error {
	return p.record("fill", selector, value)
}

func (p *Page) Type(selector, text string, opts browser.TypeOptions) error {
	return p.record("type", selector, text)
}

func (p *Page) Press(selector, key string, opts browser.TypeOptions) error {
	return p.record("press", selector, key)
}

func (p *Page) Hover(selector string, opts browser.ActionOptions) error {
	return p.record("hover", selector)
}

func (p *Page) Focus(selector string, opts browser.ActionOptions) error {
	return p.record("focus", selector)
}

func (p *Page) SelectOption(selector string, values []string, opts browser.ActionOptions) ([]string, error) {
	if err := p.record("selectOption", selector, strings.Join(values, ",")); err != nil {
		return nil, err
	}
	return values, nil
}

func (p *Page) Check(selector string, opts browser.ActionOptions) error {
	return p.record("check", selector)
}

func (p *Page) Uncheck(selector string, opts browser.ActionOptions) error {
	return p.record("uncheck", selector)
}

func (p *Page) WaitForSelector(selector string, opts browser.WaitOptions) error {
	return p.record("waitForSelector", selector)
}

func (p *Page) WaitForLoadState(state string, opts browser.ActionOptions) error {
	return p.record("waitForLoadState", state)
}

func (p *Page) WaitForURL(url string, opts browser.NavigateOptions) error {
	return p.record("waitForURL", url)
}

func (p *Page) WaitForFunction(expression string, arg interface{}, opts browser.WaitOptions) error {
	return p.record("waitForFunction", expression)
}

func (p *Page) Locator(selector string) browser.Locator {
	return &Locator{page: p, selector: selector}
}

func (p *Page) Evaluate(expression string, arg interface{}) (interface{}, error) {
	if err := p.record("evaluate", expression); err != nil {
		return nil, err
	}
	p.mu.Lock()
	fn := p.evaluate
	p.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(expression, arg)
}

func (p *Page) Screenshot(opts capture.ImageOptions) ([]byte, error) {
	if err := p.record("screenshot", opts.Type); err != nil {
		return nil, err
	}
	return p.render(opts.Type), nil
}

func (p *Page) Content() (string, error) {
	if err := p.record("content"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content, nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Title() (string, error) {
	if err := p.record("title"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *Page) SetDefaultTimeout(ms float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultTimeout = ms
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// render returns the configured image or a small generated one encoded as t.
func (p *Page) render(t capture.ImageType) []byte {
	p.mu.Lock()
	data := p.image
	p.mu.Unlock()
	if data != nil {
		return data
	}
	return Image(t, 8, 6)
}

// Image encodes a solid w x h image as png, or jpeg when t is jpeg.
func Image(t capture.ImageType, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}

	var buf bytes.Buffer
	if t == capture.ImageJPEG {
		_ = jpeg.Encode(&buf, img, nil)
	} else {
		_ = png.Encode(&buf, img)
	}
	return buf.Bytes()
}

// Locator is a fake browser.Locator resolved against its Page's elements.
// Chained locators resolve by their root selector.
type Locator struct {
	page     *Page
	selector string
}

func (l *Locator) lookup(method string) (*Element, error) {
	if err := l.page.record("locator."+method, l.selector); err != nil {
		return nil, err
	}
	el, ok := l.page.element(l.selector)
	if !ok {
		return nil, fmt.Errorf("waiting for locator(%q): element not found", l.selector)
	}
	return el, nil
}

func (l *Locator) Click(opts browser.ClickOptions) error {
	_, err := l.lookup("click")
	return err
}

func (l *Locator) Fill(value string, opts browser.ActionOptions) error {
	_, err := l.lookup("fill")
	return err
}

func (l *Locator) IsVisible() (bool, error) {
	if err := l.page.record("locator.isVisible", l.selector); err != nil {
		return false, err
	}
	el, ok := l.page.element(l.selector)
	return ok && el.Visible, nil
}

func (l *Locator) TextContent(opts browser.ActionOptions) (string, error) {
	el, err := l.lookup("textContent")
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (l *Locator) GetAttribute(name string, opts browser.ActionOptions) (string, error) {
	el, err := l.lookup("getAttribute")
	if err != nil {
		return "", err
	}
	return el.Attributes[name], nil
}

func (l *Locator) OuterHTML(opts browser.ActionOptions) (string, error) {
	el, err := l.lookup("outerHTML")
	if err != nil {
		return "", err
	}
	return el.HTML, nil
}

func (l *Locator) Count() (int, error) {
	if err := l.page.record("locator.count", l.selector); err != nil {
		return 0, err
	}
	el, ok := l.page.element(l.selector)
	if !ok {
		return 0, nil
	}
	return el.Count, nil
}

func (l *Locator) First() browser.Locator {
	return l
}

func (l *Locator) Last() browser.Locator {
	return l
}

func (l *Locator) Nth(index int) browser.Locator {
	return l
}

func (l *Locator) Filter(opts browser.FilterOptions) browser.Locator {
	return l
}

func (l *Locator) Locator(selector string) browser.Locator {
	return &Locator{page: l.page, selector: selector}
}

func (l *Locator) Screenshot(opts capture.ImageOptions) ([]byte, error) {
	if _, err := l.lookup("screenshot"); err != nil {
		return nil, err
	}
	return l.page.render(opts.Type), nil
}
