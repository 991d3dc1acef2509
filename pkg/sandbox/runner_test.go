package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/shotscript/pkg/browser/browsertest"
	"github.com/entrhq/shotscript/pkg/capture"
	"github.com/entrhq/shotscript/pkg/metrics"
)

func newTestRunner(opts ...Option) *Runner {
	r := New(opts...)
	r.timeout = 2 * time.Second
	r.maxWait = 100 * time.Millisecond
	return r
}

func requireKind(t *testing.T, err error, kind capture.ErrorKind) *capture.Error {
	t.Helper()
	require.Error(t, err)
	var cerr *capture.Error
	require.True(t, errors.As(err, &cerr), "expected *capture.Error, got %T", err)
	require.Equal(t, kind, cerr.Kind, "message: %s", cerr.Message)
	return cerr
}

func hasCall(page *browsertest.Page, prefix string) bool {
	for _, c := range page.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func countCalls(page *browsertest.Page, prefix string) int {
	n := 0
	for _, c := range page.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestRun_CaptureImage(t *testing.T) {
	page := browsertest.NewPage()

	res, err := newTestRunner().Run(context.Background(), `
		await page.goto("https://example.com", { waitUntil: "networkidle" });
		await page.click("#accept");
		await captureImage({ fullPage: true });
	`, page, capture.KindImage)
	require.NoError(t, err)

	require.Equal(t, capture.KindImage, res.Kind)
	require.NotNil(t, res.Screenshot)
	assert.NotEmpty(t, res.Screenshot.Data)
	assert.True(t, res.Screenshot.Options.FullPage)
	assert.Equal(t, capture.ImagePNG, res.Screenshot.Options.Type)
	assert.Equal(t, []string{"goto https://example.com", "click #accept", "screenshot png"}, page.Calls())
}

func TestRun_CaptureMarkup(t *testing.T) {
	page := browsertest.NewPage()
	page.SetElement("#title", browsertest.Element{HTML: `<h1 id="title">Hello</h1>`})

	res, err := newTestRunner().Run(context.Background(),
		`await captureMarkup({ selector: "#title" });`, page, capture.KindMarkup)
	require.NoError(t, err)

	require.Equal(t, capture.KindMarkup, res.Kind)
	assert.Equal(t, `<h1 id="title">Hello</h1>`, res.Markup.Content)
	assert.Equal(t, "#title", res.Markup.Selector)
}

func TestRun_NoCaptureInvoked(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"empty script", ``},
		{"commands only", `await page.goto("https://example.com"); await page.hover("nav");`},
		{"explicit return", `return 42;`},
		{"never settles", `await new Promise(() => {});`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestRunner().Run(context.Background(), tt.script, browsertest.NewPage(), capture.KindImage)
			assert.Nil(t, res)
			requireKind(t, err, capture.ErrorKindNoCaptureInvoked)
			assert.ErrorIs(t, err, capture.ErrNoCaptureInvoked)
		})
	}
}

func TestRun_CaptureKindMismatch(t *testing.T) {
	page := browsertest.NewPage()

	res, err := newTestRunner().Run(context.Background(), `await captureMarkup();`, page, capture.KindImage)
	assert.Nil(t, res)
	cerr := requireKind(t, err, capture.ErrorKindCaptureKindMismatch)
	assert.Contains(t, cerr.Message, "expected image")
	assert.Contains(t, cerr.Message, "markup")
}

func TestRun_TimeoutInterruptsBusyScript(t *testing.T) {
	r := newTestRunner()
	r.timeout = 200 * time.Millisecond

	start := time.Now()
	_, err := r.Run(context.Background(), `while (true) {}`, browsertest.NewPage(), capture.KindImage)
	elapsed := time.Since(start)

	requireKind(t, err, capture.ErrorKindTimeout)
	assert.ErrorIs(t, err, capture.ErrTimeout)
	assert.NotErrorIs(t, err, capture.ErrRuntime)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestRun_TimeoutBeatsLaterCapture(t *testing.T) {
	r := newTestRunner()
	r.timeout = 200 * time.Millisecond
	r.maxWait = capture.MaxWait
	page := browsertest.NewPage()

	_, err := r.Run(context.Background(), `
		await sleep(5000);
		await captureImage();
	`, page, capture.KindImage)

	requireKind(t, err, capture.ErrorKindTimeout)
	assert.False(t, hasCall(page, "screenshot"), "capture must not run after the deadline")
}

func TestRun_TimeoutDoesNotWaitForBlockedEngineCall(t *testing.T) {
	r := newTestRunner()
	r.timeout = 200 * time.Millisecond

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	page := browsertest.NewPage()
	page.OnCall(func(method string) {
		if method == "click" {
			<-release
		}
	})

	start := time.Now()
	_, err := r.Run(context.Background(), `await page.click("#slow"); await captureImage();`, page, capture.KindImage)

	requireKind(t, err, capture.ErrorKindTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRun_WaitsAreClamped(t *testing.T) {
	scripts := map[string]string{
		"waitForTimeout": `await page.waitForTimeout(60000); await captureMarkup();`,
		"sleep":          `await sleep(60000); await captureMarkup();`,
		"sleep infinity": `await sleep(Infinity); await captureMarkup();`,
		"huge timeout":   `await page.waitForTimeout(1e15); await captureMarkup();`,
		"sleep 1e300":    `await sleep(1e300); await captureMarkup();`,
	}

	for name, script := range scripts {
		t.Run(name, func(t *testing.T) {
			r := newTestRunner()

			start := time.Now()
			res, err := r.Run(context.Background(), script, browsertest.NewPage(), capture.KindMarkup)
			elapsed := time.Since(start)

			require.NoError(t, err, "an oversized wait is clamped, not rejected")
			assert.NotNil(t, res)
			assert.GreaterOrEqual(t, elapsed, r.maxWait)
			assert.Less(t, elapsed, time.Second)
		})
	}
}

func TestSession_Clamp(t *testing.T) {
	s := &session{maxWait: capture.MaxWait}

	assert.Equal(t, time.Duration(0), s.clamp(-5))
	assert.Equal(t, 250*time.Millisecond, s.clamp(250))
	assert.Equal(t, capture.MaxWait, s.clamp(30000))
	assert.Equal(t, capture.MaxWait, s.clamp(90000))
	assert.Equal(t, time.Duration(0), s.clamp(math.NaN()))
	assert.Equal(t, time.Duration(0), s.clamp(math.Inf(-1)))

	// beyond the range of time.Duration
	assert.Equal(t, capture.MaxWait, s.clamp(1e13))
	assert.Equal(t, capture.MaxWait, s.clamp(1e300))
	assert.Equal(t, capture.MaxWait, s.clamp(math.Inf(1)))
	assert.Equal(t, capture.MaxWait, s.clamp(math.MaxFloat64))

	assert.Equal(t, 30000.0, s.clampTimeout(120000))
	assert.Equal(t, 30000.0, s.clampTimeout(math.Inf(1)))
	assert.Equal(t, 1500.0, s.clampTimeout(1500))
	assert.Equal(t, 0.0, s.clampTimeout(0))
	assert.Equal(t, 0.0, s.clampTimeout(-10))
	assert.Equal(t, 0.0, s.clampTimeout(math.NaN()))
}

func TestRun_NaNWaitTimeoutUsesPageDefault(t *testing.T) {
	page := browsertest.NewPage()

	_, err := newTestRunner().Run(context.Background(),
		`await page.waitForSelector("#x", { timeout: NaN }); await captureMarkup();`, page, capture.KindMarkup)
	require.NoError(t, err)
	assert.True(t, hasCall(page, "waitForSelector #x"))
}

func TestRun_StackOverflowKeepsMessage(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(),
		`function f() { return f() } f();`, browsertest.NewPage(), capture.KindImage)

	cerr := requireKind(t, err, capture.ErrorKindRuntime)
	assert.Contains(t, cerr.Message, "Maximum call stack size exceeded")
}

func TestRun_EngineErrorIsCause(t *testing.T) {
	engineErr := errors.New("net::ERR_CONNECTION_REFUSED")
	page := browsertest.NewPage()
	page.SetError("goto", engineErr)

	_, err := newTestRunner().Run(context.Background(),
		`await page.goto("https://example.com"); await captureImage();`, page, capture.KindImage)

	cerr := requireKind(t, err, capture.ErrorKindRuntime)
	assert.ErrorIs(t, err, engineErr)
	assert.Equal(t, engineErr, cerr.Unwrap())
	assert.ErrorIs(t, err, capture.ErrRuntime)
}

func TestRun_RuntimeErrorMessageIsUnmodified(t *testing.T) {
	engineErr := `waiting for locator("#missing") to be visible`
	page := browsertest.NewPage()
	page.SetError("click", errors.New(engineErr))

	_, err := newTestRunner().Run(context.Background(), `await page.click("#missing"); await captureImage();`, page, capture.KindImage)

	cerr := requireKind(t, err, capture.ErrorKindRuntime)
	assert.Equal(t, engineErr, cerr.Message)
	assert.False(t, hasCall(page, "screenshot"))
}

func TestRun_ThrownErrors(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		message string
	}{
		{"error object", `throw new Error("custom failure");`, "custom failure"},
		{"thrown string", `throw "plain string";`, "plain string"},
		{"type error", `undefinedThing.call();`, "undefinedThing is not defined"},
		{"after await", `await page.goto("https://example.com"); throw new RangeError("late");`, "late"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestRunner().Run(context.Background(), tt.script, browsertest.NewPage(), capture.KindImage)
			cerr := requireKind(t, err, capture.ErrorKindRuntime)
			assert.Contains(t, cerr.Message, tt.message)
		})
	}
}

func TestRun_SyntaxErrorIsRuntimeError(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(), `await page.goto(`, browsertest.NewPage(), capture.KindImage)
	cerr := requireKind(t, err, capture.ErrorKindRuntime)
	assert.NotEmpty(t, cerr.Message)
}

func TestRun_CaptureFromNestedControlFlow(t *testing.T) {
	page := browsertest.NewPage()

	res, err := newTestRunner().Run(context.Background(), `
		async function shoot(target) {
			for (let i = 0; i < 10; i++) {
				if (i === target) {
					await helper();
				}
			}
		}
		async function helper() {
			await captureImage({ type: "jpeg", quality: 60 });
		}
		await shoot(3);
		throw new Error("unreachable");
	`, page, capture.KindImage)
	require.NoError(t, err)

	assert.Equal(t, capture.ImageJPEG, res.Screenshot.Options.Type)
	assert.Equal(t, 60, res.Screenshot.Options.Quality)
	assert.Equal(t, 1, countCalls(page, "screenshot"))
}

func TestRun_TryCatchCannotSwallowCapture(t *testing.T) {
	page := browsertest.NewPage()

	res, err := newTestRunner().Run(context.Background(), `
		try {
			await captureMarkup();
		} catch (e) {
			await page.goto("https://caught.example");
		}
		await page.goto("https://after.example");
	`, page, capture.KindMarkup)
	require.NoError(t, err)

	assert.Equal(t, capture.KindMarkup, res.Kind)
	assert.False(t, hasCall(page, "goto"), "no command may run after a capture")
}

func TestRun_SingleCapture(t *testing.T) {
	page := browsertest.NewPage()

	_, err := newTestRunner().Run(context.Background(), `
		await captureImage();
		await captureImage();
	`, page, capture.KindImage)
	require.NoError(t, err)
	assert.Equal(t, 1, countCalls(page, "screenshot"))
}

func TestRun_CaptureErrorIsCatchable(t *testing.T) {
	page := browsertest.NewPage()

	res, err := newTestRunner().Run(context.Background(), `
		try {
			await captureImage({ type: "webp" });
		} catch (e) {
			await captureImage({ type: "png" });
		}
	`, page, capture.KindImage)
	require.NoError(t, err)
	assert.Equal(t, capture.ImagePNG, res.Screenshot.Options.Type)

	_, err = newTestRunner().Run(context.Background(), `await captureImage({ type: "webp" });`, page, capture.KindImage)
	cerr := requireKind(t, err, capture.ErrorKindRuntime)
	assert.Contains(t, cerr.Message, "unsupported image type")
}

func TestRun_NoAmbientCapabilities(t *testing.T) {
	names := []string{"require", "process", "module", "exports", "setTimeout", "setInterval", "fetch", "XMLHttpRequest", "Deno", "Bun"}

	var checks strings.Builder
	for _, name := range names {
		fmt.Fprintf(&checks, "if (typeof %s !== \"undefined\") throw new Error(%q);\n", name, name+" is reachable")
	}
	checks.WriteString("await captureMarkup();")

	_, err := newTestRunner().Run(context.Background(), checks.String(), browsertest.NewPage(), capture.KindMarkup)
	require.NoError(t, err)
}

func TestRun_ConsoleIsInert(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(), `
		console.log("hello", { a: 1 });
		console.info("x"); console.warn("x"); console.error("x"); console.debug("x"); console.trace("x");
		if (console.log("x") !== undefined) throw new Error("console returned a value");
		await captureMarkup();
	`, browsertest.NewPage(), capture.KindMarkup)
	require.NoError(t, err)
}

func TestRun_EvaluateSendsFunctionSource(t *testing.T) {
	page := browsertest.NewPage()
	page.SetEvaluate(func(expression string, arg interface{}) (interface{}, error) {
		return 42, nil
	})

	_, err := newTestRunner().Run(context.Background(), `
		const v = await page.evaluate(() => 6 * 7);
		if (v !== 42) throw new Error("got " + v);
		await captureMarkup();
	`, page, capture.KindMarkup)
	require.NoError(t, err)
	assert.Contains(t, page.Calls(), "evaluate () => 6 * 7")
}

func TestRun_EvaluateErrorIsRuntimeError(t *testing.T) {
	page := browsertest.NewPage()
	page.SetError("evaluate", errors.New("ReferenceError: missingFn is not defined"))

	_, err := newTestRunner().Run(context.Background(), `await page.evaluate("missingFn()");`, page, capture.KindMarkup)
	cerr := requireKind(t, err, capture.ErrorKindRuntime)
	assert.Equal(t, "ReferenceError: missingFn is not defined", cerr.Message)
}

func TestRun_LocatorProxy(t *testing.T) {
	page := browsertest.NewPage()
	page.SetElement(".item", browsertest.Element{
		Text:       "hello",
		Visible:    true,
		Count:      3,
		Attributes: map[string]string{"href": "/a"},
	})

	_, err := newTestRunner().Run(context.Background(), `
		const items = page.locator(".item");
		if (await items.count() !== 3) throw new Error("count");
		if (await items.first().textContent() !== "hello") throw new Error("text");
		if (!(await items.nth(1).isVisible())) throw new Error("visible");
		if (await items.filter({ hasText: "he" }).last().getAttribute("href") !== "/a") throw new Error("attr");
		await page.locator("body").locator(".item").click();
		await items.fill("value");
		await captureMarkup();
	`, page, capture.KindMarkup)
	require.NoError(t, err)

	assert.True(t, hasCall(page, "locator.click .item"))
	assert.True(t, hasCall(page, "locator.fill .item"))
}

func TestRun_PageOperations(t *testing.T) {
	page := browsertest.NewPage()

	_, err := newTestRunner().Run(context.Background(), `
		await page.goto("https://example.com/form");
		await page.fill("#name", "Ada");
		await page.type("#bio", "hi", { delay: 5 });
		await page.press("#bio", "Enter");
		await page.dblclick(".row");
		await page.focus("#name");
		await page.check("#agree");
		await page.uncheck("#spam");
		const picked = await page.selectOption("#color", ["red", "blue"]);
		if (picked.length !== 2) throw new Error("selectOption");
		await page.waitForSelector(".done", { state: "visible", timeout: 120000 });
		await page.waitForLoadState("domcontentloaded");
		await page.waitForURL("**/form");
		await page.waitForFunction(() => window.ready === true);
		await page.reload();
		await page.goBack();
		await page.goForward();
		if (page.url() !== "https://example.com/form") throw new Error("url " + page.url());
		if (await page.title() !== "Fake Page") throw new Error("title");
		await captureImage();
	`, page, capture.KindImage)
	require.NoError(t, err)

	for _, want := range []string{
		"fill #name Ada", "type #bio hi", "press #bio Enter", "dblclick .row", "focus #name",
		"check #agree", "uncheck #spam", "selectOption #color red,blue", "waitForSelector .done",
		"waitForLoadState domcontentloaded", "waitForURL **/form", "waitForFunction () => window.ready === true",
		"reload", "goBack", "goForward", "title",
	} {
		assert.Contains(t, page.Calls(), want)
	}
}

func TestRun_MissingSelectorIsRuntimeError(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(), `await page.click();`, browsertest.NewPage(), capture.KindImage)
	cerr := requireKind(t, err, capture.ErrorKindRuntime)
	assert.Equal(t, "page.click: selector is required", cerr.Message)
}

func TestRun_ParentCancellation(t *testing.T) {
	r := newTestRunner()
	r.maxWait = capture.MaxWait

	t.Run("cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		_, err := r.Run(ctx, `await sleep(10000); await captureImage();`, browsertest.NewPage(), capture.KindImage)
		cerr := requireKind(t, err, capture.ErrorKindRuntime)
		assert.Equal(t, "script cancelled", cerr.Message)
	})

	t.Run("deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := r.Run(ctx, `await sleep(10000); await captureImage();`, browsertest.NewPage(), capture.KindImage)
		requireKind(t, err, capture.ErrorKindTimeout)
	})
}

func TestRun_UnknownKind(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(), `await captureImage();`, browsertest.NewPage(), capture.Kind("pdf"))
	requireKind(t, err, capture.ErrorKindRuntime)
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	r := newTestRunner(WithMetrics(m))

	_, err := r.Run(context.Background(), `await captureImage();`, browsertest.NewPage(), capture.KindImage)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), ``, browsertest.NewPage(), capture.KindImage)
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ScriptRuns.WithLabelValues("captured")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ScriptRuns.WithLabelValues(string(capture.ErrorKindNoCaptureInvoked))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Captures.WithLabelValues("image")))
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	r := newTestRunner()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			page := browsertest.NewPage()
			res, err := r.Run(context.Background(), fmt.Sprintf(`
				await page.goto("https://example.com/%d");
				await sleep(10);
				await captureMarkup();
			`, i), page, capture.KindMarkup)
			assert.NoError(t, err)
			assert.NotNil(t, res)
			assert.Equal(t, fmt.Sprintf("https://example.com/%d", i), page.URL())
		}(i)
	}
	wg.Wait()
}
