package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/entrhq/shotscript/pkg/browser"
	"github.com/entrhq/shotscript/pkg/capture"
	"github.com/entrhq/shotscript/pkg/logging"
	"github.com/entrhq/shotscript/pkg/metrics"
)

// maxCallStackSize bounds script recursion depth.
const maxCallStackSize = 1024

// Runner executes capture scripts. A Runner holds no per-run state and is
// safe for concurrent use; every Run gets its own runtime.
type Runner struct {
	logger  *logging.Logger
	metrics *metrics.Metrics

	// fixed budgets, overridden only by tests
	timeout time.Duration
	maxWait time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger that receives run outcomes.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records run outcomes and durations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// New creates a Runner with the fixed script deadline and wait ceiling.
func New(opts ...Option) *Runner {
	r := &Runner{
		logger:  logging.Discard(),
		timeout: capture.ScriptTimeout,
		maxWait: capture.MaxWait,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes script against page and returns the single capture it
// produced. The run ends at the first capture call, when the script returns,
// when it throws, or when the deadline passes, whichever comes first. A
// non-nil error is always a *capture.Error.
//
// When the deadline passes Run returns at once, even if the script is blocked
// inside an engine call; the runtime is interrupted and refuses every later
// host call. Callers should close the page's context afterwards, which also
// unblocks any engine call still in flight.
func (r *Runner) Run(ctx context.Context, script string, page browser.Page, expected capture.Kind) (*capture.Result, error) {
	start := time.Now()
	res, cerr := r.run(ctx, script, page, expected)
	elapsed := time.Since(start)

	if cerr != nil {
		r.metrics.RecordScript(string(cerr.Kind), elapsed)
		r.logger.Infof("script failed after %s: %s: %s", elapsed.Round(time.Millisecond), cerr.Kind, cerr.Message)
		return nil, cerr
	}

	r.metrics.RecordScript("captured", elapsed)
	r.metrics.RecordCapture(string(res.Kind))
	r.logger.Infof("script captured %s (%d bytes) in %s", res.Kind, res.Size(), elapsed.Round(time.Millisecond))
	return res, nil
}

func (r *Runner) run(ctx context.Context, script string, page browser.Page, expected capture.Kind) (*capture.Result, *capture.Error) {
	if expected != capture.KindImage && expected != capture.KindMarkup {
		return nil, capture.Errorf(capture.ErrorKindRuntime, "unknown capture kind %q", expected)
	}

	prg, err := goja.Compile("script", "(async () => {\n"+script+"\n})()", false)
	if err != nil {
		return nil, capture.NewError(capture.ErrorKindRuntime, err.Error())
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	s := &session{
		ctx:     runCtx,
		vm:      vm,
		page:    page,
		maxWait: r.maxWait,
		logger:  r.logger,
	}
	s.install()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.settle(s.execute(prg))
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		// A run that has already settled keeps its outcome
		s.settle(r.abortOutcome(ctx, runCtx))
		vm.Interrupt(errAborted)
	}

	return classify(s.outcome(), expected)
}

// abortOutcome describes why runCtx ended. Only a caller cancel that is not a
// deadline is reported as something other than a timeout.
func (r *Runner) abortOutcome(parent, runCtx context.Context) outcome {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		if deadline, ok := parent.Deadline(); ok && !time.Now().Before(deadline) {
			return failure(capture.ErrorKindTimeout, "script timed out: caller deadline exceeded")
		}
		return failure(capture.ErrorKindTimeout, fmt.Sprintf("script timed out after %dms", r.timeout.Milliseconds()))
	}
	return failure(capture.ErrorKindRuntime, "script cancelled")
}

// classify turns the settled outcome into the public result.
func classify(out outcome, expected capture.Kind) (*capture.Result, *capture.Error) {
	switch {
	case out.err != nil:
		return nil, out.err
	case out.result == nil:
		return nil, capture.NewError(capture.ErrorKindNoCaptureInvoked, "script finished without calling captureImage or captureMarkup")
	case out.result.Kind != expected:
		return nil, capture.Errorf(capture.ErrorKindCaptureKindMismatch,
			"capture kind mismatch: expected %s capture, script produced %s", expected, out.result.Kind)
	}
	return out.result, nil
}
