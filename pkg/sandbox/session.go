package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/entrhq/shotscript/pkg/browser"
	"github.com/entrhq/shotscript/pkg/capture"
	"github.com/entrhq/shotscript/pkg/logging"
)

// errAborted is raised by host calls made after the run has ended.
var errAborted = errors.New("script aborted")

const errStackOverflow = "Maximum call stack size exceeded"

// terminationSignal is the interrupt value a capture call raises to unwind
// the script.
type terminationSignal struct{}

// outcome is how a run settled. The zero outcome means nothing settled it.
type outcome struct {
	result *capture.Result
	err    *capture.Error
}

func failure(kind capture.ErrorKind, message string) outcome {
	return outcome{err: capture.NewError(kind, message)}
}

func (o outcome) settled() bool {
	return o.result != nil || o.err != nil
}

// session is the state of one script run. The runtime is only touched by the
// worker goroutine; settle and Interrupt are the only cross-goroutine calls.
type session struct {
	ctx     context.Context
	vm      *goja.Runtime
	page    browser.Page
	maxWait time.Duration
	logger  *logging.Logger

	mu     sync.Mutex
	result outcome
}

// settle records o unless an earlier outcome exists and reports whether o
// was recorded.
func (s *session) settle(o outcome) bool {
	if !o.settled() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result.settled() {
		return false
	}
	s.result = o
	return true
}

func (s *session) outcome() outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// execute runs the compiled script to completion and reports how it ended.
// Interrupted runs return the zero outcome; whoever interrupted has already
// settled the session.
func (s *session) execute(prg *goja.Program) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("recovered panic in script run: %v", r)
			out = failure(capture.ErrorKindRuntime, fmt.Sprint(r))
		}
	}()

	val, err := s.vm.RunProgram(prg)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return outcome{}
		}
		var overflow *goja.StackOverflowError
		if errors.As(err, &overflow) {
			return outcome{err: &capture.Error{Kind: capture.ErrorKindRuntime, Message: errStackOverflow, Err: err}}
		}
		var ex *goja.Exception
		if errors.As(err, &ex) {
			return thrown(ex.Value(), ex)
		}
		return outcome{err: &capture.Error{Kind: capture.ErrorKindRuntime, Message: err.Error(), Err: err}}
	}

	promise, ok := val.Export().(*goja.Promise)
	if !ok {
		return outcome{}
	}
	if promise.State() == goja.PromiseStateRejected {
		return thrown(promise.Result(), nil)
	}

	// Fulfilled, or pending on a promise nothing can ever resolve
	return outcome{}
}

// finish records a capture and unwinds the script. It reports false when the
// run had already ended.
func (s *session) finish(res *capture.Result) bool {
	if !s.settle(outcome{result: res}) {
		return false
	}
	s.vm.Interrupt(terminationSignal{})
	return true
}

// alive panics with a script error once the run has ended.
func (s *session) alive() {
	if s.ctx.Err() != nil || s.outcome().settled() {
		panic(s.vm.NewGoError(errAborted))
	}
}

// clamp converts a requested wait in milliseconds into a duration no longer
// than the wait ceiling. Negative or non-numeric requests wait zero.
func (s *session) clamp(ms float64) time.Duration {
	if !(ms > 0) {
		return 0
	}
	// compare before converting; huge values overflow time.Duration
	if ms >= float64(s.maxWait)/float64(time.Millisecond) {
		return s.maxWait
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// clampTimeout caps an engine wait timeout at the wait ceiling. Zero keeps
// the page default, as do negative and non-numeric values.
func (s *session) clampTimeout(ms float64) float64 {
	if !(ms > 0) {
		return 0
	}
	ceiling := float64(s.maxWait.Milliseconds())
	if ms > ceiling {
		return ceiling
	}
	return ms
}

// wait blocks for d or until the run ends.
func (s *session) wait(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.ctx.Done():
		panic(s.vm.NewGoError(errAborted))
	}
}

// thrown classifies a value thrown by the script. The Go error behind a
// failed host call is kept as the cause; otherwise cause is used.
func thrown(v goja.Value, cause error) outcome {
	cerr := &capture.Error{Kind: capture.ErrorKindRuntime, Message: messageOf(v)}
	if err := goError(v); err != nil {
		cerr.Err = err
	} else if cause != nil {
		cerr.Err = cause
	}
	return outcome{err: cerr}
}

// goError returns the Go error wrapped by a host failure, if v is one.
func goError(v goja.Value) error {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	if inner := obj.Get("value"); inner != nil {
		if err, ok := inner.Export().(error); ok {
			return err
		}
	}
	return nil
}

// messageOf extracts the message of a thrown value: the Go error behind a
// host failure, an Error's message, or the value's string form.
func messageOf(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if err := goError(v); err != nil {
		return err.Error()
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
		return msg.String()
	}
	return v.String()
}
