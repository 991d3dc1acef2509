// Package browsertest provides in-memory fakes of the browser engine
// interfaces for tests that must not start a real browser.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/shotscript/pkg/browser"
)

// Launcher is a fake browser.Launcher that hands out Engines.
type Launcher struct {
	mu       sync.Mutex
	err      error
	engines  []*Engine
	onLaunch func()

	// NewEngine customizes launched engines; nil returns NewEngine()
	NewEngine func() *Engine
}

// NewLauncher creates a launcher whose launches succeed.
func NewLauncher() *Launcher {
	return &Launcher{}
}

// Launch implements browser.Launcher.
func (l *Launcher) Launch(ctx context.Context) (browser.Engine, error) {
	l.mu.Lock()
	hook := l.onLaunch
	l.mu.Unlock()
	if hook != nil {
		hook()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return nil, l.err
	}
	var e *Engine
	if l.NewEngine != nil {
		e = l.NewEngine()
	} else {
		e = NewEngine()
	}
	e.version = fmt.Sprintf("fake/%d", len(l.engines)+1)
	l.engines = append(l.engines, e)
	return e, nil
}

// SetError makes subsequent launches fail with err; nil restores success.
func (l *Launcher) SetError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// OnLaunch registers fn to run at the start of every launch, before the
// launcher lock is taken.
func (l *Launcher) OnLaunch(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLaunch = fn
}

// Launches returns the number of successful launches.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.engines)
}

// Engines returns every engine launched so far, oldest first.
func (l *Launcher) Engines() []*Engine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Engine(nil), l.engines...)
}

// Last returns the most recently launched engine, or nil.
func (l *Launcher) Last() *Engine {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.engines) == 0 {
		return nil
	}
	return l.engines[len(l.engines)-1]
}
