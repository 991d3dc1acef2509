// Package gate provides FIFO admission control bounding how many isolated
// browser contexts may exist at the same time.
//
// A Gate hands out Permits. Acquire returns immediately while capacity is
// available and otherwise suspends the caller until an earlier permit is
// released; suspended callers are admitted strictly in arrival order.
// A Permit is consumed by its first Release, so a permit can never be
// returned twice and the gate can never hold more capacity than it was
// created with.
//
//	g := gate.New(4)
//	permit, err := g.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer permit.Release()
package gate

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting admission gate with a FIFO waiter queue.
// It is safe for concurrent use.
type Gate struct {
	sem     *semaphore.Weighted
	limit   int64
	inUse   atomic.Int64
	waiting atomic.Int64

	// observers are notified after every change of in-use or waiting counts
	observers []func(Stats)
}

// Permit is the right to hold one isolated context.
type Permit struct {
	gate *Gate
	once sync.Once
}

// Stats is a point-in-time view of gate occupancy.
type Stats struct {
	Limit   int
	InUse   int
	Waiting int
}

// New creates a gate with the given number of permits. Limits below one are
// raised to one.
func New(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: int64(limit),
	}
}

// OnChange registers fn to be called with fresh stats whenever occupancy
// changes. Observers run in registration order and are never replaced.
// Registration must happen before the gate is shared.
func (g *Gate) OnChange(fn func(Stats)) {
	if fn == nil {
		return
	}
	g.observers = append(g.observers, fn)
}

// Acquire obtains a permit, suspending until one is available or ctx is done.
// Waiters are admitted in FIFO order. When ctx ends first no permit is
// consumed and ctx.Err() is returned.
func (g *Gate) Acquire(ctx context.Context) (*Permit, error) {
	if p, ok := g.TryAcquire(); ok {
		return p, nil
	}

	g.waiting.Add(1)
	g.notify()
	err := g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if err != nil {
		g.notify()
		return nil, err
	}
	return g.grant(), nil
}

// TryAcquire obtains a permit without blocking. It fails while other callers
// are queued, so it never overtakes a waiter.
func (g *Gate) TryAcquire() (*Permit, bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	return g.grant(), true
}

// Stats returns the current occupancy.
func (g *Gate) Stats() Stats {
	return Stats{
		Limit:   int(g.limit),
		InUse:   int(g.inUse.Load()),
		Waiting: int(g.waiting.Load()),
	}
}

// Limit returns the configured number of permits.
func (g *Gate) Limit() int {
	return int(g.limit)
}

func (g *Gate) grant() *Permit {
	g.inUse.Add(1)
	g.notify()
	return &Permit{gate: g}
}

func (g *Gate) notify() {
	if len(g.observers) == 0 {
		return
	}
	s := g.Stats()
	for _, fn := range g.observers {
		fn(s)
	}
}

// Release returns the permit to its gate, handing the capacity to the oldest
// waiter if there is one. Only the first call has any effect.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.gate.inUse.Add(-1)
		p.gate.sem.Release(1)
		p.gate.notify()
	})
}
