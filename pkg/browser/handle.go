package browser

import (
	"sync/atomic"
	"time"
)

// Handle is the single live connection to the browser process. Handles are
// created and retired by the Manager; a handle that has reported disconnected
// is never revived.
type Handle struct {
	engine       Engine
	epoch        uint64
	createdAt    time.Time
	disconnected atomic.Bool
}

func newHandle(engine Engine, epoch uint64) *Handle {
	return &Handle{
		engine:    engine,
		epoch:     epoch,
		createdAt: time.Now(),
	}
}

// Epoch is the 1-based generation of this handle within its Manager.
func (h *Handle) Epoch() uint64 {
	return h.epoch
}

// CreatedAt returns the time the browser was launched.
func (h *Handle) CreatedAt() time.Time {
	return h.createdAt
}

// IsConnected reports whether the handle is still usable.
func (h *Handle) IsConnected() bool {
	return !h.disconnected.Load() && h.engine.IsConnected()
}

// Version returns the browser version.
func (h *Handle) Version() string {
	return h.engine.Version()
}

// markDisconnected flips the connectivity flag and reports whether this call
// was the one that flipped it.
func (h *Handle) markDisconnected() bool {
	return h.disconnected.CompareAndSwap(false, true)
}

func (h *Handle) newContext(opts ContextOptions) (EngineContext, error) {
	return h.engine.NewContext(opts)
}

func (h *Handle) close() error {
	return h.engine.Close()
}
