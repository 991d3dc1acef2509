package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/shotscript/pkg/logging"
	"github.com/entrhq/shotscript/pkg/metrics"
)

// Manager owns the single shared browser Handle. It launches the browser on
// first use, replaces it after a disconnect, and serializes every launch,
// disconnect and close so at most one launch is in flight.
type Manager struct {
	launcher Launcher
	logger   *logging.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	current  *Handle
	epoch    uint64
	launches int
}

// ManagerStats is a point-in-time view of the managed handle.
type ManagerStats struct {
	Epoch     uint64
	Connected bool
	Launches  int
}

// NewManager creates a manager. Nothing is launched until GetHandle is called.
// logger and m may be nil.
func NewManager(launcher Launcher, logger *logging.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		launcher: launcher,
		logger:   logger,
		metrics:  m,
	}
}

// GetHandle returns a healthy handle, launching a browser if none exists or
// the current one has disconnected. A stale handle is closed on a best-effort
// basis before its replacement is launched. Launch failures are returned to
// the caller and are not retried.
func (m *Manager) GetHandle(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h := m.current; h != nil {
		if h.IsConnected() {
			return h, nil
		}
		m.logger.Warnf("browser epoch %d is disconnected, relaunching", h.epoch)
		m.retireLocked(h)
	}

	// The caller may have given up while another launch held the lock
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	engine, err := m.launcher.Launch(ctx)
	if err != nil {
		m.logger.Errorf("browser launch failed: %v", err)
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	m.epoch++
	m.launches++
	h := newHandle(engine, m.epoch)
	engine.OnDisconnected(func() {
		// The engine may fire this from inside Close while m.mu is held
		go m.observeDisconnect(h)
	})
	m.current = h
	m.metrics.RecordLaunch()
	m.logger.Infof("browser launched: epoch=%d version=%s", h.epoch, engine.Version())
	return h, nil
}

// observeDisconnect records an engine-reported disconnect. Disconnects caused
// by the manager's own close have already flipped the flag and are ignored.
func (m *Manager) observeDisconnect(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !h.markDisconnected() {
		return
	}
	m.metrics.RecordDisconnect()
	m.logger.Warnf("browser epoch %d disconnected unexpectedly", h.epoch)
}

// retireLocked closes a stale handle, swallowing close errors since a
// disconnected browser may already be unusable.
func (m *Manager) retireLocked(h *Handle) {
	h.markDisconnected()
	if err := h.close(); err != nil {
		m.logger.Debugf("ignoring close error for stale browser epoch %d: %v", h.epoch, err)
	}
	if m.current == h {
		m.current = nil
	}
}

// Shutdown closes the current handle, if any, and resets the manager so a
// later GetHandle launches a fresh browser. It is safe to call repeatedly.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.current
	if h == nil {
		return nil
	}
	m.current = nil
	h.markDisconnected()

	if err := h.close(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	m.logger.Infof("browser epoch %d shut down", h.epoch)
	return nil
}

// Stats returns the current handle state.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ManagerStats{Epoch: m.epoch, Launches: m.launches}
	if m.current != nil {
		stats.Connected = m.current.IsConnected()
	}
	return stats
}
