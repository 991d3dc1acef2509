package browser_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/shotscript/pkg/browser"
	"github.com/entrhq/shotscript/pkg/browser/browsertest"
	"github.com/entrhq/shotscript/pkg/metrics"
)

func TestManager_LaunchesLazily(t *testing.T) {
	launcher := browsertest.NewLauncher()
	m := browser.NewManager(launcher, nil, nil)

	assert.Equal(t, 0, launcher.Launches())
	assert.False(t, m.Stats().Connected)

	h, err := m.GetHandle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, launcher.Launches())
	assert.Equal(t, uint64(1), h.Epoch())
	assert.True(t, h.IsConnected())
	assert.Equal(t, "fake/1", h.Version())
}

func TestManager_ReusesHealthyHandle(t *testing.T) {
	launcher := browsertest.NewLauncher()
	m := browser.NewManager(launcher, nil, nil)

	first, err := m.GetHandle(context.Background())
	require.NoError(t, err)
	second, err := m.GetHandle(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, launcher.Launches())
}

func TestManager_RelaunchesAfterDisconnect(t *testing.T) {
	launcher := browsertest.NewLauncher()
	m := browser.NewManager(launcher, nil, nil)

	first, err := m.GetHandle(context.Background())
	require.NoError(t, err)

	launcher.Last().SilentlyDisconnect()

	second, err := m.GetHandle(context.Background())
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.False(t, first.IsConnected())
	assert.True(t, second.IsConnected())
	assert.Equal(t, uint64(2), second.Epoch())
	assert.Equal(t, 2, launcher.Launches())
	assert.Equal(t, 1, launcher.Engines()[0].Closes(), "stale browser should be closed")
}

func TestManager_StaleCloseErrorIsSwallowed(t *testing.T) {
	launcher := browsertest.NewLauncher()
	m := browser.NewManager(launcher, nil, nil)

	_, err := m.GetHandle(context.Background())
	require.NoError(t, err)

	stale := launcher.Last()
	stale.SetCloseError(errors.New("target closed"))
	stale.SilentlyDisconnect()

	h, err := m.GetHandle(context.Background())
	require.NoError(t, err)
	assert.True(t, h.IsConnected())
}

func TestManager_ObservesUnexpectedDisconnect(t *testing.T) {
	launcher := browsertest.NewLauncher()
	mtr := metrics.New()
	m := browser.NewManager(launcher, nil, mtr)

	h, err := m.GetHandle(context.Background())
	require.NoError(t, err)

	launcher.Last().Disconnect()

	assert.False(t, h.IsConnected())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(mtr.BrowserDisconnects) == 1
	}, time.Second, 5*time.Millisecond)

	next, err := m.GetHandle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next.Epoch())
	assert.Equal(t, float64(2), testutil.ToFloat64(mtr.BrowserLaunches))
}

func TestManager_ConcurrentCallersShareOneLaunch(t *testing.T) {
	launcher := browsertest.NewLauncher()
	launcher.OnLaunch(func() { time.Sleep(20 * time.Millisecond) })
	m := browser.NewManager(launcher, nil, nil)

	const callers = 10
	handles := make([]*browser.Handle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.GetHandle(context.Background())
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, launcher.Launches())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
}

func TestManager_LaunchFailureIsReturnedNotRetried(t *testing.T) {
	launcher := browsertest.NewLauncher()
	launchErr := errors.New("executable doesn't exist")
	launcher.SetError(launchErr)
	m := browser.NewManager(launcher, nil, nil)

	_, err := m.GetHandle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, launchErr)
	assert.Contains(t, err.Error(), "failed to launch browser")
	assert.Equal(t, 0, launcher.Launches())

	launcher.SetError(nil)
	h, err := m.GetHandle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.Epoch())
}

func TestManager_CancelledContextDoesNotLaunch(t *testing.T) {
	launcher := browsertest.NewLauncher()
	m := browser.NewManager(launcher, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.GetHandle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, launcher.Launches())
}

func TestManager_ShutdownIsIdempotent(t *testing.T) {
	launcher := browsertest.NewLauncher()
	m := browser.NewManager(launcher, nil, nil)

	assert.NoError(t, m.Shutdown(), "shutdown before launch")

	h, err := m.GetHandle(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())

	assert.False(t, h.IsConnected())
	assert.Equal(t, 1, launcher.Last().Closes())

	next, err := m.GetHandle(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, h, next)
	assert.Equal(t, 2, launcher.Launches())
}

func TestManager_ShutdownReportsCloseError(t *testing.T) {
	launcher := browsertest.NewLauncher()
	m := browser.NewManager(launcher, nil, nil)

	_, err := m.GetHandle(context.Background())
	require.NoError(t, err)
	launcher.Last().SetCloseError(errors.New("pipe closed"))

	err = m.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close browser")
	assert.NoError(t, m.Shutdown())
}
