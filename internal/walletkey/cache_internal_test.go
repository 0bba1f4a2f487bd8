package walletkey

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/wardencrypto"
)

// fakeClock hands out timers that only fire when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	wasLive := !t.stopped && !t.fired
	t.stopped = true
	return wasLive
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and runs every live timer that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func testSecret(t *testing.T) *wardencrypto.SecureBytes {
	t.Helper()
	sb, err := wardencrypto.SecureBytesFromSlice([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return sb
}

func TestSecretCache_TimedWindow(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{}
	c := newSecretCache(CacheTimed, 0, clock.AfterFunc)

	c.store(testSecret(t))
	require.True(t, c.cached())

	clock.Advance(59 * time.Second)
	assert.True(t, c.cached(), "key must survive 59s")

	clock.Advance(time.Second)
	assert.False(t, c.cached(), "key must be gone at 60s")
	assert.Nil(t, c.get())
}

func TestSecretCache_RearmKeepsOneTimer(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{}
	c := newSecretCache(CacheTimed, 0, clock.AfterFunc)

	c.store(testSecret(t))
	clock.Advance(40 * time.Second)

	got := c.get()
	require.NotNil(t, got)
	got.Destroy()
	assert.Equal(t, 1, clock.live())

	// The first timer would have fired at 60s.
	clock.Advance(30 * time.Second)
	assert.True(t, c.cached())

	clock.Advance(30 * time.Second)
	assert.False(t, c.cached())
}

func TestSecretCache_StaleTimerDoesNotClear(t *testing.T) {
	t.Parallel()
	var fns []func()
	timers := func(time.Duration, func()) Timer { return &fakeTimer{} }
	capture := func(d time.Duration, f func()) Timer {
		fns = append(fns, f)
		return timers(d, f)
	}
	c := newSecretCache(CacheTimed, time.Minute, capture)

	c.store(testSecret(t))
	c.store(testSecret(t))
	require.Len(t, fns, 2)

	fns[0]()
	assert.True(t, c.cached(), "superseded timer must not clear the key")

	fns[1]()
	assert.False(t, c.cached())
}

func TestSecretCache_Off(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{}
	c := newSecretCache(CacheOff, 0, clock.AfterFunc)

	c.store(testSecret(t))
	assert.False(t, c.cached())
	assert.Nil(t, c.get())
	assert.Zero(t, clock.live())
}

func TestSecretCache_Permanent(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{}
	c := newSecretCache(CachePermanent, 0, clock.AfterFunc)

	c.store(testSecret(t))
	clock.Advance(time.Hour)
	assert.True(t, c.cached())
	assert.Zero(t, clock.live())
}

func TestSecretCache_SetPolicy(t *testing.T) {
	t.Parallel()

	t.Run("timed to permanent keeps the key and stops the timer", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{}
		c := newSecretCache(CacheTimed, 0, clock.AfterFunc)
		c.store(testSecret(t))

		c.setPolicy(CachePermanent)
		assert.Zero(t, clock.live())
		clock.Advance(2 * time.Minute)
		assert.True(t, c.cached())
	})

	t.Run("permanent to timed clears", func(t *testing.T) {
		t.Parallel()
		c := newSecretCache(CachePermanent, 0, (&fakeClock{}).AfterFunc)
		c.store(testSecret(t))

		c.setPolicy(CacheTimed)
		assert.False(t, c.cached())
		assert.Equal(t, CacheTimed, c.currentPolicy())
	})

	t.Run("timed to off clears", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{}
		c := newSecretCache(CacheTimed, 0, clock.AfterFunc)
		c.store(testSecret(t))

		c.setPolicy(CacheOff)
		assert.False(t, c.cached())
		assert.Zero(t, clock.live())
	})

	t.Run("same policy is a no-op", func(t *testing.T) {
		t.Parallel()
		c := newSecretCache(CacheTimed, 0, (&fakeClock{}).AfterFunc)
		c.store(testSecret(t))

		c.setPolicy(CacheTimed)
		assert.True(t, c.cached())
	})
}

func TestSecretCache_GetReturnsCopy(t *testing.T) {
	t.Parallel()
	c := newSecretCache(CachePermanent, 0, nil)
	c.store(testSecret(t))

	a := c.get()
	require.NotNil(t, a)
	a.Destroy()

	b := c.get()
	require.NotNil(t, b)
	assert.Equal(t, []byte("0123456789abcdef0123456789abcdef"), b.Bytes())
}

func TestParseCachePolicy(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]CachePolicy{
		"off":       CacheOff,
		"PERMANENT": CachePermanent,
		"timed":     CacheTimed,
		"":          CacheTimed,
	} {
		got, err := ParseCachePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		if in != "" {
			assert.Equal(t, want.String(), got.String())
		}
	}

	_, err := ParseCachePolicy("forever")
	require.Error(t, err)
}
