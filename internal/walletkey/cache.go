package walletkey

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/warden/internal/metrics"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// DefaultCacheTTL is the TIMED cache window.
const DefaultCacheTTL = time.Minute

// CachePolicy controls how long a decrypted symmetric key stays in memory.
type CachePolicy int

// Cache policies. The zero value is TIMED.
const (
	CacheTimed CachePolicy = iota
	CachePermanent
	CacheOff
)

func (p CachePolicy) String() string {
	switch p {
	case CacheTimed:
		return "timed"
	case CachePermanent:
		return "permanent"
	case CacheOff:
		return "off"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseCachePolicy parses "off", "permanent" or "timed".
func ParseCachePolicy(s string) (CachePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "timed", "":
		return CacheTimed, nil
	case "permanent":
		return CachePermanent, nil
	case "off":
		return CacheOff, nil
	default:
		return 0, wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"cache_policy": s})
	}
}

// Timer is the part of *time.Timer the cache uses.
type Timer interface {
	Stop() bool
}

// TimerFunc schedules f after d, like time.AfterFunc.
type TimerFunc func(d time.Duration, f func()) Timer

func afterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// secretCache holds at most one symmetric key and at most one live eviction
// timer. Every arm or clear bumps gen; a timer only clears the key it was
// armed for.
type secretCache struct {
	mu     sync.Mutex
	policy CachePolicy
	ttl    time.Duration
	timers TimerFunc

	key   *wardencrypto.SecureBytes
	timer Timer
	gen   uint64
}

func newSecretCache(policy CachePolicy, ttl time.Duration, timers TimerFunc) *secretCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if timers == nil {
		timers = afterFunc
	}
	return &secretCache{policy: policy, ttl: ttl, timers: timers}
}

// get returns a copy of the cached key, or nil. A TIMED hit restarts the
// window.
func (c *secretCache) get() *wardencrypto.SecureBytes {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key == nil {
		metrics.RecordCacheEvent(metrics.CacheMiss)
		return nil
	}
	metrics.RecordCacheEvent(metrics.CacheHit)
	if c.policy == CacheTimed {
		c.armLocked()
	}
	return c.key.Clone()
}

// store keeps a copy of key unless the policy is OFF. Callers only store a
// key that just decrypted the blob.
func (c *secretCache) store(key *wardencrypto.SecureBytes) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.policy == CacheOff {
		return
	}
	if c.key != nil {
		c.key.Destroy()
	}
	c.key = key.Clone()
	metrics.RecordCacheEvent(metrics.CacheStore)
	if c.policy == CacheTimed {
		c.armLocked()
	} else {
		c.stopLocked()
	}
}

// cached reports whether a key is held, without touching the timer.
func (c *secretCache) cached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key != nil
}

// setPolicy switches policy. Moving into OFF or TIMED from another policy
// drops the key; moving into PERMANENT keeps it and cancels the timer.
func (c *secretCache) setPolicy(p CachePolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p == c.policy {
		return
	}
	c.policy = p
	if p == CachePermanent {
		c.stopLocked()
		return
	}
	c.clearLocked()
}

func (c *secretCache) currentPolicy() CachePolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// clear drops the key and cancels the timer.
func (c *secretCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *secretCache) armLocked() {
	c.stopLocked()
	gen := c.gen
	c.timer = c.timers(c.ttl, func() { c.expire(gen) })
}

func (c *secretCache) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *secretCache) clearLocked() {
	c.stopLocked()
	if c.key != nil {
		c.key.Destroy()
		c.key = nil
		metrics.RecordCacheEvent(metrics.CacheCleared)
	}
}

// expire is the timer callback. It clears only if no arm or clear happened
// since the timer was armed.
func (c *secretCache) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.key == nil {
		return
	}
	c.key.Destroy()
	c.key = nil
	c.timer = nil
	metrics.RecordCacheEvent(metrics.CacheEvict)
}
