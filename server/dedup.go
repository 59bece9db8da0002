package main

/******************************************************************************
 *
 *  Description :
 *
 *    Duplicate suppression for inbound webhooks. Providers retry deliveries
 *    on timeouts, so the same message may arrive more than once. Each
 *    message is reduced to a key; a key seen again within the window is a
 *    duplicate and must not be persisted or published a second time.
 *
 *****************************************************************************/

import (
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"
)

// dedupCache remembers recently seen message keys for a fixed window.
type dedupCache struct {
	window time.Duration

	lock sync.Mutex
	seen map[string]time.Time

	stopSweeper chan bool
}

// newDedupCache creates the cache and starts the eviction sweeper.
func newDedupCache(window time.Duration) *dedupCache {
	c := &dedupCache{
		window:      window,
		seen:        make(map[string]time.Time),
		stopSweeper: make(chan bool, 1),
	}
	go c.sweeper()
	return c
}

// dedupKey produces the idempotency key of an inbound message. The provider
// message id is authoritative when present; otherwise the key is a digest
// of the message content.
func dedupKey(providerId, from, to, body string) string {
	if providerId != "" {
		return "pid:" + providerId
	}
	h := sha256.New()
	h.Write([]byte(from))
	h.Write([]byte{0})
	h.Write([]byte(to))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// seenRecently checks the key against the cache and records it. Returns
// true if the key was already present within the window. The recording is
// tentative: if the message behind the key is not durably stored the caller
// must forget the key, otherwise the provider's retry would be suppressed
// and the message lost.
func (c *dedupCache) seenRecently(key string) bool {
	now := time.Now()

	c.lock.Lock()
	defer c.lock.Unlock()

	if ts, ok := c.seen[key]; ok && now.Sub(ts) < c.window {
		return true
	}
	c.seen[key] = now
	return false
}

// forget removes a key recorded by seenRecently. Called when the append
// failed: only a persisted message may suppress retries.
func (c *dedupCache) forget(key string) {
	c.lock.Lock()
	delete(c.seen, key)
	c.lock.Unlock()
}

// shutdown terminates the sweeper goroutine.
func (c *dedupCache) shutdown() {
	select {
	case c.stopSweeper <- true:
	default:
	}
}

// sweeper periodically evicts entries older than the window.
func (c *dedupCache) sweeper() {
	tick := time.NewTicker(c.window)
	defer tick.Stop()

	for {
		select {
		case now := <-tick.C:
			c.lock.Lock()
			for key, ts := range c.seen {
				if now.Sub(ts) >= c.window {
					delete(c.seen, key)
				}
			}
			c.lock.Unlock()
		case <-c.stopSweeper:
			return
		}
	}
}
