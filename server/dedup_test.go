package main

import (
	"testing"
	"time"
)

func TestDedupKey(t *testing.T) {
	// The provider message id wins over content.
	k1 := dedupKey("SM123", "+15550002222", "+15550001111", "hello")
	k2 := dedupKey("SM123", "+15550003333", "+15550004444", "different")
	if k1 != k2 {
		t.Error("Same provider id must produce the same key")
	}

	// Without the provider id the key is derived from content.
	k3 := dedupKey("", "+15550002222", "+15550001111", "hello")
	k4 := dedupKey("", "+15550002222", "+15550001111", "hello")
	if k3 != k4 {
		t.Error("Same content must produce the same key")
	}
	k5 := dedupKey("", "+15550002222", "+15550001111", "hello!")
	if k3 == k5 {
		t.Error("Different content must produce different keys")
	}

	// Field boundaries matter: (from="ab", to="c") != (from="a", to="bc").
	k6 := dedupKey("", "ab", "c", "x")
	k7 := dedupKey("", "a", "bc", "x")
	if k6 == k7 {
		t.Error("Shifted field boundary must produce a different key")
	}
}

func TestSeenRecently(t *testing.T) {
	c := newDedupCache(time.Minute)
	defer c.shutdown()

	if c.seenRecently("key1") {
		t.Error("Fresh key reported as seen")
	}
	if !c.seenRecently("key1") {
		t.Error("Repeated key not reported as seen")
	}
	if c.seenRecently("key2") {
		t.Error("Unrelated key reported as seen")
	}
}

func TestSeenRecentlyExpiry(t *testing.T) {
	c := newDedupCache(time.Minute)
	defer c.shutdown()

	c.seenRecently("key1")

	// Age the entry past the window.
	c.lock.Lock()
	c.seen["key1"] = time.Now().Add(-2 * time.Minute)
	c.lock.Unlock()

	if c.seenRecently("key1") {
		t.Error("Expired key reported as seen")
	}
	// The fresh sighting renews the entry.
	if !c.seenRecently("key1") {
		t.Error("Renewed key not reported as seen")
	}
}
