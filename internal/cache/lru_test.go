// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package cache

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests expire entries without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newClockedLRU(capacity int, ttl time.Duration) (*LRU[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRU[string](capacity, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRU_BasicOperations(t *testing.T) {
	c := NewLRU[string](3, time.Minute)
	c.Add("dev_1", "node-a")
	c.Add("dev_2", "node-b")

	if v, ok := c.Get("dev_1"); !ok || v != "node-a" {
		t.Errorf("Get(dev_1) = %q, %v", v, ok)
	}
	if _, ok := c.Get("dev_9"); ok {
		t.Error("unexpected hit for dev_9")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}

	hits, misses, size := c.Stats()
	if hits != 1 || misses != 1 || size != 2 {
		t.Errorf("Stats() = %d, %d, %d", hits, misses, size)
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string](3, time.Minute)
	c.Add("a", "")
	c.Add("b", "")
	c.Add("c", "")

	c.Get("a")
	c.Add("d", "")

	if c.Contains("b") {
		t.Error("expected b to be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !c.Contains(k) {
			t.Errorf("expected %s to be present", k)
		}
	}
}

func TestLRU_TTLExpiration(t *testing.T) {
	c, clock := newClockedLRU(10, time.Minute)
	c.Add("a", "x")
	c.Add("b", "y")

	clock.advance(30 * time.Second)
	c.Add("b", "y2") // refreshed

	clock.advance(45 * time.Second)
	if c.Contains("a") {
		t.Error("a should have expired")
	}
	if v, ok := c.Get("b"); !ok || v != "y2" {
		t.Errorf("Get(b) = %q, %v", v, ok)
	}
	if n := c.CleanupExpired(); n != 1 {
		t.Errorf("CleanupExpired() = %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestLRU_AddIfAbsent(t *testing.T) {
	c, clock := newClockedLRU(10, time.Minute)

	if c.AddIfAbsent("inc_1", "node-a") {
		t.Error("first sighting reported as present")
	}
	if !c.AddIfAbsent("inc_1", "node-b") {
		t.Error("second sighting not reported as present")
	}
	if v, _ := c.Get("inc_1"); v != "node-a" {
		t.Errorf("value overwritten: %q", v)
	}

	clock.advance(2 * time.Minute)
	if c.AddIfAbsent("inc_1", "node-c") {
		t.Error("expired key reported as present")
	}
}

func TestLRU_Remove(t *testing.T) {
	c := NewLRU[int](10, time.Minute)
	c.Add("a", 1)
	if !c.Remove("a") {
		t.Error("Remove(a) = false")
	}
	if c.Remove("a") {
		t.Error("second Remove(a) = true")
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[int](100, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := strconv.Itoa(g*1000 + i)
				c.Add(key, i)
				c.Get(key)
				c.AddIfAbsent(key, i)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}
