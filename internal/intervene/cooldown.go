package intervene

import (
	"sync"
	"time"
)

// Cooldown suppresses repeat firings of a rule within its delay window.
// Without it a user hammering the check endpoint sees the same warning on
// every call; with it each rule interrupts at most once per window.
//
// A background goroutine evicts stale entries every minute to bound memory.
// Call Close to stop it.
type Cooldown struct {
	mu       sync.Mutex
	lastFire map[string]time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewCooldown creates a cooldown tracker and starts its eviction goroutine.
func NewCooldown() *Cooldown {
	c := &Cooldown{
		lastFire: make(map[string]time.Time),
		done:     make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Allow reports whether the rule may fire at now, and records the firing
// when it may. A zero window means the rule always fires.
func (c *Cooldown) Allow(rule string, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.lastFire[rule]; ok && now.Sub(last) < window {
		return false
	}
	c.lastFire[rule] = now
	return true
}

// Close stops the eviction goroutine. Safe to call multiple times.
func (c *Cooldown) Close() error {
	c.stopOnce.Do(func() { close(c.done) })
	return nil
}

const staleThreshold = 2 * time.Hour

func (c *Cooldown) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictStale()
		}
	}
}

func (c *Cooldown) evictStale() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-staleThreshold)
	for rule, last := range c.lastFire {
		if last.Before(cutoff) {
			delete(c.lastFire, rule)
		}
	}
}
