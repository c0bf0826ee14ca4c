package identifier

import "sync"

// Snapshot is a point-in-time copy of every block counter.
type Snapshot map[Block]int

// Clone returns an independent copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for b, v := range s {
		out[b] = v
	}
	return out
}

// Counters owns the per-block running sequence numbers.
// All methods are safe for concurrent use; a single lock covers every block so
// that Snapshot and Restore see a consistent view.
type Counters struct {
	mu     sync.Mutex
	values map[Block]int
}

// NewCounters returns counters with every known block at zero.
func NewCounters() *Counters {
	values := make(map[Block]int, len(Blocks))
	for _, b := range Blocks {
		values[b] = 0
	}
	return &Counters{values: values}
}

// next increments b and returns the new value. If allow rejects the
// candidate, the counter is left as is and ok is false.
func (c *Counters) next(b Block, allow func(int) bool) (value int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidate := c.values[b] + 1
	if allow != nil && !allow(candidate) {
		return c.values[b], false
	}
	c.values[b] = candidate
	return candidate, true
}

// set overwrites b and returns the previous value.
func (c *Counters) set(b Block, value int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.values[b]
	c.values[b] = value
	return prev
}

// compareAndSet stores to only if b still holds from.
func (c *Counters) compareAndSet(b Block, from, to int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.values[b] != from {
		return false
	}
	c.values[b] = to
	return true
}

// Get returns the current value for b.
func (c *Counters) Get(b Block) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[b]
}

// Snapshot returns a copy of all counters.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot(c.values).Clone()
}

// Restore replaces counters with the known blocks found in s.
// Blocks missing from s keep their current value.
func (c *Counters) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for b, v := range s {
		if !b.IsValid() || v < 0 {
			continue
		}
		c.values[b] = v
	}
}
