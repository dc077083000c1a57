package ledger

import (
	"sync"
	"time"
)

// =============================================================================
// CLOCK - Timestamp source (injectable for tests)
// =============================================================================

// Clock provides wall-clock timestamps. Now() is monotonically
// non-decreasing across calls within a process.
type Clock interface {
	Now() time.Time
}

// SystemClock wraps time.Now with a monotonic floor so that two successive
// calls never observe time going backwards, even across NTP adjustments.
type SystemClock struct {
	mu   sync.Mutex
	last time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	if now.Before(c.last) {
		now = c.last
	}
	c.last = now
	return now
}

// FixedClock returns the same instant on every call. Test helper.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }
