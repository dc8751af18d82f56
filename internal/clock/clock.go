package clock

import (
	"strconv"
	"sync/atomic"
)

// Lamport is a Lamport clock. The zero value is ready to use and safe for
// concurrent use.
type Lamport struct {
	counter atomic.Uint64
}

// New creates a clock starting after the given timestamp.
func New(start uint64) *Lamport {
	l := &Lamport{}
	l.counter.Store(start)
	return l
}

// Now returns the latest timestamp issued or observed.
func (l *Lamport) Now() uint64 {
	return l.counter.Load()
}

// Tick advances the clock and returns the new timestamp.
func (l *Lamport) Tick() uint64 {
	return l.counter.Add(1)
}

// Observe advances the clock so that the next Tick is greater than ts.
// It reports whether the clock moved.
func (l *Lamport) Observe(ts uint64) bool {
	for {
		cur := l.counter.Load()
		if ts <= cur {
			return false
		}
		if l.counter.CompareAndSwap(cur, ts) {
			return true
		}
	}
}

// String returns the current timestamp in decimal.
func (l *Lamport) String() string {
	return strconv.FormatUint(l.Now(), 10)
}
