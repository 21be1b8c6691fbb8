package display

import (
	"fmt"
	"sync"
	"time"

	"ble-midi.klederson.com/internal/dispatch"
)

// Point is one plotted reading.
type Point struct {
	At    time.Time
	Value float64 // Normalized level
	Raw   float64 // Raw period, for the raw plot mode
}

// Buffer is a thread-safe rolling window of recent readings per output zone.
type Buffer struct {
	mu     sync.RWMutex
	window time.Duration
	zones  [][]Point
	now    func() time.Time
}

// NewBuffer creates a buffer for n zones keeping the given trailing window.
func NewBuffer(n int, window time.Duration) *Buffer {
	return &Buffer{
		window: window,
		zones:  make([][]Point, n),
		now:    time.Now,
	}
}

// WithClock replaces the buffer's time source and returns the buffer.
func (b *Buffer) WithClock(now func() time.Time) *Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	return b
}

// Window returns the trailing duration kept per zone.
func (b *Buffer) Window() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.window
}

// SetWindow changes the trailing duration. Non-positive values are ignored.
func (b *Buffer) SetWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window = d
	b.evictLocked(b.now().Add(-d))
}

// Push appends a reading and evicts readings older than the window.
func (b *Buffer) Push(zone int, at time.Time, value, raw float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if zone < 0 || zone >= len(b.zones) {
		panic(fmt.Sprintf("display: zone index %d out of range [0, %d)", zone, len(b.zones)))
	}
	b.zones[zone] = append(b.zones[zone], Point{At: at, Value: value, Raw: raw})
	b.evictLocked(b.now().Add(-b.window))
}

// Consume implements dispatch.Consumer.
func (b *Buffer) Consume(o dispatch.Output) {
	b.Push(o.Zone, o.At, float64(o.Value), o.Raw)
}

// Evict drops readings older than the window and returns how many were
// removed.
func (b *Buffer) Evict() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evictLocked(b.now().Add(-b.window))
}

// Snapshot returns a copy of every zone's readings in arrival order. Only
// readings inside the window at the time of the call are included.
func (b *Buffer) Snapshot() [][]Point {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cutoff := b.now().Add(-b.window)
	out := make([][]Point, len(b.zones))
	for z, pts := range b.zones {
		start := firstInWindow(pts, cutoff)
		cp := make([]Point, len(pts)-start)
		copy(cp, pts[start:])
		out[z] = cp
	}
	return out
}

// Latest returns the most recent reading of a zone.
func (b *Buffer) Latest(zone int) (Point, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pts := b.zones[zone]
	if len(pts) == 0 {
		return Point{}, false
	}
	return pts[len(pts)-1], true
}

// Clear drops every reading.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for z := range b.zones {
		b.zones[z] = nil
	}
}

func (b *Buffer) evictLocked(cutoff time.Time) int {
	count := 0
	for z, pts := range b.zones {
		start := firstInWindow(pts, cutoff)
		if start == 0 {
			continue
		}
		n := copy(pts, pts[start:])
		for i := n; i < len(pts); i++ {
			pts[i] = Point{}
		}
		b.zones[z] = pts[:n]
		count += start
	}
	return count
}

// firstInWindow returns the index of the first point not older than cutoff.
// Points of one zone arrive in timestamp order.
func firstInWindow(pts []Point, cutoff time.Time) int {
	i := 0
	for i < len(pts) && pts[i].At.Before(cutoff) {
		i++
	}
	return i
}
