package display_test

import (
	"sync"
	"testing"
	"time"

	"ble-midi.klederson.com/internal/dispatch"
	"ble-midi.klederson.com/internal/display"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newBuffer(window time.Duration) (*display.Buffer, *fakeClock) {
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return display.NewBuffer(8, window).WithClock(clk.Now), clk
}

func TestPushEvictsOldReadings(t *testing.T) {
	b, clk := newBuffer(4 * time.Second)

	for i := 0; i < 10; i++ {
		b.Push(2, clk.Now(), float64(i), 1000)
		clk.Advance(time.Second)
	}

	snap := b.Snapshot()
	require.Len(t, snap, 8)
	// Now is t=10s; readings at t=6..9 are inside the 4s window.
	var values []float64
	for _, p := range snap[2] {
		values = append(values, p.Value)
	}
	assert.Equal(t, []float64{6, 7, 8, 9}, values)
	assert.Empty(t, snap[0])
}

func TestSnapshotHonoursWindowWithoutNewPushes(t *testing.T) {
	b, clk := newBuffer(4 * time.Second)
	b.Push(0, clk.Now(), 1, 0)
	clk.Advance(3 * time.Second)
	b.Push(0, clk.Now(), 2, 0)

	assert.Len(t, b.Snapshot()[0], 2)

	clk.Advance(2 * time.Second)
	snap := b.Snapshot()
	require.Len(t, snap[0], 1)
	assert.Equal(t, 2.0, snap[0][0].Value)

	clk.Advance(5 * time.Second)
	assert.Empty(t, b.Snapshot()[0])
	assert.Equal(t, 2, b.Evict())
}

func TestSnapshotNeverOlderThanWindow(t *testing.T) {
	b, clk := newBuffer(500 * time.Millisecond)
	for i := 0; i < 300; i++ {
		b.Push(i%8, clk.Now(), float64(i), 0)
		clk.Advance(7 * time.Millisecond)
		if i%10 == 0 {
			now := clk.Now()
			for z, pts := range b.Snapshot() {
				for _, p := range pts {
					require.LessOrEqual(t, now.Sub(p.At), 500*time.Millisecond, "zone %d", z)
				}
			}
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	b, clk := newBuffer(time.Second)
	b.Push(1, clk.Now(), 5, 0)

	snap := b.Snapshot()
	snap[1][0].Value = 99

	p, ok := b.Latest(1)
	require.True(t, ok)
	assert.Equal(t, 5.0, p.Value)
}

func TestSetWindowShrinks(t *testing.T) {
	b, clk := newBuffer(4 * time.Second)
	for i := 0; i < 4; i++ {
		b.Push(0, clk.Now(), float64(i), 0)
		clk.Advance(time.Second)
	}
	b.SetWindow(time.Second + time.Millisecond)
	assert.Equal(t, time.Second+time.Millisecond, b.Window())
	assert.Len(t, b.Snapshot()[0], 1)

	b.SetWindow(0)
	assert.Equal(t, time.Second+time.Millisecond, b.Window())
}

func TestConsumeUsesOutputZone(t *testing.T) {
	b, clk := newBuffer(time.Second)
	b.Consume(dispatch.Output{Zone: 5, Source: 2, Value: 64, MaxOutput: 127, Raw: 3000, At: clk.Now()})

	p, ok := b.Latest(5)
	require.True(t, ok)
	assert.Equal(t, 64.0, p.Value)
	assert.Equal(t, 3000.0, p.Raw)
	_, ok = b.Latest(2)
	assert.False(t, ok)
}

func TestConcurrentPushAndSnapshot(t *testing.T) {
	b := display.NewBuffer(8, time.Second)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			b.Push(i%8, time.Now(), float64(i), float64(-i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			for _, pts := range b.Snapshot() {
				for _, p := range pts {
					// Value and Raw are written together; a torn append would break this.
					if !assert.Equal(t, p.Value, -p.Raw) {
						return
					}
				}
			}
		}
	}()
	wg.Wait()
}
