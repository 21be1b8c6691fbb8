package dispatch_test

import (
	"sync"
	"testing"
	"time"

	"ble-midi.klederson.com/internal/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu  sync.Mutex
	got []dispatch.Output
}

func (c *collector) Consume(o dispatch.Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, o)
}

func (c *collector) outputs() []dispatch.Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dispatch.Output(nil), c.got...)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

// gated blocks inside Consume until released.
type gated struct {
	collector
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGated() *gated {
	return &gated{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gated) Consume(o dispatch.Output) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	g.collector.Consume(o)
}

func out(zone, value int) dispatch.Output {
	return dispatch.Output{Zone: zone, Source: zone, Value: value, MaxOutput: 127, At: time.Now()}
}

func TestDispatchDeliversToEveryConsumer(t *testing.T) {
	d := dispatch.New(nil)
	a, b := &collector{}, &collector{}
	require.NoError(t, d.Register("a", a))
	require.NoError(t, d.Register("b", b))
	d.Start()
	defer d.Close()

	d.Dispatch(out(3, 42))

	require.Eventually(t, func() bool { return a.len() == 1 && b.len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 3, a.outputs()[0].Zone)
	assert.Equal(t, 42, b.outputs()[0].Value)
	assert.Equal(t, []string{"a", "b"}, d.Names())
}

func TestDispatchNeverBlocksOnStalledConsumer(t *testing.T) {
	d := dispatch.New(nil)
	stalled := newGated()
	require.NoError(t, d.Register("stalled", stalled, dispatch.WithCapacity(4)))
	d.Start()
	defer func() {
		close(stalled.release)
		d.Close()
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			d.Dispatch(out(i%8, i%128))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on a stalled consumer")
	}

	st := d.Stats()["stalled"]
	assert.LessOrEqual(t, st.Pending, 4)
	assert.Greater(t, st.Dropped, uint64(0))
}

func TestSlowConsumerDoesNotDelayOthers(t *testing.T) {
	d := dispatch.New(nil)
	stalled := newGated()
	fast := &collector{}
	require.NoError(t, d.Register("stalled", stalled, dispatch.WithCapacity(2)))
	require.NoError(t, d.Register("fast", fast, dispatch.WithCapacity(256)))
	d.Start()
	defer func() {
		close(stalled.release)
		d.Close()
	}()

	for i := 0; i < 100; i++ {
		d.Dispatch(out(0, i))
	}

	require.Eventually(t, func() bool { return fast.len() == 100 }, time.Second, time.Millisecond)
}

func TestSlowConsumerSeesMostRecentValue(t *testing.T) {
	d := dispatch.New(nil)
	var mu sync.Mutex
	var last int
	slow := dispatch.ConsumerFunc(func(o dispatch.Output) {
		time.Sleep(200 * time.Microsecond)
		mu.Lock()
		last = o.Value
		mu.Unlock()
	})
	require.NoError(t, d.Register("slow", slow, dispatch.WithCapacity(8)))
	d.Start()
	defer d.Close()

	for i := 0; i <= 5000; i++ {
		d.Dispatch(out(1, i))
		if st := d.Stats()["slow"]; st.Pending > 8 {
			t.Fatalf("queue grew past its bound: %d", st.Pending)
		}
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last == 5000
	}, 2*time.Second, time.Millisecond)
}

func TestDropsNeverReorderAZone(t *testing.T) {
	d := dispatch.New(nil)
	c := &collector{}
	slow := dispatch.ConsumerFunc(func(o dispatch.Output) {
		time.Sleep(50 * time.Microsecond)
		c.Consume(o)
	})
	require.NoError(t, d.Register("slow", slow, dispatch.WithCapacity(3)))
	d.Start()

	base := time.Now()
	for i := 0; i < 2000; i++ {
		o := out(i%4, i)
		o.At = base.Add(time.Duration(i) * time.Microsecond)
		d.Dispatch(o)
	}
	time.Sleep(20 * time.Millisecond)
	d.Close()

	lastAt := map[int]time.Time{}
	for _, o := range c.outputs() {
		prev, ok := lastAt[o.Zone]
		if ok {
			require.True(t, o.At.After(prev), "zone %d went backwards", o.Zone)
		}
		lastAt[o.Zone] = o.At
	}
}

func TestCoalesceKeepsLatestPerZone(t *testing.T) {
	d := dispatch.New(nil)
	g := newGated()
	require.NoError(t, d.Register("control", g, dispatch.WithCapacity(8), dispatch.WithCoalesce()))
	d.Start()
	defer d.Close()

	d.Dispatch(out(0, 1))
	<-g.entered // worker holds zone 0 inside Consume

	for v := 1; v <= 10; v++ {
		d.Dispatch(out(1, v))
		d.Dispatch(out(2, 100+v))
	}
	assert.Equal(t, 2, d.Stats()["control"].Pending)

	close(g.release)
	require.Eventually(t, func() bool { return g.len() == 3 }, time.Second, time.Millisecond)

	got := g.outputs()
	assert.Equal(t, 0, got[0].Zone)
	assert.Equal(t, 1, got[1].Zone)
	assert.Equal(t, 10, got[1].Value)
	assert.Equal(t, 2, got[2].Zone)
	assert.Equal(t, 110, got[2].Value)
	assert.Equal(t, uint64(18), d.Stats()["control"].Dropped)
}

func TestRegisterLifecycle(t *testing.T) {
	d := dispatch.New(nil)
	require.NoError(t, d.Register("a", &collector{}))
	require.ErrorIs(t, d.Register("a", &collector{}), dispatch.ErrConsumerExists)

	d.Start()
	require.ErrorIs(t, d.Register("b", &collector{}), dispatch.ErrDispatcherStarted)

	d.Close()
	d.Close()
	require.ErrorIs(t, d.Register("c", &collector{}), dispatch.ErrDispatcherClosed)
	assert.NotPanics(t, func() { d.Dispatch(out(0, 1)) })
}

func TestConsumerPanicDoesNotStopDelivery(t *testing.T) {
	d := dispatch.New(nil)
	c := &collector{}
	require.NoError(t, d.Register("flaky", dispatch.ConsumerFunc(func(o dispatch.Output) {
		if o.Value == 1 {
			panic("boom")
		}
		c.Consume(o)
	})))
	d.Start()
	defer d.Close()

	d.Dispatch(out(0, 1))
	d.Dispatch(out(0, 2))

	require.Eventually(t, func() bool { return c.len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, c.outputs()[0].Value)
}
