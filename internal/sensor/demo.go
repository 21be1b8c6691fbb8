package sensor

import (
	"context"
	"math"
	"math/rand"
	"time"

	"ble-midi.klederson.com/internal/config"
	"ble-midi.klederson.com/internal/session"
)

type demoZone struct {
	base      float64 // Resting period
	drift     float64 // Slow drift amplitude
	phase     float64
	pressedAt float64 // Start of the current press, -1 when idle
	depth     float64 // Press depth as a fraction of base
}

// DemoSource synthesizes period readings for every zone: a slowly drifting
// resting value with occasional presses that shift the period.
type DemoSource struct {
	interval time.Duration
	rng      *rand.Rand
	zones    []demoZone
	dropout  float64
}

// NewDemoSource creates a demo source emitting one reading per zone every
// interval.
func NewDemoSource(interval time.Duration, seed int64) *DemoSource {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	rng := rand.New(rand.NewSource(seed))
	zones := make([]demoZone, config.NumZones)
	for i := range zones {
		zones[i] = demoZone{
			base:      40000 + rng.Float64()*20000,
			drift:     20 + rng.Float64()*80,
			phase:     rng.Float64() * 2 * math.Pi,
			pressedAt: -1,
		}
	}
	return &DemoSource{interval: interval, rng: rng, zones: zones}
}

// WithDropout makes the source skip each reading with probability p.
func (s *DemoSource) WithDropout(p float64) *DemoSource {
	s.dropout = p
	return s
}

// Name implements Source.
func (s *DemoSource) Name() string { return "demo" }

// Run emits readings until ctx is cancelled.
func (s *DemoSource) Run(ctx context.Context, sink Sink) error {
	sink.SetState(session.Connecting)
	sink.SetState(session.Streaming)
	defer sink.SetState(session.Disconnected)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			t := now.Sub(start).Seconds()
			for zone := range s.zones {
				if s.dropout > 0 && s.rng.Float64() < s.dropout {
					continue
				}
				sink.Submit(Sample{
					Zone:       zone,
					Period:     s.period(zone, t),
					DeviceTime: int32(now.Sub(start).Milliseconds()),
					At:         now,
				})
			}
		}
	}
}

// period returns the synthetic reading of zone at time t (seconds).
func (s *DemoSource) period(zone int, t float64) uint32 {
	z := &s.zones[zone]

	if z.pressedAt < 0 && s.rng.Float64() < 0.002 {
		z.pressedAt = t
		z.depth = 0.01 + s.rng.Float64()*0.04
	}

	v := z.base + z.drift*math.Sin(t*0.2+z.phase) + (s.rng.Float64()-0.5)*10

	if z.pressedAt >= 0 {
		// Half-sine press lasting one second.
		elapsed := t - z.pressedAt
		if elapsed > 1 {
			z.pressedAt = -1
		} else {
			v += z.base * z.depth * math.Sin(math.Pi*elapsed)
		}
	}

	if v < 1 {
		v = 1
	}
	return uint32(v)
}
