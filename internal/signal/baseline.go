package signal

import "fmt"

// BaselineTracker keeps one exponential moving average per zone. It is the
// rest-state reference each raw period is measured against.
//
// A tracker has a single writer: the pipeline goroutine. Readers on other
// goroutines must go through the owner.
type BaselineTracker struct {
	alpha    float64
	baseline []float64
	seeded   []bool
}

// NewBaselineTracker creates a tracker for n zones. Alpha must be in (0, 1).
func NewBaselineTracker(n int, alpha float64) *BaselineTracker {
	t := &BaselineTracker{
		baseline: make([]float64, n),
		seeded:   make([]bool, n),
	}
	t.SetAlpha(alpha)
	return t
}

// Alpha returns the smoothing factor.
func (t *BaselineTracker) Alpha() float64 {
	return t.alpha
}

// SetAlpha replaces the smoothing factor. Callers validate configuration
// first; an alpha outside (0, 1) here is a programming error.
func (t *BaselineTracker) SetAlpha(alpha float64) {
	if !(alpha > 0 && alpha < 1) {
		panic(fmt.Sprintf("signal: alpha %v outside (0, 1)", alpha))
	}
	t.alpha = alpha
}

// Update folds a raw sample into the zone's baseline and returns the new
// baseline. The first sample after creation or reset seeds the baseline.
func (t *BaselineTracker) Update(zone int, raw float64) float64 {
	t.check(zone)
	if !t.seeded[zone] {
		t.baseline[zone] = raw
		t.seeded[zone] = true
		return raw
	}
	t.baseline[zone] += t.alpha * (raw - t.baseline[zone])
	return t.baseline[zone]
}

// Baseline returns the zone's baseline and whether it has been seeded.
func (t *BaselineTracker) Baseline(zone int) (float64, bool) {
	t.check(zone)
	return t.baseline[zone], t.seeded[zone]
}

// Baselines returns a copy of all baselines. Unseeded zones read as zero.
func (t *BaselineTracker) Baselines() []float64 {
	out := make([]float64, len(t.baseline))
	copy(out, t.baseline)
	return out
}

// Reset forgets the zone's baseline; the next sample re-seeds it.
func (t *BaselineTracker) Reset(zone int) {
	t.check(zone)
	t.baseline[zone] = 0
	t.seeded[zone] = false
}

// ResetAll forgets every baseline.
func (t *BaselineTracker) ResetAll() {
	for i := range t.baseline {
		t.baseline[i] = 0
		t.seeded[i] = false
	}
}

func (t *BaselineTracker) check(zone int) {
	if zone < 0 || zone >= len(t.baseline) {
		panic(fmt.Sprintf("signal: zone index %d out of range [0, %d)", zone, len(t.baseline)))
	}
}
