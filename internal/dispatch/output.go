package dispatch

import "time"

// Output is one normalized, remapped reading on its way to a consumer.
type Output struct {
	Zone      int // Logical output zone after remapping
	Source    int // Physical sensor zone
	Value     int // Deformation level in [0, MaxOutput]
	MaxOutput int
	Raw       float64
	Baseline  float64
	At        time.Time // Arrival time of the raw sample
}

// Fraction returns Value scaled to [0, 1].
func (o Output) Fraction() float64 {
	if o.MaxOutput <= 0 {
		return 0
	}
	return float64(o.Value) / float64(o.MaxOutput)
}

// Consumer receives outputs on its own goroutine.
type Consumer interface {
	Consume(Output)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(Output)

// Consume calls f(o).
func (f ConsumerFunc) Consume(o Output) { f(o) }
