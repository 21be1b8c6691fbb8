package signal

import (
	"fmt"
	"math"

	"ble-midi.klederson.com/internal/config"
)

// Normalizer turns the distance between a raw period and its baseline into
// a bounded deformation level. Both directions of shift count as
// deformation, so the output only grows with distance.
type Normalizer struct {
	Slope     float64
	MaxOutput int

	// Relative divides the distance by the baseline before scaling, so
	// Slope is expressed per unit of relative shift.
	Relative bool
}

// NormalizerFrom builds a Normalizer from settings.
func NormalizerFrom(s config.Settings) Normalizer {
	return Normalizer{Slope: s.Slope, MaxOutput: s.MaxOutput, Relative: s.Relative}
}

// Validate checks the normalizer parameters.
func (n Normalizer) Validate() error {
	if !(n.Slope > 0) || math.IsInf(n.Slope, 0) {
		return fmt.Errorf("%w: slope %v must be a positive finite number", config.ErrInvalidConfiguration, n.Slope)
	}
	if n.MaxOutput <= 0 {
		return fmt.Errorf("%w: max_output %d must be positive", config.ErrInvalidConfiguration, n.MaxOutput)
	}
	return nil
}

// Normalize returns the deformation level in [0, MaxOutput].
func (n Normalizer) Normalize(raw, baseline float64) float64 {
	limit := float64(n.MaxOutput)
	distance := math.Abs(raw - baseline)

	var v float64
	if n.Relative {
		switch {
		case distance == 0:
			return 0
		case baseline == 0:
			return limit
		}
		v = distance / math.Abs(baseline) * n.Slope * limit
	} else {
		v = distance * n.Slope
	}

	switch {
	case math.IsNaN(v):
		return 0
	case v > limit:
		return limit
	case v < 0:
		return 0
	}
	return v
}

// Level returns Normalize rounded to the nearest integer.
func (n Normalizer) Level(raw, baseline float64) int {
	return int(math.Round(n.Normalize(raw, baseline)))
}
