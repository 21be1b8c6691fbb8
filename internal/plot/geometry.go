package plot

import (
	"math"
	"time"

	"ble-midi.klederson.com/internal/display"
)

// Range is the vertical extent of the plot.
type Range struct {
	Lo, Hi float64
}

// Fit returns a range covering every raw reading in series with a small
// margin. An empty or flat series gets a unit-wide range.
func Fit(series [][]display.Point) Range {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, pts := range series {
		for _, p := range pts {
			lo = math.Min(lo, p.Raw)
			hi = math.Max(hi, p.Raw)
		}
	}
	if math.IsInf(lo, 1) {
		return Range{0, 1}
	}
	if hi-lo < 1 {
		mid := (hi + lo) / 2
		return Range{mid - 0.5, mid + 0.5}
	}
	margin := (hi - lo) * 0.05
	return Range{lo - margin, hi + margin}
}

// Column maps a timestamp to a column: the oldest instant of the window is
// column 0, now is the last column. It reports false outside the window.
func Column(at, now time.Time, window time.Duration, width int) (int, bool) {
	if width <= 0 || window <= 0 {
		return 0, false
	}
	age := now.Sub(at)
	if age < 0 || age > window {
		return 0, false
	}
	frac := 1 - float64(age)/float64(window)
	return int(math.Round(frac * float64(width-1))), true
}

// Row maps a value to a row: r.Hi is row 0, r.Lo is the bottom row. Values
// outside the range are clamped.
func Row(v float64, r Range, height int) int {
	if height <= 1 || r.Hi <= r.Lo || math.IsNaN(v) {
		return max(height-1, 0)
	}
	frac := (v - r.Lo) / (r.Hi - r.Lo)
	frac = math.Min(math.Max(frac, 0), 1)
	return height - 1 - int(math.Round(frac*float64(height-1)))
}
