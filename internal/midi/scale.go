package midi

import (
	"fmt"

	"ble-midi.klederson.com/internal/config"
)

// Scale is a named set of semitone intervals within one octave.
type Scale struct {
	Name      string
	Intervals []uint8
}

// ScaleByName looks a scale up by its configured name.
func ScaleByName(name string) (Scale, error) {
	canonical, intervals, ok := config.LookupScale(name)
	if !ok {
		return Scale{}, fmt.Errorf("unknown scale %q", name)
	}
	return Scale{Name: canonical, Intervals: intervals}, nil
}

// Note returns the note a zone plays: the zone-th degree of the scale above
// base, wrapping into higher octaves, capped at 127.
func (s Scale) Note(base uint8, zone int) uint8 {
	if len(s.Intervals) == 0 {
		return base
	}
	octave := zone / len(s.Intervals)
	n := int(base) + int(s.Intervals[zone%len(s.Intervals)]) + 12*octave
	return uint8(min(n, 127))
}
