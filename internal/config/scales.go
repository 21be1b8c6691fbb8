package config

import "strings"

// scales holds the semitone intervals within one octave of every scale note
// mode can play, in menu order.
var scales = []struct {
	name      string
	intervals []uint8
}{
	{"chromatic", []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
	{"major", []uint8{0, 2, 4, 5, 7, 9, 11}},
	{"minor", []uint8{0, 2, 3, 5, 7, 8, 10}},
	{"pentatonic", []uint8{0, 2, 4, 7, 9}},
	{"blues", []uint8{0, 3, 5, 6, 7, 10}},
	{"dorian", []uint8{0, 2, 3, 5, 7, 9, 10}},
	{"mixolydian", []uint8{0, 2, 4, 5, 7, 9, 10}},
	{"lydian", []uint8{0, 2, 4, 6, 7, 9, 11}},
	{"phrygian", []uint8{0, 1, 3, 5, 7, 8, 10}},
	{"locrian", []uint8{0, 1, 3, 5, 6, 8, 10}},
	{"whole_tone", []uint8{0, 2, 4, 6, 8, 10}},
	{"diminished", []uint8{0, 2, 3, 5, 6, 8, 9, 11}},
}

// ScaleNames returns the known scale names in menu order.
func ScaleNames() []string {
	names := make([]string, len(scales))
	for i, s := range scales {
		names[i] = s.name
	}
	return names
}

// LookupScale finds a scale case-insensitively. Spaces and dashes match
// underscores, so "Whole Tone" finds whole_tone. It returns the canonical
// name and a copy of the intervals.
func LookupScale(name string) (string, []uint8, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	for _, s := range scales {
		if s.name == key {
			return s.name, append([]uint8(nil), s.intervals...), true
		}
	}
	return "", nil, false
}
