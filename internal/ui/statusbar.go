package ui

import (
	"fmt"

	"ble-midi.klederson.com/internal/session"
)

// Status is the content of the bottom bar.
type Status struct {
	State     session.State
	Rate      float64 // Samples per second
	Processed uint64
	Dropped   uint64 // Ingest and consumer drops
	MIDISent  uint64
	MIDIErrs  uint64
	ZoneMap   string
	Notice    string
	NoticeErr bool
}

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(width int, st Status) string {
	var state string
	switch st.State {
	case session.Streaming:
		state = StyleStateStreaming.Render("[" + st.State.String() + "]")
	case session.Connecting, session.Reconnecting:
		state = StyleStateConnecting.Render("[" + st.State.String() + "]")
	default:
		state = StyleStateDown.Render("[" + st.State.String() + "]")
	}

	info := fmt.Sprintf(" %.0f/s  Samples: %d  Dropped: %d  MIDI: %d",
		st.Rate, st.Processed, st.Dropped, st.MIDISent)
	if st.MIDIErrs > 0 {
		info += fmt.Sprintf(" (%d failed)", st.MIDIErrs)
	}
	info += "  Map: " + st.ZoneMap

	left := state + StyleStatusBar.Foreground(ColorGreen).Render(info)

	right := ""
	if st.Notice != "" {
		if st.NoticeErr {
			right = StyleNoticeError.Render(st.Notice)
		} else {
			right = StyleNotice.Render(st.Notice)
		}
	}

	return StyleStatusBar.Width(width).Render(pad(left, right, width-2))
}
