package app

import "time"

// TickMsg triggers a frame update.
type TickMsg time.Time

// SourceErrorMsg reports that the sample source stopped with an error.
type SourceErrorMsg struct {
	Err error
}

// ReloadedMsg reports the result of a settings reload.
type ReloadedMsg struct {
	Err error
}
