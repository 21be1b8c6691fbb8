package sensor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"ble-midi.klederson.com/internal/config"
	"ble-midi.klederson.com/internal/session"
)

// PayloadSize is the length of one sample notification:
//
//	[device_time int32 LE][period int32 LE][zone uint8]
const PayloadSize = 9

// Decode errors.
var (
	ErrShortPayload = errors.New("sample payload too short")
	ErrInvalidZone  = errors.New("sample zone out of range")
	ErrNoReading    = errors.New("sample carries no reading")
	ErrBadPeriod    = errors.New("sample period is negative")
)

// Sample is one raw period measurement of one zone.
type Sample struct {
	Zone       int
	Period     uint32
	DeviceTime int32     // Device clock, milliseconds
	At         time.Time // Host arrival time
}

// Decode parses a notification payload received at the given time.
// The period is a signed field on the wire; a zero period means the zone
// produced no reading in this cycle.
func Decode(payload []byte, at time.Time) (Sample, error) {
	if len(payload) < PayloadSize {
		return Sample{}, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(payload))
	}
	period := int32(binary.LittleEndian.Uint32(payload[4:8]))
	zone := int(payload[8])
	switch {
	case zone >= config.NumZones:
		return Sample{}, fmt.Errorf("%w: %d", ErrInvalidZone, zone)
	case period < 0:
		return Sample{}, fmt.Errorf("%w: %d", ErrBadPeriod, period)
	case period == 0:
		return Sample{}, ErrNoReading
	}
	return Sample{
		Zone:       zone,
		Period:     uint32(period),
		DeviceTime: int32(binary.LittleEndian.Uint32(payload[0:4])),
		At:         at,
	}, nil
}

// Encode builds the notification payload of a sample.
func Encode(s Sample) []byte {
	b := make([]byte, PayloadSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(s.DeviceTime))
	binary.LittleEndian.PutUint32(b[4:8], s.Period)
	b[8] = byte(s.Zone)
	return b
}

// Sink receives samples and link state changes from a Source.
type Sink interface {
	// Submit hands over a sample without blocking. It reports false when
	// the sample was dropped.
	Submit(Sample) bool
	SetState(session.State)
}

// Source produces samples until its context is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}
