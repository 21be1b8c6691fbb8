// Package midi turns dispatched zone levels into MIDI messages.
package midi

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"ble-midi.klederson.com/internal/config"
	"ble-midi.klederson.com/internal/dispatch"
	gomidi "gitlab.com/gomidi/midi/v2"
)

// Sender writes one raw MIDI message. drivers.Out satisfies it.
type Sender interface {
	Send([]byte) error
}

type emitterConfig struct {
	method      string
	channel     uint8
	baseControl uint8
	baseNote    uint8
	threshold   float64
	velocity    float64
	scale       Scale
}

func newEmitterConfig(s config.MIDISettings) (*emitterConfig, error) {
	scale, err := ScaleByName(s.Note.Scale)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}
	return &emitterConfig{
		method:      s.Method,
		channel:     s.Channel,
		baseControl: s.BaseControl,
		baseNote:    s.Note.BaseNote,
		threshold:   s.Note.Threshold,
		velocity:    s.Note.VelocitySlope,
		scale:       scale,
	}, nil
}

// Emitter is the control consumer. In control change mode every zone
// drives one controller; in note mode every zone plays one note of a scale,
// with pressure sent as polyphonic aftertouch while the note is held.
//
// Consume must be called from a single goroutine, which the dispatcher
// guarantees.
type Emitter struct {
	out    Sender
	logger *slog.Logger
	cfg    atomic.Pointer[emitterConfig]

	// Owned by the Consume goroutine.
	active  *emitterConfig
	lastCC  [config.NumZones]int
	held    [config.NumZones]bool
	heldKey [config.NumZones]uint8

	sent    atomic.Uint64
	errors  atomic.Uint64
	failing atomic.Bool
}

// NewEmitter creates an emitter writing to out.
func NewEmitter(out Sender, s config.MIDISettings, logger *slog.Logger) (*Emitter, error) {
	cfg, err := newEmitterConfig(s)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Emitter{out: out, logger: logger}
	e.cfg.Store(cfg)
	e.active = cfg
	e.forgetControls()
	return e, nil
}

// Apply replaces the MIDI settings. Held notes are released before the
// next output uses the new settings.
func (e *Emitter) Apply(s config.MIDISettings) error {
	cfg, err := newEmitterConfig(s)
	if err != nil {
		return err
	}
	e.cfg.Store(cfg)
	return nil
}

// Consume implements dispatch.Consumer.
func (e *Emitter) Consume(o dispatch.Output) {
	if o.Zone < 0 || o.Zone >= config.NumZones {
		return
	}
	if cfg := e.cfg.Load(); cfg != e.active {
		e.releaseAll()
		e.forgetControls()
		e.active = cfg
	}

	switch e.active.method {
	case config.MethodNotes:
		e.note(o.Zone, o.Fraction())
	default:
		e.control(o.Zone, o.Fraction())
	}
}

func (e *Emitter) control(zone int, fraction float64) {
	value := int(math.Round(127 * math.Min(math.Max(fraction, 0), 1)))
	if value == e.lastCC[zone] {
		return
	}
	e.lastCC[zone] = value
	controller := uint8(min(int(e.active.baseControl)+zone, 127))
	e.send(gomidi.ControlChange(e.active.channel, controller, uint8(value)))
}

func (e *Emitter) note(zone int, magnitude float64) {
	cfg := e.active

	if magnitude > cfg.threshold {
		velocity := uint8(max(1, min(127, int(math.Round(magnitude*cfg.velocity*127)))))
		if !e.held[zone] {
			key := cfg.scale.Note(cfg.baseNote, zone)
			e.send(gomidi.NoteOn(cfg.channel, key, velocity))
			e.held[zone] = true
			e.heldKey[zone] = key
			return
		}
		e.send(gomidi.PolyAfterTouch(cfg.channel, e.heldKey[zone], velocity))
		return
	}

	if e.held[zone] {
		e.send(gomidi.NoteOff(cfg.channel, e.heldKey[zone]))
		e.held[zone] = false
	}
}

// AllOff releases every held note and resets every controller to zero. It
// must not run concurrently with Consume; call it after the dispatcher is
// closed.
func (e *Emitter) AllOff() {
	e.releaseAll()
	if e.active.method == config.MethodControlChange {
		for zone := range e.lastCC {
			if e.lastCC[zone] > 0 {
				e.control(zone, 0)
			}
		}
	}
}

func (e *Emitter) releaseAll() {
	for zone, held := range e.held {
		if held {
			e.send(gomidi.NoteOff(e.active.channel, e.heldKey[zone]))
			e.held[zone] = false
		}
	}
}

func (e *Emitter) forgetControls() {
	for i := range e.lastCC {
		e.lastCC[i] = -1
	}
}

func (e *Emitter) send(msg gomidi.Message) {
	if err := e.out.Send(msg); err != nil {
		e.errors.Add(1)
		if !e.failing.Swap(true) {
			e.logger.Warn("midi: send failed", "msg", msg.String(), "err", err)
		}
		return
	}
	if e.failing.Swap(false) {
		e.logger.Info("midi: sending again")
	}
	e.sent.Add(1)
}

// Sent returns the number of messages written.
func (e *Emitter) Sent() uint64 { return e.sent.Load() }

// Errors returns the number of failed writes.
func (e *Emitter) Errors() uint64 { return e.errors.Load() }
