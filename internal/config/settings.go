package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"ble-midi.klederson.com/internal/zones"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfiguration is returned when a settings update violates a
// numeric constraint. The caller keeps running with its previous settings.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// MIDI output methods.
const (
	MethodControlChange = "control_change"
	MethodNotes         = "notes"
)

// Settings is the persisted, hot-reloadable configuration.
type Settings struct {
	Alpha            float64       `yaml:"alpha"`
	Slope            float64       `yaml:"slope"`
	MaxOutput        int           `yaml:"max_output"`
	Relative         bool          `yaml:"relative"`
	ZoneMap          []int         `yaml:"zone_map"`
	PlotDuration     time.Duration `yaml:"plot_duration"`
	PlotRaw          bool          `yaml:"plot_raw"`
	ResetOnReconnect bool          `yaml:"reset_on_reconnect"`

	Queues QueueSettings  `yaml:"queues"`
	Device DeviceSettings `yaml:"device"`
	Serial SerialSettings `yaml:"serial"`
	MIDI   MIDISettings   `yaml:"midi"`
}

// QueueSettings sizes the bounded queues of the pipeline.
type QueueSettings struct {
	Ingest  int `yaml:"ingest"`
	Control int `yaml:"control"`
	Display int `yaml:"display"`
}

// DeviceSettings selects the BLE peripheral. Address wins over Name.
type DeviceSettings struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

// SerialSettings configures the USB serial fallback link. An empty Port
// disables it.
type SerialSettings struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// MIDISettings configures the control emitter.
type MIDISettings struct {
	Port        string       `yaml:"port"`
	Virtual     bool         `yaml:"virtual"`
	Method      string       `yaml:"method"`
	Channel     uint8        `yaml:"channel"`
	BaseControl uint8        `yaml:"base_control"`
	Note        NoteSettings `yaml:"note"`
}

// NoteSettings configures note mode.
type NoteSettings struct {
	BaseNote      uint8   `yaml:"base_note"`
	Threshold     float64 `yaml:"threshold"`
	VelocitySlope float64 `yaml:"velocity_slope"`
	Scale         string  `yaml:"scale"`
}

// Default returns the reference settings.
func Default() Settings {
	return Settings{
		Alpha:        DefaultAlpha,
		Slope:        DefaultSlope,
		MaxOutput:    DefaultMaxOutput,
		ZoneMap:      zones.Identity(NumZones),
		PlotDuration: DefaultPlotDuration,
		Queues: QueueSettings{
			Ingest:  DefaultIngestQueue,
			Control: DefaultControlQueue,
			Display: DefaultDisplayQueue,
		},
		Device: DeviceSettings{Address: DefaultDeviceAddress},
		Serial: SerialSettings{Baud: DefaultSerialBaud},
		MIDI: MIDISettings{
			Port:        DefaultPortName,
			Method:      MethodControlChange,
			BaseControl: DefaultBaseControl,
			Note: NoteSettings{
				BaseNote:      DefaultBaseNote,
				Threshold:     DefaultNoteThreshold,
				VelocitySlope: DefaultVelocitySlope,
				Scale:         "chromatic",
			},
		},
	}
}

// Validate reports every violated constraint. Numeric violations wrap
// ErrInvalidConfiguration, a bad zone map wraps zones.ErrInvalidMapping.
func (s Settings) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfiguration}, args...)...))
	}

	if !(s.Alpha > 0 && s.Alpha < 1) {
		bad("alpha %v outside (0, 1)", s.Alpha)
	}
	if !(s.Slope > 0) || math.IsInf(s.Slope, 0) {
		bad("slope %v must be a positive finite number", s.Slope)
	}
	if s.MaxOutput <= 0 {
		bad("max_output %d must be positive", s.MaxOutput)
	}
	if s.PlotDuration <= 0 {
		bad("plot_duration %v must be positive", s.PlotDuration)
	}
	if s.Queues.Ingest <= 0 || s.Queues.Control <= 0 || s.Queues.Display <= 0 {
		bad("queue sizes must be positive (ingest=%d control=%d display=%d)",
			s.Queues.Ingest, s.Queues.Control, s.Queues.Display)
	}
	switch s.MIDI.Method {
	case MethodControlChange, MethodNotes:
	default:
		bad("unknown midi method %q", s.MIDI.Method)
	}
	if s.MIDI.Channel > 15 {
		bad("midi channel %d outside 0-15", s.MIDI.Channel)
	}
	if s.MIDI.Note.Threshold < 0 || s.MIDI.Note.Threshold >= 1 {
		bad("note threshold %v outside [0, 1)", s.MIDI.Note.Threshold)
	}
	if _, _, ok := LookupScale(s.MIDI.Note.Scale); !ok {
		bad("unknown note scale %q (known: %s)", s.MIDI.Note.Scale, strings.Join(ScaleNames(), ", "))
	}
	if err := zones.Check(s.ZoneMap, NumZones); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Load reads settings from a YAML file. A missing file yields the defaults.
// Fields absent from the file keep their default values.
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("failed to parse settings file: %w", err)
	}
	return s, nil
}

// Save writes settings to a YAML file.
func Save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}
