package config

import "time"

const (
	// Sensor layout
	NumZones = 8 // Resonant-circuit sensors on the instrument

	// Baseline tracking
	DefaultAlpha = 0.001 // EMA weight of a new sample; slow enough to follow drift only

	// Normalization
	DefaultSlope     = 1.0
	DefaultMaxOutput = 127 // MIDI 7-bit range

	// Display
	DefaultPlotDuration = 4 * time.Second // Rolling window kept for the live plot
	TargetFPS           = 30              // Monitor refresh rate

	// Queues
	DefaultIngestQueue  = 100 // Samples buffered between source and pipeline
	DefaultControlQueue = 32  // Outputs buffered for the MIDI emitter
	DefaultDisplayQueue = 256 // Outputs buffered for the display window

	// BLE device
	DefaultDeviceAddress = "DB:96:90:70:68:A4"
	ServiceUUID          = "64696c64-0000-1000-8000-0000cafebabe"
	SampleCharUUID       = "6f6e6963-0000-1000-8000-0000cafebabe"
	ScanTimeout          = 10 * time.Second
	ReconnectMinDelay    = 500 * time.Millisecond
	ReconnectMaxDelay    = 10 * time.Second

	// Serial fallback link
	DefaultSerialBaud = 115200

	// MIDI
	DefaultBaseControl   = 41 // CC number of zone 0
	DefaultBaseNote      = 60 // Middle C
	DefaultNoteThreshold = 0.1
	DefaultVelocitySlope = 1.0
	DefaultPortName      = "BLE-MIDI"

	// Files
	DefaultSettingsFile = "ble-midi.yaml"
	DefaultLogFile      = "ble-midi.log"

	// App
	AppName    = "BLE-MIDI"
	AppVersion = "1.0"
)
