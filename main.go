package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ble-midi.klederson.com/internal/app"
	"ble-midi.klederson.com/internal/config"
	"ble-midi.klederson.com/internal/display"
	"ble-midi.klederson.com/internal/dispatch"
	"ble-midi.klederson.com/internal/logging"
	"ble-midi.klederson.com/internal/midi"
	"ble-midi.klederson.com/internal/pipeline"
	"ble-midi.klederson.com/internal/sensor"
	"ble-midi.klederson.com/internal/zones"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	flagDemo     bool
	flagHeadless bool
	flagDebug    bool
	flagConfig   string
	flagLogFile  string
	flagMap      string
	flagAddress  string
	flagSerial   string
	flagBaud     int
	flagMIDIPort string
	flagVirtual  bool
	flagMethod   string
	flagWatch    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ble-midi",
		Short: "BLE-MIDI - Turn an eight-zone resonant sensor into MIDI control",
		Long: `BLE-MIDI reads period samples from an eight-zone resonant sensor over
Bluetooth Low Energy (or its USB serial link), tracks a slowly adapting
baseline per zone and sends how far each zone is from rest as MIDI control
changes or notes. A live monitor plots the last few seconds of every zone.

Requires sudo or CAP_NET_ADMIN capability for Bluetooth.
Use --demo flag for demonstration mode without hardware.`,
		RunE:         run,
		SilenceUsage: true,
	}

	f := rootCmd.Flags()
	f.BoolVar(&flagDemo, "demo", false, "Run with a synthetic sensor (no hardware required)")
	f.BoolVar(&flagHeadless, "headless", false, "Run without the live monitor; SIGHUP reloads settings")
	f.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	f.StringVarP(&flagConfig, "config", "c", config.DefaultSettingsFile, "Settings file (YAML)")
	f.StringVar(&flagLogFile, "log-file", config.DefaultLogFile, "Log file used while the monitor is running")
	f.StringVarP(&flagMap, "map", "m", "", `Zone map, e.g. "5,6,7,2,1,3,4,0"`)
	f.StringVar(&flagAddress, "address", "", "BLE address of the sensor")
	f.StringVar(&flagSerial, "serial", "", "Read samples from this serial port instead of BLE")
	f.IntVar(&flagBaud, "baud", config.DefaultSerialBaud, "Serial baud rate")
	f.StringVar(&flagMIDIPort, "midi-port", "", "MIDI output port name")
	f.BoolVar(&flagVirtual, "virtual", false, "Create a virtual MIDI output instead of opening a port")
	f.StringVar(&flagMethod, "method", "", `MIDI output method: "control_change" or "notes"`)
	f.BoolVar(&flagWatch, "watch", true, "Reload settings when the settings file changes")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadSettings reads the settings file and applies command line overrides.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	s, err := config.Load(flagConfig)
	if err != nil {
		return s, err
	}

	f := cmd.Flags()
	if f.Changed("map") {
		zm, err := zones.Parse(flagMap, config.NumZones)
		if err != nil {
			return s, err
		}
		s.ZoneMap = zm
	}
	if f.Changed("address") {
		s.Device.Address = flagAddress
	}
	if f.Changed("serial") {
		s.Serial.Port = flagSerial
	}
	if f.Changed("baud") {
		s.Serial.Baud = flagBaud
	}
	if f.Changed("midi-port") {
		s.MIDI.Port = flagMIDIPort
	}
	if f.Changed("virtual") {
		s.MIDI.Virtual = flagVirtual
	}
	if f.Changed("method") {
		s.MIDI.Method = flagMethod
	}
	return s, s.Validate()
}

func run(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	var logger *slog.Logger
	if flagHeadless {
		logger = logging.New(os.Stderr, flagDebug)
	} else {
		l, f, err := logging.OpenFile(flagLogFile, flagDebug)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logger = l
	}
	slog.SetDefault(logger)

	buffer := display.NewBuffer(config.NumZones, settings.PlotDuration)
	dispatcher := dispatch.New(logger)
	if err := dispatcher.Register("display", buffer, dispatch.WithCapacity(settings.Queues.Display)); err != nil {
		return err
	}

	port, err := midi.OpenPort(settings.MIDI.Port, settings.MIDI.Virtual, logger)
	if flagDemo && errors.Is(err, midi.ErrNoOutputPort) {
		port, err = midi.OpenPort(settings.MIDI.Port, true, logger)
	}
	if err != nil {
		return fmt.Errorf("failed to open MIDI output: %w", err)
	}
	defer port.Close()

	emitter, err := midi.NewEmitter(port, settings.MIDI, logger)
	if err != nil {
		return err
	}
	if err := dispatcher.Register("midi", emitter,
		dispatch.WithCapacity(settings.Queues.Control), dispatch.WithCoalesce()); err != nil {
		return err
	}

	pl, err := pipeline.New(settings, dispatcher, logger, pipeline.WithDisplay(buffer))
	if err != nil {
		return err
	}

	source := newSource(settings, logger)
	logger.Info("starting", "source", source.Name(), "midi", port.Name(),
		"method", settings.MIDI.Method, "zone_map", zones.Format(settings.ZoneMap))

	reload := func() error {
		s, err := loadSettings(cmd)
		if err != nil {
			logger.Warn("settings reload rejected", "file", flagConfig, "err", err)
			return err
		}
		if err := pl.Apply(s); err != nil {
			return err
		}
		return emitter.Apply(s.MIDI)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var changes <-chan struct{}
	if flagWatch {
		w, err := config.NewWatcher(flagConfig, logger)
		if err != nil {
			logger.Warn("settings file not watched", "file", flagConfig, "err", err)
		} else {
			defer w.Close()
			go w.Run(ctx)
			changes = w.Changes()
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = pl.Run(ctx)
	}()

	sourceErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source.Run(ctx, pl); err != nil {
			logger.Error("source stopped", "source", source.Name(), "err", err)
			sourceErr <- err
		}
	}()

	var runErr error
	if flagHeadless {
		runErr = runHeadless(ctx, reload, changes, sourceErr, logger)
	} else {
		runErr = runMonitor(ctx, pl, buffer, emitter, source.Name(), reload, changes, sourceErr)
	}

	cancel()
	wg.Wait()
	emitter.AllOff()
	st := pl.Stats()
	logger.Info("stopped", "processed", st.Processed, "dropped", st.Dropped,
		"discarded", st.Discarded, "midi_sent", emitter.Sent())

	if runErr != nil && !flagDemo && !flagHeadless && settings.Serial.Port == "" {
		printBluetoothHelp(runErr)
	}
	return runErr
}

func newSource(s config.Settings, logger *slog.Logger) sensor.Source {
	switch {
	case flagDemo:
		return sensor.NewDemoSource(10*time.Millisecond, time.Now().UnixNano())
	case s.Serial.Port != "":
		return sensor.NewSerialSource(s.Serial.Port, s.Serial.Baud, logger)
	default:
		return sensor.NewBLESource(nil, s.Device.Address, s.Device.Name, logger)
	}
}

func runHeadless(ctx context.Context, reload func() error, changes <-chan struct{},
	sourceErr <-chan error, logger *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sourceErr:
			return err
		case <-hup:
			if err := reload(); err == nil {
				logger.Info("settings reloaded", "file", flagConfig)
			}
		case <-changes:
			if err := reload(); err == nil {
				logger.Info("settings reloaded after file change", "file", flagConfig)
			}
		}
	}
}

func runMonitor(ctx context.Context, pl *pipeline.Pipeline, buffer *display.Buffer, emitter *midi.Emitter,
	sourceName string, reload func() error, changes <-chan struct{}, sourceErr <-chan error) error {
	model := app.New(app.Options{
		Controller: pl,
		Buffer:     buffer,
		MIDI:       emitter,
		Source:     sourceName,
		Reload:     reload,
	})

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithFPS(config.TargetFPS),
	)

	failed := make(chan error, 1)
	go func() {
		select {
		case err := <-sourceErr:
			failed <- err
			p.Send(app.SourceErrorMsg{Err: err})
		case <-ctx.Done():
		}
	}()

	go func() {
		for {
			select {
			case <-changes:
				p.Send(app.ReloadedMsg{Err: reload()})
			case <-ctx.Done():
				return
			}
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	if err == nil {
		select {
		case err = <-failed:
		default:
		}
	}
	return err
}

func printBluetoothHelp(err error) {
	fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
	fmt.Fprintln(os.Stderr, "Bluetooth access requires elevated permissions.")
	fmt.Fprintln(os.Stderr, "Try one of:")
	fmt.Fprintln(os.Stderr, "  sudo ./ble-midi")
	fmt.Fprintln(os.Stderr, "  sudo setcap cap_net_admin+ep ./ble-midi")
	fmt.Fprintln(os.Stderr, "  ./ble-midi --serial /dev/ttyACM0   (USB link)")
	fmt.Fprintln(os.Stderr, "  ./ble-midi --demo                  (demo mode, no hardware needed)")
}
