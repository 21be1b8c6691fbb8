package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ble-midi.klederson.com/internal/config"
	"ble-midi.klederson.com/internal/session"
	"tinygo.org/x/bluetooth"
)

// ErrDeviceNotFound is returned when a scan ends without seeing the device.
var ErrDeviceNotFound = errors.New("device not found")

// BLESource streams sample notifications from the instrument's GATT
// characteristic and reconnects when the link drops.
type BLESource struct {
	adapter *bluetooth.Adapter
	address string
	name    string
	logger  *slog.Logger
}

// NewBLESource creates a source for the device with the given address or,
// when address is empty, the given advertised name.
func NewBLESource(adapter *bluetooth.Adapter, address, name string, logger *slog.Logger) *BLESource {
	if adapter == nil {
		adapter = bluetooth.DefaultAdapter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BLESource{
		adapter: adapter,
		address: address,
		name:    name,
		logger:  logger,
	}
}

// Name implements Source.
func (s *BLESource) Name() string {
	if s.address != "" {
		return "ble " + s.address
	}
	return "ble " + s.name
}

// Run enables the adapter and keeps a notification subscription alive until
// ctx is cancelled.
func (s *BLESource) Run(ctx context.Context, sink Sink) error {
	serviceUUID, err := bluetooth.ParseUUID(config.ServiceUUID)
	if err != nil {
		return fmt.Errorf("invalid service uuid: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(config.SampleCharUUID)
	if err != nil {
		return fmt.Errorf("invalid characteristic uuid: %w", err)
	}

	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w (try running with sudo or setcap cap_net_admin+ep)", err)
	}

	lost := make(chan struct{}, 1)
	s.adapter.SetConnectHandler(func(_ bluetooth.Device, connected bool) {
		if connected {
			return
		}
		select {
		case lost <- struct{}{}:
		default:
		}
	})

	bo := newBackoff(config.ReconnectMinDelay, config.ReconnectMaxDelay)
	defer sink.SetState(session.Disconnected)

	sink.SetState(session.Connecting)
	for {
		dev, err := s.connect(ctx, serviceUUID, charUUID, sink)
		if err == nil {
			bo.reset()
			sink.SetState(session.Streaming)
			s.logger.Info("ble: streaming", "device", s.Name())

			select {
			case <-ctx.Done():
				_ = dev.Disconnect()
				return nil
			case <-lost:
				s.logger.Warn("ble: link lost", "device", s.Name())
			}
		} else {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("ble: connect failed", "device", s.Name(), "err", err)
		}

		sink.SetState(session.Reconnecting)
		if !sleep(ctx, bo.next()) {
			return nil
		}
		// Drain a stale disconnect event from the previous link.
		select {
		case <-lost:
		default:
		}
		sink.SetState(session.Connecting)
	}
}

func (s *BLESource) connect(ctx context.Context, serviceUUID, charUUID bluetooth.UUID, sink Sink) (bluetooth.Device, error) {
	result, err := s.scan(ctx)
	if err != nil {
		return bluetooth.Device{}, err
	}

	s.logger.Info("ble: connecting", "address", result.Address.String(), "rssi", result.RSSI)
	dev, err := s.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return bluetooth.Device{}, fmt.Errorf("connect: %w", err)
	}

	fail := func(err error) (bluetooth.Device, error) {
		_ = dev.Disconnect()
		return bluetooth.Device{}, err
	}

	services, err := dev.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		return fail(fmt.Errorf("discover services: %w", err))
	}
	if len(services) == 0 {
		return fail(fmt.Errorf("service %s not found", serviceUUID))
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return fail(fmt.Errorf("discover characteristics: %w", err))
	}
	if len(chars) == 0 {
		return fail(fmt.Errorf("characteristic %s not found", charUUID))
	}

	err = chars[0].EnableNotifications(func(buf []byte) {
		sample, err := Decode(buf, time.Now())
		if err != nil {
			if !errors.Is(err, ErrNoReading) {
				s.logger.Debug("ble: sample dropped", "err", err)
			}
			return
		}
		sink.Submit(sample)
	})
	if err != nil {
		return fail(fmt.Errorf("enable notifications: %w", err))
	}
	return dev, nil
}

func (s *BLESource) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	done := make(chan error, 1)

	go func() {
		done <- s.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if !s.matches(r) {
				return
			}
			select {
			case found <- r:
				_ = a.StopScan()
			default:
			}
		})
	}()

	timer := time.NewTimer(config.ScanTimeout)
	defer timer.Stop()

	select {
	case r := <-found:
		<-done
		return r, nil
	case err := <-done:
		if err != nil {
			return bluetooth.ScanResult{}, fmt.Errorf("scan: %w", err)
		}
		return bluetooth.ScanResult{}, ErrDeviceNotFound
	case <-timer.C:
		_ = s.adapter.StopScan()
		<-done
		return bluetooth.ScanResult{}, fmt.Errorf("%w within %s", ErrDeviceNotFound, config.ScanTimeout)
	case <-ctx.Done():
		_ = s.adapter.StopScan()
		<-done
		return bluetooth.ScanResult{}, ctx.Err()
	}
}

func (s *BLESource) matches(r bluetooth.ScanResult) bool {
	if s.address != "" {
		return strings.EqualFold(r.Address.String(), s.address)
	}
	return s.name != "" && r.LocalName() == s.name
}
