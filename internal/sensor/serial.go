package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"ble-midi.klederson.com/internal/config"
	"ble-midi.klederson.com/internal/session"
	"go.bug.st/serial"
)

// OpenFunc opens a serial port. It matches serial.Open.
type OpenFunc func(name string, mode *serial.Mode) (serial.Port, error)

// SerialSource reads framed samples from the USB serial link of the
// instrument.
type SerialSource struct {
	port   string
	baud   int
	open   OpenFunc
	logger *slog.Logger

	minDelay, maxDelay time.Duration
}

// NewSerialSource creates a source for the named device.
func NewSerialSource(port string, baud int, logger *slog.Logger) *SerialSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SerialSource{
		port:     port,
		baud:     baud,
		open:     serial.Open,
		logger:   logger,
		minDelay: config.ReconnectMinDelay,
		maxDelay: config.ReconnectMaxDelay,
	}
}

// WithOpener replaces the port opener and returns the source.
func (s *SerialSource) WithOpener(open OpenFunc) *SerialSource {
	s.open = open
	return s
}

// WithReconnectDelay bounds the delay between reconnect attempts.
func (s *SerialSource) WithReconnectDelay(lo, hi time.Duration) *SerialSource {
	s.minDelay, s.maxDelay = lo, hi
	return s
}

// Name implements Source.
func (s *SerialSource) Name() string {
	return fmt.Sprintf("serial %s@%d", s.port, s.baud)
}

// Run opens the port, streams samples and reopens the port whenever it
// fails, until ctx is cancelled.
func (s *SerialSource) Run(ctx context.Context, sink Sink) error {
	bo := newBackoff(s.minDelay, s.maxDelay)
	defer sink.SetState(session.Disconnected)

	sink.SetState(session.Connecting)
	for {
		port, err := s.open(s.port, &serial.Mode{BaudRate: s.baud})
		if err != nil {
			s.logger.Warn("serial: failed to open port", "device", s.port, "baud", s.baud, "err", err)
		} else {
			s.logger.Info("serial: port opened", "device", s.port, "baud", s.baud)
			bo.reset()
			sink.SetState(session.Streaming)
			err = s.stream(ctx, port, sink)
			_ = port.Close()
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("serial: link lost", "device", s.port, "err", err)
		}

		sink.SetState(session.Reconnecting)
		if !sleep(ctx, bo.next()) {
			return nil
		}
		sink.SetState(session.Connecting)
	}
}

func (s *SerialSource) stream(ctx context.Context, port serial.Port, sink Sink) error {
	// Closing the port unblocks the pending Read when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer stop()

	frames := NewFrameReader(port)
	for {
		payload, err := frames.Next()
		switch {
		case errors.Is(err, ErrBadFrame):
			s.logger.Debug("serial: frame dropped", "err", err)
			continue
		case errors.Is(err, io.EOF):
			return io.ErrUnexpectedEOF
		case err != nil:
			return err
		}

		sample, err := Decode(payload, time.Now())
		if err != nil {
			if !errors.Is(err, ErrNoReading) {
				s.logger.Debug("serial: sample dropped", "err", err)
			}
			continue
		}
		sink.Submit(sample)
	}
}
