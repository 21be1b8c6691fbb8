package midi

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// ErrNoOutputPort is returned when the system has no MIDI output.
var ErrNoOutputPort = errors.New("no MIDI output port found")

// Port is an open MIDI output.
type Port struct {
	drv *rtmididrv.Driver
	out drivers.Out
}

// OpenPort opens the output named name. With virtual set it creates a
// virtual output of that name instead, which other applications can connect
// to. Otherwise an exact name match wins, then a case-insensitive substring
// match, then the first available port.
func OpenPort(name string, virtual bool, logger *slog.Logger) (*Port, error) {
	if logger == nil {
		logger = slog.Default()
	}

	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}

	if virtual {
		out, err := drv.OpenVirtualOut(name)
		if err != nil {
			drv.Close()
			return nil, fmt.Errorf("open virtual output %q: %w", name, err)
		}
		logger.Info("midi: virtual output opened", "port", name)
		return &Port{drv: drv, out: out}, nil
	}

	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	names := make([]string, len(outs))
	for i, o := range outs {
		names[i] = o.String()
	}
	logger.Debug("midi: outputs found", "count", len(names), "ports", strings.Join(names, ", "))

	idx, ok := pickPort(names, name)
	if !ok {
		drv.Close()
		return nil, ErrNoOutputPort
	}
	out := outs[idx]
	if err := out.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open %q: %w", names[idx], err)
	}
	logger.Info("midi: output opened", "port", names[idx])
	return &Port{drv: drv, out: out}, nil
}

// Send implements Sender.
func (p *Port) Send(msg []byte) error {
	return p.out.Send(msg)
}

// Name returns the port name.
func (p *Port) Name() string {
	return p.out.String()
}

// Close closes the output and the driver.
func (p *Port) Close() error {
	err := p.out.Close()
	p.drv.Close()
	return err
}

func pickPort(names []string, want string) (int, bool) {
	if len(names) == 0 {
		return 0, false
	}
	for i, n := range names {
		if n == want {
			return i, true
		}
	}
	if want != "" {
		for i, n := range names {
			if containsCI(n, want) {
				return i, true
			}
		}
	}
	return 0, true
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
