package app

import (
	"fmt"
	"math"
	"time"

	"ble-midi.klederson.com/internal/config"
	"ble-midi.klederson.com/internal/display"
	"ble-midi.klederson.com/internal/pipeline"
	"ble-midi.klederson.com/internal/plot"
	"ble-midi.klederson.com/internal/ui"
	"ble-midi.klederson.com/internal/zones"
	tea "github.com/charmbracelet/bubbletea"
)

// Controller is the part of the pipeline the monitor drives.
type Controller interface {
	ResetBaseline(zone int) error
	ResetAllBaselines() error
	SetZoneMap(m []int) error
	Settings() config.Settings
	Stats() pipeline.Stats
}

// Counter reports how many messages a consumer wrote and failed to write.
type Counter interface {
	Sent() uint64
	Errors() uint64
}

// Options wires the monitor to the running pipeline.
type Options struct {
	Controller Controller
	Buffer     *display.Buffer
	MIDI       Counter // May be nil
	Source     string
	Reload     func() error
}

// shared holds state shared between the Bubble Tea model copies and main.go.
// Because Bubble Tea uses value receivers, pointer fields ensure all copies
// see the same underlying data.
type shared struct {
	ctl    Controller
	buffer *display.Buffer
	midi   Counter
	reload func() error

	rateAt        time.Time
	rateProcessed uint64
	rate          float64
}

// Model is the root Bubble Tea model of the live monitor.
type Model struct {
	width  int
	height int

	source  string
	plotRaw bool

	notice    string
	noticeErr bool
	noticeAt  time.Time

	shared *shared

	// Cached snapshot
	series [][]display.Point
	stats  pipeline.Stats
	now    time.Time
}

// New creates a Model.
func New(opts Options) Model {
	return Model{
		source:  opts.Source,
		plotRaw: opts.Controller.Settings().PlotRaw,
		shared: &shared{
			ctl:    opts.Controller,
			buffer: opts.Buffer,
			midi:   opts.MIDI,
			reload: opts.Reload,
		},
	}
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		m.now = time.Time(msg)
		m.series = m.shared.buffer.Snapshot()
		m.stats = m.shared.ctl.Stats()
		m.shared.updateRate(m.now, m.stats.Processed)
		if !m.noticeAt.IsZero() && m.now.Sub(m.noticeAt) > noticeTTL {
			m.notice = ""
		}
		return m, tickCmd()

	case SourceErrorMsg:
		return m.setNotice(fmt.Sprintf("source stopped: %v", msg.Err), true), nil

	case ReloadedMsg:
		if msg.Err != nil {
			return m.setNotice(fmt.Sprintf("reload rejected: %v", msg.Err), true), nil
		}
		m.plotRaw = m.shared.ctl.Settings().PlotRaw
		return m.setNotice("settings reloaded", false), nil
	}

	return m, nil
}

const noticeTTL = 5 * time.Second

func (m Model) setNotice(text string, isErr bool) Model {
	m.notice = text
	m.noticeErr = isErr
	m.noticeAt = time.Now()
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "r", "R":
		if err := m.shared.ctl.ResetAllBaselines(); err != nil {
			return m.setNotice(err.Error(), true), nil
		}
		return m.setNotice("all baselines reset", false), nil

	case "0", "1", "2", "3", "4", "5", "6", "7":
		zone := int(key[0] - '0')
		if err := m.shared.ctl.ResetBaseline(zone); err != nil {
			return m.setNotice(err.Error(), true), nil
		}
		return m.setNotice(fmt.Sprintf("zone %d baseline reset", zone), false), nil

	case "v", "V":
		return m.setZoneMap(zones.Reverse(config.NumZones), "zone map reversed"), nil

	case "i", "I":
		return m.setZoneMap(zones.Identity(config.NumZones), "zone map reset to identity"), nil

	case "p", "P":
		m.plotRaw = !m.plotRaw
		return m, nil

	case "l", "L":
		if m.shared.reload == nil {
			return m, nil
		}
		reload := m.shared.reload
		return m, func() tea.Msg { return ReloadedMsg{Err: reload()} }
	}

	return m, nil
}

func (m Model) setZoneMap(zm []int, notice string) Model {
	if err := m.shared.ctl.SetZoneMap(zm); err != nil {
		return m.setNotice(err.Error(), true)
	}
	return m.setNotice(notice, false)
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing BLE-MIDI..."
	}

	menuH := 1
	statusH := 1
	bodyH := m.height - menuH - statusH
	if bodyH < 12 {
		bodyH = 12
	}

	plotW := m.width * 2 / 3
	if plotW < 30 {
		plotW = 30
	}
	zoneW := m.width - plotW
	if zoneW < 24 {
		zoneW = 24
		plotW = m.width - zoneW
	}

	settings := m.shared.ctl.Settings()
	menuBar := ui.RenderMenuBar(m.width, m.source, m.plotRaw)

	// Border, title, axis and legend take 5 lines.
	innerW := max(plotW-4, 10)
	innerH := max(bodyH-5, 3)
	opt := plot.Options{
		Width:     innerW,
		Height:    innerH,
		Window:    m.shared.buffer.Window(),
		Now:       m.now,
		Raw:       m.plotRaw,
		MaxOutput: settings.MaxOutput,
	}
	axis := plot.RenderAxis(innerW, plot.ValueRange(m.series, opt), opt.Window, m.plotRaw)
	legend := plot.RenderLegend(innerW, config.NumZones)
	plotPanel := ui.RenderPlotPanel(plotW, bodyH, "LIVE", axis, plot.Render(m.series, opt), legend)

	zonePanel := ui.RenderZonePanel(m.zoneRows(settings), zoneW, bodyH)

	statusBar := ui.RenderStatusBar(m.width, m.status())

	return ui.ComposeLayout(menuBar, plotPanel, zonePanel, statusBar)
}

// zoneRows lists the physical zones with their routed output's latest
// readings.
func (m Model) zoneRows(settings config.Settings) []ui.ZoneRow {
	zm := m.stats.ZoneMap
	if len(zm) != config.NumZones {
		zm = zones.Identity(config.NumZones)
	}

	rows := make([]ui.ZoneRow, config.NumZones)
	for z := range rows {
		out := zm[z]
		row := ui.ZoneRow{
			Zone:     z,
			Output:   out,
			Max:      settings.MaxOutput,
			Baseline: baselineOf(m.stats.Baselines, z),
			Color:    plot.ZoneColors[out%len(plot.ZoneColors)],
		}
		if out < len(m.series) {
			pts := m.series[out]
			if len(pts) > 0 {
				row.Level = int(pts[len(pts)-1].Value)
			}
			row.History = make([]float64, len(pts))
			for i, p := range pts {
				row.History[i] = p.Value
			}
		}
		rows[z] = row
	}
	return rows
}

func baselineOf(baselines []float64, zone int) float64 {
	if zone < len(baselines) {
		return baselines[zone]
	}
	return math.NaN()
}

func (m Model) status() ui.Status {
	st := ui.Status{
		State:     m.stats.State,
		Rate:      m.shared.rate,
		Processed: m.stats.Processed,
		Dropped:   m.stats.Dropped,
		ZoneMap:   zones.Format(m.stats.ZoneMap),
		Notice:    m.notice,
		NoticeErr: m.noticeErr,
	}
	for _, c := range m.stats.Consumers {
		st.Dropped += c.Dropped
	}
	if m.shared.midi != nil {
		st.MIDISent = m.shared.midi.Sent()
		st.MIDIErrs = m.shared.midi.Errors()
	}
	return st
}

// updateRate refreshes the sample rate about once per second.
func (s *shared) updateRate(now time.Time, processed uint64) {
	if s.rateAt.IsZero() {
		s.rateAt, s.rateProcessed = now, processed
		return
	}
	elapsed := now.Sub(s.rateAt)
	if elapsed < time.Second {
		return
	}
	s.rate = float64(processed-s.rateProcessed) / elapsed.Seconds()
	s.rateAt, s.rateProcessed = now, processed
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(config.TargetFPS), func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
