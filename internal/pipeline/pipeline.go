package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"ble-midi.klederson.com/internal/config"
	"ble-midi.klederson.com/internal/display"
	"ble-midi.klederson.com/internal/dispatch"
	"ble-midi.klederson.com/internal/sensor"
	"ble-midi.klederson.com/internal/session"
	"ble-midi.klederson.com/internal/signal"
	"ble-midi.klederson.com/internal/zones"
)

// Pipeline errors.
var (
	ErrZoneOutOfRange   = errors.New("zone out of range")
	ErrControlQueueFull = errors.New("control queue full")
	ErrPipelineStopped  = errors.New("pipeline stopped")
	ErrPipelineRunning  = errors.New("pipeline already running")
)

// params is the part of the settings the transform loop reads per sample.
// It is replaced as a whole, never mutated.
type params struct {
	normalizer       signal.Normalizer
	alpha            float64
	zoneMap          []int
	resetOnReconnect bool
}

// resetAll is the zone of a reset request covering every zone.
const resetAll = -1

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	State     session.State
	Processed uint64 // Samples transformed and dispatched
	Dropped   uint64 // Samples rejected because the ingest queue was full
	Discarded uint64 // Samples still queued at shutdown
	Resets    uint64
	Baselines []float64 // NaN for zones without a baseline yet
	ZoneMap   []int
	Consumers map[string]dispatch.Stats
}

// Pipeline owns the calibration state and turns raw samples into
// dispatched outputs. Samples enter through Submit and are transformed by
// a single loop started with Run; nothing on that loop blocks.
type Pipeline struct {
	logger     *slog.Logger
	tracker    *signal.BaselineTracker // Owned by the Run loop
	mapper     *zones.Mapper
	dispatcher *dispatch.Dispatcher
	display    *display.Buffer
	session    *session.Machine

	params   atomic.Pointer[params]
	samples  chan sensor.Sample
	resets   chan int
	running  atomic.Bool
	stopped  chan struct{}
	streamed atomic.Bool

	// Published by the loop after every update, for readers on other
	// goroutines.
	baselines []atomic.Uint64

	processed atomic.Uint64
	dropped   atomic.Uint64
	discarded atomic.Uint64
	resetsRun atomic.Uint64

	mu       sync.Mutex
	settings config.Settings
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDisplay lets Apply resize the display window of buf.
func WithDisplay(buf *display.Buffer) Option {
	return func(p *Pipeline) { p.display = buf }
}

// New validates s and builds a pipeline that dispatches to d. The caller
// registers consumers on d before calling Run.
func New(s config.Settings, d *dispatch.Dispatcher, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		logger:     logger,
		tracker:    signal.NewBaselineTracker(config.NumZones, s.Alpha),
		mapper:     zones.New(config.NumZones),
		dispatcher: d,
		session:    session.NewMachine(),
		samples:    make(chan sensor.Sample, s.Queues.Ingest),
		resets:     make(chan int, s.Queues.Control),
		stopped:    make(chan struct{}),
		baselines:  make([]atomic.Uint64, config.NumZones),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := range p.baselines {
		p.baselines[i].Store(math.Float64bits(math.NaN()))
	}

	p.publish(s)
	p.session.OnChange(p.onStateChange)
	return p, nil
}

// Submit queues a sample for transformation. It never blocks: when the
// ingest queue is full the sample is dropped and false is returned.
func (p *Pipeline) Submit(s sensor.Sample) bool {
	select {
	case <-p.stopped:
		return false
	default:
	}
	select {
	case p.samples <- s:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// SetState records a link state reported by the sample source.
func (p *Pipeline) SetState(s session.State) {
	if err := p.session.Transition(s); err != nil {
		p.logger.Warn("pipeline: ignoring link state", "err", err)
	}
}

// State returns the current link state.
func (p *Pipeline) State() session.State {
	return p.session.State()
}

// OnStateChange registers fn to be called after every link state change.
func (p *Pipeline) OnStateChange(fn func(from, to session.State)) {
	p.session.OnChange(fn)
}

func (p *Pipeline) onStateChange(from, to session.State) {
	p.logger.Info("pipeline: link state changed", "from", from.String(), "to", to.String())
	if to != session.Streaming {
		return
	}
	if p.streamed.Swap(true) && p.params.Load().resetOnReconnect {
		p.logger.Info("pipeline: re-baselining after reconnect")
		_ = p.ResetAllBaselines()
	}
}

// Run starts the dispatcher and transforms samples until ctx is cancelled.
// Samples still queued at that point are discarded and the dispatcher is
// closed. A pipeline runs once.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrPipelineRunning
	}
	p.dispatcher.Start()
	defer p.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case zone := <-p.resets:
			p.reset(zone)
		case s := <-p.samples:
			p.process(s)
		}
	}
}

func (p *Pipeline) shutdown() {
	close(p.stopped)

	var n uint64
drain:
	for {
		select {
		case <-p.samples:
			n++
		default:
			break drain
		}
	}
	p.discarded.Add(n)
	p.dispatcher.Close()
	p.logger.Debug("pipeline: stopped", "processed", p.processed.Load(), "discarded", n)
}

// process runs one sample through baseline, normalization and zone map.
func (p *Pipeline) process(s sensor.Sample) {
	prm := p.params.Load()
	if prm.alpha != p.tracker.Alpha() {
		p.tracker.SetAlpha(prm.alpha)
	}

	raw := float64(s.Period)
	baseline := p.tracker.Update(s.Zone, raw)
	p.baselines[s.Zone].Store(math.Float64bits(baseline))

	p.dispatcher.Dispatch(dispatch.Output{
		Zone:      prm.zoneMap[s.Zone],
		Source:    s.Zone,
		Value:     prm.normalizer.Level(raw, baseline),
		MaxOutput: prm.normalizer.MaxOutput,
		Raw:       raw,
		Baseline:  baseline,
		At:        s.At,
	})
	p.processed.Add(1)
}

func (p *Pipeline) reset(zone int) {
	if zone == resetAll {
		p.tracker.ResetAll()
		for i := range p.baselines {
			p.baselines[i].Store(math.Float64bits(math.NaN()))
		}
		p.logger.Info("pipeline: all baselines reset")
	} else {
		p.tracker.Reset(zone)
		p.baselines[zone].Store(math.Float64bits(math.NaN()))
		p.logger.Info("pipeline: baseline reset", "zone", zone)
	}
	p.resetsRun.Add(1)
}

// ResetBaseline asks the loop to re-seed zone from its next sample.
func (p *Pipeline) ResetBaseline(zone int) error {
	if zone < 0 || zone >= config.NumZones {
		return fmt.Errorf("%w: %d", ErrZoneOutOfRange, zone)
	}
	return p.requestReset(zone)
}

// ResetAllBaselines asks the loop to re-seed every zone.
func (p *Pipeline) ResetAllBaselines() error {
	return p.requestReset(resetAll)
}

func (p *Pipeline) requestReset(zone int) error {
	select {
	case <-p.stopped:
		return ErrPipelineStopped
	default:
	}
	select {
	case p.resets <- zone:
		return nil
	default:
		return ErrControlQueueFull
	}
}

// Apply validates s and, only if every field is valid, makes it the active
// configuration. The next sample uses the new values. On error nothing
// changes.
func (p *Pipeline) Apply(s config.Settings) error {
	if err := s.Validate(); err != nil {
		p.logger.Warn("pipeline: configuration rejected", "err", err)
		return err
	}
	p.publish(s)
	p.logger.Info("pipeline: configuration applied",
		"alpha", s.Alpha, "slope", s.Slope, "max_output", s.MaxOutput,
		"zone_map", zones.Format(s.ZoneMap))
	return nil
}

// SetZoneMap replaces only the zone map. The scaling in effect is kept.
func (p *Pipeline) SetZoneMap(m []int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.mapper.Set(m); err != nil {
		return err
	}
	next := *p.params.Load()
	next.zoneMap = p.mapper.Current()
	p.params.Store(&next)
	p.settings.ZoneMap = p.mapper.Current()
	p.logger.Info("pipeline: zone map changed", "zone_map", zones.Format(m))
	return nil
}

// publish installs already validated settings. The zone map and scaling
// reach the loop in a single store.
func (p *Pipeline) publish(s config.Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.mapper.Set(s.ZoneMap); err != nil {
		// Validate checked the map.
		panic(err)
	}
	p.params.Store(&params{
		normalizer:       signal.NormalizerFrom(s),
		alpha:            s.Alpha,
		zoneMap:          p.mapper.Current(),
		resetOnReconnect: s.ResetOnReconnect,
	})
	if p.display != nil {
		p.display.SetWindow(s.PlotDuration)
	}

	s.ZoneMap = p.mapper.Current()
	p.settings = s
}

// Settings returns the active configuration.
func (p *Pipeline) Settings() config.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.settings
	s.ZoneMap = append([]int(nil), s.ZoneMap...)
	return s
}

// ZoneMap returns the active zone map.
func (p *Pipeline) ZoneMap() []int {
	return append([]int(nil), p.params.Load().zoneMap...)
}

// Baselines returns the last published baseline of every zone, NaN where a
// zone has none yet.
func (p *Pipeline) Baselines() []float64 {
	out := make([]float64, len(p.baselines))
	for i := range p.baselines {
		out[i] = math.Float64frombits(p.baselines[i].Load())
	}
	return out
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		State:     p.session.State(),
		Processed: p.processed.Load(),
		Dropped:   p.dropped.Load(),
		Discarded: p.discarded.Load(),
		Resets:    p.resetsRun.Load(),
		Baselines: p.Baselines(),
		ZoneMap:   p.ZoneMap(),
		Consumers: p.dispatcher.Stats(),
	}
}
