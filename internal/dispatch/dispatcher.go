package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Dispatcher errors.
var (
	ErrDispatcherClosed  = errors.New("dispatcher closed")
	ErrDispatcherStarted = errors.New("dispatcher already started")
	ErrConsumerExists    = errors.New("consumer already registered")
)

// DefaultCapacity is the queue size used when WithCapacity is not given.
const DefaultCapacity = 16

// Stats are the delivery counters of one consumer.
type Stats struct {
	Delivered uint64
	Dropped   uint64 // Overwritten or superseded before delivery
	Pending   int
}

// Option configures a consumer queue.
type Option func(*queue)

// WithCapacity bounds the consumer's queue. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(q *queue) {
		if n > 0 {
			q.items = newRing(n)
		}
	}
}

// WithCoalesce keeps at most one queued output per zone: a newer output
// replaces the queued one for the same zone instead of queueing behind it.
func WithCoalesce() Option {
	return func(q *queue) { q.coalesce = true }
}

type queue struct {
	name     string
	consumer Consumer
	coalesce bool

	mu    sync.Mutex
	items *ring
	wake  chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func (q *queue) push(o Output) {
	q.mu.Lock()
	switch {
	case q.coalesce && q.items.replaceZone(o):
		q.dropped.Add(1)
	case q.items.push(o):
		q.dropped.Add(1)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) pop() (Output, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.pop()
}

// Dispatcher fans outputs out to registered consumers. Every consumer has
// its own bounded queue and goroutine, so a stalled consumer loses its
// oldest outputs instead of delaying the caller or the other consumers.
type Dispatcher struct {
	logger *slog.Logger

	mu      sync.RWMutex
	queues  []*queue
	started bool
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates an empty Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Register adds a consumer. It must be called before Start.
func (d *Dispatcher) Register(name string, c Consumer, opts ...Option) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	if d.started {
		return ErrDispatcherStarted
	}
	for _, q := range d.queues {
		if q.name == name {
			return fmt.Errorf("%w: %s", ErrConsumerExists, name)
		}
	}

	q := &queue{
		name:     name,
		consumer: c,
		items:    newRing(DefaultCapacity),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	d.queues = append(d.queues, q)
	return nil
}

// Start launches one worker per registered consumer.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started || d.closed {
		return
	}
	d.started = true
	for _, q := range d.queues {
		d.wg.Add(1)
		go d.work(q)
	}
	d.logger.Debug("dispatch: started", "consumers", len(d.queues))
}

// Dispatch queues o for every consumer. It never blocks; after Close it is
// a no-op.
func (d *Dispatcher) Dispatch(o Output) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}
	for _, q := range d.queues {
		q.push(o)
	}
}

// Stats returns the counters of every consumer keyed by name.
func (d *Dispatcher) Stats() map[string]Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]Stats, len(d.queues))
	for _, q := range d.queues {
		q.mu.Lock()
		pending := q.items.len()
		q.mu.Unlock()
		out[q.name] = Stats{
			Delivered: q.delivered.Load(),
			Dropped:   q.dropped.Load(),
			Pending:   pending,
		}
	}
	return out
}

// Names returns the registered consumer names, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.queues))
	for _, q := range d.queues {
		names = append(names, q.name)
	}
	sort.Strings(names)
	return names
}

// Close stops the workers, discards undelivered outputs and waits for any
// in-progress delivery to return. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()

	d.wg.Wait()

	for _, q := range d.queues {
		q.mu.Lock()
		n := q.items.clear()
		q.mu.Unlock()
		if n > 0 {
			d.logger.Debug("dispatch: discarded pending outputs", "consumer", q.name, "count", n)
		}
	}
}

func (d *Dispatcher) work(q *queue) {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-q.wake:
		}

		for {
			select {
			case <-d.done:
				return
			default:
			}
			o, ok := q.pop()
			if !ok {
				break
			}
			d.deliver(q, o)
		}
	}
}

func (d *Dispatcher) deliver(q *queue, o Output) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch: consumer panicked", "consumer", q.name, "zone", o.Zone, "panic", r)
		}
	}()
	q.consumer.Consume(o)
	q.delivered.Add(1)
}
