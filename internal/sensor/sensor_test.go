package sensor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"ble-midi.klederson.com/internal/config"
	"ble-midi.klederson.com/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type recordingSink struct {
	mu      sync.Mutex
	samples []Sample
	states  []session.State
}

func (r *recordingSink) Submit(s Sample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return true
}

func (r *recordingSink) SetState(s session.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingSink) snapshot() ([]Sample, []session.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.samples...), append([]session.State(nil), r.states...)
}

func TestDecode(t *testing.T) {
	at := time.Unix(100, 0)
	payload := Encode(Sample{Zone: 3, Period: 48000, DeviceTime: -5})

	s, err := Decode(payload, at)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Zone)
	assert.Equal(t, uint32(48000), s.Period)
	assert.Equal(t, int32(-5), s.DeviceTime)
	assert.Equal(t, at, s.At)
}

func TestDecodeLittleEndian(t *testing.T) {
	payload := []byte{0x01, 0, 0, 0, 0x10, 0x27, 0, 0, 7}
	s, err := Decode(payload, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.DeviceTime)
	assert.Equal(t, uint32(10000), s.Period)
	assert.Equal(t, 7, s.Zone)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3}, time.Time{})
	assert.ErrorIs(t, err, ErrShortPayload)

	_, err = Decode(Encode(Sample{Zone: config.NumZones, Period: 1}), time.Time{})
	assert.ErrorIs(t, err, ErrInvalidZone)

	_, err = Decode(Encode(Sample{Zone: 2}), time.Time{})
	assert.ErrorIs(t, err, ErrNoReading)

	// -5 on the wire, not a period near 4e9.
	negative := Encode(Sample{Zone: 2})
	copy(negative[4:8], []byte{0xFB, 0xFF, 0xFF, 0xFF})
	_, err = Decode(negative, time.Time{})
	assert.ErrorIs(t, err, ErrBadPeriod)

	largest := Encode(Sample{Zone: 2})
	copy(largest[4:8], []byte{0xFF, 0xFF, 0xFF, 0x7F})
	s, err := Decode(largest, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxInt32), s.Period)
}

func TestFrameReader(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x13, SOF0}) // noise before the first frame
	stream.Write(EncodeFrame(Encode(Sample{Zone: 1, Period: 500})))
	stream.Write(EncodeFrame(Encode(Sample{Zone: 2, Period: 600})))

	fr := NewFrameReader(&stream)

	p, err := fr.Next()
	require.NoError(t, err)
	s, err := Decode(p, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Zone)

	p, err = fr.Next()
	require.NoError(t, err)
	s, err = Decode(p, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, uint32(600), s.Period)

	_, err = fr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReaderResyncsAfterBadChecksum(t *testing.T) {
	bad := EncodeFrame(Encode(Sample{Zone: 4, Period: 1}))
	bad[len(bad)-1] ^= 0xFF

	var stream bytes.Buffer
	stream.Write(bad)
	stream.Write(EncodeFrame(Encode(Sample{Zone: 5, Period: 2})))

	fr := NewFrameReader(&stream)
	_, err := fr.Next()
	require.ErrorIs(t, err, ErrBadFrame)

	p, err := fr.Next()
	require.NoError(t, err)
	s, err := Decode(p, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 5, s.Zone)
}

func TestFrameReaderRejectsUnknownCommand(t *testing.T) {
	frame := EncodeFrame([]byte{1, 2})
	frame[3] = 0x7F
	frame[len(frame)-1] = frame[2] ^ 0x7F ^ 1 ^ 2

	_, err := NewFrameReader(bytes.NewReader(frame)).Next()
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestBackoff(t *testing.T) {
	b := newBackoff(100*time.Millisecond, time.Second)
	assert.Equal(t, 100*time.Millisecond, b.next())
	assert.Equal(t, 200*time.Millisecond, b.next())
	assert.Equal(t, 400*time.Millisecond, b.next())
	assert.Equal(t, 800*time.Millisecond, b.next())
	assert.Equal(t, time.Second, b.next())
	assert.Equal(t, time.Second, b.next())

	b.reset()
	assert.Equal(t, 100*time.Millisecond, b.next())
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.True(t, sleep(context.Background(), time.Millisecond))
}

// fakePort serves a fixed byte stream and then reports EOF.
type fakePort struct {
	serial.Port
	r      io.Reader
	mu     sync.Mutex
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestSerialSourceStreamsAndReconnects(t *testing.T) {
	var opens int
	var mu sync.Mutex
	open := func(name string, mode *serial.Mode) (serial.Port, error) {
		mu.Lock()
		defer mu.Unlock()
		opens++
		switch opens {
		case 1:
			return nil, errors.New("no such device")
		case 2:
			var b bytes.Buffer
			b.Write(EncodeFrame(Encode(Sample{Zone: 0, Period: 100})))
			b.Write(EncodeFrame(Encode(Sample{Zone: 1}))) // no reading
			b.Write(EncodeFrame(Encode(Sample{Zone: 6, Period: 300})))
			return &fakePort{r: &b}, nil
		default:
			return nil, errors.New("gone")
		}
	}

	sink := &recordingSink{}
	src := NewSerialSource("/dev/ttyFAKE", 115200, nil).
		WithOpener(open).
		WithReconnectDelay(time.Millisecond, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, sink) }()

	require.Eventually(t, func() bool {
		samples, _ := sink.snapshot()
		return len(samples) == 2
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("source did not stop")
	}

	samples, states := sink.snapshot()
	assert.Equal(t, 0, samples[0].Zone)
	assert.Equal(t, 6, samples[1].Zone)

	require.GreaterOrEqual(t, len(states), 5)
	assert.Equal(t, session.Connecting, states[0])
	assert.Equal(t, session.Reconnecting, states[1])
	assert.Equal(t, session.Connecting, states[2])
	assert.Equal(t, session.Streaming, states[3])
	assert.Equal(t, session.Disconnected, states[len(states)-1])
}

func TestDemoSource(t *testing.T) {
	sink := &recordingSink{}
	src := NewDemoSource(time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, sink) }()

	require.Eventually(t, func() bool {
		samples, _ := sink.snapshot()
		return len(samples) >= 4*config.NumZones
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	samples, states := sink.snapshot()
	seen := make(map[int]bool)
	for _, s := range samples {
		assert.Positive(t, s.Period)
		assert.Less(t, s.Zone, config.NumZones)
		seen[s.Zone] = true
	}
	assert.Len(t, seen, config.NumZones)
	assert.Equal(t, []session.State{session.Connecting, session.Streaming, session.Disconnected}, states)
}
