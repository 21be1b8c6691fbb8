package dispatch

// ring is a fixed-capacity FIFO of outputs. Pushing onto a full ring
// overwrites the oldest entry.
type ring struct {
	buf   []Output
	head  int // index of the oldest entry
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Output, capacity)}
}

// push appends o and reports whether the oldest entry was overwritten.
func (r *ring) push(o Output) bool {
	if r.count == len(r.buf) {
		r.buf[r.head] = o
		r.head = (r.head + 1) % len(r.buf)
		return true
	}
	r.buf[(r.head+r.count)%len(r.buf)] = o
	r.count++
	return false
}

// pop removes and returns the oldest entry.
func (r *ring) pop() (Output, bool) {
	if r.count == 0 {
		return Output{}, false
	}
	o := r.buf[r.head]
	r.buf[r.head] = Output{}
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return o, true
}

// replaceZone overwrites the queued entry for o.Zone in place, keeping its
// position. It reports false when no entry for that zone is queued.
func (r *ring) replaceZone(o Output) bool {
	for i := 0; i < r.count; i++ {
		idx := (r.head + i) % len(r.buf)
		if r.buf[idx].Zone == o.Zone {
			r.buf[idx] = o
			return true
		}
	}
	return false
}

// clear drops every entry and returns how many there were.
func (r *ring) clear() int {
	n := r.count
	for i := range r.buf {
		r.buf[i] = Output{}
	}
	r.head, r.count = 0, 0
	return n
}

func (r *ring) len() int {
	return r.count
}
