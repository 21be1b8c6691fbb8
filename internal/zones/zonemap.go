package zones

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// ErrInvalidMapping is returned when a candidate zone map is not a
// permutation of [0, n).
var ErrInvalidMapping = errors.New("invalid zone map")

// Mapper routes physical sensor zones to logical output zones.
//
// The active map is published with copy-and-swap: readers load a pointer to
// an immutable slice, so a lookup sees either the whole old map or the whole
// new one.
type Mapper struct {
	n      int
	active atomic.Pointer[[]int]
}

// New creates a Mapper for n zones with the identity map installed.
func New(n int) *Mapper {
	if n <= 0 {
		panic(fmt.Sprintf("zones: zone count %d must be positive", n))
	}
	m := &Mapper{n: n}
	id := Identity(n)
	m.active.Store(&id)
	return m
}

// Len returns the number of zones.
func (m *Mapper) Len() int {
	return m.n
}

// Set validates candidate and, if it is a bijection, installs a private copy
// of it. On error the previous map stays active.
func (m *Mapper) Set(candidate []int) error {
	if err := Check(candidate, m.n); err != nil {
		return err
	}
	cp := make([]int, len(candidate))
	copy(cp, candidate)
	m.active.Store(&cp)
	return nil
}

// Apply returns the output zone for a physical zone.
func (m *Mapper) Apply(zone int) int {
	if zone < 0 || zone >= m.n {
		panic(fmt.Sprintf("zones: zone index %d out of range [0, %d)", zone, m.n))
	}
	return (*m.active.Load())[zone]
}

// Current returns a copy of the active map.
func (m *Mapper) Current() []int {
	cur := *m.active.Load()
	cp := make([]int, len(cur))
	copy(cp, cur)
	return cp
}

// Check reports whether candidate is a permutation of [0, n).
func Check(candidate []int, n int) error {
	if len(candidate) != n {
		return fmt.Errorf("%w: expected %d zones, got %d", ErrInvalidMapping, n, len(candidate))
	}
	used := make([]bool, n)
	for i, z := range candidate {
		if z < 0 || z >= n {
			return fmt.Errorf("%w: zone %d at position %d is out of range (0-%d)", ErrInvalidMapping, z, i, n-1)
		}
		if used[z] {
			return fmt.Errorf("%w: zone %d is used multiple times", ErrInvalidMapping, z)
		}
		used[z] = true
	}
	return nil
}

// Identity returns the map i -> i.
func Identity(n int) []int {
	m := make([]int, n)
	for i := range m {
		m[i] = i
	}
	return m
}

// Reverse returns the map i -> n-1-i.
func Reverse(n int) []int {
	m := make([]int, n)
	for i := range m {
		m[i] = n - 1 - i
	}
	return m
}

// Parse reads a comma-separated map such as "5,6,7,2,1,3,4,0" and checks
// that it is a permutation of [0, n).
func Parse(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	m := make([]int, 0, len(parts))
	for _, p := range parts {
		z, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid zone number %q", ErrInvalidMapping, p)
		}
		m = append(m, z)
	}
	if err := Check(m, n); err != nil {
		return nil, err
	}
	return m, nil
}

// Format renders a map in the form accepted by Parse.
func Format(m []int) string {
	parts := make([]string, len(m))
	for i, z := range m {
		parts[i] = strconv.Itoa(z)
	}
	return strings.Join(parts, ",")
}
