package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingOverwritesOldest(t *testing.T) {
	r := newRing(3)
	for v := 1; v <= 3; v++ {
		assert.False(t, r.push(Output{Value: v}))
	}
	assert.True(t, r.push(Output{Value: 4}))
	assert.True(t, r.push(Output{Value: 5}))
	require.Equal(t, 3, r.len())

	var got []int
	for {
		o, ok := r.pop()
		if !ok {
			break
		}
		got = append(got, o.Value)
	}
	assert.Equal(t, []int{3, 4, 5}, got)
	assert.Equal(t, 0, r.len())
}

func TestRingReplaceZoneKeepsPosition(t *testing.T) {
	r := newRing(4)
	r.push(Output{Zone: 0, Value: 1})
	r.push(Output{Zone: 1, Value: 2})
	r.push(Output{Zone: 2, Value: 3})

	assert.True(t, r.replaceZone(Output{Zone: 1, Value: 20}))
	assert.False(t, r.replaceZone(Output{Zone: 5, Value: 50}))

	o, _ := r.pop()
	assert.Equal(t, 1, o.Value)
	o, _ = r.pop()
	assert.Equal(t, 20, o.Value)
	o, _ = r.pop()
	assert.Equal(t, 3, o.Value)
}

func TestRingClear(t *testing.T) {
	r := newRing(2)
	r.push(Output{Value: 1})
	r.push(Output{Value: 2})
	assert.Equal(t, 2, r.clear())
	_, ok := r.pop()
	assert.False(t, ok)

	// Still usable after clear, starting from index 0.
	r.push(Output{Value: 7})
	o, ok := r.pop()
	require.True(t, ok)
	assert.Equal(t, 7, o.Value)
}
