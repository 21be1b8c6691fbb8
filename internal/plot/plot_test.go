package plot

import (
	"strings"
	"testing"
	"time"

	"ble-midi.klederson.com/internal/display"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Unix(1000, 0)

func TestColumn(t *testing.T) {
	c, ok := Column(now, now, 4*time.Second, 41)
	require.True(t, ok)
	assert.Equal(t, 40, c)

	c, ok = Column(now.Add(-4*time.Second), now, 4*time.Second, 41)
	require.True(t, ok)
	assert.Equal(t, 0, c)

	c, ok = Column(now.Add(-2*time.Second), now, 4*time.Second, 41)
	require.True(t, ok)
	assert.Equal(t, 20, c)

	_, ok = Column(now.Add(-5*time.Second), now, 4*time.Second, 41)
	assert.False(t, ok)
	_, ok = Column(now.Add(time.Second), now, 4*time.Second, 41)
	assert.False(t, ok)
}

func TestRow(t *testing.T) {
	r := Range{0, 127}
	assert.Equal(t, 0, Row(127, r, 10))
	assert.Equal(t, 9, Row(0, r, 10))
	assert.Equal(t, 0, Row(500, r, 10))
	assert.Equal(t, 9, Row(-3, r, 10))
}

func TestFit(t *testing.T) {
	assert.Equal(t, Range{0, 1}, Fit(nil))

	r := Fit([][]display.Point{
		{{Raw: 100}, {Raw: 200}},
		{{Raw: 300}},
	})
	assert.InDelta(t, 90, r.Lo, 1e-9)
	assert.InDelta(t, 310, r.Hi, 1e-9)

	flat := Fit([][]display.Point{{{Raw: 50}, {Raw: 50}}})
	assert.Equal(t, Range{49.5, 50.5}, flat)
}

func TestGridPlacesReadings(t *testing.T) {
	series := [][]display.Point{
		{{At: now, Value: 127}},
		{{At: now.Add(-4 * time.Second), Value: 0}},
		{{At: now.Add(-10 * time.Second), Value: 60}}, // outside the window
	}
	opt := Options{Width: 20, Height: 5, Window: 4 * time.Second, Now: now, MaxOutput: 127}

	cells := grid(series, opt)
	assert.Equal(t, 0, cells[0][19])
	assert.Equal(t, 1, cells[4][0])

	count := 0
	for _, row := range cells {
		for _, z := range row {
			if z == 2 {
				count++
			}
		}
	}
	assert.Zero(t, count)
}

func TestGridJoinsAdjacentReadings(t *testing.T) {
	series := [][]display.Point{{
		{At: now.Add(-100 * time.Millisecond), Value: 0},
		{At: now, Value: 127},
	}}
	opt := Options{Width: 41, Height: 5, Window: 4 * time.Second, Now: now, MaxOutput: 127}

	cells := grid(series, opt)
	for row := 0; row < 5; row++ {
		assert.Equal(t, 0, cells[row][40], "row %d", row)
	}
}

func TestRender(t *testing.T) {
	series := [][]display.Point{{{At: now, Value: 64}}}
	out := Render(series, Options{Width: 30, Height: 6, Window: 4 * time.Second, Now: now, MaxOutput: 127})

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 6)
	for _, l := range lines {
		assert.Equal(t, 30, lipgloss.Width(l))
	}
	assert.Contains(t, out, glyph)

	assert.Empty(t, Render(series, Options{Width: 5, Height: 2}))
}

func TestRenderLegend(t *testing.T) {
	legend := RenderLegend(60, 8)
	for _, z := range []string{"0", "7"} {
		assert.Contains(t, legend, z)
	}
}
