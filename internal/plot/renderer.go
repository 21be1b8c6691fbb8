// Package plot draws the rolling per-zone window as a character grid.
package plot

import (
	"fmt"
	"strings"
	"time"

	"ble-midi.klederson.com/internal/display"
	"github.com/charmbracelet/lipgloss"
)

// ZoneColors holds one trace color per output zone.
var ZoneColors = []lipgloss.Color{
	lipgloss.Color("#00FF41"),
	lipgloss.Color("#00FFAA"),
	lipgloss.Color("#33CCFF"),
	lipgloss.Color("#FFCC00"),
	lipgloss.Color("#FF6600"),
	lipgloss.Color("#FF3399"),
	lipgloss.Color("#CC66FF"),
	lipgloss.Color("#FFFFFF"),
}

var (
	styleGrid  = lipgloss.NewStyle().Foreground(lipgloss.Color("#004A0A"))
	styleAxis  = lipgloss.NewStyle().Foreground(lipgloss.Color("#008F11"))
	styleLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("#008F11"))
)

const (
	glyph = "•"
	empty = -1
)

// ZoneStyle returns the trace style of a zone.
func ZoneStyle(zone int) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ZoneColors[zone%len(ZoneColors)]).Bold(true)
}

// Options describe one frame.
type Options struct {
	Width, Height int
	Window        time.Duration
	Now           time.Time

	// Raw plots raw periods on a fitted range instead of levels on
	// [0, MaxOutput].
	Raw       bool
	MaxOutput int
}

func (o Options) valueRange(series [][]display.Point) Range {
	if o.Raw {
		return Fit(series)
	}
	return Range{0, float64(max(o.MaxOutput, 1))}
}

// Render produces the plot as a styled string of exactly Height lines.
func Render(series [][]display.Point, opt Options) string {
	if opt.Width < 10 || opt.Height < 3 {
		return ""
	}
	cells := grid(series, opt)

	var sb strings.Builder
	for row := range cells {
		for _, z := range cells[row] {
			switch {
			case z != empty:
				sb.WriteString(ZoneStyle(z).Render(glyph))
			case isGridRow(row, opt.Height):
				sb.WriteString(styleGrid.Render("."))
			default:
				sb.WriteByte(' ')
			}
		}
		if row < len(cells)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// grid rasterizes series into one cell per character. Each cell holds the
// zone drawn there last, or empty. Consecutive readings of a zone in
// adjacent columns are joined by a vertical run.
func grid(series [][]display.Point, opt Options) [][]int {
	cells := make([][]int, opt.Height)
	for i := range cells {
		cells[i] = make([]int, opt.Width)
		for j := range cells[i] {
			cells[i][j] = empty
		}
	}

	r := opt.valueRange(series)
	for zone, pts := range series {
		prevCol, prevRow := -2, 0
		for _, p := range pts {
			col, ok := Column(p.At, opt.Now, opt.Window, opt.Width)
			if !ok {
				continue
			}
			v := p.Value
			if opt.Raw {
				v = p.Raw
			}
			row := Row(v, r, opt.Height)

			if col-prevCol <= 1 {
				for y := min(row, prevRow); y <= max(row, prevRow); y++ {
					cells[y][col] = zone
				}
			} else {
				cells[row][col] = zone
			}
			prevCol, prevRow = col, row
		}
	}
	return cells
}

func isGridRow(row, height int) bool {
	for q := 1; q < 4; q++ {
		if row == (height-1)*q/4 {
			return true
		}
	}
	return false
}

// RenderLegend produces the zone legend line, centered in width.
func RenderLegend(width int, zones int) string {
	parts := make([]string, zones)
	for z := range parts {
		parts[z] = ZoneStyle(z).Render(glyph + fmt.Sprint(z))
	}
	legend := strings.Join(parts, " ")

	pad := (width - lipgloss.Width(legend)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + legend
}

// RenderAxis labels the top and bottom of the value range and the window.
func RenderAxis(width int, r Range, window time.Duration, raw bool) string {
	unit := "level"
	if raw {
		unit = "period"
	}
	left := styleLabel.Render(fmt.Sprintf("%s %.0f..%.0f", unit, r.Lo, r.Hi))
	right := styleAxis.Render(fmt.Sprintf("-%s .. now", window))

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

// ValueRange exposes the range a frame would use for series.
func ValueRange(series [][]display.Point, opt Options) Range {
	return opt.valueRange(series)
}
