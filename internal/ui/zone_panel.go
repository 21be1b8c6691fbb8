package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ZoneRow is the live state of one physical zone.
type ZoneRow struct {
	Zone     int       // Physical zone
	Output   int       // Output zone it is routed to
	Level    int       // Latest level
	Max      int       // Level ceiling
	Baseline float64   // NaN until seeded
	History  []float64 // Recent levels, oldest first
	Color    lipgloss.Color
}

// RenderZonePanel renders one entry per zone: routing, level bar,
// baseline and a sparkline of recent levels.
func RenderZonePanel(rows []ZoneRow, width, height int) string {
	innerW := width - 4
	if innerW < 16 {
		innerW = 16
	}

	lines := []string{
		StylePanelTitle.Render(fmt.Sprintf("ZONES [%d]", len(rows))),
		StyleSeparator.Render(strings.Repeat("-", innerW)),
	}
	for _, r := range rows {
		lines = append(lines, renderZoneEntry(r, innerW)...)
	}

	innerH := height - 2
	content := fitLines(strings.Join(lines, "\n"), innerH)
	return fitLines(StylePanelBorder.Width(width-2).Height(innerH).Render(content), height)
}

func renderZoneEntry(r ZoneRow, maxW int) []string {
	marker := lipgloss.NewStyle().Foreground(r.Color).Bold(true).Render("•")
	label := StyleZoneLabel.Render(fmt.Sprintf("Z%d", r.Zone))
	route := StyleZoneDim.Render(fmt.Sprintf("->%d", r.Output))
	level := StyleZoneValue.Render(fmt.Sprintf("%3d", r.Level))

	barW := maxW - 16
	if barW < 4 {
		barW = 4
	}
	line1 := fmt.Sprintf("%s %s%s %s %s", marker, label, route, renderLevelBar(r.Level, r.Max, barW, r.Color), level)

	base := "base --"
	if !math.IsNaN(r.Baseline) {
		base = fmt.Sprintf("base %.1f", r.Baseline)
	}
	sparkW := maxW - len(base) - 4
	line2 := "   " + StyleZoneDim.Render(base) + " " + StyleZoneValue.Render(renderSparkline(r.History, sparkW))

	return []string{line1, line2}
}

func renderLevelBar(level, limit, width int, color lipgloss.Color) string {
	ratio := 0.0
	if limit > 0 {
		ratio = float64(level) / float64(limit)
	}
	ratio = math.Min(math.Max(ratio, 0), 1)
	filled := int(math.Round(ratio * float64(width)))

	filledPart := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("|", filled))
	emptyPart := lipgloss.NewStyle().Foreground(ColorDimGreen).Render(strings.Repeat("-", width-filled))
	return StyleHelp.Render("[") + filledPart + emptyPart + StyleHelp.Render("]")
}

func renderSparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	chars := []byte{'_', '.', '-', '~', '^'}

	minV, maxV := values[0], values[0]
	for _, v := range values {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}

	rng := maxV - minV
	if rng < 1 {
		rng = 1
	}

	// Take last `width` values
	start := 0
	if len(values) > width {
		start = len(values) - width
	}

	var sb strings.Builder
	for _, v := range values[start:] {
		idx := int((v - minV) / rng * float64(len(chars)-1))
		idx = min(max(idx, 0), len(chars)-1)
		sb.WriteByte(chars[idx])
	}
	return sb.String()
}
