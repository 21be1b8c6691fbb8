package ui

// RenderPlotPanel wraps plot content with a styled border.
// The actual plot rendering is done externally to avoid import cycles.
func RenderPlotPanel(width, height int, title, axis, plot, legend string) string {
	content := StylePanelTitle.Render(title) + "\n" + axis + "\n" + plot + "\n" + legend
	return fitLines(StylePanelBorder.Width(width-2).Height(height-2).Render(content), height)
}
